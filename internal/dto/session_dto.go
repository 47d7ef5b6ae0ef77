package dto

import "time"

type CreateSessionRequest struct {
	UserId string `json:"user_id" validate:"required"`
	Name   string `json:"name"`
}

type RenameSessionRequest struct {
	UserId string `json:"user_id" validate:"required"`
	Name   string `json:"name" validate:"required"`
}

type SessionResponse struct {
	SessionId string    `json:"session_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type MessageResponse struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type SessionDetailResponse struct {
	SessionId string            `json:"session_id"`
	Name      string            `json:"name"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Messages  []MessageResponse `json:"messages,omitempty"`
}
