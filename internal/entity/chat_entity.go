package entity

import "time"

type Session struct {
	SessionId string
	UserId    string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ChatMessage struct {
	Role      string
	Content   string
	Timestamp time.Time
}
