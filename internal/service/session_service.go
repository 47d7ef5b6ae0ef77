package service

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"compliance-rag-be/internal/dto"
	"compliance-rag-be/internal/pkg/logger"
	"compliance-rag-be/internal/repository/contract"
)

type ISessionService interface {
	Create(ctx context.Context, req *dto.CreateSessionRequest) (*dto.SessionResponse, error)
	List(ctx context.Context, userId string) ([]*dto.SessionResponse, error)
	Get(ctx context.Context, userId, sessionId string, includeMessages bool) (*dto.SessionDetailResponse, error)
	Rename(ctx context.Context, sessionId string, req *dto.RenameSessionRequest) error
	Delete(ctx context.Context, userId, sessionId string) error
	ClearMessages(ctx context.Context, userId, sessionId string) error
}

type sessionService struct {
	sessions contract.ISessionRepository
	messages contract.IMessageRepository
	log      logger.ILogger
}

func NewSessionService(sessions contract.ISessionRepository, messages contract.IMessageRepository, log logger.ILogger) ISessionService {
	return &sessionService{
		sessions: sessions,
		messages: messages,
		log:      log,
	}
}

func (s *sessionService) Create(ctx context.Context, req *dto.CreateSessionRequest) (*dto.SessionResponse, error) {
	session, err := s.sessions.Create(ctx, req.UserId, req.Name)
	if err != nil {
		return nil, err
	}

	s.log.Info("SessionService", "session created", map[string]interface{}{
		"user_id":    req.UserId,
		"session_id": session.SessionId,
	})

	return &dto.SessionResponse{
		SessionId: session.SessionId,
		Name:      session.Name,
		CreatedAt: session.CreatedAt,
	}, nil
}

func (s *sessionService) List(ctx context.Context, userId string) ([]*dto.SessionResponse, error) {
	sessions, err := s.sessions.List(ctx, userId)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.SessionResponse, len(sessions))
	for i, session := range sessions {
		res[i] = &dto.SessionResponse{
			SessionId: session.SessionId,
			Name:      session.Name,
			CreatedAt: session.CreatedAt,
		}
	}
	return res, nil
}

func (s *sessionService) Get(ctx context.Context, userId, sessionId string, includeMessages bool) (*dto.SessionDetailResponse, error) {
	session, err := s.sessions.Get(ctx, userId, sessionId)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "session not found")
	}

	res := &dto.SessionDetailResponse{
		SessionId: session.SessionId,
		Name:      session.Name,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	}

	if includeMessages {
		messages, err := s.messages.GetMessages(ctx, userId, sessionId)
		if err != nil {
			return nil, err
		}
		res.Messages = make([]dto.MessageResponse, len(messages))
		for i, m := range messages {
			res.Messages[i] = dto.MessageResponse{
				Role:      m.Role,
				Content:   m.Content,
				Timestamp: m.Timestamp,
			}
		}
	}
	return res, nil
}

func (s *sessionService) Rename(ctx context.Context, sessionId string, req *dto.RenameSessionRequest) error {
	return s.sessions.Rename(ctx, req.UserId, sessionId, req.Name)
}

func (s *sessionService) Delete(ctx context.Context, userId, sessionId string) error {
	return s.sessions.Delete(ctx, userId, sessionId)
}

func (s *sessionService) ClearMessages(ctx context.Context, userId, sessionId string) error {
	return s.messages.Clear(ctx, userId, sessionId)
}
