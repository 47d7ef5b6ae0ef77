package contract

import (
	"context"

	"compliance-rag-be/internal/entity"
)

type IMessageRepository interface {
	Append(ctx context.Context, userId, sessionId, role, content string) error
	GetMessages(ctx context.Context, userId, sessionId string) ([]entity.ChatMessage, error)
	Clear(ctx context.Context, userId, sessionId string) error
}
