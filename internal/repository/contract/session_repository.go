package contract

import (
	"context"

	"compliance-rag-be/internal/entity"
)

type ISessionRepository interface {
	Create(ctx context.Context, userId, name string) (*entity.Session, error)
	List(ctx context.Context, userId string) ([]*entity.Session, error)
	Get(ctx context.Context, userId, sessionId string) (*entity.Session, error)
	Rename(ctx context.Context, userId, sessionId, name string) error
	Delete(ctx context.Context, userId, sessionId string) error
}
