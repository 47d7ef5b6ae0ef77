package implementation

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"compliance-rag-be/internal/entity"
	"compliance-rag-be/internal/model"
	"compliance-rag-be/internal/pkg/apperror"
	"compliance-rag-be/internal/pkg/logger"
	"compliance-rag-be/internal/repository/contract"
	"compliance-rag-be/pkg/esearch"
)

const defaultSessionName = "新会话"

// sessionMeta is the value stored per session in the cache hash.
type sessionMeta struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type SessionRepositoryImpl struct {
	db           *gorm.DB
	cache        *redis.Client
	search       esearch.ISearchClient
	historyIndex string
	log          logger.ILogger
}

// NewSessionRepository wires the three storage tiers. The cache client
// and search client may be nil when the corresponding backend is
// disabled; the row store is mandatory.
func NewSessionRepository(db *gorm.DB, cache *redis.Client, search esearch.ISearchClient, historyIndex string, log logger.ILogger) contract.ISessionRepository {
	return &SessionRepositoryImpl{
		db:           db,
		cache:        cache,
		search:       search,
		historyIndex: historyIndex,
		log:          log,
	}
}

func (r *SessionRepositoryImpl) Create(ctx context.Context, userId, name string) (*entity.Session, error) {
	if name == "" {
		name = defaultSessionName
	}

	user := model.User{UserId: userId, Username: userId}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&user).Error; err != nil {
		return nil, apperror.New(apperror.KindRowStore, "session.create.user", err)
	}

	session := model.Session{
		SessionId: uuid.NewString(),
		UserId:    userId,
		Name:      name,
		IsActive:  true,
	}
	if err := r.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, apperror.New(apperror.KindRowStore, "session.create", err)
	}

	r.cacheSession(ctx, userId, session.SessionId, sessionMeta{Name: name, CreatedAt: session.CreatedAt})
	r.indexSession(ctx, &session)

	return toSessionEntity(&session), nil
}

func (r *SessionRepositoryImpl) List(ctx context.Context, userId string) ([]*entity.Session, error) {
	if cached := r.listFromCache(ctx, userId); cached != nil {
		return cached, nil
	}

	var models []*model.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userId, true).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, apperror.New(apperror.KindRowStore, "session.list", err)
	}

	sessions := make([]*entity.Session, len(models))
	for i, m := range models {
		sessions[i] = toSessionEntity(m)
		r.cacheSession(ctx, userId, m.SessionId, sessionMeta{Name: m.Name, CreatedAt: m.CreatedAt})
	}
	return sessions, nil
}

func (r *SessionRepositoryImpl) Get(ctx context.Context, userId, sessionId string) (*entity.Session, error) {
	var m model.Session
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND user_id = ? AND is_active = ?", sessionId, userId, true).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperror.New(apperror.KindRowStore, "session.get", err)
	}
	return toSessionEntity(&m), nil
}

func (r *SessionRepositoryImpl) Rename(ctx context.Context, userId, sessionId, name string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("session_id = ? AND user_id = ? AND is_active = ?", sessionId, userId, true).
		Update("name", name)
	if result.Error != nil {
		return apperror.New(apperror.KindRowStore, "session.rename", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperror.New(apperror.KindRowStore, "session.rename", gorm.ErrRecordNotFound)
	}

	var m model.Session
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionId).First(&m).Error; err == nil {
		r.cacheSession(ctx, userId, sessionId, sessionMeta{Name: name, CreatedAt: m.CreatedAt})
	}
	return nil
}

// Delete soft-deletes the row and evicts the cache entry. Deleting an
// already deleted or unknown session is a no-op.
func (r *SessionRepositoryImpl) Delete(ctx context.Context, userId, sessionId string) error {
	err := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("session_id = ? AND user_id = ?", sessionId, userId).
		Update("is_active", false).Error
	if err != nil {
		return apperror.New(apperror.KindRowStore, "session.delete", err)
	}

	if r.cache != nil {
		if err := r.cache.HDel(ctx, sessionsKey(userId), sessionId).Err(); err != nil {
			r.log.Warn("SessionRepository", "cache evict failed", map[string]interface{}{"session_id": sessionId, "error": err.Error()})
		}
	}
	if r.search != nil {
		if err := r.search.DeleteDoc(ctx, r.historyIndex, sessionDocId(userId, sessionId)); err != nil {
			r.log.Warn("SessionRepository", "index delete failed", map[string]interface{}{"session_id": sessionId, "error": err.Error()})
		}
	}
	return nil
}

func (r *SessionRepositoryImpl) listFromCache(ctx context.Context, userId string) []*entity.Session {
	if r.cache == nil {
		return nil
	}
	raw, err := r.cache.HGetAll(ctx, sessionsKey(userId)).Result()
	if err != nil || len(raw) == 0 {
		return nil
	}

	sessions := make([]*entity.Session, 0, len(raw))
	for sessionId, encoded := range raw {
		var meta sessionMeta
		if err := json.Unmarshal([]byte(encoded), &meta); err != nil {
			continue
		}
		sessions = append(sessions, &entity.Session{
			SessionId: sessionId,
			UserId:    userId,
			Name:      meta.Name,
			CreatedAt: meta.CreatedAt,
		})
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions
}

func (r *SessionRepositoryImpl) cacheSession(ctx context.Context, userId, sessionId string, meta sessionMeta) {
	if r.cache == nil {
		return
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return
	}
	if err := r.cache.HSet(ctx, sessionsKey(userId), sessionId, string(encoded)).Err(); err != nil {
		r.log.Warn("SessionRepository", "cache write failed", map[string]interface{}{"session_id": sessionId, "error": err.Error()})
	}
}

func (r *SessionRepositoryImpl) indexSession(ctx context.Context, m *model.Session) {
	if r.search == nil {
		return
	}
	doc := map[string]interface{}{
		"user_id":    m.UserId,
		"session_id": m.SessionId,
		"name":       m.Name,
		"created_at": m.CreatedAt.Format(time.RFC3339),
		"messages":   []interface{}{},
	}
	if err := r.search.IndexDoc(ctx, r.historyIndex, sessionDocId(m.UserId, m.SessionId), doc); err != nil {
		r.log.Warn("SessionRepository", "index write failed", map[string]interface{}{"session_id": m.SessionId, "error": err.Error()})
	}
}

func toSessionEntity(m *model.Session) *entity.Session {
	return &entity.Session{
		SessionId: m.SessionId,
		UserId:    m.UserId,
		Name:      m.Name,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
