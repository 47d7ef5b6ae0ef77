package implementation

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"compliance-rag-be/internal/entity"
	"compliance-rag-be/internal/pkg/apperror"
	"compliance-rag-be/internal/pkg/logger"
	"compliance-rag-be/internal/repository/contract"
	"compliance-rag-be/pkg/esearch"
)

// storedMessage is the cache-list representation of one message.
type storedMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type MessageRepositoryImpl struct {
	cache        *redis.Client
	search       esearch.ISearchClient
	historyIndex string
	log          logger.ILogger
}

// NewMessageRepository stores messages in the cache list (source of
// truth for the hot path, 24h TTL) with the search index as the durable
// tier the cache is refilled from.
func NewMessageRepository(cache *redis.Client, search esearch.ISearchClient, historyIndex string, log logger.ILogger) contract.IMessageRepository {
	return &MessageRepositoryImpl{
		cache:        cache,
		search:       search,
		historyIndex: historyIndex,
		log:          log,
	}
}

func (r *MessageRepositoryImpl) Append(ctx context.Context, userId, sessionId, role, content string) error {
	now := time.Now()

	if r.cache != nil {
		encoded, err := json.Marshal(storedMessage{Role: role, Content: content, Timestamp: now})
		if err != nil {
			return apperror.New(apperror.KindCache, "message.append.encode", err)
		}
		key := messagesKey(userId, sessionId)
		if err := r.cache.RPush(ctx, key, string(encoded)).Err(); err != nil {
			return apperror.New(apperror.KindCache, "message.append", err)
		}
		if err := r.cache.Expire(ctx, key, messageTTL).Err(); err != nil {
			return apperror.New(apperror.KindCache, "message.append.expire", err)
		}
	}

	if r.search != nil {
		ms := now.UnixMilli()
		doc := map[string]interface{}{
			"user_id":       userId,
			"session_id":    sessionId,
			"message_id":    messageDocId(sessionId, ms),
			"role":          role,
			"content":       content,
			"timestamp":     now.Format(time.RFC3339Nano),
			"message_order": ms,
		}
		if err := r.search.IndexDoc(ctx, r.historyIndex, messageDocId(sessionId, ms), doc); err != nil {
			r.log.Warn("MessageRepository", "index write failed", map[string]interface{}{"session_id": sessionId, "error": err.Error()})
		}
	}
	return nil
}

func (r *MessageRepositoryImpl) GetMessages(ctx context.Context, userId, sessionId string) ([]entity.ChatMessage, error) {
	if cached, ok := r.fromCache(ctx, userId, sessionId); ok {
		return cached, nil
	}
	return r.fromIndex(ctx, userId, sessionId)
}

func (r *MessageRepositoryImpl) Clear(ctx context.Context, userId, sessionId string) error {
	if r.cache != nil {
		if err := r.cache.Del(ctx, messagesKey(userId, sessionId)).Err(); err != nil {
			return apperror.New(apperror.KindCache, "message.clear", err)
		}
	}
	if r.search != nil {
		query := map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"user_id": userId}},
					map[string]interface{}{"term": map[string]interface{}{"session_id": sessionId}},
					map[string]interface{}{"exists": map[string]interface{}{"field": "message_id"}},
				},
			},
		}
		if err := r.search.DeleteByQuery(ctx, r.historyIndex, query); err != nil {
			r.log.Warn("MessageRepository", "index clear failed", map[string]interface{}{"session_id": sessionId, "error": err.Error()})
		}
	}
	return nil
}

func (r *MessageRepositoryImpl) fromCache(ctx context.Context, userId, sessionId string) ([]entity.ChatMessage, bool) {
	if r.cache == nil {
		return nil, false
	}
	raw, err := r.cache.LRange(ctx, messagesKey(userId, sessionId), 0, -1).Result()
	if err != nil || len(raw) == 0 {
		return nil, false
	}

	messages := make([]entity.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var m storedMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			continue
		}
		messages = append(messages, entity.ChatMessage{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp})
	}
	return messages, len(messages) > 0
}

// fromIndex rebuilds the conversation from the search index and refills
// the cache list with a fresh TTL.
func (r *MessageRepositoryImpl) fromIndex(ctx context.Context, userId, sessionId string) ([]entity.ChatMessage, error) {
	if r.search == nil {
		return nil, nil
	}

	query := map[string]interface{}{
		"bool": map[string]interface{}{
			"must": []interface{}{
				map[string]interface{}{"term": map[string]interface{}{"user_id": userId}},
				map[string]interface{}{"term": map[string]interface{}{"session_id": sessionId}},
				map[string]interface{}{"exists": map[string]interface{}{"field": "message_id"}},
			},
		},
	}
	hits, err := r.search.Search(ctx, r.historyIndex, query, 1000)
	if err != nil {
		return nil, apperror.New(apperror.KindTextIndex, "message.get", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	type ordered struct {
		message entity.ChatMessage
		order   int64
	}
	items := make([]ordered, 0, len(hits))
	for _, hit := range hits {
		role, _ := hit.Source["role"].(string)
		content, _ := hit.Source["content"].(string)
		ts, _ := hit.Source["timestamp"].(string)
		parsed, _ := time.Parse(time.RFC3339Nano, ts)
		order := int64(0)
		if o, ok := hit.Source["message_order"].(float64); ok {
			order = int64(o)
		}
		items = append(items, ordered{
			message: entity.ChatMessage{Role: role, Content: content, Timestamp: parsed},
			order:   order,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].message.Timestamp.Equal(items[j].message.Timestamp) {
			return items[i].message.Timestamp.Before(items[j].message.Timestamp)
		}
		return items[i].order < items[j].order
	})

	messages := make([]entity.ChatMessage, len(items))
	for i, item := range items {
		messages[i] = item.message
	}

	r.refillCache(ctx, userId, sessionId, messages)
	return messages, nil
}

func (r *MessageRepositoryImpl) refillCache(ctx context.Context, userId, sessionId string, messages []entity.ChatMessage) {
	if r.cache == nil {
		return
	}
	key := messagesKey(userId, sessionId)
	values := make([]interface{}, 0, len(messages))
	for _, m := range messages {
		encoded, err := json.Marshal(storedMessage{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp})
		if err != nil {
			continue
		}
		values = append(values, string(encoded))
	}
	if len(values) == 0 {
		return
	}
	if err := r.cache.RPush(ctx, key, values...).Err(); err != nil {
		r.log.Warn("MessageRepository", "cache refill failed", map[string]interface{}{"session_id": sessionId, "error": err.Error()})
		return
	}
	if err := r.cache.Expire(ctx, key, messageTTL).Err(); err != nil {
		r.log.Warn("MessageRepository", "cache refill expire failed", map[string]interface{}{"session_id": sessionId, "error": err.Error()})
	}
}
