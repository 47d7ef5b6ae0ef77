package service

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"compliance-rag-be/internal/pkg/logger"
	"compliance-rag-be/internal/repository/contract"
	"compliance-rag-be/pkg/events"
)

type IArchiverService interface {
	Consume(ctx context.Context) error
}

// archiverService persists finished chat exchanges off the request
// path. The orchestrator publishes one transcript per normally closed
// stream; both turns are appended here.
type archiverService struct {
	pubSub   *gochannel.GoChannel
	messages contract.IMessageRepository
	log      logger.ILogger
}

func NewArchiverService(pubSub *gochannel.GoChannel, messages contract.IMessageRepository, log logger.ILogger) IArchiverService {
	return &archiverService{
		pubSub:   pubSub,
		messages: messages,
		log:      log,
	}
}

func (as *archiverService) Consume(ctx context.Context) error {
	messages, err := as.pubSub.Subscribe(ctx, events.TopicChatTranscript)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			as.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (as *archiverService) processMessage(ctx context.Context, msg *message.Message) {
	var payload events.ChatTranscript
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		as.log.Error("ArchiverService", "failed to unmarshal transcript", map[string]interface{}{"error": err.Error()})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	if err := as.messages.Append(ctx, payload.UserId, payload.SessionId, "user", payload.Question); err != nil {
		as.log.Error("ArchiverService", "failed to persist user turn", map[string]interface{}{"session_id": payload.SessionId, "error": err.Error()})
		msg.Nack() // Nack for retriable errors
		return
	}
	if err := as.messages.Append(ctx, payload.UserId, payload.SessionId, "assistant", payload.Answer); err != nil {
		as.log.Error("ArchiverService", "failed to persist assistant turn", map[string]interface{}{"session_id": payload.SessionId, "error": err.Error()})
		msg.Nack()
		return
	}

	as.log.Info("ArchiverService", "transcript persisted", map[string]interface{}{
		"session_id": payload.SessionId,
		"answer_len": len(payload.Answer),
	})
	msg.Ack()
}
