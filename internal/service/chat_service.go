package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"compliance-rag-be/internal/dto"
	"compliance-rag-be/internal/pkg/logger"
	"compliance-rag-be/internal/repository/contract"
	"compliance-rag-be/pkg/events"
	"compliance-rag-be/pkg/rag"
	"compliance-rag-be/pkg/rag/frame"
	"compliance-rag-be/pkg/rag/pipeline"
	"compliance-rag-be/pkg/rag/router"
)

// Retrieval scenes selected by the client.
const (
	SceneHybrid   = 1
	SceneGraph    = 2
	SceneTextOnly = 3
)

// Per-decision announcements shown inside the hybrid think block.
var decisionTexts = map[rag.Decision]string{
	rag.DecisionGraph:  "需要检索网络业务知识图谱辅助回答，请稍等....",
	rag.DecisionText:   "需要检索法规标准知识辅助回答，请稍等....",
	rag.DecisionHybrid: "需要同时检索网络业务知识图谱以及法规标准知识辅助回答，请稍等....",
	rag.DecisionNone:   "大模型直接生成回答，请稍等....",
}

type IChatService interface {
	// StreamChat runs the full retrieval-and-answer flow, emitting frames
	// through emit. On a normally closed stream the exchange is handed to
	// the archiver; cancelled or failed streams persist nothing.
	StreamChat(ctx context.Context, userId, sessionId string, scene int, question string, emit frame.Emitter) error
	Chat(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error)
}

type chatService struct {
	router     router.IIntentRouter
	graphPipe  pipeline.IPipeline
	textPipe   pipeline.IPipeline
	directPipe pipeline.IPipeline
	messages   contract.IMessageRepository
	publisher  IPublisherService
	log        logger.ILogger
}

// NewChatService wires the orchestrator. directPipe is the text pipeline
// with retrieval disabled, used when the router decides no knowledge
// base is needed.
func NewChatService(
	r router.IIntentRouter,
	graphPipe pipeline.IPipeline,
	textPipe pipeline.IPipeline,
	directPipe pipeline.IPipeline,
	messages contract.IMessageRepository,
	publisher IPublisherService,
	log logger.ILogger,
) IChatService {
	return &chatService{
		router:     r,
		graphPipe:  graphPipe,
		textPipe:   textPipe,
		directPipe: directPipe,
		messages:   messages,
		publisher:  publisher,
		log:        log,
	}
}

func (s *chatService) StreamChat(ctx context.Context, userId, sessionId string, scene int, question string, emit frame.Emitter) error {
	history := s.loadHistory(ctx, userId, sessionId)

	// Everything actually delivered to the client becomes the persisted
	// assistant turn, framing markers included.
	var transcript strings.Builder
	record := func(f frame.Frame) error {
		if err := emit(f); err != nil {
			return err
		}
		transcript.WriteString(f.Content)
		return nil
	}

	var err error
	switch scene {
	case SceneGraph:
		err = s.graphPipe.Run(ctx, question, history, record)
	case SceneTextOnly:
		err = s.textPipe.Run(ctx, question, history, record)
	default:
		err = s.runHybrid(ctx, question, history, record)
	}

	if err != nil {
		if ctx.Err() != nil {
			// Client is gone: nothing to deliver, nothing to persist.
			s.log.Info("ChatService", "stream cancelled", map[string]interface{}{"session_id": sessionId})
			return err
		}
		s.log.Error("ChatService", "stream failed", map[string]interface{}{"session_id": sessionId, "error": err.Error()})
		errFrame := frame.Error(fmt.Sprintf("<data>\n抱歉，处理您的请求时出现错误: %s\n</data>", err.Error()))
		if emitErr := emit(errFrame); emitErr != nil {
			return emitErr
		}
		return nil
	}

	s.publishTranscript(ctx, userId, sessionId, question, transcript.String())
	return nil
}

func (s *chatService) runHybrid(ctx context.Context, question string, history []rag.Message, record frame.Emitter) error {
	if err := record(frame.Think(frame.ThinkPreamble)); err != nil {
		return err
	}

	var reasoning strings.Builder
	decision := s.router.Route(ctx, question, history, func(chunk string) {
		reasoning.WriteString(chunk)
	})
	if reasoning.Len() > 0 {
		if err := record(frame.Think(reasoning.String())); err != nil {
			return err
		}
	}
	if err := record(frame.Think(decisionTexts[decision] + "\n")); err != nil {
		return err
	}

	switch decision {
	case rag.DecisionGraph:
		return s.runFilteredGraph(ctx, question, history, record)
	case rag.DecisionHybrid:
		return s.runGraphThenText(ctx, question, history, record)
	case rag.DecisionNone:
		return s.directPipe.Run(ctx, question, history, dropPreamble(record))
	default:
		return s.textPipe.Run(ctx, question, history, dropPreamble(record))
	}
}

// runFilteredGraph forwards the graph pipeline's output with its inner
// think block removed; the routing step already streamed the reasoning,
// so only the data block and knowledge frames reach the client.
func (s *chatService) runFilteredGraph(ctx context.Context, question string, history []rag.Message, record frame.Emitter) error {
	var filter frame.Filter
	return s.graphPipe.Run(ctx, question, history, func(f frame.Frame) error {
		if filter.StripThink(f) {
			return record(f)
		}
		return nil
	})
}

// runGraphThenText runs the graph branch as a silent retriever: nothing
// of its sub-stream reaches the client, so the orchestrator's own think
// narration stays strictly ahead of the data block. The captured
// data-block interior is fed to the text branch as business context
// appended to the question.
func (s *chatService) runGraphThenText(ctx context.Context, question string, history []rag.Message, record frame.Emitter) error {
	if err := record(frame.Think("\n现在开始业务知识图谱检索\n")); err != nil {
		return err
	}

	var filter frame.Filter
	var scratch strings.Builder
	err := s.graphPipe.Run(ctx, question, history, func(f frame.Frame) error {
		if filter.Capture(f) {
			scratch.WriteString(f.Content)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		// The graph branch is a retriever here; degrade to whatever was
		// captured and keep going.
		s.log.Warn("ChatService", "graph branch failed during hybrid run", map[string]interface{}{"error": err.Error()})
	}

	business := strings.TrimSpace(scratch.String())
	if business != "" {
		if err := record(frame.Think("\n检索到的业务信息：\n" + business + "\n")); err != nil {
			return err
		}
	} else if err := record(frame.Think("\n未检索到相关业务信息\n")); err != nil {
		return err
	}
	if err := record(frame.Think("\n现在开始法规标准检索\n")); err != nil {
		return err
	}

	enhanced := question
	if business != "" {
		enhanced = question + "以下是检索到的具体业务信息：" + business
	}
	return s.textPipe.Run(ctx, enhanced, history, dropPreamble(record))
}

// dropPreamble swallows the sub-pipeline's own think preamble so the
// hybrid stream opens its think block exactly once.
func dropPreamble(record frame.Emitter) frame.Emitter {
	return func(f frame.Frame) error {
		if f.Content == frame.ThinkPreamble {
			return nil
		}
		return record(f)
	}
}

func (s *chatService) Chat(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error) {
	history := s.loadHistory(ctx, req.UserId, req.SessionId)

	pipe := s.textPipe
	if req.EnableKnowledge != nil && !*req.EnableKnowledge {
		pipe = s.directPipe
	}

	var transcript strings.Builder
	var answer strings.Builder
	knowledgeCount := 0
	inData := false

	collect := func(f frame.Frame) error {
		transcript.WriteString(f.Content)
		switch f.Type {
		case frame.TypeData:
			switch f.Content {
			case frame.DataOpen:
				inData = true
			case frame.DataClose:
				inData = false
			default:
				if inData {
					answer.WriteString(f.Content)
				}
			}
		case frame.TypeKnowledge:
			if f.Content != frame.KnowledgeOpen && f.Content != frame.KnowledgeEnd {
				knowledgeCount++
			}
		}
		return nil
	}

	if err := pipe.Run(ctx, req.Query, history, collect); err != nil {
		return nil, err
	}

	s.publishTranscript(ctx, req.UserId, req.SessionId, req.Query, transcript.String())

	return &dto.ChatResponse{
		Response:       answer.String(),
		SessionId:      req.SessionId,
		KnowledgeCount: knowledgeCount,
	}, nil
}

func (s *chatService) loadHistory(ctx context.Context, userId, sessionId string) []rag.Message {
	stored, err := s.messages.GetMessages(ctx, userId, sessionId)
	if err != nil {
		s.log.Warn("ChatService", "history load failed, starting fresh", map[string]interface{}{"session_id": sessionId, "error": err.Error()})
		return nil
	}
	history := make([]rag.Message, len(stored))
	for i, m := range stored {
		history[i] = rag.Message{Role: m.Role, Content: m.Content}
	}
	return history
}

func (s *chatService) publishTranscript(ctx context.Context, userId, sessionId, question, answer string) {
	payload, err := json.Marshal(events.ChatTranscript{
		UserId:     userId,
		SessionId:  sessionId,
		Question:   question,
		Answer:     answer,
		OccurredAt: time.Now(),
	})
	if err != nil {
		s.log.Error("ChatService", "transcript encode failed", map[string]interface{}{"session_id": sessionId, "error": err.Error()})
		return
	}
	if err := s.publisher.Publish(ctx, payload); err != nil {
		s.log.Error("ChatService", "transcript publish failed", map[string]interface{}{"session_id": sessionId, "error": err.Error()})
	}
}
