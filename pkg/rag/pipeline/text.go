package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"compliance-rag-be/internal/pkg/logger"
	"compliance-rag-be/pkg/llm"
	"compliance-rag-be/pkg/rag"
	"compliance-rag-be/pkg/rag/citation"
	"compliance-rag-be/pkg/rag/frame"
	"compliance-rag-be/pkg/rag/prompt"
	"compliance-rag-be/pkg/rag/retriever"
)

// ModelParams are the per-scenario generation settings.
type ModelParams struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

func (p ModelParams) Options() []llm.Option {
	return []llm.Option{
		llm.WithModel(p.Model),
		llm.WithTemperature(p.Temperature),
		llm.WithMaxTokens(p.MaxTokens),
	}
}

type TextSettings struct {
	Chat         ModelParams
	Intent       ModelParams
	IntentPrompt string

	IntentParseEnabled        bool
	KnowledgeRetrievalEnabled bool
	CitationEnabled           bool
}

// TextPipeline answers from the regulation text index: intent note,
// hybrid retrieval, prompt assembly, streamed answer, then citations.
type TextPipeline struct {
	provider  llm.LLMProvider
	retriever retriever.ITextRetriever
	builder   *prompt.Builder
	matcher   citation.IMatcher
	settings  TextSettings
	log       logger.ILogger
}

var _ IPipeline = (*TextPipeline)(nil)

func NewTextPipeline(provider llm.LLMProvider, r retriever.ITextRetriever, builder *prompt.Builder, matcher citation.IMatcher, settings TextSettings, log logger.ILogger) *TextPipeline {
	return &TextPipeline{
		provider:  provider,
		retriever: r,
		builder:   builder,
		matcher:   matcher,
		settings:  settings,
		log:       log,
	}
}

func (p *TextPipeline) Run(ctx context.Context, question string, history []rag.Message, emit frame.Emitter) error {
	if err := emit(frame.Think(frame.ThinkPreamble)); err != nil {
		return err
	}

	kind := p.classifyIntent(ctx, question)
	if err := emit(frame.Think(fmt.Sprintf("用户查询意图识别为: %s\n", kind))); err != nil {
		return err
	}

	var hits []rag.Knowledge
	if p.settings.KnowledgeRetrievalEnabled && p.retriever != nil {
		hits = p.retriever.Retrieve(ctx, question)
	}
	if err := emit(frame.Think(fmt.Sprintf("检索到%d条相关知识\n", len(hits)))); err != nil {
		return err
	}
	if err := emit(frame.Think(frame.ThinkClose)); err != nil {
		return err
	}

	if err := emit(frame.Data(frame.DataOpen)); err != nil {
		return err
	}
	answer, err := p.streamAnswer(ctx, question, history, hits, emit)
	if err != nil {
		return err
	}
	if err := emit(frame.Data(frame.DataClose)); err != nil {
		return err
	}

	return p.emitCitations(ctx, answer, hits, emit)
}

func (p *TextPipeline) streamAnswer(ctx context.Context, question string, history []rag.Message, hits []rag.Knowledge, emit frame.Emitter) (string, error) {
	built := p.builder.Build(history, question, prompt.FormatKnowledge(hits))

	var answer strings.Builder
	err := p.provider.StreamChat(ctx, []llm.Message{{Role: "user", Content: built}}, func(delta string) error {
		answer.WriteString(delta)
		return emit(frame.Data(delta))
	}, p.settings.Chat.Options()...)
	if err != nil {
		return "", err
	}
	return answer.String(), nil
}

func (p *TextPipeline) emitCitations(ctx context.Context, answer string, hits []rag.Knowledge, emit frame.Emitter) error {
	if !p.settings.CitationEnabled || p.matcher == nil || len(hits) == 0 {
		return nil
	}
	matched := p.matcher.Match(ctx, answer, hits)
	if len(matched) == 0 {
		return nil
	}

	if err := emit(frame.Knowledge(frame.KnowledgeOpen)); err != nil {
		return err
	}
	for i, k := range matched {
		entry := citation.FormatEntry(k)
		if i < len(matched)-1 {
			entry += "\n\n"
		} else {
			entry += "\n"
		}
		if err := emit(frame.Knowledge(entry)); err != nil {
			return err
		}
	}
	return emit(frame.Knowledge(frame.KnowledgeEnd))
}

var intentJSON = regexp.MustCompile(`\{[^{}]*"intent_type"[^{}]*\}`)

// classifyIntent asks a small model which retrieval family the question
// belongs to. Failures default to a plain text query.
func (p *TextPipeline) classifyIntent(ctx context.Context, question string) rag.IntentKind {
	if !p.settings.IntentParseEnabled || p.settings.IntentPrompt == "" {
		return rag.IntentTextQuery
	}

	req := strings.ReplaceAll(p.settings.IntentPrompt, "{query}", question)
	output, err := p.provider.Generate(ctx, req, p.settings.Intent.Options()...)
	if err != nil {
		p.log.Warn("TextPipeline", "intent classification failed, defaulting to text_query", map[string]interface{}{"error": err.Error()})
		return rag.IntentTextQuery
	}

	m := intentJSON.FindString(output)
	if m == "" {
		return rag.IntentTextQuery
	}
	var parsed struct {
		IntentType string `json:"intent_type"`
	}
	if err := json.Unmarshal([]byte(m), &parsed); err != nil {
		return rag.IntentTextQuery
	}
	switch strings.ToLower(strings.TrimSpace(parsed.IntentType)) {
	case "neo4j_query", "graph_query":
		return rag.IntentGraphQuery
	case "hybrid_query":
		return rag.IntentHybridQuery
	default:
		return rag.IntentTextQuery
	}
}
