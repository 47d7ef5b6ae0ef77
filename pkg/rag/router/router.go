package router

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"compliance-rag-be/internal/pkg/logger"
	"compliance-rag-be/pkg/llm"
	"compliance-rag-be/pkg/rag"
	"compliance-rag-be/pkg/rag/frame"
	"compliance-rag-be/pkg/retry"
)

// Settings carries the router's model parameters and prompt templates.
// The prompt template recognizes {user_query} and {history_context}
// placeholders.
type Settings struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	SystemPrompt   string
	PromptTemplate string
	MaxAttempts    int
}

// IIntentRouter classifies one question into a retrieval decision.
type IIntentRouter interface {
	// Route returns one of graph/text/hybrid/none. The router's streamed
	// reasoning, if any, is forwarded to onThink. Route never fails: any
	// LLM or parse problem degrades to DecisionNone.
	Route(ctx context.Context, question string, history []rag.Message, onThink func(chunk string)) rag.Decision
}

type llmRouter struct {
	provider llm.LLMProvider
	settings Settings
	log      logger.ILogger
}

func NewLLMRouter(provider llm.LLMProvider, settings Settings, log logger.ILogger) IIntentRouter {
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = 3
	}
	return &llmRouter{provider: provider, settings: settings, log: log}
}

func (r *llmRouter) Route(ctx context.Context, question string, history []rag.Message, onThink func(chunk string)) rag.Decision {
	prompt := r.buildPrompt(question, history)

	messages := []llm.Message{
		{Role: "system", Content: r.settings.SystemPrompt},
		{Role: "user", Content: prompt},
	}
	opts := []llm.Option{
		llm.WithModel(r.settings.Model),
		llm.WithTemperature(r.settings.Temperature),
		llm.WithMaxTokens(r.settings.MaxTokens),
	}

	policy := retry.Policy{MaxAttempts: r.settings.MaxAttempts, InitialDelay: 500 * time.Millisecond, Multiplier: 2.0}
	output, err := retry.Do(ctx, policy, func() (string, error) {
		var sb strings.Builder
		streamErr := r.provider.StreamChat(ctx, messages, func(delta string) error {
			sb.WriteString(delta)
			if onThink != nil {
				onThink(delta)
			}
			return nil
		}, opts...)
		if streamErr != nil {
			return "", streamErr
		}
		return sb.String(), nil
	})
	if err != nil {
		r.log.Warn("IntentRouter", "routing call failed, defaulting to none", map[string]interface{}{"error": err.Error()})
		return rag.DecisionNone
	}

	decision, ok := ParseDecision(output)
	if !ok {
		r.log.Warn("IntentRouter", "unparseable routing output, defaulting to none", map[string]interface{}{"output_len": len(output)})
		return rag.DecisionNone
	}
	return decision
}

func (r *llmRouter) buildPrompt(question string, history []rag.Message) string {
	var ctxParts []string
	start := len(history) - 2
	if start < 0 {
		start = 0
	}
	for _, msg := range history[start:] {
		switch msg.Role {
		case "user":
			ctxParts = append(ctxParts, "用户: "+msg.Content)
		case "assistant":
			ctxParts = append(ctxParts, "助手: "+frame.StripBlocks(msg.Content))
		}
	}
	historyContext := "无历史对话"
	if len(ctxParts) > 0 {
		historyContext = strings.Join(ctxParts, "\n")
	}

	return strings.NewReplacer(
		"{user_query}", question,
		"{history_context}", historyContext,
	).Replace(r.settings.PromptTemplate)
}

var (
	firstLinePattern = regexp.MustCompile(`(?i)^(graph|text|hybrid|none)\b`)
	decisionJSON     = regexp.MustCompile(`\{[^{}]*"decision"[^{}]*\}`)
)

// ParseDecision extracts a routing label from raw LLM output. The primary
// form is the label on the first non-empty line; a JSON object with a
// "decision" field is accepted as fallback, with the legacy neo4j/es
// labels mapped onto graph/text.
func ParseDecision(output string) (rag.Decision, bool) {
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := firstLinePattern.FindString(line); m != "" {
			return rag.Decision(strings.ToLower(m)), true
		}
		break
	}

	if m := decisionJSON.FindString(output); m != "" {
		var parsed struct {
			Decision string `json:"decision"`
		}
		if err := json.Unmarshal([]byte(m), &parsed); err == nil {
			if d, ok := normalizeLabel(parsed.Decision); ok {
				return d, true
			}
		}
	}

	lower := strings.ToLower(output)
	for _, probe := range []struct {
		needle   string
		decision rag.Decision
	}{
		{"neo4j", rag.DecisionGraph},
		{"hybrid", rag.DecisionHybrid},
		{"none", rag.DecisionNone},
		{"graph", rag.DecisionGraph},
		{"es", rag.DecisionText},
		{"text", rag.DecisionText},
	} {
		if strings.Contains(lower, probe.needle) {
			return probe.decision, true
		}
	}
	return rag.DecisionNone, false
}

func normalizeLabel(label string) (rag.Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "graph", "neo4j":
		return rag.DecisionGraph, true
	case "text", "es":
		return rag.DecisionText, true
	case "hybrid":
		return rag.DecisionHybrid, true
	case "none":
		return rag.DecisionNone, true
	}
	return rag.DecisionNone, false
}
