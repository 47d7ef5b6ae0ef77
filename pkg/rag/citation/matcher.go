package citation

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"compliance-rag-be/internal/pkg/logger"
	"compliance-rag-be/pkg/llm"
	"compliance-rag-be/pkg/rag"
)

// ContentLimit caps how many characters of each passage are shown, both
// to the matching model and in the emitted citation entries.
const ContentLimit = 500

type Settings struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	PromptTemplate string
}

// IMatcher selects which retrieved passages the final answer actually
// relied on. Matching is best effort: any failure returns no citations.
type IMatcher interface {
	Match(ctx context.Context, answer string, candidates []rag.Knowledge) []rag.Knowledge
}

type llmMatcher struct {
	provider llm.LLMProvider
	settings Settings
	log      logger.ILogger
}

func NewLLMMatcher(provider llm.LLMProvider, settings Settings, log logger.ILogger) IMatcher {
	return &llmMatcher{provider: provider, settings: settings, log: log}
}

var matchedIDsJSON = regexp.MustCompile(`\{[^{}]*"matched_ids"[^{}]*\}`)

func (m *llmMatcher) Match(ctx context.Context, answer string, candidates []rag.Knowledge) []rag.Knowledge {
	if answer == "" || len(candidates) == 0 {
		return nil
	}

	prompt := strings.NewReplacer(
		"{llm_output}", answer,
		"{knowledge_base}", formatCandidates(candidates),
	).Replace(m.settings.PromptTemplate)

	output, err := m.provider.Generate(ctx, prompt,
		llm.WithModel(m.settings.Model),
		llm.WithTemperature(m.settings.Temperature),
		llm.WithMaxTokens(m.settings.MaxTokens),
	)
	if err != nil {
		m.log.Warn("CitationMatcher", "matching call failed, skipping citations", map[string]interface{}{"error": err.Error()})
		return nil
	}

	ids, ok := ParseMatchedIDs(output)
	if !ok {
		m.log.Warn("CitationMatcher", "unparseable matching output, skipping citations", map[string]interface{}{"output_len": len(output)})
		return nil
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var matched []rag.Knowledge
	for _, c := range candidates {
		if wanted[c.Id] {
			matched = append(matched, c)
		}
	}
	return matched
}

// ParseMatchedIDs extracts the matched_ids list from raw model output,
// tolerating surrounding prose or code fences.
func ParseMatchedIDs(output string) ([]string, bool) {
	m := matchedIDsJSON.FindString(output)
	if m == "" {
		return nil, false
	}
	var parsed struct {
		MatchedIDs []string `json:"matched_ids"`
	}
	if err := json.Unmarshal([]byte(m), &parsed); err != nil {
		return nil, false
	}
	return parsed.MatchedIDs, true
}

// FormatEntry renders one citation for the knowledge block of the
// stream: bracketed source name followed by the truncated passage.
func FormatEntry(k rag.Knowledge) string {
	title := k.Title
	if title == "" {
		title = k.Id
	}
	return fmt.Sprintf("【%s】\n%s", title, truncate(k.Content, ContentLimit))
}

func formatCandidates(candidates []rag.Knowledge) string {
	var sb strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&sb, "id: %s\n标题: %s\n内容: %s\n\n", c.Id, c.Title, truncate(c.Content, ContentLimit))
	}
	return sb.String()
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
