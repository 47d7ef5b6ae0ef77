package prompt

import (
	"strings"

	"compliance-rag-be/pkg/rag"
	"compliance-rag-be/pkg/rag/frame"
)

// Hard bounds on the assembled prompt, counted in characters. The final
// prompt leaves headroom under the model's context limit for the
// template scaffolding itself.
const (
	HistoryLimit   = 60000
	KnowledgeLimit = 8000
	PromptLimit    = 98304 - 200
)

// HistoryTurns is the number of trailing conversation turns kept in the
// prompt; one turn is a user/assistant pair.
const HistoryTurns = 2

// Builder assembles the final answering prompt from the system prompt,
// sanitized history, retrieved knowledge and the user question. The
// template recognizes {system_prompt}, {history}, {knowledge} and
// {query} placeholders.
type Builder struct {
	SystemPrompt string
	Template     string
}

func NewBuilder(systemPrompt, template string) *Builder {
	return &Builder{SystemPrompt: systemPrompt, Template: template}
}

func (b *Builder) Build(history []rag.Message, question, knowledge string) string {
	historyBlock := truncateRunes(FormatHistory(history), HistoryLimit)
	knowledgeBlock := strings.TrimSpace(knowledge)
	if knowledgeBlock == "" {
		knowledgeBlock = "无相关知识"
	}
	knowledgeBlock = truncateRunes(knowledgeBlock, KnowledgeLimit)

	prompt := strings.NewReplacer(
		"{system_prompt}", b.SystemPrompt,
		"{history}", historyBlock,
		"{knowledge}", knowledgeBlock,
		"{query}", question,
	).Replace(b.Template)

	return truncateRunes(prompt, PromptLimit)
}

// FormatHistory renders the trailing turns of a conversation with
// role labels, with assistant turns stripped of think and knowledge
// blocks so internal reasoning never leaks back into the model.
func FormatHistory(history []rag.Message) string {
	start := len(history) - HistoryTurns*2
	if start < 0 {
		start = 0
	}

	var lines []string
	for _, msg := range history[start:] {
		switch msg.Role {
		case "user":
			lines = append(lines, "用户: "+msg.Content)
		case "assistant":
			content := strings.TrimSpace(frame.StripBlocks(msg.Content))
			if content != "" {
				lines = append(lines, "助手: "+content)
			}
		}
	}
	if len(lines) == 0 {
		return "无历史对话"
	}
	return strings.Join(lines, "\n")
}

// FormatKnowledge joins passages into the knowledge block fed to the
// answering model.
func FormatKnowledge(items []rag.Knowledge) string {
	if len(items) == 0 {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, item.Content)
	}
	return strings.Join(parts, "\n\n")
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
