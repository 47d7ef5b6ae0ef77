package prompt

import (
	"strings"
	"testing"

	"compliance-rag-be/pkg/rag"
)

const testTemplate = "{system_prompt}\n历史：{history}\n知识：{knowledge}\n问题：{query}"

func TestBuildReplacesPlaceholders(t *testing.T) {
	b := NewBuilder("你是助手", testTemplate)
	history := []rag.Message{
		{Role: "user", Content: "第一个问题"},
		{Role: "assistant", Content: "第一个回答"},
	}

	got := b.Build(history, "第二个问题", "等级保护条款原文")

	for _, want := range []string{
		"你是助手",
		"用户: 第一个问题",
		"助手: 第一个回答",
		"知识：等级保护条款原文",
		"问题：第二个问题",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Build() missing %q in:\n%s", want, got)
		}
	}
}

func TestBuildEmptyInputsUsePlaceholderText(t *testing.T) {
	b := NewBuilder("", testTemplate)
	got := b.Build(nil, "问题", "")

	if !strings.Contains(got, "无相关知识") {
		t.Error("empty knowledge did not render 无相关知识")
	}
	if !strings.Contains(got, "无历史对话") {
		t.Error("empty history did not render 无历史对话")
	}
}

func TestBuildEnforcesPromptLimit(t *testing.T) {
	b := NewBuilder("", "{knowledge}{query}")
	huge := strings.Repeat("甲", KnowledgeLimit+5000)

	got := b.Build(nil, strings.Repeat("问", PromptLimit), huge)
	if n := len([]rune(got)); n > PromptLimit {
		t.Errorf("prompt length = %d runes, want <= %d", n, PromptLimit)
	}
}

func TestFormatHistoryKeepsTrailingTurns(t *testing.T) {
	history := []rag.Message{
		{Role: "user", Content: "很早的问题"},
		{Role: "assistant", Content: "很早的回答"},
		{Role: "user", Content: "问题A"},
		{Role: "assistant", Content: "回答A"},
		{Role: "user", Content: "问题B"},
		{Role: "assistant", Content: "回答B"},
	}

	got := FormatHistory(history)
	if strings.Contains(got, "很早的问题") {
		t.Error("history older than the turn window leaked into the prompt")
	}
	for _, want := range []string{"问题A", "回答A", "问题B", "回答B"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatHistory() missing %q", want)
		}
	}
}

func TestFormatHistoryStripsAssistantBlocks(t *testing.T) {
	history := []rag.Message{
		{Role: "user", Content: "问题"},
		{Role: "assistant", Content: "<think>内部推理</think>\n答案正文\n<knowledge>\n引用\n</knowledge>"},
	}

	got := FormatHistory(history)
	if strings.Contains(got, "内部推理") || strings.Contains(got, "引用") {
		t.Errorf("think/knowledge block leaked into history: %q", got)
	}
	if !strings.Contains(got, "助手: 答案正文") {
		t.Errorf("FormatHistory() = %q, want stripped assistant answer", got)
	}
}

func TestFormatHistoryDropsEmptiedAssistantTurns(t *testing.T) {
	history := []rag.Message{
		{Role: "user", Content: "问题"},
		{Role: "assistant", Content: "<think>只有推理</think>"},
	}

	got := FormatHistory(history)
	if strings.Contains(got, "助手:") {
		t.Errorf("assistant turn with no visible content was kept: %q", got)
	}
}

func TestFormatKnowledge(t *testing.T) {
	if got := FormatKnowledge(nil); got != "" {
		t.Errorf("FormatKnowledge(nil) = %q, want empty", got)
	}

	items := []rag.Knowledge{
		{Content: "第一段"},
		{Content: "第二段"},
	}
	want := "第一段\n\n第二段"
	if got := FormatKnowledge(items); got != want {
		t.Errorf("FormatKnowledge() = %q, want %q", got, want)
	}
}
