package citation

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"compliance-rag-be/pkg/llm"
	"compliance-rag-be/pkg/rag"
)

func TestParseMatchedIDs(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   []string
		wantOk bool
	}{
		{
			name:   "bare json",
			output: `{"matched_ids": ["kb_1", "kb_3"]}`,
			want:   []string{"kb_1", "kb_3"},
			wantOk: true,
		},
		{
			name:   "json inside prose",
			output: "分析完成，结果如下：\n```json\n{\"matched_ids\": [\"kb_2\"]}\n```",
			want:   []string{"kb_2"},
			wantOk: true,
		},
		{
			name:   "empty list",
			output: `{"matched_ids": []}`,
			want:   []string{},
			wantOk: true,
		},
		{
			name:   "no json object",
			output: "没有引用任何知识",
			wantOk: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseMatchedIDs(tt.output)
			if ok != tt.wantOk || !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseMatchedIDs(%q) = (%v, %v), want (%v, %v)",
					tt.output, got, ok, tt.want, tt.wantOk)
			}
		})
	}
}

func TestFormatEntry(t *testing.T) {
	entry := FormatEntry(rag.Knowledge{Id: "kb_1", Title: "GB 17859", Content: "条款内容"})
	if entry != "【GB 17859】\n条款内容" {
		t.Errorf("FormatEntry() = %q", entry)
	}

	// Id stands in for a missing title.
	entry = FormatEntry(rag.Knowledge{Id: "kb_2", Content: "内容"})
	if !strings.HasPrefix(entry, "【kb_2】") {
		t.Errorf("FormatEntry() without title = %q, want id fallback", entry)
	}
}

func TestFormatEntryTruncatesLongContent(t *testing.T) {
	long := strings.Repeat("密", ContentLimit+100)
	entry := FormatEntry(rag.Knowledge{Id: "kb_1", Title: "标题", Content: long})

	body := strings.TrimPrefix(entry, "【标题】\n")
	if n := len([]rune(body)); n != ContentLimit {
		t.Errorf("content length = %d runes, want %d", n, ContentLimit)
	}
}

type fakeProvider struct {
	output string
	err    error
	prompt string
}

func (f *fakeProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	return f.output, f.err
}

func (f *fakeProvider) StreamChat(ctx context.Context, history []llm.Message, onDelta func(string) error, options ...llm.Option) error {
	return f.err
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	f.prompt = prompt
	return f.output, f.err
}

type nopLogger struct{}

func (nopLogger) Debug(string, string, map[string]interface{}) {}
func (nopLogger) Info(string, string, map[string]interface{})  {}
func (nopLogger) Warn(string, string, map[string]interface{})  {}
func (nopLogger) Error(string, string, map[string]interface{}) {}
func (nopLogger) Fatal(string, string, map[string]interface{}) {}
func (nopLogger) Sync() error                                  { return nil }

func TestMatchPreservesCandidateOrder(t *testing.T) {
	candidates := []rag.Knowledge{
		{Id: "kb_1", Title: "一", Content: "甲"},
		{Id: "kb_2", Title: "二", Content: "乙"},
		{Id: "kb_3", Title: "三", Content: "丙"},
	}
	provider := &fakeProvider{output: `{"matched_ids": ["kb_3", "kb_1"]}`}
	m := NewLLMMatcher(provider, Settings{PromptTemplate: "{llm_output}\n{knowledge_base}"}, nopLogger{})

	matched := m.Match(context.Background(), "回答正文", candidates)

	var ids []string
	for _, k := range matched {
		ids = append(ids, k.Id)
	}
	// Retrieval order wins over the order the model listed the ids in.
	if !reflect.DeepEqual(ids, []string{"kb_1", "kb_3"}) {
		t.Errorf("matched ids = %v, want [kb_1 kb_3]", ids)
	}
}

func TestMatchPromptCarriesAnswerAndCandidates(t *testing.T) {
	provider := &fakeProvider{output: `{"matched_ids": []}`}
	m := NewLLMMatcher(provider, Settings{PromptTemplate: "输出：{llm_output}\n知识库：{knowledge_base}"}, nopLogger{})

	m.Match(context.Background(), "最终回答", []rag.Knowledge{{Id: "kb_1", Title: "标题", Content: "内容"}})

	for _, want := range []string{"输出：最终回答", "id: kb_1", "标题: 标题", "内容: 内容"} {
		if !strings.Contains(provider.prompt, want) {
			t.Errorf("matching prompt missing %q:\n%s", want, provider.prompt)
		}
	}
}

func TestMatchDegradesToNoCitations(t *testing.T) {
	candidates := []rag.Knowledge{{Id: "kb_1", Content: "内容"}}
	tests := []struct {
		name     string
		provider *fakeProvider
	}{
		{name: "provider failure", provider: &fakeProvider{err: errors.New("upstream down")}},
		{name: "unparseable output", provider: &fakeProvider{output: "自由文本"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewLLMMatcher(tt.provider, Settings{PromptTemplate: "{llm_output}{knowledge_base}"}, nopLogger{})
			if got := m.Match(context.Background(), "回答", candidates); got != nil {
				t.Errorf("Match() = %v, want nil", got)
			}
		})
	}
}

func TestMatchSkipsEmptyInputs(t *testing.T) {
	provider := &fakeProvider{}
	m := NewLLMMatcher(provider, Settings{}, nopLogger{})

	if got := m.Match(context.Background(), "", []rag.Knowledge{{Id: "kb_1"}}); got != nil {
		t.Errorf("Match with empty answer = %v, want nil", got)
	}
	if got := m.Match(context.Background(), "回答", nil); got != nil {
		t.Errorf("Match with no candidates = %v, want nil", got)
	}
	if provider.prompt != "" {
		t.Error("model was called for empty input")
	}
}
