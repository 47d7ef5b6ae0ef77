package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"compliance-rag-be/pkg/llm"
	"compliance-rag-be/pkg/rag"
	"compliance-rag-be/pkg/rag/frame"
	"compliance-rag-be/pkg/rag/prompt"
)

// scriptedProvider replays one canned output per model call, in order.
// Streamed calls deliver the output in rune-sized deltas.
type scriptedProvider struct {
	outputs []string
	calls   int

	prompts []string
}

func (s *scriptedProvider) next() (string, error) {
	if s.calls >= len(s.outputs) {
		return "", fmt.Errorf("unexpected model call %d", s.calls+1)
	}
	out := s.outputs[s.calls]
	s.calls++
	return out, nil
}

func (s *scriptedProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	return s.next()
}

func (s *scriptedProvider) StreamChat(ctx context.Context, history []llm.Message, onDelta func(string) error, options ...llm.Option) error {
	if len(history) > 0 {
		s.prompts = append(s.prompts, history[len(history)-1].Content)
	}
	out, err := s.next()
	if err != nil {
		return err
	}
	for _, r := range out {
		if err := onDelta(string(r)); err != nil {
			return err
		}
	}
	return nil
}

func (s *scriptedProvider) Generate(ctx context.Context, promptText string, options ...llm.Option) (string, error) {
	s.prompts = append(s.prompts, promptText)
	return s.next()
}

type stubRetriever struct {
	hits []rag.Knowledge
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string) []rag.Knowledge {
	return s.hits
}

type stubMatcher struct {
	matched []rag.Knowledge
}

func (s *stubMatcher) Match(ctx context.Context, answer string, candidates []rag.Knowledge) []rag.Knowledge {
	return s.matched
}

type nopLogger struct{}

func (nopLogger) Debug(string, string, map[string]interface{}) {}
func (nopLogger) Info(string, string, map[string]interface{})  {}
func (nopLogger) Warn(string, string, map[string]interface{})  {}
func (nopLogger) Error(string, string, map[string]interface{}) {}
func (nopLogger) Fatal(string, string, map[string]interface{}) {}
func (nopLogger) Sync() error                                  { return nil }

func collectFrames(t *testing.T, run func(emit frame.Emitter) error) []frame.Frame {
	t.Helper()
	var frames []frame.Frame
	err := run(func(f frame.Frame) error {
		frames = append(frames, f)
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return frames
}

func joinContents(frames []frame.Frame) string {
	var sb strings.Builder
	for _, f := range frames {
		sb.WriteString(f.Content)
	}
	return sb.String()
}

func textPipelineForTest(provider *scriptedProvider, hits, matched []rag.Knowledge) *TextPipeline {
	builder := prompt.NewBuilder("系统提示", "{system_prompt}\n{history}\n{knowledge}\n{query}")
	return NewTextPipeline(provider, &stubRetriever{hits: hits}, builder, &stubMatcher{matched: matched}, TextSettings{
		IntentPrompt:              "判断意图：{query}",
		IntentParseEnabled:        true,
		KnowledgeRetrievalEnabled: true,
		CitationEnabled:           true,
	}, nopLogger{})
}

func TestTextPipelineFrameSequence(t *testing.T) {
	hits := []rag.Knowledge{
		{Id: "kb_1", Title: "GB 17859", Content: "等级保护条款原文"},
	}
	provider := &scriptedProvider{outputs: []string{
		`{"intent_type": "es_query"}`, // intent classification
		"这是生成的回答",                     // streamed answer
		`{"matched_ids": ["kb_1"]}`,   // citation matching
	}}
	p := textPipelineForTest(provider, hits, hits)

	frames := collectFrames(t, func(emit frame.Emitter) error {
		return p.Run(context.Background(), "等级保护有哪些要求", nil, emit)
	})

	if frames[0].Content != frame.ThinkPreamble || frames[0].Type != frame.TypeThink {
		t.Fatalf("first frame = %+v, want think preamble", frames[0])
	}

	var kinds []frame.Type
	for _, f := range frames {
		kinds = append(kinds, f.Type)
	}
	// Think phase, then data phase, then knowledge phase, no interleaving.
	phase := frame.TypeThink
	for i, k := range kinds {
		if k < phase {
			t.Fatalf("frame %d went backwards: types = %v", i, kinds)
		}
		phase = k
	}

	full := joinContents(frames)
	for _, want := range []string{
		"用户查询意图识别为: text_query\n",
		"检索到1条相关知识\n",
		frame.ThinkClose,
		frame.DataOpen,
		"这是生成的回答",
		frame.DataClose,
		frame.KnowledgeOpen,
		"【GB 17859】\n等级保护条款原文\n",
		frame.KnowledgeEnd,
	} {
		if !strings.Contains(full, want) {
			t.Errorf("stream missing %q:\n%s", want, full)
		}
	}
}

func TestTextPipelineIntentMapping(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   rag.IntentKind
	}{
		{name: "neo4j label", output: `{"intent_type": "neo4j_query"}`, want: rag.IntentGraphQuery},
		{name: "graph label", output: `{"intent_type": "graph_query"}`, want: rag.IntentGraphQuery},
		{name: "hybrid label", output: `{"intent_type": "hybrid_query"}`, want: rag.IntentHybridQuery},
		{name: "es label", output: `{"intent_type": "es_query"}`, want: rag.IntentTextQuery},
		{name: "no json", output: "无结构输出", want: rag.IntentTextQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &scriptedProvider{outputs: []string{tt.output}}
			p := textPipelineForTest(provider, nil, nil)
			if got := p.classifyIntent(context.Background(), "问题"); got != tt.want {
				t.Errorf("classifyIntent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTextPipelineRetrievalDisabled(t *testing.T) {
	provider := &scriptedProvider{outputs: []string{"直接回答"}}
	builder := prompt.NewBuilder("", "{knowledge}|{query}")
	p := NewTextPipeline(provider, nil, builder, nil, TextSettings{}, nopLogger{})

	frames := collectFrames(t, func(emit frame.Emitter) error {
		return p.Run(context.Background(), "问题", nil, emit)
	})

	full := joinContents(frames)
	if !strings.Contains(full, "检索到0条相关知识\n") {
		t.Errorf("disabled retrieval should report zero hits:\n%s", full)
	}
	if !strings.Contains(full, "直接回答") {
		t.Errorf("answer missing from stream:\n%s", full)
	}
	for _, f := range frames {
		if f.Type == frame.TypeKnowledge {
			t.Error("knowledge frame emitted with citations disabled")
		}
	}
	// Only the answering call reached the model.
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
}

func TestTextPipelineNoCitationsWhenNothingMatched(t *testing.T) {
	hits := []rag.Knowledge{{Id: "kb_1", Content: "内容"}}
	provider := &scriptedProvider{outputs: []string{
		`{"intent_type": "es_query"}`,
		"回答",
		`{"matched_ids": []}`,
	}}
	p := textPipelineForTest(provider, hits, nil)

	frames := collectFrames(t, func(emit frame.Emitter) error {
		return p.Run(context.Background(), "问题", nil, emit)
	})
	for _, f := range frames {
		if f.Type == frame.TypeKnowledge {
			t.Errorf("unexpected knowledge frame: %+v", f)
		}
	}
}

func TestTextPipelinePromptCarriesKnowledgeAndHistory(t *testing.T) {
	hits := []rag.Knowledge{{Id: "kb_1", Content: "标准条款内容"}}
	provider := &scriptedProvider{outputs: []string{
		`{"intent_type": "es_query"}`,
		"回答",
		`{"matched_ids": []}`,
	}}
	p := textPipelineForTest(provider, hits, nil)

	history := []rag.Message{
		{Role: "user", Content: "之前的问题"},
		{Role: "assistant", Content: "之前的回答"},
	}
	collectFrames(t, func(emit frame.Emitter) error {
		return p.Run(context.Background(), "新问题", history, emit)
	})

	// prompts[0] is the intent call, prompts[1] the answering prompt.
	if len(provider.prompts) < 2 {
		t.Fatalf("captured %d prompts, want at least 2", len(provider.prompts))
	}
	answerPrompt := provider.prompts[1]
	for _, want := range []string{"标准条款内容", "之前的问题", "之前的回答", "新问题"} {
		if !strings.Contains(answerPrompt, want) {
			t.Errorf("answer prompt missing %q:\n%s", want, answerPrompt)
		}
	}
}
