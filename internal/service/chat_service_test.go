package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-rag-be/internal/dto"
	"compliance-rag-be/internal/entity"
	"compliance-rag-be/pkg/events"
	"compliance-rag-be/pkg/rag"
	"compliance-rag-be/pkg/rag/frame"
)

type fakeRouter struct {
	decision  rag.Decision
	reasoning string
}

func (f *fakeRouter) Route(ctx context.Context, question string, history []rag.Message, onThink func(string)) rag.Decision {
	if f.reasoning != "" && onThink != nil {
		onThink(f.reasoning)
	}
	return f.decision
}

// fakePipeline replays a scripted frame sequence and remembers the
// question it was asked.
type fakePipeline struct {
	frames   []frame.Frame
	err      error
	question string
	runs     int
}

func (f *fakePipeline) Run(ctx context.Context, question string, history []rag.Message, emit frame.Emitter) error {
	f.question = question
	f.runs++
	for _, fr := range f.frames {
		if err := emit(fr); err != nil {
			return err
		}
	}
	return f.err
}

type fakeMessages struct {
	history []entity.ChatMessage
	err     error
}

func (f *fakeMessages) Append(ctx context.Context, userId, sessionId, role, content string) error {
	return nil
}

func (f *fakeMessages) GetMessages(ctx context.Context, userId, sessionId string) ([]entity.ChatMessage, error) {
	return f.history, f.err
}

func (f *fakeMessages) Clear(ctx context.Context, userId, sessionId string) error { return nil }

type fakePublisher struct {
	payloads [][]byte
}

func (f *fakePublisher) Publish(ctx context.Context, payload []byte) error {
	f.payloads = append(f.payloads, payload)
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, string, map[string]interface{}) {}
func (nopLogger) Info(string, string, map[string]interface{})  {}
func (nopLogger) Warn(string, string, map[string]interface{})  {}
func (nopLogger) Error(string, string, map[string]interface{}) {}
func (nopLogger) Fatal(string, string, map[string]interface{}) {}
func (nopLogger) Sync() error                                  { return nil }

func textFrames(answer string) []frame.Frame {
	return []frame.Frame{
		frame.Think(frame.ThinkPreamble),
		frame.Think("用户查询意图识别为: text_query\n"),
		frame.Think(frame.ThinkClose),
		frame.Data(frame.DataOpen),
		frame.Data(answer),
		frame.Data(frame.DataClose),
	}
}

func graphFrames(answer string) []frame.Frame {
	return []frame.Frame{
		frame.Think("<think>\n"),
		frame.Think("意图解析中"),
		frame.Think("\nCypher生成完成。\n</think>\n"),
		frame.Data(frame.DataOpen),
		frame.Data(answer),
		frame.Data("\n</data>\n"),
		frame.Knowledge("<knowledge>\n检索到1条相关信息\n</knowledge>\n"),
	}
}

type testHarness struct {
	router     *fakeRouter
	graphPipe  *fakePipeline
	textPipe   *fakePipeline
	directPipe *fakePipeline
	publisher  *fakePublisher
	svc        IChatService
}

func newHarness(decision rag.Decision) *testHarness {
	h := &testHarness{
		router:     &fakeRouter{decision: decision},
		graphPipe:  &fakePipeline{frames: graphFrames("图谱回答")},
		textPipe:   &fakePipeline{frames: textFrames("文本回答")},
		directPipe: &fakePipeline{frames: textFrames("直接回答")},
		publisher:  &fakePublisher{},
	}
	h.svc = NewChatService(h.router, h.graphPipe, h.textPipe, h.directPipe, &fakeMessages{}, h.publisher, nopLogger{})
	return h
}

func streamFrames(t *testing.T, h *testHarness, scene int) []frame.Frame {
	t.Helper()
	var frames []frame.Frame
	err := h.svc.StreamChat(context.Background(), "u1", "s1", scene, "问题", func(f frame.Frame) error {
		frames = append(frames, f)
		return nil
	})
	require.NoError(t, err)
	return frames
}

func contents(frames []frame.Frame) string {
	var sb strings.Builder
	for _, f := range frames {
		sb.WriteString(f.Content)
	}
	return sb.String()
}

func TestStreamChatSceneDispatch(t *testing.T) {
	t.Run("graph scene runs the graph pipeline unfiltered", func(t *testing.T) {
		h := newHarness(rag.DecisionNone)
		frames := streamFrames(t, h, SceneGraph)

		assert.Equal(t, 1, h.graphPipe.runs)
		assert.Zero(t, h.textPipe.runs)
		assert.Contains(t, contents(frames), "图谱回答")
		assert.Contains(t, contents(frames), "<think>\n")
	})

	t.Run("text scene runs the text pipeline", func(t *testing.T) {
		h := newHarness(rag.DecisionNone)
		frames := streamFrames(t, h, SceneTextOnly)

		assert.Equal(t, 1, h.textPipe.runs)
		assert.Zero(t, h.graphPipe.runs)
		assert.Contains(t, contents(frames), "文本回答")
	})
}

func TestStreamChatHybridGraphDecision(t *testing.T) {
	h := newHarness(rag.DecisionGraph)
	h.router.reasoning = "graph"
	frames := streamFrames(t, h, SceneHybrid)

	full := contents(frames)
	assert.Contains(t, full, frame.ThinkPreamble)
	assert.Contains(t, full, "graph")
	assert.Contains(t, full, "需要检索网络业务知识图谱辅助回答，请稍等....\n")

	// The inner graph stream loses its think block but keeps its data
	// block, tags included, plus the knowledge frame.
	assert.NotContains(t, full, "意图解析中")
	assert.NotContains(t, full, "Cypher生成完成")
	assert.Contains(t, full, frame.DataOpen)
	assert.Contains(t, full, "图谱回答")
	assert.Contains(t, full, "\n</data>\n")
	assert.Contains(t, full, "检索到1条相关信息")

	// Only the orchestrator's own preamble opens a think block.
	assert.Equal(t, 1, strings.Count(full, "<think>"))
}

func TestStreamChatHybridBothDecision(t *testing.T) {
	h := newHarness(rag.DecisionHybrid)
	frames := streamFrames(t, h, SceneHybrid)

	full := contents(frames)
	assert.Contains(t, full, "需要同时检索网络业务知识图谱以及法规标准知识辅助回答，请稍等....\n")
	assert.Contains(t, full, "\n现在开始业务知识图谱检索\n")
	assert.Contains(t, full, "\n检索到的业务信息：\n图谱回答\n")
	assert.Contains(t, full, "\n现在开始法规标准检索\n")
	assert.Contains(t, full, "文本回答")

	// The graph sub-stream stays server-side: its reasoning, tags and
	// knowledge frames never reach the client, only the captured data
	// interior surfaced through the narration above.
	assert.NotContains(t, full, "意图解析中")
	assert.NotContains(t, full, "检索到1条相关信息")
	assert.Equal(t, 1, strings.Count(full, "<data>"))

	// The graph data interior was captured and appended to the question
	// handed to the text branch.
	assert.Equal(t, "问题以下是检索到的具体业务信息：图谱回答", h.textPipe.question)

	// The sub-pipeline's own preamble is dropped so the think block
	// opens exactly once.
	assert.Equal(t, 1, strings.Count(full, frame.ThinkPreamble))
}

func TestStreamChatHybridThinkNeverFollowsData(t *testing.T) {
	h := newHarness(rag.DecisionHybrid)
	frames := streamFrames(t, h, SceneHybrid)

	dataSeen := false
	for i, f := range frames {
		switch f.Type {
		case frame.TypeData:
			dataSeen = true
		case frame.TypeThink:
			require.Falsef(t, dataSeen, "frame %d (%q) is a think frame after a data frame", i, f.Content)
		}
	}
	assert.True(t, dataSeen, "stream never reached the data block")
}

func TestStreamChatHybridGraphFailureDegrades(t *testing.T) {
	h := newHarness(rag.DecisionHybrid)
	h.graphPipe.frames = []frame.Frame{frame.Think("<think>\n")}
	h.graphPipe.err = errors.New("graph engine down")

	frames := streamFrames(t, h, SceneHybrid)
	full := contents(frames)

	assert.Contains(t, full, "\n未检索到相关业务信息\n")
	assert.Contains(t, full, "文本回答")
	assert.Equal(t, "问题", h.textPipe.question, "failed graph branch must not augment the question")
	assert.Len(t, h.publisher.payloads, 1, "degraded hybrid run still persists")
}

func TestStreamChatHybridNoneUsesDirectPipeline(t *testing.T) {
	h := newHarness(rag.DecisionNone)
	frames := streamFrames(t, h, SceneHybrid)

	assert.Equal(t, 1, h.directPipe.runs)
	assert.Zero(t, h.textPipe.runs)
	assert.Contains(t, contents(frames), "大模型直接生成回答，请稍等....\n")
	assert.Contains(t, contents(frames), "直接回答")
}

func TestStreamChatPublishesTranscriptOnSuccess(t *testing.T) {
	h := newHarness(rag.DecisionNone)
	frames := streamFrames(t, h, SceneTextOnly)

	require.Len(t, h.publisher.payloads, 1)
	var transcript events.ChatTranscript
	require.NoError(t, json.Unmarshal(h.publisher.payloads[0], &transcript))

	assert.Equal(t, "u1", transcript.UserId)
	assert.Equal(t, "s1", transcript.SessionId)
	assert.Equal(t, "问题", transcript.Question)
	// The persisted answer is the full framed stream.
	assert.Equal(t, contents(frames), transcript.Answer)
}

func TestStreamChatFailureEmitsErrorFrameAndSkipsPersistence(t *testing.T) {
	h := newHarness(rag.DecisionNone)
	h.textPipe.frames = []frame.Frame{frame.Think(frame.ThinkPreamble)}
	h.textPipe.err = errors.New("llm unreachable")

	var frames []frame.Frame
	err := h.svc.StreamChat(context.Background(), "u1", "s1", SceneTextOnly, "问题", func(f frame.Frame) error {
		frames = append(frames, f)
		return nil
	})
	require.NoError(t, err, "pipeline failure is reported in-band, not returned")

	last := frames[len(frames)-1]
	assert.Equal(t, frame.TypeError, last.Type)
	assert.Equal(t, "<data>\n抱歉，处理您的请求时出现错误: llm unreachable\n</data>", last.Content)
	assert.Empty(t, h.publisher.payloads, "failed stream must not persist")
}

func TestStreamChatCancellationSkipsErrorFrameAndPersistence(t *testing.T) {
	h := newHarness(rag.DecisionNone)
	ctx, cancel := context.WithCancel(context.Background())
	h.textPipe.err = context.Canceled

	var frames []frame.Frame
	cancel()
	err := h.svc.StreamChat(ctx, "u1", "s1", SceneTextOnly, "问题", func(f frame.Frame) error {
		frames = append(frames, f)
		return nil
	})
	require.Error(t, err)

	for _, f := range frames {
		assert.NotEqual(t, frame.TypeError, f.Type, "cancelled stream must not emit an error frame")
	}
	assert.Empty(t, h.publisher.payloads)
}

func TestChatExtractsAnswerAndKnowledgeCount(t *testing.T) {
	h := newHarness(rag.DecisionNone)
	h.textPipe.frames = []frame.Frame{
		frame.Think(frame.ThinkPreamble),
		frame.Think(frame.ThinkClose),
		frame.Data(frame.DataOpen),
		frame.Data("第一段"),
		frame.Data("第二段"),
		frame.Data(frame.DataClose),
		frame.Knowledge(frame.KnowledgeOpen),
		frame.Knowledge("【标准】\n引用一\n\n"),
		frame.Knowledge("【标准】\n引用二\n"),
		frame.Knowledge(frame.KnowledgeEnd),
	}

	res, err := h.svc.Chat(context.Background(), &dto.ChatRequest{
		SessionId: "s1", UserId: "u1", Query: "问题",
	})
	require.NoError(t, err)

	assert.Equal(t, "第一段第二段", res.Response)
	assert.Equal(t, "s1", res.SessionId)
	assert.Equal(t, 2, res.KnowledgeCount)
	assert.Len(t, h.publisher.payloads, 1)
}

func TestChatDisabledKnowledgeUsesDirectPipeline(t *testing.T) {
	h := newHarness(rag.DecisionNone)
	off := false

	_, err := h.svc.Chat(context.Background(), &dto.ChatRequest{
		SessionId: "s1", UserId: "u1", Query: "问题", EnableKnowledge: &off,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, h.directPipe.runs)
	assert.Zero(t, h.textPipe.runs)
}

func TestChatPipelineFailurePropagates(t *testing.T) {
	h := newHarness(rag.DecisionNone)
	h.textPipe.err = errors.New("llm unreachable")

	_, err := h.svc.Chat(context.Background(), &dto.ChatRequest{
		SessionId: "s1", UserId: "u1", Query: "问题",
	})
	assert.Error(t, err)
	assert.Empty(t, h.publisher.payloads)
}
