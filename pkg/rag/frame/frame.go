package frame

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Type discriminates the phases of a streamed answer.
type Type int

const (
	TypeThink     Type = 1
	TypeData      Type = 2
	TypeKnowledge Type = 3
	TypeError     Type = 4
)

// Frame is the wire primitive: one record of the streaming response.
type Frame struct {
	Content string `json:"content"`
	Type    Type   `json:"message_type"`
}

// Emitter is the sink a pipeline writes frames to. Returning an error
// cancels the producing stream.
type Emitter func(Frame) error

func Think(content string) Frame     { return Frame{Content: content, Type: TypeThink} }
func Data(content string) Frame      { return Frame{Content: content, Type: TypeData} }
func Knowledge(content string) Frame { return Frame{Content: content, Type: TypeKnowledge} }
func Error(content string) Frame     { return Frame{Content: content, Type: TypeError} }

// Encode renders the frame in the `data:{JSON}\n\n` wire format.
func (f Frame) Encode() []byte {
	payload, _ := json.Marshal(f)
	var buf bytes.Buffer
	buf.Grow(len(payload) + 8)
	buf.WriteString("data:")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes()
}

// Decode parses one wire record back into a Frame.
func Decode(record []byte) (Frame, error) {
	trimmed := bytes.TrimSpace(record)
	if !bytes.HasPrefix(trimmed, []byte("data:")) {
		return Frame{}, fmt.Errorf("frame: record missing data prefix")
	}
	var f Frame
	if err := json.Unmarshal(trimmed[len("data:"):], &f); err != nil {
		return Frame{}, fmt.Errorf("frame: decode record: %w", err)
	}
	return f, nil
}

// Structural tags embedded in frame contents.
const (
	TagThinkOpen  = "<think>"
	TagThinkClose = "</think>"
	TagDataOpen   = "<data>"
	TagDataClose  = "</data>"
)

// Wire-visible literals shared by the pipelines and the orchestrator.
const (
	ThinkPreamble = "<think>开始对用户的提问进行深入解析...\n"
	ThinkClose    = "\n完成对用户问题的详细解析分析。正在检索知识库中的内容并生成回答，请稍候....\n</think>\n"
	DataOpen      = "<data>\n"
	DataClose     = "\n</data>"
	KnowledgeOpen = "\n<knowledge>\n相关的标准规范原文内容\n"
	KnowledgeEnd  = "</knowledge>"
)
