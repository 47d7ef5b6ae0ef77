package frame

import "strings"

// Filter tracks <think> and <data> tag state across one inner sub-stream.
// It supports two read-outs: Capture flags content strictly inside a data
// block, StripThink drops the think block while passing everything else.
type Filter struct {
	inThink bool
	inData  bool
}

// Capture reports whether a frame's content lies strictly inside a
// <data> block. Tag-bearing frames and anything inside a think block are
// never captured.
func (f *Filter) Capture(fr Frame) bool {
	content := fr.Content
	if strings.Contains(content, TagThinkOpen) {
		f.inThink = true
		return false
	}
	if strings.Contains(content, TagThinkClose) {
		f.inThink = false
		return false
	}
	if f.inThink {
		return false
	}
	if strings.Contains(content, TagDataOpen) {
		f.inData = true
		return false
	}
	if strings.Contains(content, TagDataClose) {
		f.inData = false
		return false
	}
	return f.inData
}

// StripThink reports whether a frame survives think-block removal: the
// think tags and every frame between them are dropped, everything else
// (data tags included) passes through.
func (f *Filter) StripThink(fr Frame) bool {
	content := fr.Content
	if strings.Contains(content, TagThinkOpen) {
		f.inThink = true
		return false
	}
	if strings.Contains(content, TagThinkClose) {
		f.inThink = false
		return false
	}
	return !f.inThink
}

// InThink reports whether the filter is currently inside a think block.
func (f *Filter) InThink() bool { return f.inThink }

// StripBlocks removes embedded <think>…</think> and <knowledge>…</knowledge>
// blocks from a stored message, leaving only the conversational content.
func StripBlocks(content string) string {
	content = stripBlock(content, TagThinkOpen, TagThinkClose)
	content = stripBlock(content, "<knowledge>", "</knowledge>")
	return strings.TrimSpace(content)
}

func stripBlock(s, open, close string) string {
	for {
		start := strings.Index(s, open)
		if start < 0 {
			return s
		}
		end := strings.Index(s[start:], close)
		if end < 0 {
			return s[:start]
		}
		s = s[:start] + s[start+end+len(close):]
	}
}
