package events

import "time"

// TopicChatTranscript carries one finished chat exchange from the
// streaming orchestrator to the archiver.
const TopicChatTranscript = "CHAT_TRANSCRIPT"

// ChatTranscript is the payload published after a stream closes normally.
// Answer is the concatenation of every frame's content, framing markers
// included.
type ChatTranscript struct {
	UserId     string    `json:"user_id"`
	SessionId  string    `json:"session_id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	OccurredAt time.Time `json:"occurred_at"`
}
