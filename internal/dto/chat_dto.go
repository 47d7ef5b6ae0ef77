package dto

// ChatStreamRequest is the body of the streaming endpoint; session_id,
// user_id and scene_id arrive as query parameters. Content and Query are
// aliases, whichever is non-empty wins.
type ChatStreamRequest struct {
	Content string `json:"content"`
	Query   string `json:"query"`
}

func (r *ChatStreamRequest) Question() string {
	if r.Content != "" {
		return r.Content
	}
	return r.Query
}

type ChatRequest struct {
	SessionId       string `json:"session_id" validate:"required"`
	UserId          string `json:"user_id" validate:"required"`
	Query           string `json:"query" validate:"required"`
	EnableKnowledge *bool  `json:"enable_knowledge"`
	TopK            int    `json:"top_k"`
}

type ChatResponse struct {
	Response       string `json:"response"`
	SessionId      string `json:"session_id"`
	KnowledgeCount int    `json:"knowledge_count"`
}
