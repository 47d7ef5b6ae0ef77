package rag

// IntentKind classifies what a question is asking for.
type IntentKind string

const (
	IntentGraphQuery  IntentKind = "graph_query"
	IntentTextQuery   IntentKind = "text_query"
	IntentHybridQuery IntentKind = "hybrid_query"
)

// Intent is the parsed shape of one user question.
type Intent struct {
	Kind       IntentKind
	Confidence float64
	Metadata   map[string]interface{}
}

// Decision is the routing label chosen for one question.
type Decision string

const (
	DecisionGraph  Decision = "graph"
	DecisionText   Decision = "text"
	DecisionHybrid Decision = "hybrid"
	DecisionNone   Decision = "none"
)

// Knowledge is one retrieved passage or graph row. Ephemeral, request-scoped.
type Knowledge struct {
	Id       string
	Title    string
	Content  string
	Score    float64
	Source   string // "graph" or "text"
	Metadata map[string]interface{}
}

// Message is one turn of conversation history handed to the pipelines.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
