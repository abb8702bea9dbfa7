package model

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message. Seq is a per-chat sequence number assigned by
// the message repo and is what summary coverage is tracked against.
type Message struct {
	Seq     int64  `json:"seq"`
	ChatID  string `json:"chat_id"`
	Role    string `json:"role"`
	Content string `json:"content"`
	Ctime   int64  `json:"ctime"`
}

// WebSnippet is one web search fallback result.
type WebSnippet struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}
