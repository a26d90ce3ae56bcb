package api

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one prior exchange in a conversation, in chronological order.
// History is owned by the caller and is never modified by the stream client.
type ConversationTurn struct {
	Role    Role   `json:"role" binding:"required"`
	Content string `json:"content"`
}

// Message is the provider-agnostic wire unit sent upstream.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
