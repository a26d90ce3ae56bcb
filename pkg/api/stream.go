package api

// StreamRequest is the body accepted by the relay's streaming endpoint.
type StreamRequest struct {
	Message string             `json:"message" binding:"required"`
	History []ConversationTurn `json:"history" binding:"omitempty,dive"`
}

// FragmentEvent is the JSON payload of one relayed SSE data frame.
type FragmentEvent struct {
	Content string `json:"content"`
}
