package research

import (
	"errors"
	"fmt"
	"time"

	"github.com/user/aletheia/internal/types"
)

// Config holds the backend location and transport settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// ErrNotFound matches a *StatusError carrying 404.
var ErrNotFound = errors.New("not found")

// StatusError is returned for any non-2xx reply.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == 404
}

// StatusCode returns the HTTP status of the reply.
func (e *StatusError) StatusCode() int {
	return e.Code
}

// Temporary reports whether retrying the same request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == 429
}

// listResponse is the GET /api/chat/conversations body.
type listResponse struct {
	Conversations []types.Conversation `json:"conversations"`
}

// conversationResponse is the GET /api/chat/conversations/{id} body.
type conversationResponse struct {
	Conversation *types.Conversation `json:"conversation,omitempty"`
	Messages     []types.Message     `json:"messages"`
}

// sendRequest is the POST /api/chat/send body. ConversationID is encoded as
// null for a new conversation.
type sendRequest struct {
	Message        string  `json:"message"`
	EnableSearch   bool    `json:"enable_search"`
	ConversationID *string `json:"conversation_id"`
}

// sendResponse is the POST /api/chat/send body. Every field is optional.
type sendResponse struct {
	Response       *string              `json:"response,omitempty"`
	Message        *string              `json:"message,omitempty"`
	ThinkingTrace  []types.ThinkingStep `json:"thinking_trace,omitempty"`
	Sources        []types.Source       `json:"sources,omitempty"`
	MessageID      string               `json:"message_id,omitempty"`
	ConversationID string               `json:"conversation_id,omitempty"`
}

// deleteResponse is the DELETE /api/chat/conversations/{id} body.
type deleteResponse struct {
	Message string `json:"message"`
}
