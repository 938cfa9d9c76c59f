// internal/types/models.go
package types

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the closed set of roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ThinkingStep is one record of an assistant's reasoning trace.
type ThinkingStep struct {
	Step        int     `json:"step,omitempty"`
	Action      string  `json:"action,omitempty"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence,omitempty"`
}

// Source is a citation attached to a search-enabled exchange.
type Source struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

type Message struct {
	ID             MessageID      `json:"id"`
	ConversationID ConversationID `json:"conversation_id"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	ThinkingTrace  []ThinkingStep `json:"thinking_trace"`
	Sources        []Source       `json:"sources"`
	Timestamp      string         `json:"timestamp"`
}

type Conversation struct {
	ID        ConversationID `json:"id"`
	Title     string         `json:"title"`
	UpdatedAt string         `json:"updated_at"`
}

// Now formats the current time the way message timestamps are written.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Normalize fills the optional sequences with empty slices so that absent
// fields and empty ones look the same to callers.
func (m Message) Normalize() Message {
	if m.ThinkingTrace == nil {
		m.ThinkingTrace = []ThinkingStep{}
	}
	if m.Sources == nil {
		m.Sources = []Source{}
	}
	return m
}
