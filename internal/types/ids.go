// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

// ConversationID identifies a server-persisted conversation. The empty value
// means "new, unsaved conversation".
type ConversationID string

// MessageID is client-generated for optimistic entries and server-assigned
// for persisted ones.
type MessageID string

// ChatKey names a presentation-side chat (a Telegram chat, the local REPL)
// that owns its own Store and Controller.
type ChatKey string

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func NewChatKey(parts ...string) ChatKey {
	return ChatKey(strings.Join(parts, ":"))
}

// IsNew reports whether id refers to a conversation that the server has not
// created yet.
func (id ConversationID) IsNew() bool {
	return id == ""
}
