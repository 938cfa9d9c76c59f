// internal/types/interfaces.go
package types

import "context"

// Backend is the research-agent service contract consumed by the client.
type Backend interface {
	ListConversations(ctx context.Context, token string) ([]Conversation, error)
	GetConversation(ctx context.Context, token string, id ConversationID) ([]Message, error)
	SendMessage(ctx context.Context, token string, req SendRequest) (*SendResult, error)
	DeleteConversation(ctx context.Context, token string, id ConversationID) error
	Location() string
}

// CredentialSupplier hands out the current bearer token and notifies on
// sign-in and sign-out. ok is false when no credential is available.
type CredentialSupplier interface {
	Credential(ctx context.Context) (token string, ok bool)
	Subscribe(fn func(token string, ok bool)) (unsubscribe func())
}

type SendRequest struct {
	Message        string
	EnableSearch   bool
	ConversationID ConversationID
}

// SendResult is a decoded send reply. Response and Message are both optional;
// DisplayText picks between them.
type SendResult struct {
	Response       *string
	Message        *string
	ThinkingTrace  []ThinkingStep
	Sources        []Source
	MessageID      MessageID
	ConversationID ConversationID
}

// NoResponseText is shown when a reply carries neither response nor message.
const NoResponseText = "No response received"

// DisplayText resolves the reply text: response, then message, then a fixed
// placeholder.
func (r *SendResult) DisplayText() string {
	if r.Response != nil && *r.Response != "" {
		return *r.Response
	}
	if r.Message != nil && *r.Message != "" {
		return *r.Message
	}
	return NoResponseText
}
