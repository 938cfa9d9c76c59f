package chat

import (
	"time"

	"github.com/user/aletheia/internal/types"
)

// ExchangeStatus represents how a Send ended.
type ExchangeStatus string

const (
	// ExchangeRejected means the guard refused the send: blank text or
	// another exchange in flight. Nothing was sent and the Store is unchanged.
	ExchangeRejected ExchangeStatus = "rejected"
	// ExchangeReplied means the backend answered and the reply was appended.
	ExchangeReplied ExchangeStatus = "replied"
	// ExchangeFailed means the call failed and an error message was appended.
	ExchangeFailed ExchangeStatus = "failed"
	// ExchangeDiscarded means the call resolved after the Store had moved to
	// another conversation, so the reply was dropped.
	ExchangeDiscarded ExchangeStatus = "discarded"
)

// Exchange tracks one user message and its reply.
type Exchange struct {
	Seq            uint64
	ConversationID types.ConversationID
	Epoch          uint64
	Text           string
	EnableSearch   bool
	Status         ExchangeStatus
	Request        types.Message
	Reply          types.Message
	Error          error
	CreatedAt      time.Time
	EndedAt        *time.Time
}

func newExchange(text string) *Exchange {
	return &Exchange{
		Text:      text,
		CreatedAt: time.Now(),
	}
}

func (e *Exchange) end(status ExchangeStatus) *Exchange {
	now := time.Now()
	e.Status = status
	e.EndedAt = &now
	return e
}

// Duration is the time between dispatch and resolution, zero while pending.
func (e *Exchange) Duration() time.Duration {
	if e.EndedAt == nil {
		return 0
	}
	return e.EndedAt.Sub(e.CreatedAt)
}
