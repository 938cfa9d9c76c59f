// Package chat maps network calls against the research backend onto
// Conversation Store transitions.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/user/aletheia/internal/state"
	"github.com/user/aletheia/internal/types"
)

var (
	// ErrSignedOut is returned by operations that need a credential.
	ErrSignedOut = errors.New("not signed in")
	// ErrSuperseded is returned by OpenConversation when a later switch won.
	ErrSuperseded = errors.New("superseded by a later switch")
)

// ErrorPrefix starts the content of an assistant message that reports a
// failed send.
const ErrorPrefix = "Error: "

// Option configures a Controller.
type Option func(*Controller)

// WithRetryPolicy sets the policy used for list and history fetches.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(c *Controller) { c.retry = p }
}

// WithLogger sets the logger; the controller tags it with its component name.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Controller drives one Store: it sends messages, opens and deletes
// conversations and follows the credential lifecycle. All methods are safe
// for concurrent use.
type Controller struct {
	store   *state.Store
	backend types.Backend
	creds   types.CredentialSupplier
	retry   *RetryPolicy
	logger  *slog.Logger

	guard      *semaphore.Weighted
	seq        atomic.Uint64
	opens      atomic.Uint64
	refreshes  atomic.Uint64
	generation atomic.Uint64

	// mu orders refresh application against credential resets.
	mu             sync.Mutex
	appliedRefresh uint64

	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates a Controller for store. Call Start to follow credential changes.
func New(store *state.Store, backend types.Backend, creds types.CredentialSupplier, opts ...Option) *Controller {
	c := &Controller{
		store:   store,
		backend: backend,
		creds:   creds,
		retry:   DefaultRetryPolicy(),
		logger:  slog.Default(),
		guard:   semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "chat")
	return c
}

// Store returns the Store this controller drives.
func (c *Controller) Store() *state.Store {
	return c.store
}

// Start subscribes to credential changes and, if a credential is already
// available, loads the conversation list.
func (c *Controller) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.unsubscribe = c.creds.Subscribe(func(_ string, ok bool) {
		if !ok {
			c.OnCredentialCleared()
			return
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.OnCredentialEstablished(c.ctx)
		}()
	})
	if _, ok := c.creds.Credential(ctx); ok {
		c.OnCredentialEstablished(ctx)
	}
}

// Close unsubscribes from credential changes and waits for background loads.
func (c *Controller) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// OnCredentialEstablished loads the conversation list for the new identity.
func (c *Controller) OnCredentialEstablished(ctx context.Context) {
	c.generation.Add(1)
	if err := c.RefreshConversations(ctx); err != nil {
		c.logger.Warn("initial conversation load failed", "error", err)
	}
}

// OnCredentialCleared drops all server-derived state.
func (c *Controller) OnCredentialCleared() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation.Add(1)
	c.store.Reset()
	c.logger.Info("credential cleared, store reset")
}

// Send posts text to the active conversation. Blank text and sends made while
// another exchange is in flight are rejected without any effect. Otherwise the
// user message is appended at once and the reply, or an error message, is
// appended when the call resolves. The conversation list is refreshed after
// every dispatched send. Send never returns an error; inspect the Exchange.
func (c *Controller) Send(ctx context.Context, text string) *Exchange {
	ex := newExchange(strings.TrimSpace(text))
	if ex.Text == "" || !c.guard.TryAcquire(1) {
		return ex.end(ExchangeRejected)
	}
	if c.store.ExchangeInFlight() {
		c.guard.Release(1)
		return ex.end(ExchangeRejected)
	}

	ex.Seq = c.seq.Add(1)
	for {
		snap := c.store.Snapshot()
		ex.Epoch = snap.Epoch
		ex.ConversationID = snap.ActiveConversationID
		ex.EnableSearch = snap.SearchEnabled
		ex.Request = types.Message{
			ID:             types.NewMessageID(),
			ConversationID: snap.ActiveConversationID,
			Role:           types.RoleUser,
			Content:        ex.Text,
			Timestamp:      types.Now(),
		}.Normalize()
		if c.store.AppendIfCurrent(ex.Epoch, ex.ConversationID, ex.Request) {
			break
		}
	}
	c.store.SetExchangeInFlight(true)

	log := c.logger.With("seq", ex.Seq, "conversation_id", ex.ConversationID)
	log.Debug("dispatching message", "search", ex.EnableSearch)

	token, _ := c.creds.Credential(ctx)
	res, err := c.backend.SendMessage(ctx, token, types.SendRequest{
		Message:        ex.Text,
		EnableSearch:   ex.EnableSearch,
		ConversationID: ex.ConversationID,
	})

	status := ExchangeReplied
	if err != nil {
		status = ExchangeFailed
		ex.Error = err
		ex.Reply = c.errorMessage(ex.ConversationID, err)
		log.Warn("send failed", "error", err)
	} else {
		ex.Reply = replyMessage(ex.ConversationID, res)
	}

	if c.store.AppendIfCurrent(ex.Epoch, ex.ConversationID, ex.Reply) {
		if err == nil && ex.ConversationID.IsNew() && !res.ConversationID.IsNew() {
			if c.store.BindConversation(ex.Epoch, res.ConversationID) {
				log.Debug("bound new conversation", "server_id", res.ConversationID)
			}
		}
	} else {
		status = ExchangeDiscarded
		log.Debug("reply discarded after conversation switch")
	}
	c.store.SetExchangeInFlight(false)
	c.guard.Release(1)

	if err := c.RefreshConversations(context.WithoutCancel(ctx)); err != nil {
		log.Warn("conversation refresh after send failed", "error", err)
	}
	return ex.end(status)
}

func replyMessage(id types.ConversationID, res *types.SendResult) types.Message {
	if res == nil {
		res = &types.SendResult{}
	}
	msgID := res.MessageID
	if msgID == "" {
		msgID = types.NewMessageID()
	}
	return types.Message{
		ID:             msgID,
		ConversationID: id,
		Role:           types.RoleAssistant,
		Content:        res.DisplayText(),
		ThinkingTrace:  res.ThinkingTrace,
		Sources:        res.Sources,
		Timestamp:      types.Now(),
	}.Normalize()
}

func (c *Controller) errorMessage(id types.ConversationID, err error) types.Message {
	return types.Message{
		ID:             types.NewMessageID(),
		ConversationID: id,
		Role:           types.RoleAssistant,
		Content:        ErrorPrefix + describe(err) + "\n\nBackend is running at: " + c.backend.Location(),
		Timestamp:      types.Now(),
	}.Normalize()
}

// describe renders err the way the thread shows it: bare status for HTTP
// errors, the error text otherwise.
func describe(err error) string {
	var se interface{ StatusCode() int }
	if errors.As(err, &se) {
		return fmt.Sprintf("HTTP error! status: %d", se.StatusCode())
	}
	return err.Error()
}

// StartNewConversation makes the next send start a new conversation.
func (c *Controller) StartNewConversation() {
	c.store.SetActiveConversation("")
}

// OpenConversation fetches the history of id and makes it active in a single
// transition. On failure the Store is left untouched and the error returned.
// If another switch happened while the fetch was outstanding, the result is
// dropped and ErrSuperseded returned.
func (c *Controller) OpenConversation(ctx context.Context, id types.ConversationID) error {
	if id.IsNew() {
		c.StartNewConversation()
		return nil
	}
	token, ok := c.creds.Credential(ctx)
	if !ok {
		return ErrSignedOut
	}
	seq := c.opens.Add(1)
	epoch := c.store.Epoch()

	var history []types.Message
	err := c.retry.Execute(ctx, func() error {
		var err error
		history, err = c.backend.GetConversation(ctx, token, id)
		return err
	})
	if err != nil {
		c.logger.Warn("load conversation failed", "conversation_id", id, "error", err)
		return fmt.Errorf("open conversation %s: %w", id, err)
	}
	if c.opens.Load() != seq || !c.store.SwitchConversationIf(epoch, id, history) {
		c.logger.Debug("conversation load superseded", "conversation_id", id)
		return ErrSuperseded
	}
	return nil
}

// RefreshConversations re-fetches the conversation list and replaces the
// Store's copy. Without a credential it does nothing. On failure the list is
// left as it was. A fetch that completes after a newer one, or after the
// credential changed, is dropped.
func (c *Controller) RefreshConversations(ctx context.Context) error {
	token, ok := c.creds.Credential(ctx)
	if !ok {
		return nil
	}
	gen := c.generation.Load()
	seq := c.refreshes.Add(1)

	var list []types.Conversation
	err := c.retry.Execute(ctx, func() error {
		var err error
		list, err = c.backend.ListConversations(ctx, token)
		return err
	})
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation.Load() != gen || seq < c.appliedRefresh {
		return nil
	}
	c.appliedRefresh = seq
	c.store.ReplaceConversations(list)
	return nil
}

// DeleteConversation removes id on the backend. If it was active the Store
// moves to a new conversation. The list is refreshed afterwards.
func (c *Controller) DeleteConversation(ctx context.Context, id types.ConversationID) error {
	token, ok := c.creds.Credential(ctx)
	if !ok {
		return ErrSignedOut
	}
	if err := c.backend.DeleteConversation(ctx, token, id); err != nil {
		c.logger.Warn("delete conversation failed", "conversation_id", id, "error", err)
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	if c.store.ActiveConversationID() == id {
		c.StartNewConversation()
	}
	if err := c.RefreshConversations(ctx); err != nil {
		c.logger.Warn("conversation refresh after delete failed", "error", err)
	}
	return nil
}
