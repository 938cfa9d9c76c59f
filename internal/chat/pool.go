package chat

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/user/aletheia/internal/state"
	"github.com/user/aletheia/internal/types"
)

// Pool keeps one Store and Controller per chat, for surfaces that serve many
// users at once (a Telegram bot, for example). All chats share the backend
// and the credential supplier.
type Pool struct {
	backend types.Backend
	creds   types.CredentialSupplier
	prefs   state.Preferences
	opts    []Option
	logger  *slog.Logger

	ctx      context.Context
	mu       sync.Mutex
	sessions map[types.ChatKey]*session
}

// session is a pooled controller. ready is closed once Start has returned.
type session struct {
	ctrl  *Controller
	ready chan struct{}
}

// NewPool creates an empty Pool. Stores start with prefs.
func NewPool(ctx context.Context, backend types.Backend, creds types.CredentialSupplier, prefs state.Preferences, opts ...Option) *Pool {
	p := &Pool{
		backend:  backend,
		creds:    creds,
		prefs:    prefs,
		opts:     opts,
		logger:   slog.Default().With("component", "pool"),
		ctx:      ctx,
		sessions: make(map[types.ChatKey]*session),
	}
	return p
}

// Get returns the controller for key, creating and starting it on first use.
// Start runs outside the pool lock, so a slow initial load only holds up
// callers asking for the same key.
func (p *Pool) Get(key types.ChatKey) *Controller {
	p.mu.Lock()
	s, ok := p.sessions[key]
	if !ok {
		s = &session{
			ctrl:  New(state.NewStore(p.prefs), p.backend, p.creds, p.opts...),
			ready: make(chan struct{}),
		}
		p.sessions[key] = s
	}
	p.mu.Unlock()

	if ok {
		<-s.ready
		return s.ctrl
	}
	s.ctrl.Start(p.ctx)
	close(s.ready)
	p.logger.Debug("chat session created", "chat", key)
	return s.ctrl
}

// Lookup returns the controller for key without creating one.
func (p *Pool) Lookup(key types.ChatKey) (*Controller, bool) {
	p.mu.Lock()
	s, ok := p.sessions[key]
	p.mu.Unlock()
	if !ok {
		return nil, false
	}
	<-s.ready
	return s.ctrl, true
}

// Keys lists the chats with a session, sorted.
func (p *Pool) Keys() []types.ChatKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]types.ChatKey, 0, len(p.sessions))
	for k := range p.sessions {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Snapshots returns the current state of every chat, including chats whose
// initial load is still running.
func (p *Pool) Snapshots() map[types.ChatKey]state.Snapshot {
	p.mu.Lock()
	sessions := make(map[types.ChatKey]*session, len(p.sessions))
	for k, s := range p.sessions {
		sessions[k] = s
	}
	p.mu.Unlock()

	out := make(map[types.ChatKey]state.Snapshot, len(sessions))
	for k, s := range sessions {
		out[k] = s.ctrl.Store().Snapshot()
	}
	return out
}

// Close stops every controller, waiting for any Start still in progress.
func (p *Pool) Close() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[types.ChatKey]*session)
	p.mu.Unlock()

	for _, s := range sessions {
		<-s.ready
		s.ctrl.Close()
	}
}
