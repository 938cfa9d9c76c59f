package auth

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/aletheia/internal/types"
)

// Supplier is an in-process credential holder. The identity provider (a
// login command, a token file, a bridge) calls SignIn and SignOut; the chat
// controller reads Credential at dispatch time and reacts to notifications.
type Supplier struct {
	mu    sync.RWMutex
	token string
	now   func() time.Time

	subMu       sync.Mutex
	subscribers []subscription

	logger *slog.Logger
}

type subscription struct {
	id string
	fn func(token string, ok bool)
}

var _ types.CredentialSupplier = (*Supplier)(nil)

// NewSupplier creates a Supplier holding token ("" for signed out).
func NewSupplier(token string, logger *slog.Logger) *Supplier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supplier{
		token:  token,
		now:    time.Now,
		logger: logger.With("component", "auth"),
	}
}

// Credential returns the current token. Expired JWTs are reported as absent.
func (s *Supplier) Credential(_ context.Context) (string, bool) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	return token, s.usable(token)
}

func (s *Supplier) usable(token string) bool {
	if token == "" {
		return false
	}
	exp, err := Expiry(token)
	if err != nil {
		return true
	}
	return s.now().Before(exp)
}

// Subscribe registers fn for sign-in and sign-out notifications.
func (s *Supplier) Subscribe(fn func(token string, ok bool)) (unsubscribe func()) {
	id := uuid.New().String()

	s.subMu.Lock()
	s.subscribers = append(s.subscribers, subscription{id: id, fn: fn})
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		s.subscribers = slices.DeleteFunc(s.subscribers, func(sub subscription) bool {
			return sub.id == id
		})
	}
}

// SignIn replaces the current token and notifies subscribers. Signing in
// with the token already held is a no-op. When the new token belongs to a
// different identity, subscribers first see a sign-out so per-user state is
// dropped before the new user's state is loaded.
func (s *Supplier) SignIn(token string) {
	s.mu.Lock()
	if token == s.token {
		s.mu.Unlock()
		return
	}
	prev := s.token
	s.token = token
	s.mu.Unlock()

	if prev != "" && identity(prev) != identity(token) {
		s.logger.Info("identity changed", "subject", Subject(token))
		s.notify("", false)
	}
	ok := s.usable(token)
	s.logger.Info("credential changed", "present", ok, "subject", Subject(token))
	s.notify(token, ok)
}

// SignOut clears the token and notifies subscribers.
func (s *Supplier) SignOut() {
	s.mu.Lock()
	if s.token == "" {
		s.mu.Unlock()
		return
	}
	s.token = ""
	s.mu.Unlock()

	s.logger.Info("credential cleared")
	s.notify("", false)
}

func (s *Supplier) notify(token string, ok bool) {
	s.subMu.Lock()
	subs := slices.Clone(s.subscribers)
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(token, ok)
	}
}

// WatchFile polls path and signs in or out as the token file changes. It
// returns when ctx is done.
func (s *Supplier) WatchFile(ctx context.Context, path string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			token := ReadTokenFile(path)
			if token == "" {
				s.SignOut()
			} else {
				s.SignIn(token)
			}
		}
	}
}

// identity is the JWT subject, or the raw token when it carries none.
func identity(token string) string {
	if sub := Subject(token); sub != "" {
		return sub
	}
	return token
}
