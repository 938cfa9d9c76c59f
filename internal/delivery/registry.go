// internal/delivery/registry.go
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/user/aletheia/internal/render"
	"github.com/user/aletheia/internal/types"
)

// Handler delivers a reply to the destination named by target.
type Handler func(ctx context.Context, target string, reply types.Message) error

// Registry routes replies to the delivery handler registered for the target
// prefix (e.g. "telegram:", "log:").
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty delivery registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for targets starting with prefix.
func (r *Registry) Register(prefix string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[prefix] = handler
}

// Prefixes lists the registered prefixes.
func (r *Registry) Prefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for p := range r.handlers {
		out = append(out, p)
	}
	return out
}

// Deliver calls the handler with the longest prefix matching target.
// Returns an error if no handler is registered for the prefix.
func (r *Registry) Deliver(ctx context.Context, target string, reply types.Message) error {
	r.mu.RLock()
	var (
		best    string
		handler Handler
	)
	for prefix, h := range r.handlers {
		if strings.HasPrefix(target, prefix) && len(prefix) >= len(best) {
			best, handler = prefix, h
		}
	}
	r.mu.RUnlock()

	if handler == nil {
		return fmt.Errorf("no delivery handler for target: %s", target)
	}
	return handler(ctx, target, reply)
}

// LogHandler writes replies to logger. Registered under "log:".
func LogHandler(logger *slog.Logger) Handler {
	return func(_ context.Context, target string, reply types.Message) error {
		logger.Info("research reply",
			"target", target,
			"message_id", reply.ID,
			"conversation_id", reply.ConversationID,
			"sources", len(reply.Sources),
			"content", reply.Content)
		return nil
	}
}

// FileHandler appends replies as plain text to the file named after the
// "file:" prefix.
func FileHandler() Handler {
	return func(_ context.Context, target string, reply types.Message) error {
		path := strings.TrimPrefix(target, "file:")
		if path == "" {
			return fmt.Errorf("file target has no path: %s", target)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("create delivery directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open delivery file: %w", err)
		}
		defer f.Close()
		if _, err := fmt.Fprintf(f, "## %s\n\n%s\n\n", reply.Timestamp, render.PlainMessage(reply)); err != nil {
			return fmt.Errorf("write delivery file: %w", err)
		}
		return nil
	}
}
