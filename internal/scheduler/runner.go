package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"github.com/user/aletheia/internal/chat"
	"github.com/user/aletheia/internal/delivery"
	"github.com/user/aletheia/internal/state"
	"github.com/user/aletheia/internal/types"
)

// ErrNotSent is returned when a prompt could not be dispatched at all.
var ErrNotSent = errors.New("prompt not sent")

// Runner sends task prompts to the backend and delivers the replies. Each
// run gets its own Store, so it never touches an interactive session.
type Runner struct {
	backend  types.Backend
	creds    types.CredentialSupplier
	registry *delivery.Registry
	sem      *semaphore.Weighted
	logger   *slog.Logger
}

// NewRunner creates a Runner allowing at most maxConcurrent runs at once.
func NewRunner(backend types.Backend, creds types.CredentialSupplier, registry *delivery.Registry, maxConcurrent int64, logger *slog.Logger) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		backend:  backend,
		creds:    creds,
		registry: registry,
		sem:      semaphore.NewWeighted(maxConcurrent),
		logger:   logger.With("component", "runner"),
	}
}

// Run sends task.Prompt in a new conversation and delivers the reply to
// task.Target, if set. A failed send still delivers the error text and returns the
// send error.
func (r *Runner) Run(ctx context.Context, task state.Task) (*chat.Exchange, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for run slot: %w", err)
	}
	defer r.sem.Release(1)

	prefs := state.DefaultPreferences()
	prefs.SearchEnabled = task.Search
	ctrl := chat.New(state.NewStore(prefs), r.backend, r.creds,
		chat.WithRetryPolicy(chat.NoRetry()), chat.WithLogger(r.logger))

	ex := ctrl.Send(ctx, task.Prompt)
	log := r.logger.With("task", task.Name, "target", task.Target, "seq", ex.Seq)
	if ex.Status == chat.ExchangeRejected {
		return ex, fmt.Errorf("task %s: %w", task.Name, ErrNotSent)
	}

	if task.Target != "" {
		if err := r.registry.Deliver(ctx, task.Target, ex.Reply); err != nil {
			log.Error("delivery failed", "error", err)
			return ex, fmt.Errorf("deliver task %s: %w", task.Name, err)
		}
		log.Info("task delivered", "status", ex.Status, "duration", ex.Duration())
	}

	if ex.Error != nil {
		return ex, fmt.Errorf("task %s: %w", task.Name, ex.Error)
	}
	return ex, nil
}

// Handler adapts Run to the scheduler callback, running under ctx.
func (r *Runner) Handler(ctx context.Context) Handler {
	return func(task state.Task) {
		if _, err := r.Run(ctx, task); err != nil {
			r.logger.Warn("scheduled task failed", "task", task.Name, "error", err)
		}
	}
}
