// internal/scheduler/scheduler.go
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/aletheia/internal/state"
)

// Handler is the callback invoked when a scheduled task fires.
type Handler func(task state.Task)

// Scheduler fires the enabled, scheduled tasks of a task store through a
// handler. A task whose previous run is still waiting on the backend is
// skipped rather than queued.
type Scheduler struct {
	store   *state.TaskStore
	handler Handler
	logger  *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate reports whether schedule is an expression the scheduler accepts.
func Validate(schedule string) error {
	if _, err := cronParser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return nil
}

// NextRun returns the first activation of schedule after from.
func NextRun(schedule string, from time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return sched.Next(from), nil
}

// New creates a Scheduler over store. handler is called each time a task fires.
func New(store *state.TaskStore, handler Handler) *Scheduler {
	return &Scheduler{
		store:   store,
		handler: handler,
		logger:  slog.Default().With("component", "scheduler"),
		cron:    newCron(),
		entries: make(map[string]cron.EntryID),
	}
}

func newCron() *cron.Cron {
	return cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
}

// Start loads tasks from the store, registers enabled tasks that have a
// schedule, and starts the cron ticker. Tasks with a bad schedule are logged
// and skipped.
func (s *Scheduler) Start() error {
	tasks, err := s.store.List()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range tasks {
		if task.Schedule == "" || !task.Enabled {
			continue
		}

		t := *task
		id, err := s.cron.AddFunc(t.Schedule, func() {
			s.logger.Info("cron firing task", "name", t.Name, "target", t.Target)
			s.handler(t)
		})
		if err != nil {
			s.logger.Error("invalid cron schedule", "name", t.Name, "schedule", t.Schedule, "error", err)
			continue
		}
		s.entries[t.Name] = id
		s.logger.Info("scheduled task", "name", t.Name, "schedule", t.Schedule)
	}

	s.cron.Start()
	return nil
}

// Reload drops all entries and registers the store's tasks again. Runs in
// progress are not interrupted.
func (s *Scheduler) Reload() error {
	s.mu.Lock()
	s.cron.Stop()
	s.cron = newCron()
	s.entries = make(map[string]cron.EntryID)
	s.mu.Unlock()
	return s.Start()
}

// Entries returns the number of registered tasks.
func (s *Scheduler) Entries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Next reports when the named task fires next. ok is false for tasks that
// are not scheduled.
func (s *Scheduler) Next(name string) (next time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// Stop stops the cron ticker.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Stop()
}
