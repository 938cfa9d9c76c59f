// internal/state/task.go
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// ErrTaskNotFound is returned when no task has the requested name.
var ErrTaskNotFound = errors.New("task not found")

// Task is a named research prompt fired on a schedule or via webhook. The
// reply is delivered to Target (for example "telegram:123" or "log:").
type Task struct {
	Name     string `json:"name"`
	Prompt   string `json:"prompt"`
	Schedule string `json:"schedule,omitempty"`
	Target   string `json:"target"`
	Search   bool   `json:"search,omitempty"`
	Enabled  bool   `json:"enabled"`
}

// Validate checks the fields a stored task needs. Names appear in webhook
// paths, so they may not contain slashes or spaces.
func (t *Task) Validate() error {
	switch {
	case t.Name == "":
		return errors.New("task name is required")
	case strings.ContainsAny(t.Name, "/ \t\n"):
		return fmt.Errorf("task name %q may not contain slashes or spaces", t.Name)
	case strings.TrimSpace(t.Prompt) == "":
		return fmt.Errorf("task %s: prompt is required", t.Name)
	}
	return nil
}

// TaskStore keeps tasks in a JSON file. Every call reads the file, so edits
// made by the CLI are seen by a running daemon on its next reload.
type TaskStore struct {
	path string
	mu   sync.RWMutex
}

// NewTaskStore creates a TaskStore backed by the file at path.
func NewTaskStore(path string) *TaskStore {
	return &TaskStore{path: path}
}

// Path returns the file path used by this store.
func (s *TaskStore) Path() string {
	return s.path
}

// List returns all tasks in insertion order, or an empty slice if the file
// does not exist yet.
func (s *TaskStore) List() ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks, err := s.load()
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		return []*Task{}, nil
	}
	return tasks, nil
}

// Get finds a task by name.
func (s *TaskStore) Get(name string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks, err := s.load()
	if err != nil {
		return nil, err
	}
	i := indexOf(tasks, name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	return tasks[i], nil
}

// Add validates task and appends it. Names are unique.
func (s *TaskStore) Add(task *Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.load()
	if err != nil {
		return err
	}
	if indexOf(tasks, task.Name) >= 0 {
		return fmt.Errorf("task already exists: %s", task.Name)
	}
	return s.save(append(tasks, task))
}

// Remove deletes a task by name.
func (s *TaskStore) Remove(name string) error {
	return s.modify(name, func(tasks []*Task, i int) []*Task {
		return slices.Delete(tasks, i, i+1)
	})
}

// SetEnabled sets the enabled flag of a task.
func (s *TaskStore) SetEnabled(name string, enabled bool) error {
	return s.modify(name, func(tasks []*Task, i int) []*Task {
		tasks[i].Enabled = enabled
		return tasks
	})
}

// modify applies fn to the task list under the write lock and saves the
// result. fn receives the index of name.
func (s *TaskStore) modify(name string, fn func(tasks []*Task, i int) []*Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.load()
	if err != nil {
		return err
	}
	i := indexOf(tasks, name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	return s.save(fn(tasks, i))
}

func indexOf(tasks []*Task, name string) int {
	return slices.IndexFunc(tasks, func(t *Task) bool { return t.Name == name })
}

// load reads the task file. A missing file yields nil.
func (s *TaskStore) load() ([]*Task, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tasks file: %w", err)
	}

	var tasks []*Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("unmarshal tasks: %w", err)
	}
	return tasks, nil
}

// save writes the task list with a temp file and rename.
func (s *TaskStore) save(tasks []*Task) error {
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create tasks dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp tasks file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp tasks file: %w", err)
	}
	return nil
}
