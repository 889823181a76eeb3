package workflow

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"minewatch/internal/daterange"
	"minewatch/internal/pipeline"
	"minewatch/internal/services"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Finished reports whether the status is terminal.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is a snapshot of one pipeline invocation.
type Task struct {
	ID         string           `json:"task_id"`
	MineID     int64            `json:"mine_id"`
	Window     daterange.Range  `json:"window"`
	Status     Status           `json:"status"`
	Stage      string           `json:"stage,omitempty"`
	Progress   float64          `json:"progress"`
	Message    string           `json:"message,omitempty"`
	Error      string           `json:"error,omitempty"`
	Retryable  bool             `json:"retryable,omitempty"`
	Result     *pipeline.Result `json:"result,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

// registry is the in-memory task table.
type registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	now   func() time.Time
}

func newRegistry(now func() time.Time) *registry {
	return &registry{tasks: make(map[string]*Task), now: now}
}

func (r *registry) add(id string, req pipeline.Request) Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	t := &Task{
		ID:        id,
		MineID:    req.MineID,
		Window:    req.Window,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.tasks[id] = t
	return *t
}

func (r *registry) get(id string) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return Task{}, services.Wrap(services.ErrNotFound, "workflow", "status", fmt.Sprintf("task %s", id), nil)
	}
	return *t, nil
}

// update applies fn under the lock. Terminal tasks are not modified.
func (r *registry) update(id string, fn func(*Task)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Status.Finished() {
		return
	}
	fn(t)
	t.UpdatedAt = r.now()
	if t.Status.Finished() {
		finished := t.UpdatedAt
		t.FinishedAt = &finished
	}
}

// list returns snapshots, newest first.
func (r *registry) list() []Task {
	r.mu.RLock()
	out := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, *t)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Task) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (r *registry) counts() map[Status]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Status]int, 4)
	for _, t := range r.tasks {
		out[t.Status]++
	}
	return out
}

// prune drops finished tasks older than ttl and returns how many were removed.
func (r *registry) prune(ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-ttl)
	removed := 0
	for id, t := range r.tasks {
		if t.FinishedAt != nil && t.FinishedAt.Before(cutoff) {
			delete(r.tasks, id)
			removed++
		}
	}
	return removed
}
