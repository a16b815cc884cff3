package taskengine

import (
	"sync"
	"sync/atomic"
)

// Task is the engine's handle on one in-flight request. Its refcount (wg)
// starts at one for the handler's synchronous initial step; a handler that
// issues an async DB/bus call must Hold() before dispatching it and
// Release() from the completion callback. The task is freed — and, for a
// mutating task, the writer latch released — only once the count returns
// to zero.
type Task struct {
	ID        string
	Key       string // caller-supplied identity, e.g. "set:picture" — used for replace-in-flight semantics
	RunID     string
	Mutating  bool
	cancelled atomic.Bool
	wg        sync.WaitGroup
}

func newTask(id, key, runID string, mutating bool) *Task {
	t := &Task{ID: id, Key: key, RunID: runID, Mutating: mutating}
	t.wg.Add(1) // the initial synchronous step
	return t
}

// Hold extends the task's lifetime across one async callback.
func (t *Task) Hold() { t.wg.Add(1) }

// Release must be called exactly once per Hold, and once for the initial
// step (the engine does this automatically after the handler returns).
func (t *Task) Release() { t.wg.Done() }

func (t *Task) wait() { t.wg.Wait() }

// Cancel marks the task as superseded; handlers observe this via
// IsCancelled and should stop issuing further async work.
func (t *Task) Cancel() { t.cancelled.Store(true) }

func (t *Task) IsCancelled() bool { return t == nil || t.cancelled.Load() }
