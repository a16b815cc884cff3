// Package taskengine turns a bus's concurrent request stream into an
// ordered sequence of state transitions on the resolver and description
// model, while letting non-mutating reads run in parallel (spec-level:
// per-request task engine, §4.3).
//
// The FIFO itself is a goqite queue — the same persistence mechanism the
// teacher used for its thumbnail/document job queues. Only the envelope is
// queued: each message is deleted as soon as it is received and handlers
// live in memory, so a request interrupted by a crash is not replayed.
// What sits on top is new: goqite's queue only gives ordering
// and at-least-once delivery; the readers-writer quiesce discipline
// (§4.3.1) is engine-local bookkeeping around a single dequeue loop.
package taskengine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"maragu.dev/goqite"
)

// Handler is a task's initial step. It may return having only started
// async work (after calling t.Hold() for each such call); the task is not
// considered complete until every Hold has a matching Release.
type Handler func(ctx context.Context, t *Task) error

type envelope struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	RunID    string `json:"run_id"`
	Mutating bool   `json:"mutating"`
}

// Engine is the single-worker, readers-writer task dispatcher described
// in spec §4.3.1.
type Engine struct {
	queue *goqite.Queue
	log   *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	readers int

	pending    map[string]pendingEntry
	tasks      map[string]*Task // keyed by Key, for replace-in-flight / cancellation lookup
	currentApp string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	Rebuild RebuildGroup
}

type pendingEntry struct {
	task    *Task
	handler Handler
}

// New constructs an Engine backed by a goqite queue named "tasks" on db.
// db is expected to be the same *sql.DB the sqlite store uses — goqite
// needs only its own table, created by Setup.
func New(db *sql.DB, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := goqite.Setup(context.Background(), db); err != nil {
		return nil, fmt.Errorf("taskengine: goqite setup: %w", err)
	}
	q := goqite.New(goqite.NewOpts{DB: db, Name: "tasks", MaxReceive: 1, Timeout: 30 * time.Second})

	e := &Engine{
		queue:   q,
		log:     log,
		pending: make(map[string]pendingEntry),
		tasks:   make(map[string]*Task),
	}
	e.cond = sync.NewCond(&e.mu)
	return e, nil
}

// Start launches the single dequeue worker. Call once, after registering
// any internal-method handlers the service needs.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go e.run()
}

// Stop drains in-flight work and joins the worker (spec §4.3.2 teardown).
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// Submit enqueues a task. mutating tasks serialize against all readers and
// against each other (§4.3.1); non-mutating tasks run concurrently.
// key identifies the logical operation for replace-in-flight bookkeeping
// (a second Submit with the same key cancels the first, mirroring the
// teacher's taskKey replace semantics); pass "" to skip that.
func (e *Engine) Submit(mutating bool, key string, handler Handler) (*Task, error) {
	id := uuid.NewString()
	runID := uuid.NewString()
	t := newTask(id, key, runID, mutating)

	e.mu.Lock()
	if key != "" {
		if prev, ok := e.tasks[key]; ok {
			prev.Cancel()
		}
		e.tasks[key] = t
	}
	e.pending[id] = pendingEntry{task: t, handler: handler}
	e.mu.Unlock()

	body, err := json.Marshal(envelope{ID: id, Key: key, RunID: runID, Mutating: mutating})
	if err != nil {
		return nil, fmt.Errorf("taskengine: marshal envelope: %w", err)
	}
	if err := e.queue.Send(context.Background(), goqite.Message{Body: body}); err != nil {
		e.mu.Lock()
		delete(e.pending, id)
		e.mu.Unlock()
		return nil, fmt.Errorf("taskengine: enqueue: %w", err)
	}
	return t, nil
}

// run is the single worker thread: it dequeues tasks in order and runs
// each one's initial step, applying the readers-writer quiesce rule.
func (e *Engine) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		default:
		}

		msg, err := e.queue.Receive(e.ctx)
		if err != nil {
			if e.ctx.Err() != nil {
				return
			}
			e.log.Error("taskengine: receive failed", "error", err)
			continue
		}
		if msg == nil {
			continue // poll timeout, no message ready
		}

		var env envelope
		if err := json.Unmarshal(msg.Body, &env); err != nil {
			e.log.Error("taskengine: malformed envelope", "error", err)
			_ = e.queue.Delete(e.ctx, msg.ID)
			continue
		}
		_ = e.queue.Delete(e.ctx, msg.ID) // goqite persists for at-least-once redelivery; we dispatch at most once per envelope id

		e.mu.Lock()
		entry, ok := e.pending[env.ID]
		delete(e.pending, env.ID)
		e.mu.Unlock()
		if !ok {
			continue // superseded or already handled
		}

		e.dispatch(entry)
	}
}

func (e *Engine) dispatch(entry pendingEntry) {
	t := entry.task
	if t.IsCancelled() {
		t.Release()
		return
	}

	if t.Mutating {
		e.mu.Lock()
		for e.readers > 0 {
			e.cond.Wait()
		}
		e.mu.Unlock()

		e.runHandler(entry)
		t.wait() // hold the latch until every async callback has released

		e.mu.Lock()
		e.cond.Broadcast() // wake the next writer, if any arrived while we held the latch
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	e.readers++
	e.mu.Unlock()

	go func() {
		e.runHandler(entry)
		t.wait()

		e.mu.Lock()
		e.readers--
		if e.readers == 0 {
			e.cond.Broadcast()
		}
		e.mu.Unlock()
	}()
}

func (e *Engine) runHandler(entry pendingEntry) {
	defer entry.task.Release() // the initial-step Add(1) from newTask
	if err := entry.handler(e.ctx, entry.task); err != nil {
		e.log.Error("taskengine: handler failed", "task", entry.task.ID, "key", entry.task.Key, "error", err)
	}
}

// Cancel marks the in-flight (or queued) task registered under key as
// cancelled, if one exists.
func (e *Engine) Cancel(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.tasks[key]; ok {
		t.Cancel()
	}
}
