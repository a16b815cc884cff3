package taskengine

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tasks.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	e, err := New(db, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	e.Start(ctx)
	t.Cleanup(e.Stop)
	return e
}

func TestEngineRunsNonMutatingTasksConcurrently(t *testing.T) {
	e := newTestEngine(t)

	var inFlight, maxInFlight int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		done := make(chan struct{})
		if _, err := e.Submit(false, "", func(ctx context.Context, tk *Task) error {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&maxInFlight)
				if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
					break
				}
			}
			<-done
			atomic.AddInt32(&inFlight, -1)
			wg.Done()
			return nil
		}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		defer close(done)
	}

	wg.Wait()
	if atomic.LoadInt32(&maxInFlight) < 2 {
		t.Errorf("maxInFlight = %d, want concurrent (>=2) non-mutating tasks", maxInFlight)
	}
}

func TestEngineSerializesMutatingAgainstReaders(t *testing.T) {
	e := newTestEngine(t)

	readerStarted := make(chan struct{})
	releaseReader := make(chan struct{})
	readerDone := make(chan struct{})
	if _, err := e.Submit(false, "", func(ctx context.Context, tk *Task) error {
		close(readerStarted)
		<-releaseReader
		close(readerDone)
		return nil
	}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-readerStarted

	writerRan := make(chan struct{})
	if _, err := e.Submit(true, "", func(ctx context.Context, tk *Task) error {
		select {
		case <-readerDone:
		default:
			t.Error("mutating task ran before in-flight reader finished")
		}
		close(writerRan)
		return nil
	}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	close(releaseReader)

	select {
	case <-writerRan:
	case <-time.After(2 * time.Second):
		t.Fatal("writer never ran")
	}
}

func TestEngineReplacesInFlightTaskByKey(t *testing.T) {
	e := newTestEngine(t)

	var ran int32
	block := make(chan struct{})
	first, err := e.Submit(true, "shared-key", func(ctx context.Context, tk *Task) error {
		<-block
		if !tk.IsCancelled() {
			atomic.AddInt32(&ran, 1)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	second, err := e.Submit(true, "shared-key", func(ctx context.Context, tk *Task) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	close(block)
	time.Sleep(100 * time.Millisecond)

	if !first.IsCancelled() {
		t.Error("first task was not cancelled by the replacing Submit")
	}
	_ = second
}
