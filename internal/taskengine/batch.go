package taskengine

import (
	"context"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"
)

// BatchOp is one sub-request of a batch call (spec §4.3.3): Run performs
// the sub-request's own handler-dispatch and returns its reply.
type BatchOp struct {
	Mutating bool
	Run      func(ctx context.Context) (any, error)
}

// BatchResult is a sub-request's positional reply.
type BatchResult struct {
	Index int
	Reply any
	Err   error
}

// batchAccumulator mirrors MethodCallInfo::releaseBatchTask: a mutex plus
// a countdown of outstanding sub-replies. It emits nothing itself; Batch
// returns its results once every sub-request goroutine has finished.
type batchAccumulator struct {
	mu        sync.Mutex
	remaining int
	results   []BatchResult
}

func newBatchAccumulator(n int) *batchAccumulator {
	return &batchAccumulator{remaining: n, results: make([]BatchResult, n)}
}

func (a *batchAccumulator) complete(i int, r BatchResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results[i] = r
	a.remaining--
}

// Batch enqueues each op as its own independent task — each shares the
// engine's readers-writer discipline with every other in-flight request —
// and fans the handler-dispatch step out with errgroup (§4.3.5) while an
// accumulator collects positional replies. Sub-request ordering in the
// returned slice matches ops; a sub-request that fails to enqueue or run
// still occupies its slot so the caller can report it positionally.
func (e *Engine) Batch(ctx context.Context, ops []BatchOp) ([]BatchResult, error) {
	batchID, err := gonanoid.New(8)
	if err != nil {
		batchID = "batch"
	}
	acc := newBatchAccumulator(len(ops))

	g, gctx := errgroup.WithContext(ctx)
	for i, op := range ops {
		i, op := i, op
		g.Go(func() error {
			replyCh := make(chan BatchResult, 1)
			_, err := e.Submit(op.Mutating, "", func(taskCtx context.Context, t *Task) error {
				reply, runErr := op.Run(taskCtx)
				replyCh <- BatchResult{Index: i, Reply: reply, Err: runErr}
				return runErr
			})
			if err != nil {
				e.log.Error("taskengine: batch sub-request failed to enqueue", "batch", batchID, "index", i, "error", err)
				acc.complete(i, BatchResult{Index: i, Err: err})
				return nil
			}
			select {
			case r := <-replyCh:
				acc.complete(i, r)
			case <-gctx.Done():
				acc.complete(i, BatchResult{Index: i, Err: gctx.Err()})
			}
			return nil
		})
	}
	_ = g.Wait() // sub-request errors are carried positionally, not propagated as a group error

	return acc.results, nil
}
