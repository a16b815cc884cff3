package taskengine

import (
	"context"
	"fmt"
	"testing"
)

func TestBatchPreservesPositionalOrdering(t *testing.T) {
	e := newTestEngine(t)

	ops := make([]BatchOp, 5)
	for i := range ops {
		i := i
		ops[i] = BatchOp{Run: func(ctx context.Context) (any, error) {
			return i * 10, nil
		}}
	}

	results, err := e.Batch(context.Background(), ops)
	if err != nil {
		t.Fatalf("Batch() error = %v", err)
	}
	if len(results) != len(ops) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(ops))
	}
	for i, r := range results {
		if r.Index != i || r.Reply != i*10 {
			t.Errorf("results[%d] = %+v, want Index=%d Reply=%d", i, r, i, i*10)
		}
	}
}

func TestBatchCarriesPerOpErrorsWithoutFailingOthers(t *testing.T) {
	e := newTestEngine(t)

	ops := []BatchOp{
		{Run: func(ctx context.Context) (any, error) { return "ok", nil }},
		{Run: func(ctx context.Context) (any, error) { return nil, fmt.Errorf("boom") }},
	}

	results, err := e.Batch(context.Background(), ops)
	if err != nil {
		t.Fatalf("Batch() error = %v", err)
	}
	if results[0].Err != nil || results[0].Reply != "ok" {
		t.Errorf("results[0] = %+v, want ok", results[0])
	}
	if results[1].Err == nil {
		t.Error("results[1].Err = nil, want the sub-request's error")
	}
}
