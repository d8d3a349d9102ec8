package middleware_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loomworks/tether/id"
	"github.com/loomworks/tether/job"
	"github.com/loomworks/tether/middleware"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestJob() *job.Job {
	return &job.Job{
		ID:      id.NewJobID(),
		Name:    "sum-of-squares",
		Version: "0.1.0",
		Label:   "sum-of-squares",
	}
}

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		order = append(order, "mw1-before")
		err := next(ctx)
		order = append(order, "mw1-after")
		return err
	}

	mw2 := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		order = append(order, "mw2-before")
		err := next(ctx)
		order = append(order, "mw2-after")
		return err
	}

	chain := middleware.Chain(mw1, mw2)
	handler := func(_ context.Context) error {
		order = append(order, "handler")
		return nil
	}

	err := chain(context.Background(), newTestJob(), handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("call %d: expected %q, got %q", i, want, order[i])
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false
	err := chain(context.Background(), newTestJob(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler was not called")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	chain := middleware.Chain(
		func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
			return next(ctx)
		},
	)
	err := chain(context.Background(), newTestJob(), func(_ context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestRecover_ConvertsPanicToError(t *testing.T) {
	m := middleware.Recover(discardLogger())

	err := m(context.Background(), newTestJob(), func(_ context.Context) error {
		panic("kaboom")
	})
	if err == nil {
		t.Fatal("expected error from panic, got nil")
	}
}

func TestRecover_PassesThroughSuccess(t *testing.T) {
	m := middleware.Recover(discardLogger())

	err := m(context.Background(), newTestJob(), func(_ context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTimeout_CancelsContext(t *testing.T) {
	m := middleware.Timeout(discardLogger())
	j := newTestJob()
	j.Timeout = 10 * time.Millisecond

	err := m(context.Background(), j, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestTimeout_NoDeadlineWhenZero(t *testing.T) {
	m := middleware.Timeout(discardLogger())

	err := m(context.Background(), newTestJob(), func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Error("expected no deadline on context")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLogging_PropagatesError(t *testing.T) {
	m := middleware.Logging(discardLogger())
	boom := errors.New("boom")

	err := m(context.Background(), newTestJob(), func(_ context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
