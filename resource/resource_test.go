package resource_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/loomworks/tether"
	"github.com/loomworks/tether/codec"
	"github.com/loomworks/tether/conn"
	"github.com/loomworks/tether/feed"
	feedmem "github.com/loomworks/tether/feed/memory"
	"github.com/loomworks/tether/handler"
	"github.com/loomworks/tether/job"
	"github.com/loomworks/tether/manager"
	"github.com/loomworks/tether/resource"
	"github.com/loomworks/tether/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig() tether.Config {
	cfg := tether.DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.IterateInterval = time.Millisecond
	return cfg
}

func newRegistry(t *testing.T) *job.Registry {
	t.Helper()
	r := job.NewRegistry(codec.JSON{})
	job.RegisterDefinition(r, job.NewDefinition("square", "0.1.0",
		func(_ context.Context, x int) (int, error) {
			return x * x, nil
		}))
	return r
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRun_ServesAnnouncedHandler(t *testing.T) {
	f := feedmem.New()
	reg := newRegistry(t)
	h := handler.NewDefault(handler.WithDefaultLogger(discardLogger()))
	mgr := manager.New(reg, h, manager.WithLogger(discardLogger()))

	r := resource.New(f, mgr,
		resource.WithConfig(fastConfig()),
		resource.WithLogger(discardLogger()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := r.Run(ctx); err != nil {
			t.Errorf("run: %v", err)
		}
	}()
	defer wg.Wait()
	defer cancel()

	if err := resource.Announce(ctx, f, "jh-1", time.Now()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return r.Connections() == 1 }, "connection spawn")

	args, err := reg.Codec().Marshal(6)
	if err != nil {
		t.Fatal(err)
	}
	spec := &wire.JobSpec{Name: "square", Version: "0.1.0", Args: args}
	data, err := wire.Encode(wire.NewAddJob("w1", spec, time.Now()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Append(ctx, feed.InboundSubfeed("jh-1"), data); err != nil {
		t.Fatal(err)
	}

	var final *wire.Message
	waitFor(t, func() bool {
		sub := feed.OutboundSubfeed("jh-1")
		n, lerr := f.Len(context.Background(), sub)
		if lerr != nil || n == 0 {
			return false
		}
		raw, aerr := f.At(context.Background(), sub, n-1)
		if aerr != nil {
			return false
		}
		m, derr := wire.Decode(raw)
		if derr != nil {
			return false
		}
		if m.Type != wire.MessageJobFinished {
			return false
		}
		final = m
		return true
	}, "JOB_FINISHED event")

	var result int
	if err := reg.Codec().Unmarshal(final.Result, &result); err != nil {
		t.Fatal(err)
	}
	if result != 36 {
		t.Fatalf("expected 36, got %d", result)
	}
}

func TestRun_DuplicateAnnouncementIgnored(t *testing.T) {
	f := feedmem.New()
	mgr := manager.New(newRegistry(t),
		handler.NewDefault(handler.WithDefaultLogger(discardLogger())),
		manager.WithLogger(discardLogger()))

	r := resource.New(f, mgr,
		resource.WithConfig(fastConfig()),
		resource.WithLogger(discardLogger()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = r.Run(ctx)
	}()
	defer wg.Wait()
	defer cancel()

	if err := resource.Announce(ctx, f, "jh-1", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := resource.Announce(ctx, f, "jh-1", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := resource.Announce(ctx, f, "jh-2", time.Now()); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return r.Connections() == 2 }, "two connections")

	// Give the watcher a moment to process any stragglers.
	time.Sleep(20 * time.Millisecond)
	if n := r.Connections(); n != 2 {
		t.Fatalf("expected 2 connections, got %d", n)
	}
}

func TestRun_ReapsDeadConnections(t *testing.T) {
	f := feedmem.New()
	mgr := manager.New(newRegistry(t),
		handler.NewDefault(handler.WithDefaultLogger(discardLogger())),
		manager.WithLogger(discardLogger()))

	var mu sync.Mutex
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	r := resource.New(f, mgr,
		resource.WithConfig(fastConfig()),
		resource.WithLogger(discardLogger()),
		resource.WithConnOptions(conn.WithClock(clock)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = r.Run(ctx)
	}()
	defer wg.Wait()
	defer cancel()

	if err := resource.Announce(ctx, f, "jh-1", time.Now()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return r.Connections() == 1 }, "connection spawn")

	// Silence past the keep-alive threshold.
	mu.Lock()
	now = now.Add(tether.DefaultKeepAliveThreshold + time.Second)
	mu.Unlock()

	waitFor(t, func() bool { return r.Connections() == 0 }, "reap")
}

func TestRun_StopsCleanlyOnCancel(t *testing.T) {
	f := feedmem.New()
	mgr := manager.New(newRegistry(t),
		handler.NewDefault(handler.WithDefaultLogger(discardLogger())),
		manager.WithLogger(discardLogger()))

	r := resource.New(f, mgr,
		resource.WithConfig(fastConfig()),
		resource.WithLogger(discardLogger()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	if err := resource.Announce(ctx, f, "jh-1", time.Now()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return r.Connections() == 1 }, "connection spawn")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancel, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
