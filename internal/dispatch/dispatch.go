// Package dispatch bounds the number of outbound host calls in flight
// across the whole process at once, using a github.com/panjf2000/ants/v2
// worker pool rather than letting every request's "call" node fire an
// unbounded goroutine at the host. The engine itself drives exactly one
// request at a time with no internal concurrency (per spec section 5); this
// pool bounds concurrency *across* the many requests a host process is
// simultaneously driving, not within one.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/Kong/datakit/internal/logx"
)

// DefaultSize is the worker pool capacity used until SetSize is called.
const DefaultSize = 256

var (
	mu   sync.RWMutex
	pool *ants.Pool
)

func init() {
	p, err := ants.NewPool(DefaultSize, ants.WithNonblocking(false))
	if err != nil {
		panic(fmt.Sprintf("dispatch: failed creating default pool: %s", err))
	}
	pool = p
}

// SetSize replaces the process-wide dispatch pool with one of the given
// capacity, releasing the previous pool. It is meant to be called once at
// startup (e.g. from cmd/datakit's main) before any request traffic flows;
// it is not safe to call concurrently with Do.
func SetSize(n int) error {
	p, err := ants.NewPool(n, ants.WithNonblocking(false))
	if err != nil {
		return fmt.Errorf("dispatch: resizing pool: %w", err)
	}
	mu.Lock()
	old := pool
	pool = p
	mu.Unlock()
	old.Release()
	return nil
}

// Do runs fn on the shared worker pool and blocks the caller until fn
// returns or ctx is cancelled, whichever comes first; submitting itself
// waits for a free worker slot. Submitting fn never spawns a bare
// goroutine: once the pool is saturated, callers queue for a slot exactly
// like any other ants consumer.
func Do(ctx context.Context, fn func() error) error {
	mu.RLock()
	p := pool
	mu.RUnlock()

	result := make(chan error, 1)
	if err := p.Submit(func() {
		result <- fn()
	}); err != nil {
		logx.L().Warn("dispatch: failed submitting to worker pool", zap.Error(err))
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
