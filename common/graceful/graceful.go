package graceful

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Laisky/zap"

	"github.com/playletworks/drama-api/common/logger"
)

// Lifecycle manager for graceful shutdown and request draining.

var (
	inFlightRequests int64

	wg sync.WaitGroup
)

// BeginRequest increments the in-flight request counter and returns a function
// to decrement it. Use with `defer` at the top of request handlers/middlewares.
func BeginRequest() func() {
	atomic.AddInt64(&inFlightRequests, 1)
	return func() {
		atomic.AddInt64(&inFlightRequests, -1)
	}
}

// GoCritical runs fn in a tracked goroutine. Use for post-response critical
// tasks like quota debits and refunds that must complete before shutdown.
func GoCritical(ctx context.Context, name string, fn func(context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		start := time.Now()
		logger.Logger.Debug("critical task start", zap.String("name", name))
		fn(ctx)
		logger.Logger.Debug("critical task done", zap.String("name", name), zap.Duration("elapsed", time.Since(start)))
	}()
}

// Drain waits for tracked critical tasks and in-flight requests to finish,
// bounded by the ctx deadline.
func Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	tasksDone := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			tasksDone = true
			done = nil
		case <-ticker.C:
		}
		if tasksDone && atomic.LoadInt64(&inFlightRequests) == 0 {
			return nil
		}
	}
}
