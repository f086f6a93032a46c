package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bituzin/stacksend/internal/metrics"
)

// ErrorSink receives failures of background jobs.
type ErrorSink func(job string, err error)

// Runner executes work detached from the request that scheduled it. Jobs get
// their own deadline and report failures to the sink; Shutdown waits for them.
type Runner struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	closed  bool
	timeout time.Duration
	sink    ErrorSink
}

func NewRunner(timeout time.Duration, sink ErrorSink) *Runner {
	if timeout <= 0 {
		timeout = time.Minute
	}
	if sink == nil {
		sink = func(string, error) {}
	}
	return &Runner{timeout: timeout, sink: sink}
}

// LogSink logs and counts background failures per job name.
func LogSink(logger *zap.Logger) ErrorSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(job string, err error) {
		metrics.BackgroundJobErrors.WithLabelValues(job).Inc()
		logger.Error("background job failed", zap.String("job", job), zap.Error(err))
	}
}

// Go schedules fn. The parent context only contributes values; its
// cancellation does not reach fn. It returns false once Shutdown was called.
func (r *Runner) Go(parent context.Context, job string, fn func(context.Context) error) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), r.timeout)
		defer cancel()

		if err := r.run(ctx, fn); err != nil {
			r.sink(job, err)
		}
	}()
	return true
}

func (r *Runner) run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx)
}

// Shutdown stops accepting jobs and waits for running ones or ctx.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("background jobs still running"), ctx.Err())
	}
}
