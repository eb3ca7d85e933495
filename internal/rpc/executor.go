package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goran-ethernal/HolderLedger/internal/logger"
	"github.com/goran-ethernal/HolderLedger/pkg/config"
	pkgrpc "github.com/goran-ethernal/HolderLedger/pkg/rpc"
	"golang.org/x/time/rate"
)

// Compile-time check to ensure Executor implements pkgrpc.CallExecutor interface.
var _ pkgrpc.CallExecutor = (*Executor)(nil)

// Executor runs every remote call with retries, a per-attempt timeout,
// a shared request budget and a consecutive timeout breaker.
type Executor struct {
	retry   retryPolicy
	timeout time.Duration
	limiter *rate.Limiter
	breaker *timeoutBreaker
	log     *logger.Logger
}

// NewExecutor creates an Executor from the chain configuration.
// The configuration is expected to have its defaults applied.
func NewExecutor(cfg config.ChainConfig, log *logger.Logger) *Executor {
	if log == nil {
		log = logger.NewNopLogger()
	}

	e := &Executor{
		retry:   policyFromConfig(cfg.Retry),
		timeout: cfg.CallTimeout.Duration,
		log:     log,
	}

	if cfg.RateLimit != nil && cfg.RateLimit.RequestsPerSecond > 0 {
		budget := cfg.RateLimit.RequestsPerSecond
		e.limiter = rate.NewLimiter(rate.Limit(budget), budget)
	}

	if cfg.CircuitBreaker != nil && cfg.CircuitBreaker.TimeoutThreshold > 0 {
		e.breaker = newTimeoutBreaker(cfg.CircuitBreaker.TimeoutThreshold, cfg.CircuitBreaker.Cooldown.Duration)
	}

	return e
}

// Execute runs fn under the executor policy. opts overrides the defaults for this call only.
func (e *Executor) Execute(ctx context.Context, operation string, opts pkgrpc.ExecOptions,
	fn func(ctx context.Context) error) error {
	policy := e.policyFor(opts)

	timeout := e.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	cost := opts.Cost
	if cost <= 0 {
		cost = 1
	}

	attempt := func(ctx context.Context) error {
		if err := e.breaker.wait(ctx); err != nil {
			return err
		}
		if err := e.reserve(ctx, cost); err != nil {
			return err
		}

		RPCMethodInc(operation)
		start := time.Now()
		err := e.runWithTimeout(ctx, timeout, fn)
		RPCMethodDuration(operation, time.Since(start))

		switch {
		case err == nil:
			e.breaker.recordSuccess()
		case errors.Is(err, ErrCallTimeout):
			if e.breaker.recordTimeout() {
				BreakerTrips.Inc()
				e.log.Warnw("timeout breaker tripped, pausing remote calls",
					"operation", operation,
					"cooldown", e.breaker.cooldown,
				)
			}
		}

		if err != nil {
			RPCMethodError(operation, errorType(err))
		}

		return err
	}

	err := retryWithBackoff(ctx, policy, operation, attempt)
	if err != nil {
		e.log.Debugw("remote call failed", "operation", operation, "error", err)
	}

	return err
}

// policyFor merges per-call options into the default retry policy.
func (e *Executor) policyFor(opts pkgrpc.ExecOptions) retryPolicy {
	p := e.retry

	switch {
	case opts.NoRetry:
		p.MaxAttempts = 1
	case opts.Retries > 0:
		p.MaxAttempts = opts.Retries + 1
	}

	if opts.BaseDelay > 0 {
		p.InitialBackoff = opts.BaseDelay
	}

	if opts.NoBackoff {
		p.Multiplier = 1
	}

	return p
}

// runWithTimeout runs fn with a hard timeout. An attempt cut short by the timeout
// yields ErrCallTimeout rather than the error fn returned.
func (e *Executor) runWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx)
	}()

	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %v", ErrCallTimeout, timeout)
		}
		return err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w after %v", ErrCallTimeout, timeout)
	}
}

// reserve blocks until cost budget units are available. Costs above the burst are clamped.
func (e *Executor) reserve(ctx context.Context, cost int) error {
	if e.limiter == nil {
		return nil
	}

	if burst := e.limiter.Burst(); cost > burst {
		cost = burst
	}

	r := e.limiter.ReserveN(time.Now(), cost)
	if !r.OK() {
		return fmt.Errorf("request budget cannot cover cost %d", cost)
	}

	delay := r.Delay()
	if delay <= 0 {
		return nil
	}

	BudgetWait.Observe(delay.Seconds())
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// timeoutBreaker pauses every call for a cool-down once the number of
// consecutive timeouts reaches the threshold. A nil breaker is disabled.
type timeoutBreaker struct {
	mu          sync.Mutex
	threshold   int
	cooldown    time.Duration
	consecutive int
	openUntil   time.Time
	now         func() time.Time
}

func newTimeoutBreaker(threshold int, cooldown time.Duration) *timeoutBreaker {
	return &timeoutBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// wait blocks until the breaker is closed.
func (b *timeoutBreaker) wait(ctx context.Context) error {
	if b == nil {
		return nil
	}

	b.mu.Lock()
	remaining := b.openUntil.Sub(b.now())
	b.mu.Unlock()

	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrBreakerOpen, ctx.Err())
	}
}

// recordTimeout counts a timeout and reports whether it tripped the breaker.
func (b *timeoutBreaker) recordTimeout() bool {
	if b == nil {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutive++
	if b.consecutive < b.threshold {
		return false
	}

	b.consecutive = 0
	b.openUntil = b.now().Add(b.cooldown)

	return true
}

func (b *timeoutBreaker) recordSuccess() {
	if b == nil {
		return
	}

	b.mu.Lock()
	b.consecutive = 0
	b.mu.Unlock()
}
