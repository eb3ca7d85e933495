package rpc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goran-ethernal/HolderLedger/internal/common"
	"github.com/goran-ethernal/HolderLedger/pkg/config"
	pkgrpc "github.com/goran-ethernal/HolderLedger/pkg/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T, mutate func(cfg *config.ChainConfig)) *Executor {
	t.Helper()

	cfg := config.ChainConfig{
		RPCURL:      "http://localhost:8545",
		CallTimeout: common.NewDuration(time.Second),
		Retry: &config.RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    common.NewDuration(5 * time.Millisecond),
			MaxBackoff:        common.NewDuration(20 * time.Millisecond),
			BackoffMultiplier: 2,
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	return NewExecutor(cfg, nil)
}

func breakerOpen(e *Executor) bool {
	e.breaker.mu.Lock()
	defer e.breaker.mu.Unlock()

	return e.breaker.now().Before(e.breaker.openUntil)
}

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestExecutor_Success(t *testing.T) {
	exec := newTestExecutor(t, nil)

	calls := 0
	err := exec.Execute(context.Background(), "eth_call", pkgrpc.ExecOptions{}, func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestExecutor_TimeoutIsDistinctFromUpstreamError(t *testing.T) {
	exec := newTestExecutor(t, nil)
	opts := pkgrpc.ExecOptions{NoRetry: true, Timeout: 20 * time.Millisecond}

	err := exec.Execute(context.Background(), "eth_call", opts, blockUntilDone)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCallTimeout)
	require.NotErrorIs(t, err, context.DeadlineExceeded)

	upstream := errors.New("execution reverted")
	err = exec.Execute(context.Background(), "eth_call", opts, func(context.Context) error {
		return upstream
	})
	require.ErrorIs(t, err, upstream)
	require.NotErrorIs(t, err, ErrCallTimeout)
}

func TestExecutor_TimeoutWhenCallIgnoresContext(t *testing.T) {
	exec := newTestExecutor(t, nil)

	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	err := exec.Execute(context.Background(), "slow", pkgrpc.ExecOptions{NoRetry: true, Timeout: 20 * time.Millisecond},
		func(context.Context) error {
			<-release
			return nil
		})

	require.ErrorIs(t, err, ErrCallTimeout)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestExecutor_Retries(t *testing.T) {
	tests := []struct {
		name          string
		opts          pkgrpc.ExecOptions
		err           error
		expectedCalls int
	}{
		{
			name:          "default attempts on transient error",
			err:           errors.New("503 service unavailable"),
			expectedCalls: 3,
		},
		{
			name:          "explicit retries",
			opts:          pkgrpc.ExecOptions{Retries: 4, BaseDelay: time.Millisecond},
			err:           errors.New("429 too many requests"),
			expectedCalls: 5,
		},
		{
			name:          "no retry",
			opts:          pkgrpc.ExecOptions{NoRetry: true},
			err:           errors.New("503 service unavailable"),
			expectedCalls: 1,
		},
		{
			name:          "non-retryable error fails immediately",
			err:           errors.New("execution reverted"),
			expectedCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newTestExecutor(t, nil)

			calls := 0
			err := exec.Execute(context.Background(), "eth_getLogs", tt.opts, func(context.Context) error {
				calls++
				return tt.err
			})

			require.ErrorIs(t, err, tt.err)
			require.Equal(t, tt.expectedCalls, calls)
		})
	}
}

func TestExecutor_RetriesTimeouts(t *testing.T) {
	exec := newTestExecutor(t, nil)

	calls := 0
	err := exec.Execute(context.Background(), "eth_call", pkgrpc.ExecOptions{Timeout: 10 * time.Millisecond},
		func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return blockUntilDone(ctx)
			}
			return nil
		})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestExecutor_BreakerPausesAfterConsecutiveTimeouts(t *testing.T) {
	exec := newTestExecutor(t, func(cfg *config.ChainConfig) {
		cfg.CircuitBreaker = &config.CircuitBreakerConfig{
			TimeoutThreshold: 2,
			Cooldown:         common.NewDuration(200 * time.Millisecond),
		}
	})
	opts := pkgrpc.ExecOptions{NoRetry: true, Timeout: 10 * time.Millisecond}

	for range 2 {
		err := exec.Execute(context.Background(), "eth_call", opts, blockUntilDone)
		require.ErrorIs(t, err, ErrCallTimeout)
	}
	require.True(t, breakerOpen(exec))

	start := time.Now()
	err := exec.Execute(context.Background(), "eth_call", opts, func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond, "call should wait out the cool-down")
	require.False(t, breakerOpen(exec))
}

func TestExecutor_BreakerResetBySuccess(t *testing.T) {
	exec := newTestExecutor(t, func(cfg *config.ChainConfig) {
		cfg.CircuitBreaker = &config.CircuitBreakerConfig{
			TimeoutThreshold: 2,
			Cooldown:         common.NewDuration(time.Minute),
		}
	})
	opts := pkgrpc.ExecOptions{NoRetry: true, Timeout: 10 * time.Millisecond}
	ok := func(context.Context) error { return nil }

	require.ErrorIs(t, exec.Execute(context.Background(), "eth_call", opts, blockUntilDone), ErrCallTimeout)
	require.NoError(t, exec.Execute(context.Background(), "eth_call", opts, ok))
	require.ErrorIs(t, exec.Execute(context.Background(), "eth_call", opts, blockUntilDone), ErrCallTimeout)

	require.False(t, breakerOpen(exec))
}

func TestExecutor_BreakerWaitHonoursContext(t *testing.T) {
	exec := newTestExecutor(t, func(cfg *config.ChainConfig) {
		cfg.CircuitBreaker = &config.CircuitBreakerConfig{
			TimeoutThreshold: 1,
			Cooldown:         common.NewDuration(time.Minute),
		}
	})
	opts := pkgrpc.ExecOptions{NoRetry: true, Timeout: 10 * time.Millisecond}

	require.ErrorIs(t, exec.Execute(context.Background(), "eth_call", opts, blockUntilDone), ErrCallTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := exec.Execute(ctx, "eth_call", opts, func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrBreakerOpen)
}

func TestExecutor_Budget(t *testing.T) {
	exec := newTestExecutor(t, func(cfg *config.ChainConfig) {
		cfg.RateLimit = &config.RateLimitConfig{RequestsPerSecond: 10}
	})
	ok := func(context.Context) error { return nil }

	// drains the full burst, clamped from 100
	require.NoError(t, exec.Execute(context.Background(), "getOwnersForContract", pkgrpc.ExecOptions{Cost: 100}, ok))

	start := time.Now()
	require.NoError(t, exec.Execute(context.Background(), "eth_call", pkgrpc.ExecOptions{Cost: 5}, ok))
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond, "second call should wait for budget refill")
}

func TestExecutor_BudgetWaitHonoursContext(t *testing.T) {
	exec := newTestExecutor(t, func(cfg *config.ChainConfig) {
		cfg.RateLimit = &config.RateLimitConfig{RequestsPerSecond: 1}
	})
	ok := func(context.Context) error { return nil }

	require.NoError(t, exec.Execute(context.Background(), "eth_call", pkgrpc.ExecOptions{}, ok))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := exec.Execute(ctx, "eth_call", pkgrpc.ExecOptions{NoRetry: true}, ok)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecutor_ConcurrentCallers(t *testing.T) {
	exec := newTestExecutor(t, func(cfg *config.ChainConfig) {
		cfg.RateLimit = &config.RateLimitConfig{RequestsPerSecond: 1000}
		cfg.CircuitBreaker = &config.CircuitBreakerConfig{
			TimeoutThreshold: 5,
			Cooldown:         common.NewDuration(time.Millisecond),
		}
	})

	var (
		wg    sync.WaitGroup
		calls atomic.Int64
	)

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := exec.Execute(context.Background(), "eth_call", pkgrpc.ExecOptions{}, func(context.Context) error {
				calls.Add(1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()
	require.Equal(t, int64(50), calls.Load())
}

func TestCall_AbandonedAttemptNeverPublishes(t *testing.T) {
	exec := newTestExecutor(t, nil)
	opts := pkgrpc.ExecOptions{Retries: 1, Timeout: 20 * time.Millisecond, NoBackoff: true, BaseDelay: time.Millisecond}

	type page struct{ number int }

	var attempts atomic.Int32
	straggled := make(chan struct{})

	got, err := pkgrpc.Call(context.Background(), exec, "owners_page", opts, func(ctx context.Context) (*page, error) {
		if attempts.Add(1) == 1 {
			defer close(straggled)
			// ignores its deadline and comes back late with nothing
			time.Sleep(60 * time.Millisecond)
			return nil, nil
		}
		return &page{number: 42}, nil
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 42, got.number)

	<-straggled
	require.Equal(t, int32(2), attempts.Load())
	require.Equal(t, 42, got.number)
}

func TestCall_ReturnsZeroValueOnError(t *testing.T) {
	exec := newTestExecutor(t, nil)
	upstream := errors.New("execution reverted")

	got, err := pkgrpc.Call(context.Background(), exec, "eth_call", pkgrpc.ExecOptions{NoRetry: true},
		func(context.Context) ([]byte, error) {
			return []byte{0x01}, upstream
		})
	require.ErrorIs(t, err, upstream)
	require.Nil(t, got)
}

func TestCall_ConcurrentCallersGetTheirOwnValues(t *testing.T) {
	exec := newTestExecutor(t, nil)
	opts := pkgrpc.ExecOptions{Retries: 2, Timeout: 15 * time.Millisecond, BaseDelay: time.Millisecond}

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			var attempts atomic.Int32
			got, err := pkgrpc.Call(context.Background(), exec, "eth_blockNumber", opts,
				func(ctx context.Context) (uint64, error) {
					if attempts.Add(1) == 1 && i%2 == 0 {
						time.Sleep(40 * time.Millisecond)
						return 0, nil
					}
					return uint64(1000 + i), nil
				})
			assert.NoError(t, err)
			assert.Equal(t, uint64(1000+i), got)
		}()
	}
	wg.Wait()
}
