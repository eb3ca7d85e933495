package rpc

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

// EthClient defines the interface for the EVM RPC operations the holder ledger needs.
// This abstraction allows for easier testing and alternative implementations.
type EthClient interface {
	// Close closes the RPC client connection.
	Close()

	// CallContract executes a read only call. A nil block number reads the latest state.
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)

	// GetLogs retrieves logs matching the given filter query.
	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)

	// BlockNumber returns the latest block number known to the provider.
	BlockNumber(ctx context.Context) (uint64, error)
}

// ExecOptions tunes a single Execute call. Zero values fall back to the executor defaults.
type ExecOptions struct {
	// Retries is the number of retries after the first attempt
	Retries int

	// NoRetry disables retries regardless of Retries
	NoRetry bool

	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration

	// NoBackoff keeps the retry delay constant instead of doubling it
	NoBackoff bool

	// Timeout is the hard timeout of every attempt
	Timeout time.Duration

	// Cost is the number of budget units the call consumes, 1 when unset
	Cost int
}

// CallExecutor runs remote calls under the shared retry, timeout, budget and breaker policy.
type CallExecutor interface {
	Execute(ctx context.Context, operation string, opts ExecOptions, fn func(ctx context.Context) error) error
}

// Call runs fn through exec and returns the value of the attempt that succeeded.
// An attempt abandoned by the executor never publishes its value, even when it
// completes after a later attempt or after Call has returned.
func Call[T any](ctx context.Context, exec CallExecutor, operation string, opts ExecOptions,
	fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		mu     sync.Mutex
		result T
	)

	err := exec.Execute(ctx, operation, opts, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()

		// the attempt context ends before the executor starts another attempt or returns
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		result = v

		return nil
	})

	mu.Lock()
	defer mu.Unlock()

	if err != nil {
		var zero T
		return zero, err
	}

	return result, nil
}
