package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	pkgrpc "github.com/goran-ethernal/HolderLedger/pkg/rpc"
	"golang.org/x/sync/errgroup"
)

const opMulticall = "multicall3_aggregate3"

const multicall3ABI = `[{"inputs":[{"components":[` +
	`{"internalType":"address","name":"target","type":"address"},` +
	`{"internalType":"bool","name":"allowFailure","type":"bool"},` +
	`{"internalType":"bytes","name":"callData","type":"bytes"}],` +
	`"internalType":"struct Multicall3.Call3[]","name":"calls","type":"tuple[]"}],` +
	`"name":"aggregate3","outputs":[{"components":[` +
	`{"internalType":"bool","name":"success","type":"bool"},` +
	`{"internalType":"bytes","name":"returnData","type":"bytes"}],` +
	`"internalType":"struct Multicall3.Result[]","name":"returnData","type":"tuple[]"}],` +
	`"stateMutability":"payable","type":"function"}]`

var (
	aggregate3 = mustAggregate3()

	// ErrCallReverted is reported for a sub call that the target contract rejected.
	ErrCallReverted = errors.New("call reverted")
)

func mustAggregate3() abi.Method {
	parsed, err := abi.JSON(strings.NewReader(multicall3ABI))
	if err != nil {
		panic(fmt.Sprintf("invalid multicall3 ABI: %v", err))
	}

	return parsed.Methods["aggregate3"]
}

// call3 mirrors Multicall3.Call3.
type call3 struct {
	Target       ethcommon.Address
	AllowFailure bool
	CallData     []byte
}

// result3 mirrors Multicall3.Result.
type result3 struct {
	Success    bool
	ReturnData []byte
}

// Call is a single view call in a multicall.
type Call struct {
	Target ethcommon.Address
	Method abi.Method
	Args   []any
}

// Result is the outcome of a single Call. Values holds the decoded outputs when Success is set.
type Result struct {
	Success bool
	Values  []any
	Err     error
}

// Multicall executes calls through Multicall3 aggregate3 with failures allowed.
// Calls are split into batches that run on a bounded pool. A failing call or a
// failing batch marks the affected results failed without aborting the others.
// The returned slice is aligned with calls. An error is only returned when ctx ends.
func (r *Reader) Multicall(ctx context.Context, calls []Call) ([]Result, error) {
	results := make([]Result, len(calls))
	if len(calls) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for start := 0; start < len(calls); start += r.batchSize {
		end := min(start+r.batchSize, len(calls))

		g.Go(func() error {
			r.runBatch(gctx, calls[start:end], results[start:end])
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("multicall aborted: %w", err)
	}

	return results, nil
}

// runBatch executes one aggregate3 call and fills results in place.
func (r *Reader) runBatch(ctx context.Context, calls []Call, results []Result) {
	packed := make([]call3, 0, len(calls))
	index := make([]int, 0, len(calls))

	for i, c := range calls {
		data, err := packCall(c.Method, c.Args...)
		if err != nil {
			results[i] = Result{Err: err}
			continue
		}

		packed = append(packed, call3{Target: c.Target, AllowFailure: true, CallData: data})
		index = append(index, i)
	}

	if len(packed) == 0 {
		return
	}

	input, err := aggregate3.Inputs.Pack(packed)
	if err != nil {
		failAll(results, index, fmt.Errorf("failed to encode multicall batch: %w", err))
		return
	}
	input = append(append([]byte{}, aggregate3.ID...), input...)

	out, err := pkgrpc.Call(ctx, r.exec, opMulticall, pkgrpc.ExecOptions{Cost: 1 + len(packed)/10},
		func(ctx context.Context) ([]byte, error) {
			return r.client.CallContract(ctx, ethereum.CallMsg{To: &r.multicall, Data: input}, nil)
		})
	if err != nil {
		r.log.Warnw("multicall batch failed", "calls", len(packed), "error", err)
		failAll(results, index, err)
		return
	}

	unpacked, err := aggregate3.Outputs.Unpack(out)
	if err != nil {
		failAll(results, index, fmt.Errorf("failed to decode multicall batch: %w", err))
		return
	}
	if len(unpacked) != 1 {
		failAll(results, index, fmt.Errorf("unexpected multicall output count %d", len(unpacked)))
		return
	}

	returned := *abi.ConvertType(unpacked[0], new([]result3)).(*[]result3)
	if len(returned) != len(packed) {
		failAll(results, index, fmt.Errorf("multicall returned %d results for %d calls", len(returned), len(packed)))
		return
	}

	for j, res := range returned {
		i := index[j]
		method := calls[i].Method

		if !res.Success {
			results[i] = Result{Err: fmt.Errorf("%s: %w", method.Name, ErrCallReverted)}
			continue
		}

		values, err := method.Outputs.Unpack(res.ReturnData)
		if err != nil {
			results[i] = Result{Err: fmt.Errorf("failed to decode %s result: %w", method.Name, err)}
			continue
		}

		results[i] = Result{Success: true, Values: values}
	}
}

func failAll(results []Result, index []int, err error) {
	for _, i := range index {
		results[i] = Result{Err: err}
	}
}
