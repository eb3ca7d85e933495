package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/HolderLedger/internal/logger"
	pkgrpc "github.com/goran-ethernal/HolderLedger/pkg/rpc"
)

const (
	opCall        = "eth_call"
	opGetLogs     = "eth_getLogs"
	opBlockNumber = "eth_blockNumber"
)

// Reader is the read only view of the chain used by the synchronizer.
// Every remote call goes through the executor.
type Reader struct {
	client      pkgrpc.EthClient
	exec        pkgrpc.CallExecutor
	multicall   ethcommon.Address
	batchSize   int
	concurrency int
	log         *logger.Logger
}

// Options configures a Reader.
type Options struct {
	MulticallAddress string
	BatchSize        int
	Concurrency      int
}

// NewReader creates a chain reader on top of an RPC client and a call executor.
func NewReader(client pkgrpc.EthClient, exec pkgrpc.CallExecutor, opts Options, log *logger.Logger) *Reader {
	if log == nil {
		log = logger.NewNopLogger()
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	return &Reader{
		client:      client,
		exec:        exec,
		multicall:   ethcommon.HexToAddress(opts.MulticallAddress),
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
		log:         log,
	}
}

// ReadView calls a view function at the latest block and returns its decoded outputs.
func (r *Reader) ReadView(ctx context.Context, contract ethcommon.Address, method abi.Method, args ...any) ([]any, error) {
	data, err := packCall(method, args...)
	if err != nil {
		return nil, err
	}

	out, err := pkgrpc.Call(ctx, r.exec, opCall, pkgrpc.ExecOptions{}, func(ctx context.Context) ([]byte, error) {
		return r.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on %s: %w", method.Name, contract.Hex(), err)
	}

	values, err := method.Outputs.Unpack(out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", method.Name, err)
	}

	return values, nil
}

// GetLogs returns the logs emitted by contract with the given first topic in [from, to].
func (r *Reader) GetLogs(ctx context.Context, contract ethcommon.Address, topic ethcommon.Hash,
	from, to uint64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []ethcommon.Address{contract},
		Topics:    [][]ethcommon.Hash{{topic}},
	}

	logs, err := pkgrpc.Call(ctx, r.exec, opGetLogs, pkgrpc.ExecOptions{}, func(ctx context.Context) ([]types.Log, error) {
		return r.client.GetLogs(ctx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get logs for blocks %d-%d: %w", from, to, err)
	}

	return logs, nil
}

// LatestBlock returns the latest block number reported by the provider.
func (r *Reader) LatestBlock(ctx context.Context) (uint64, error) {
	block, err := pkgrpc.Call(ctx, r.exec, opBlockNumber, pkgrpc.ExecOptions{}, r.client.BlockNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}

	return block, nil
}

// packCall encodes the selector and arguments of a method call.
func packCall(method abi.Method, args ...any) ([]byte, error) {
	packed, err := method.Inputs.Pack(args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s arguments: %w", method.Name, err)
	}

	return append(append([]byte{}, method.ID...), packed...), nil
}
