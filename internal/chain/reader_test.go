package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/HolderLedger/internal/common"
	"github.com/goran-ethernal/HolderLedger/internal/rpc"
	"github.com/goran-ethernal/HolderLedger/pkg/config"
	"github.com/stretchr/testify/require"
)

var (
	testContract  = ethcommon.HexToAddress("0x7F090d101936008a26Bf1F0a22a5f92fC0BF46a9")
	testMulticall = ethcommon.HexToAddress(config.DefaultMulticallAddress)
)

// viewHandler answers a direct call to a contract method.
type viewHandler func(method abi.Method, args []any) ([]byte, error)

// fakeClient is an in-memory EthClient that dispatches calls by selector and
// unwraps aggregate3 batches sent to the multicall address.
type fakeClient struct {
	mu         sync.Mutex
	methods    map[string]abi.Method
	handlers   map[string]viewHandler
	logs       []types.Log
	latest     uint64
	batchErr   error
	batchCalls int
	queries    []ethereum.FilterQuery
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		methods:  make(map[string]abi.Method),
		handlers: make(map[string]viewHandler),
	}
}

func (f *fakeClient) handle(method abi.Method, h viewHandler) {
	f.methods[string(method.ID)] = method
	f.handlers[string(method.ID)] = h
}

func (f *fakeClient) Close() {}

func (f *fakeClient) BlockNumber(context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeClient) GetLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber >= q.FromBlock.Uint64() && l.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeClient) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if *msg.To == testMulticall && bytes.HasPrefix(msg.Data, aggregate3.ID) {
		return f.aggregate(msg.Data[4:])
	}

	return f.dispatch(msg.Data)
}

func (f *fakeClient) dispatch(data []byte) ([]byte, error) {
	method, ok := f.methods[string(data[:4])]
	if !ok {
		return nil, errors.New("execution reverted")
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}

	return f.handlers[string(data[:4])](method, args)
}

func (f *fakeClient) aggregate(input []byte) ([]byte, error) {
	f.mu.Lock()
	f.batchCalls++
	batchErr := f.batchErr
	f.mu.Unlock()

	if batchErr != nil {
		return nil, batchErr
	}

	unpacked, err := aggregate3.Inputs.Unpack(input)
	if err != nil {
		return nil, err
	}

	calls := *abi.ConvertType(unpacked[0], new([]call3)).(*[]call3)
	results := make([]result3, len(calls))
	for i, c := range calls {
		out, err := f.dispatch(c.CallData)
		results[i] = result3{Success: err == nil, ReturnData: out}
	}

	return aggregate3.Outputs.Pack(results)
}

func newTestExecutor() *rpc.Executor {
	return rpc.NewExecutor(config.ChainConfig{
		CallTimeout: common.NewDuration(time.Second),
		Retry: &config.RetryConfig{
			MaxAttempts:       2,
			InitialBackoff:    common.NewDuration(time.Millisecond),
			MaxBackoff:        common.NewDuration(5 * time.Millisecond),
			BackoffMultiplier: 2,
		},
	}, nil)
}

func newTestReader(client *fakeClient, batchSize int) *Reader {
	return NewReader(client, newTestExecutor(), Options{
		MulticallAddress: config.DefaultMulticallAddress,
		BatchSize:        batchSize,
		Concurrency:      2,
	}, nil)
}

func tierHandler(method abi.Method, args []any) ([]byte, error) {
	tokenID := args[0].(*big.Int).Uint64()
	if tokenID == 13 {
		return nil, errors.New("execution reverted: nonexistent token")
	}
	return method.Outputs.Pack(uint8(tokenID%6 + 1))
}

func TestReader_ReadView(t *testing.T) {
	client := newFakeClient()
	supply, err := ParseMethod("totalSupply() returns (uint256)")
	require.NoError(t, err)

	client.handle(supply, func(method abi.Method, _ []any) ([]byte, error) {
		return method.Outputs.Pack(big.NewInt(4242))
	})

	reader := newTestReader(client, 50)

	out, err := reader.ReadView(context.Background(), testContract, supply)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int64(4242), out[0].(*big.Int).Int64())

	unknown, err := ParseMethod("missing() returns (uint256)")
	require.NoError(t, err)

	_, err = reader.ReadView(context.Background(), testContract, unknown)
	require.ErrorContains(t, err, "execution reverted")
}

func TestReader_LatestBlockAndLogs(t *testing.T) {
	client := newFakeClient()
	client.latest = 1200
	client.logs = []types.Log{{BlockNumber: 10}, {BlockNumber: 250}, {BlockNumber: 900}}

	reader := newTestReader(client, 50)

	latest, err := reader.LatestBlock(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1200), latest)

	topic := ethcommon.HexToHash("0x01")
	logs, err := reader.GetLogs(context.Background(), testContract, topic, 200, 899)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, uint64(250), logs[0].BlockNumber)

	require.Len(t, client.queries, 1)
	require.Equal(t, []ethcommon.Address{testContract}, client.queries[0].Addresses)
	require.Equal(t, [][]ethcommon.Hash{{topic}}, client.queries[0].Topics)
}

func TestReader_Multicall(t *testing.T) {
	client := newFakeClient()
	tier, err := ParseMethod("getNftTier(uint256 tokenId) returns (uint8)")
	require.NoError(t, err)
	client.handle(tier, tierHandler)

	reader := newTestReader(client, 4)

	calls := make([]Call, 0, 10)
	for id := int64(10); id < 20; id++ {
		calls = append(calls, Call{Target: testContract, Method: tier, Args: []any{big.NewInt(id)}})
	}

	results, err := reader.Multicall(context.Background(), calls)
	require.NoError(t, err)
	require.Len(t, results, len(calls))
	require.Equal(t, 3, client.batchCalls)

	for i, res := range results {
		tokenID := uint64(10 + i)
		if tokenID == 13 {
			require.False(t, res.Success)
			require.ErrorIs(t, res.Err, ErrCallReverted)
			continue
		}

		require.True(t, res.Success, "token %d", tokenID)
		require.Equal(t, uint8(tokenID%6+1), res.Values[0].(uint8))
	}
}

func TestReader_MulticallBatchFailure(t *testing.T) {
	client := newFakeClient()
	client.batchErr = errors.New("execution reverted: out of gas")

	tier, err := ParseMethod("getNftTier(uint256) returns (uint8)")
	require.NoError(t, err)

	reader := newTestReader(client, 50)

	results, err := reader.Multicall(context.Background(), []Call{
		{Target: testContract, Method: tier, Args: []any{big.NewInt(1)}},
		{Target: testContract, Method: tier, Args: []any{big.NewInt(2)}},
	})
	require.NoError(t, err)

	for _, res := range results {
		require.False(t, res.Success)
		require.ErrorContains(t, res.Err, "out of gas")
	}
}

func TestReader_MulticallBadArguments(t *testing.T) {
	client := newFakeClient()
	tier, err := ParseMethod("getNftTier(uint256) returns (uint8)")
	require.NoError(t, err)
	client.handle(tier, tierHandler)

	reader := newTestReader(client, 50)

	results, err := reader.Multicall(context.Background(), []Call{
		{Target: testContract, Method: tier, Args: []any{"not a number"}},
		{Target: testContract, Method: tier, Args: []any{big.NewInt(2)}},
	})
	require.NoError(t, err)
	require.False(t, results[0].Success)
	require.Error(t, results[0].Err)
	require.True(t, results[1].Success)
}

func TestReader_MulticallCancelled(t *testing.T) {
	client := newFakeClient()
	tier, err := ParseMethod("getNftTier(uint256) returns (uint8)")
	require.NoError(t, err)
	client.handle(tier, tierHandler)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = newTestReader(client, 1).Multicall(ctx, []Call{
		{Target: testContract, Method: tier, Args: []any{big.NewInt(1)}},
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestReader_MulticallEmpty(t *testing.T) {
	results, err := newTestReader(newFakeClient(), 50).Multicall(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, results)
}
