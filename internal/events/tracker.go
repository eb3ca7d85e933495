package events

import (
	"context"
	"fmt"
	"slices"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goran-ethernal/HolderLedger/internal/common"
	"github.com/goran-ethernal/HolderLedger/internal/logger"
	irpc "github.com/goran-ethernal/HolderLedger/internal/rpc"
)

// TransferTopic is the topic of the ERC-721 Transfer(address,address,uint256) event.
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

const (
	defaultChunkSize = 200

	// ERC-721 Transfer carries from, to and tokenId as indexed topics
	erc721TransferTopics = 4
)

// LogReader is the part of the chain reader the tracker needs.
type LogReader interface {
	GetLogs(ctx context.Context, contract ethcommon.Address, topic ethcommon.Hash, from, to uint64) ([]types.Log, error)
}

// Transfer is a single token movement that is not a burn.
type Transfer struct {
	TokenID  uint64
	From     string
	To       string
	Block    uint64
	LogIndex uint
}

// BlockRange is an inclusive block range that could not be fetched.
type BlockRange struct {
	From  uint64 `json:"from"`
	To    uint64 `json:"to"`
	Error string `json:"error"`
}

// TransferSet is the result of replaying Transfer events over a block range.
type TransferSet struct {
	// Burned holds tokens sent to a burn address, in event order, without duplicates
	Burned []uint64

	// Transferred holds every other transfer ordered by (block, log index), mints included
	Transferred []Transfer

	// FailedRanges are sub-ranges that still failed after retries
	FailedRanges []BlockRange

	// LastBlock is the last block covered by the replay
	LastBlock uint64

	// Anomalies counts skipped malformed logs
	Anomalies int
}

// Empty reports whether no burn or transfer was observed.
func (s *TransferSet) Empty() bool {
	return len(s.Burned) == 0 && len(s.Transferred) == 0
}

// Chunk is the part of a replay covering one sub-range [From, LastBlock].
type Chunk struct {
	From      uint64
	LastBlock uint64

	// Burned and Transferred hold only what this sub-range added to the TransferSet
	Burned      []uint64
	Transferred []Transfer

	// Err is set when the sub-range kept failing and was skipped
	Err error
}

// Empty reports whether the sub-range produced no burn or transfer.
func (c Chunk) Empty() bool {
	return len(c.Burned) == 0 && len(c.Transferred) == 0
}

// ChunkFunc is invoked after every sub-range, in ascending block order.
// A returned error stops the replay and is returned by CollectTransfers.
type ChunkFunc func(chunk Chunk) error

// Tracker replays ERC-721 Transfer events in ascending block order.
type Tracker struct {
	reader    LogReader
	chunkSize uint64
	log       *logger.Logger
}

// NewTracker creates an event log tracker.
func NewTracker(reader LogReader, chunkSize uint64, log *logger.Logger) *Tracker {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if chunkSize == 0 {
		chunkSize = defaultChunkSize
	}

	return &Tracker{
		reader:    reader,
		chunkSize: chunkSize,
		log:       log,
	}
}

// CollectTransfers replays Transfer events of contract in [from, to].
// A sub-range that keeps failing is recorded in FailedRanges and the replay moves on.
// The errors returned are the context error and the error of onChunk. In both cases
// LastBlock is the last block handed to onChunk without error.
func (t *Tracker) CollectTransfers(ctx context.Context, contract ethcommon.Address, from, to uint64,
	onChunk ChunkFunc) (*TransferSet, error) {
	set := &TransferSet{LastBlock: to}
	if from > to {
		return set, nil
	}

	burned := make(map[uint64]struct{})
	cursor := from

	for cursor <= to {
		if err := ctx.Err(); err != nil {
			set.LastBlock = before(cursor)
			return set, err
		}

		end := min(cursor+t.chunkSize-1, to)

		logs, covered, err := t.fetchLogs(ctx, contract, cursor, end)
		if err != nil {
			if ctx.Err() != nil {
				set.LastBlock = before(cursor)
				return set, ctx.Err()
			}

			t.log.Warnw("failed to fetch transfer logs, skipping range",
				"contract", contract.Hex(),
				"from", cursor,
				"to", end,
				"error", err,
			)
			set.FailedRanges = append(set.FailedRanges, BlockRange{From: cursor, To: end, Error: err.Error()})
			if err := notify(onChunk, Chunk{From: cursor, LastBlock: end, Err: err}); err != nil {
				set.LastBlock = before(cursor)
				return set, err
			}
			cursor = end + 1
			continue
		}

		chunk := t.apply(set, burned, contract, logs)
		chunk.From, chunk.LastBlock = cursor, covered
		if err := notify(onChunk, chunk); err != nil {
			set.LastBlock = before(cursor)
			return set, err
		}
		cursor = covered + 1
	}

	t.log.Debugw("transfer replay finished",
		"contract", contract.Hex(),
		"from", from,
		"to", to,
		"transfers", len(set.Transferred),
		"burns", len(set.Burned),
		"failedRanges", len(set.FailedRanges),
	)

	return set, nil
}

func before(block uint64) uint64 {
	if block == 0 {
		return 0
	}
	return block - 1
}

func notify(onChunk ChunkFunc, chunk Chunk) error {
	if onChunk == nil {
		return nil
	}
	return onChunk(chunk)
}

// apply decodes a chunk of logs in (block, log index) order into the set and
// returns what the chunk added.
func (t *Tracker) apply(set *TransferSet, burned map[uint64]struct{}, contract ethcommon.Address,
	logs []types.Log) Chunk {
	var chunk Chunk

	slices.SortFunc(logs, func(a, b types.Log) int {
		if a.BlockNumber != b.BlockNumber {
			if a.BlockNumber < b.BlockNumber {
				return -1
			}
			return 1
		}
		return int(a.Index) - int(b.Index)
	})

	for _, l := range logs {
		if l.Removed {
			continue
		}

		transfer, ok := t.decode(contract, l)
		if !ok {
			set.Anomalies++
			continue
		}

		if common.IsBurnAddress(transfer.To) {
			if _, dup := burned[transfer.TokenID]; !dup {
				burned[transfer.TokenID] = struct{}{}
				set.Burned = append(set.Burned, transfer.TokenID)
				chunk.Burned = append(chunk.Burned, transfer.TokenID)
			}
			continue
		}

		set.Transferred = append(set.Transferred, transfer)
		chunk.Transferred = append(chunk.Transferred, transfer)
	}

	return chunk
}

// decode turns a raw log into a Transfer. Logs that do not look like ERC-721 transfers are rejected.
func (t *Tracker) decode(contract ethcommon.Address, l types.Log) (Transfer, bool) {
	if len(l.Topics) != erc721TransferTopics || l.Topics[0] != TransferTopic {
		t.log.Warnw("skipping malformed transfer log",
			"anomaly", "topic_count",
			"contract", contract.Hex(),
			"block", l.BlockNumber,
			"logIndex", l.Index,
			"topics", len(l.Topics),
		)
		return Transfer{}, false
	}

	tokenID := l.Topics[3].Big()
	if !tokenID.IsUint64() {
		t.log.Warnw("skipping transfer with out of range token id",
			"anomaly", "token_id",
			"contract", contract.Hex(),
			"block", l.BlockNumber,
			"tokenId", tokenID.String(),
		)
		return Transfer{}, false
	}

	return Transfer{
		TokenID:  tokenID.Uint64(),
		From:     common.NormalizeEthAddress(ethcommon.BytesToAddress(l.Topics[1].Bytes())),
		To:       common.NormalizeEthAddress(ethcommon.BytesToAddress(l.Topics[2].Bytes())),
		Block:    l.BlockNumber,
		LogIndex: l.Index,
	}, true
}

// fetchLogs fetches [from, to] and shrinks the range when the provider reports too many results.
// It returns the logs and the last block actually covered, which may be lower than to.
func (t *Tracker) fetchLogs(ctx context.Context, contract ethcommon.Address,
	from, to uint64) ([]types.Log, uint64, error) {
	logs, err := t.reader.GetLogs(ctx, contract, TransferTopic, from, to)
	if err == nil {
		return logs, to, nil
	}

	if !irpc.IsRangeTooLargeError(err) {
		return nil, 0, err
	}

	newTo := from + (to-from)/2 //nolint:mnd

	if _, errData := irpc.IsTooManyResultsError(err); errData != "" {
		if suggestedFrom, suggestedTo, ok := irpc.ParseSuggestedBlockRange(errData); ok &&
			suggestedFrom == from && suggestedTo >= from && suggestedTo < to {
			newTo = suggestedTo
		}
	}

	if from == to {
		return nil, 0, fmt.Errorf("cannot split range further, single block %d has too many logs: %w", from, err)
	}

	t.log.Infow("too many logs, retrying with smaller block range",
		"from", from,
		"to", newTo,
		"originalTo", to,
	)

	return t.fetchLogs(ctx, contract, from, newTo)
}
