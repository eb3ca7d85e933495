package tiers

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/HolderLedger/internal/chain"
	"github.com/goran-ethernal/HolderLedger/internal/ledger"
	"github.com/goran-ethernal/HolderLedger/internal/logger"
	"github.com/goran-ethernal/HolderLedger/internal/profile"
)

// RewardResolver reads the reward position of every holder of a contract.
// Wallets whose reward data cannot be read are left out of the result.
type RewardResolver interface {
	ResolveRewards(ctx context.Context, holders map[string][]uint64) (map[string]ledger.Reward, error)
}

// noRewards is used by contracts without a reward function.
type noRewards struct{}

func (noRewards) ResolveRewards(context.Context, map[string][]uint64) (map[string]ledger.Reward, error) {
	return map[string]ledger.Reward{}, nil
}

// ClaimableResolver reads one claimable amount per wallet.
type ClaimableResolver struct {
	profile *profile.Profile
	reader  MulticallReader
	log     *logger.Logger
}

// NewClaimableResolver creates a resolver over the profile's claimable function.
func NewClaimableResolver(p *profile.Profile, reader MulticallReader, log *logger.Logger) *ClaimableResolver {
	return &ClaimableResolver{profile: p, reader: reader, log: log}
}

// ResolveRewards implements RewardResolver.
func (c *ClaimableResolver) ResolveRewards(ctx context.Context,
	holders map[string][]uint64) (map[string]ledger.Reward, error) {
	claimable, err := c.claimable(ctx, holders)
	if err != nil {
		return nil, err
	}

	out := make(map[string]ledger.Reward, len(claimable))
	for wallet, amount := range claimable {
		out[wallet] = ledger.Reward{Claimable: amount}
	}

	return out, nil
}

func (c *ClaimableResolver) claimable(ctx context.Context, holders map[string][]uint64) (map[string]*big.Int, error) {
	out := make(map[string]*big.Int, len(holders))
	if c.profile.ClaimableMethod == nil {
		return out, nil
	}

	wallets := sortedWallets(holders)
	calls := make([]chain.Call, len(wallets))
	for i, wallet := range wallets {
		calls[i] = chain.Call{
			Target: c.profile.Address,
			Method: *c.profile.ClaimableMethod,
			Args:   claimableArgs(c.profile.ClaimableInputs, wallet, holders[wallet]),
		}
	}

	results, err := c.reader.Multicall(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve claimable rewards: %w", err)
	}

	for i, res := range results {
		amount, ok := firstBig(res)
		if !ok {
			c.log.Warnw("unreadable claimable rewards",
				"anomaly", "reward",
				"contract", c.profile.Key,
				"wallet", wallets[i],
				"error", res.Err,
			)
			continue
		}
		out[wallets[i]] = amount
	}

	return out, nil
}

// YieldResolver reads per-token share records, per-pool pending amounts and an
// optional claimable amount, and sums them per wallet.
type YieldResolver struct {
	claimable *ClaimableResolver

	profile *profile.Profile
	reader  MulticallReader
	log     *logger.Logger

	sharesIdx int
	lockedIdx int
}

// NewYieldResolver creates a resolver for a yield contract.
func NewYieldResolver(p *profile.Profile, reader MulticallReader, log *logger.Logger) *YieldResolver {
	y := &YieldResolver{
		claimable: NewClaimableResolver(p, reader, log),
		profile:   p,
		reader:    reader,
		log:       log,
		sharesIdx: 0,
		lockedIdx: -1,
	}

	if p.RecordMethod != nil {
		y.sharesIdx, y.lockedIdx = recordLayout(p.RecordMethod.Outputs)
	}

	return y
}

// ResolveRewards implements RewardResolver.
func (y *YieldResolver) ResolveRewards(ctx context.Context,
	holders map[string][]uint64) (map[string]ledger.Reward, error) {
	out := make(map[string]ledger.Reward, len(holders))
	excluded := make(map[string]struct{})

	for wallet := range holders {
		out[wallet] = ledger.Reward{
			Shares:  new(big.Int),
			Locked:  new(big.Int),
			Pending: make(map[string]*big.Int, len(y.profile.PendingMethods)),
		}
	}

	if err := y.records(ctx, holders, out, excluded); err != nil {
		return nil, err
	}

	for _, method := range y.profile.PendingMethods {
		if err := y.pending(ctx, method, holders, out, excluded); err != nil {
			return nil, err
		}
	}

	claimable, err := y.claimable.claimable(ctx, holders)
	if err != nil {
		return nil, err
	}
	for wallet, amount := range claimable {
		r := out[wallet]
		r.Claimable = amount
		out[wallet] = r
	}

	for wallet := range excluded {
		delete(out, wallet)
	}

	return out, nil
}

func (y *YieldResolver) records(ctx context.Context, holders map[string][]uint64,
	out map[string]ledger.Reward, excluded map[string]struct{}) error {
	if y.profile.RecordMethod == nil {
		return nil
	}

	type owned struct {
		wallet  string
		tokenID uint64
	}

	var (
		refs  []owned
		calls []chain.Call
	)
	for _, wallet := range sortedWallets(holders) {
		for _, id := range holders[wallet] {
			refs = append(refs, owned{wallet: wallet, tokenID: id})
			calls = append(calls, chain.Call{
				Target: y.profile.Address,
				Method: *y.profile.RecordMethod,
				Args:   []any{new(big.Int).SetUint64(id)},
			})
		}
	}

	if len(calls) == 0 {
		return nil
	}

	results, err := y.reader.Multicall(ctx, calls)
	if err != nil {
		return fmt.Errorf("failed to resolve reward records: %w", err)
	}

	for i, res := range results {
		ref := refs[i]

		shares, locked, ok := y.decodeRecord(res)
		if !ok {
			y.log.Warnw("malformed reward record",
				"anomaly", "reward",
				"contract", y.profile.Key,
				"wallet", ref.wallet,
				"tokenId", ref.tokenID,
				"error", res.Err,
			)
			excluded[ref.wallet] = struct{}{}
			continue
		}

		r := out[ref.wallet]
		r.Shares.Add(r.Shares, shares)
		r.Locked.Add(r.Locked, locked)
	}

	return nil
}

func (y *YieldResolver) decodeRecord(res chain.Result) (*big.Int, *big.Int, bool) {
	if !res.Success || y.sharesIdx >= len(res.Values) {
		return nil, nil, false
	}

	shares, ok := toBig(res.Values[y.sharesIdx])
	if !ok {
		return nil, nil, false
	}

	locked := new(big.Int)
	if y.lockedIdx >= 0 {
		if y.lockedIdx >= len(res.Values) {
			return nil, nil, false
		}
		if locked, ok = toBig(res.Values[y.lockedIdx]); !ok {
			return nil, nil, false
		}
	}

	return shares, locked, true
}

// pending reads one pool. The pool function takes either the wallet, the wallet's
// token list, or a single token whose amounts are summed per wallet.
func (y *YieldResolver) pending(ctx context.Context, method abi.Method, holders map[string][]uint64,
	out map[string]ledger.Reward, excluded map[string]struct{}) error {
	var (
		owners []string
		calls  []chain.Call
	)

	input := method.Inputs[0].Type
	for _, wallet := range sortedWallets(holders) {
		switch {
		case input.T == abi.AddressTy:
			owners = append(owners, wallet)
			calls = append(calls, chain.Call{
				Target: y.profile.Address,
				Method: method,
				Args:   []any{ethcommon.HexToAddress(wallet)},
			})
		case input.T == abi.SliceTy:
			owners = append(owners, wallet)
			calls = append(calls, chain.Call{
				Target: y.profile.Address,
				Method: method,
				Args:   []any{bigIDs(holders[wallet])},
			})
		default:
			for _, id := range holders[wallet] {
				owners = append(owners, wallet)
				calls = append(calls, chain.Call{
					Target: y.profile.Address,
					Method: method,
					Args:   []any{new(big.Int).SetUint64(id)},
				})
			}
		}
	}

	if len(calls) == 0 {
		return nil
	}

	results, err := y.reader.Multicall(ctx, calls)
	if err != nil {
		return fmt.Errorf("failed to resolve pending %s: %w", method.Name, err)
	}

	for i, res := range results {
		wallet := owners[i]

		amount, ok := firstBig(res)
		if !ok {
			y.log.Warnw("unreadable pending rewards",
				"anomaly", "reward",
				"contract", y.profile.Key,
				"pool", method.Name,
				"wallet", wallet,
				"error", res.Err,
			)
			excluded[wallet] = struct{}{}
			continue
		}

		r := out[wallet]
		sum, ok := r.Pending[method.Name]
		if !ok {
			sum = new(big.Int)
			r.Pending[method.Name] = sum
		}
		sum.Add(sum, amount)
	}

	return nil
}

// recordLayout locates the shares and locked amount in the record outputs, by name
// when the outputs are named and by position otherwise.
func recordLayout(outputs abi.Arguments) (int, int) {
	shares, locked := -1, -1
	for i, out := range outputs {
		name := strings.ToLower(out.Name)
		switch {
		case shares < 0 && strings.Contains(name, "share"):
			shares = i
		case locked < 0 && strings.Contains(name, "lock"):
			locked = i
		}
	}

	if shares < 0 {
		shares = 0
	}
	if locked < 0 && len(outputs) > 1 {
		locked = 1
		if shares == 1 {
			locked = 0
		}
	}

	return shares, locked
}

func claimableArgs(inputs profile.ClaimableInputs, wallet string, tokenIDs []uint64) []any {
	account := ethcommon.HexToAddress(wallet)
	ids := bigIDs(tokenIDs)

	switch inputs {
	case profile.ClaimableByAccount:
		return []any{account}
	case profile.ClaimableByAccountAndTokens:
		return []any{account, ids}
	case profile.ClaimableByTokensAndAccount:
		return []any{ids, account}
	default:
		return []any{ids}
	}
}

func bigIDs(tokenIDs []uint64) []*big.Int {
	ids := make([]*big.Int, len(tokenIDs))
	for i, id := range tokenIDs {
		ids[i] = new(big.Int).SetUint64(id)
	}
	return ids
}

func firstBig(res chain.Result) (*big.Int, bool) {
	if !res.Success || len(res.Values) == 0 {
		return nil, false
	}
	return toBig(res.Values[0])
}

func sortedWallets(holders map[string][]uint64) []string {
	wallets := make([]string, 0, len(holders))
	for wallet := range holders {
		wallets = append(wallets, wallet)
	}
	slices.Sort(wallets)
	return wallets
}
