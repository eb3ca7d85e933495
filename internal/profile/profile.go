package profile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/HolderLedger/internal/chain"
	"github.com/goran-ethernal/HolderLedger/internal/ledger"
	"github.com/goran-ethernal/HolderLedger/pkg/config"
)

// ErrConfiguration marks a contract profile that cannot be used. It is fatal and
// is always reported before any remote call is made.
var ErrConfiguration = errors.New("contract configuration error")

// ClaimableInputs describes which arguments the claimable function takes.
type ClaimableInputs int

const (
	// ClaimableByTokens takes (uint256[] tokenIds)
	ClaimableByTokens ClaimableInputs = iota
	// ClaimableByAccount takes (address account)
	ClaimableByAccount
	// ClaimableByAccountAndTokens takes (address account, uint256[] tokenIds)
	ClaimableByAccountAndTokens
	// ClaimableByTokensAndAccount takes (uint256[] tokenIds, address account)
	ClaimableByTokensAndAccount
)

// Profile is the validated capability set of one tracked contract.
type Profile struct {
	Key             string
	Address         ethcommon.Address
	DeploymentBlock uint64

	SupportsYield bool
	RewardKind    string

	TierMethod    abi.Method
	SupplyMethod  abi.Method
	OwnerOfMethod abi.Method

	ClaimableMethod *abi.Method
	ClaimableInputs ClaimableInputs
	RecordMethod    *abi.Method
	PendingMethods  []abi.Method

	// Multipliers maps a valid tier to its reward multiplier
	Multipliers map[int]uint64
	MaxTier     int

	TierMutable        bool
	VerifyOwnership    bool
	SupplyCountsBurned bool
}

// New builds a profile from contract configuration. Any problem is wrapped in ErrConfiguration.
func New(cfg config.ContractConfig) (*Profile, error) {
	p, err := build(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: contract %s: %w", ErrConfiguration, cfg.Key, err)
	}

	return p, nil
}

func build(cfg config.ContractConfig) (*Profile, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var contractABI *abi.ABI
	if cfg.ABIPath != "" {
		loaded, err := chain.LoadABI(cfg.ABIPath)
		if err != nil {
			return nil, err
		}
		contractABI = loaded
	}

	p := &Profile{
		Key:                cfg.Key,
		Address:            ethcommon.HexToAddress(cfg.Address),
		DeploymentBlock:    cfg.DeploymentBlock,
		RewardKind:         cfg.Rewards.Kind,
		SupportsYield:      cfg.Rewards.Kind == config.RewardKindYield,
		Multipliers:        make(map[int]uint64, len(cfg.Multipliers)),
		MaxTier:            len(cfg.Multipliers),
		TierMutable:        cfg.TierMutable,
		VerifyOwnership:    cfg.IsVerifyOwnership(),
		SupplyCountsBurned: cfg.SupplyCountsBurned,
	}

	for i, m := range cfg.Multipliers {
		p.Multipliers[i+1] = m
	}

	var err error
	if p.TierMethod, err = resolve("tier_function", cfg.TierFunction, contractABI, 1, 1); err != nil {
		return nil, err
	}
	if p.SupplyMethod, err = resolve("supply_function", cfg.SupplyFunction, contractABI, 0, 1); err != nil {
		return nil, err
	}
	if p.OwnerOfMethod, err = resolve("owner_of_function", cfg.OwnerOfFunction, contractABI, 1, 1); err != nil {
		return nil, err
	}

	if cfg.Rewards.ClaimableFunction != "" {
		method, err := resolve("rewards.claimable_function", cfg.Rewards.ClaimableFunction, contractABI, -1, -1)
		if err != nil {
			return nil, err
		}

		inputs, err := claimableInputs(method)
		if err != nil {
			return nil, err
		}

		p.ClaimableMethod = &method
		p.ClaimableInputs = inputs
	}

	if cfg.Rewards.RecordFunction != "" {
		method, err := resolve("rewards.record_function", cfg.Rewards.RecordFunction, contractABI, 1, -1)
		if err != nil {
			return nil, err
		}
		p.RecordMethod = &method
	}

	for _, ref := range cfg.Rewards.PendingFunctions {
		method, err := resolve("rewards.pending_functions", ref, contractABI, 1, 1)
		if err != nil {
			return nil, err
		}
		p.PendingMethods = append(p.PendingMethods, method)
	}

	return p, nil
}

// resolve parses a function reference and checks its arity. A negative count skips the check.
func resolve(field, ref string, contractABI *abi.ABI, inputs, outputs int) (abi.Method, error) {
	method, err := chain.ResolveMethod(ref, contractABI)
	if err != nil {
		return abi.Method{}, fmt.Errorf("%s: %w", field, err)
	}

	if inputs >= 0 && len(method.Inputs) != inputs {
		return abi.Method{}, fmt.Errorf("%s: %s takes %d inputs, expected %d", field, method.Name, len(method.Inputs), inputs)
	}

	if outputs >= 0 && len(method.Outputs) != outputs {
		return abi.Method{}, fmt.Errorf("%s: %s returns %d values, expected %d",
			field, method.Name, len(method.Outputs), outputs)
	}
	if outputs < 0 && len(method.Outputs) == 0 {
		return abi.Method{}, fmt.Errorf("%s: %s returns nothing", field, method.Name)
	}

	return method, nil
}

func claimableInputs(method abi.Method) (ClaimableInputs, error) {
	kinds := make([]string, len(method.Inputs))
	for i, in := range method.Inputs {
		kinds[i] = in.Type.String()
	}

	switch strings.Join(kinds, ",") {
	case "uint256[]":
		return ClaimableByTokens, nil
	case "address":
		return ClaimableByAccount, nil
	case "address,uint256[]":
		return ClaimableByAccountAndTokens, nil
	case "uint256[],address":
		return ClaimableByTokensAndAccount, nil
	default:
		return 0, fmt.Errorf("rewards.claimable_function: unsupported inputs (%s)", strings.Join(kinds, ","))
	}
}

// ValidTier reports whether tier is within 1..MaxTier.
func (p *Profile) ValidTier(tier int) bool {
	return tier >= 1 && tier <= p.MaxTier
}

// Multiplier returns the multiplier of tier, 0 for an invalid tier.
func (p *Profile) Multiplier(tier int) uint64 {
	return p.Multipliers[tier]
}

// RequiredFunctions lists the canonical signatures the contract must expose.
func (p *Profile) RequiredFunctions() []string {
	methods := []abi.Method{p.SupplyMethod, p.TierMethod}
	if p.VerifyOwnership {
		methods = append(methods, p.OwnerOfMethod)
	}
	if p.ClaimableMethod != nil {
		methods = append(methods, *p.ClaimableMethod)
	}
	if p.RecordMethod != nil {
		methods = append(methods, *p.RecordMethod)
	}
	methods = append(methods, p.PendingMethods...)

	sigs := make([]string, len(methods))
	for i, m := range methods {
		sigs[i] = m.Sig
	}

	return sigs
}

// TierCacheKey is the cache entry holding the tier of every token of the contract.
func (p *Profile) TierCacheKey() string {
	return p.Key + "_tiers"
}

// LedgerCacheKey is the cache entry holding the shared holder ledger.
func (p *Profile) LedgerCacheKey() string {
	return p.Key + "_holders"
}

// WalletLedgerCacheKey is the cache entry of a wallet scoped rebuild.
func (p *Profile) WalletLedgerCacheKey(wallet string) string {
	return p.Key + "_holders_" + wallet
}

// LedgerPolicy returns the ranking and multiplier rules of the contract.
func (p *Profile) LedgerPolicy() ledger.Policy {
	return ledger.Policy{
		SupportsYield: p.SupportsYield,
		MaxTier:       p.MaxTier,
		Multipliers:   p.Multipliers,
	}
}
