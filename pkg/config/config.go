package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/HolderLedger/internal/common"
	"github.com/goran-ethernal/HolderLedger/internal/logger"
)

// DefaultMulticallAddress is the Multicall3 deployment address, identical on every major EVM chain.
const DefaultMulticallAddress = "0xcA11bde05977b3631167028862bE2a173976CA11"

// Reward kinds supported by contract profiles.
const (
	RewardKindNone      = "none"
	RewardKindClaimable = "claimable"
	RewardKindYield     = "yield"
)

// Config represents the complete configuration for the HolderLedger service.
type Config struct {
	// Chain contains the EVM RPC configuration
	Chain ChainConfig `yaml:"chain" json:"chain" toml:"chain"`

	// Provider contains the owner directory provider configuration
	Provider ProviderConfig `yaml:"provider" json:"provider" toml:"provider"`

	// Sync contains synchronization tuning
	Sync SyncConfig `yaml:"sync" json:"sync" toml:"sync"`

	// Cache contains the cache store configuration
	Cache CacheConfig `yaml:"cache" json:"cache" toml:"cache"`

	// Contracts contains the NFT contracts to track
	Contracts []ContractConfig `yaml:"contracts" json:"contracts" toml:"contracts"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`

	// API contains the HTTP API configuration
	API *APIConfig `yaml:"api,omitempty" json:"api,omitempty" toml:"api,omitempty"`
}

// ChainConfig represents the configuration of the chain RPC access.
type ChainConfig struct {
	// RPCURL is the EVM RPC endpoint URL
	RPCURL string `yaml:"rpc_url" json:"rpc_url" toml:"rpc_url"`

	// MulticallAddress is the Multicall3 contract address used for batched reads
	MulticallAddress string `yaml:"multicall_address" json:"multicall_address" toml:"multicall_address"`

	// CallTimeout is the hard timeout of a single remote call, independent of retries
	CallTimeout common.Duration `yaml:"call_timeout" json:"call_timeout" toml:"call_timeout"`

	// Retry contains RPC retry configuration with exponential backoff
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`

	// RateLimit contains the request budget configuration
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty" toml:"rate_limit,omitempty"`

	// CircuitBreaker contains the consecutive timeout breaker configuration
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker,omitempty" json:"circuit_breaker,omitempty" toml:"circuit_breaker,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional chain configuration fields.
func (c *ChainConfig) ApplyDefaults() {
	if c.MulticallAddress == "" {
		c.MulticallAddress = DefaultMulticallAddress
	}
	if c.CallTimeout.Duration == 0 {
		c.CallTimeout = common.NewDuration(30 * time.Second) //nolint:mnd
	}

	if c.Retry == nil {
		c.Retry = &RetryConfig{}
	}
	c.Retry.ApplyDefaults()

	if c.RateLimit == nil {
		c.RateLimit = &RateLimitConfig{}
	}
	c.RateLimit.ApplyDefaults()

	if c.CircuitBreaker == nil {
		c.CircuitBreaker = &CircuitBreakerConfig{}
	}
	c.CircuitBreaker.ApplyDefaults()
}

// RetryConfig represents RPC retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the initial backoff duration before first retry
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 4
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// Validate checks if the retry configuration is valid.
func (r *RetryConfig) Validate() error {
	if r.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if r.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be at least 1")
	}
	if r.MaxBackoff.Duration < r.InitialBackoff.Duration {
		return fmt.Errorf("max_backoff must not be lower than initial_backoff")
	}
	return nil
}

// RateLimitConfig configures the shared request budget.
type RateLimitConfig struct {
	// RequestsPerSecond is the request cost budget refilled every second
	RequestsPerSecond int `yaml:"requests_per_second" json:"requests_per_second" toml:"requests_per_second"`
}

// ApplyDefaults sets default values for the request budget.
func (r *RateLimitConfig) ApplyDefaults() {
	if r.RequestsPerSecond == 0 {
		r.RequestsPerSecond = 25
	}
}

// CircuitBreakerConfig configures the consecutive timeout breaker.
type CircuitBreakerConfig struct {
	// TimeoutThreshold is the number of consecutive timeouts that trips the breaker
	TimeoutThreshold int `yaml:"timeout_threshold" json:"timeout_threshold" toml:"timeout_threshold"`

	// Cooldown is how long every call is paused once the breaker trips
	Cooldown common.Duration `yaml:"cooldown" json:"cooldown" toml:"cooldown"`
}

// ApplyDefaults sets default values for the breaker.
func (c *CircuitBreakerConfig) ApplyDefaults() {
	if c.TimeoutThreshold == 0 {
		c.TimeoutThreshold = 5
	}
	if c.Cooldown.Duration == 0 {
		c.Cooldown = common.NewDuration(30 * time.Second) //nolint:mnd
	}
}

// ProviderConfig configures the owner directory provider (an Alchemy compatible NFT API).
type ProviderConfig struct {
	// BaseURL is the NFT API base URL, e.g. https://eth-mainnet.g.alchemy.com/nft/v3
	BaseURL string `yaml:"base_url" json:"base_url" toml:"base_url"`

	// APIKey is appended to the base URL path
	APIKey string `yaml:"api_key" json:"api_key" toml:"api_key"`

	// MaxPages bounds the number of pages fetched for a single listing
	MaxPages int `yaml:"max_pages" json:"max_pages" toml:"max_pages"`
}

// ApplyDefaults sets default values for the provider configuration.
func (p *ProviderConfig) ApplyDefaults() {
	if p.MaxPages == 0 {
		p.MaxPages = 100
	}
}

// SyncConfig tunes the synchronization pipeline.
type SyncConfig struct {
	// ChunkSize is the block range per eth_getLogs call during incremental sync
	ChunkSize uint64 `yaml:"chunk_size" json:"chunk_size" toml:"chunk_size"`

	// MulticallBatchSize is the number of calls per multicall request
	MulticallBatchSize int `yaml:"multicall_batch_size" json:"multicall_batch_size" toml:"multicall_batch_size"`

	// Concurrency bounds the number of multicall batches in flight
	Concurrency int `yaml:"concurrency" json:"concurrency" toml:"concurrency"`

	// StaleAfter is the age of a held populate lock after which it is considered abandoned
	StaleAfter common.Duration `yaml:"stale_after" json:"stale_after" toml:"stale_after"`
}

// ApplyDefaults sets default values for the sync configuration.
func (s *SyncConfig) ApplyDefaults() {
	if s.ChunkSize == 0 {
		s.ChunkSize = 200
	}
	if s.MulticallBatchSize == 0 {
		s.MulticallBatchSize = 50
	}
	if s.Concurrency == 0 {
		s.Concurrency = 4
	}
	if s.StaleAfter.Duration == 0 {
		s.StaleAfter = common.NewDuration(10 * time.Minute) //nolint:mnd
	}
}

// Validate checks if the sync configuration is valid.
func (s *SyncConfig) Validate() error {
	if s.Concurrency < 1 || s.Concurrency > 10 {
		return fmt.Errorf("sync.concurrency must be between 1 and 10")
	}
	if s.MulticallBatchSize < 1 {
		return fmt.Errorf("sync.multicall_batch_size must be positive")
	}
	return nil
}

// CacheConfig configures the layered cache store.
type CacheConfig struct {
	// Dir is the directory holding the per contract state files and the disk tier database
	Dir string `yaml:"dir" json:"dir" toml:"dir"`

	// RedisURL enables the optional remote tier, e.g. redis://localhost:6379/0
	RedisURL string `yaml:"redis_url" json:"redis_url" toml:"redis_url"`

	// HotCapacity is the number of entries kept in the in-process tier
	HotCapacity int `yaml:"hot_capacity" json:"hot_capacity" toml:"hot_capacity"`

	// HotTTL is the expiry of in-process entries
	HotTTL common.Duration `yaml:"hot_ttl" json:"hot_ttl" toml:"hot_ttl"`

	// TierTTL is the expiry of cached token tiers
	TierTTL common.Duration `yaml:"tier_ttl" json:"tier_ttl" toml:"tier_ttl"`

	// DB contains the disk tier database configuration
	DB DatabaseConfig `yaml:"db" json:"db" toml:"db"`

	// Maintenance contains optional database maintenance settings
	Maintenance *MaintenanceConfig `yaml:"maintenance,omitempty" json:"maintenance,omitempty" toml:"maintenance,omitempty"`
}

// ApplyDefaults sets default values for the cache configuration.
func (c *CacheConfig) ApplyDefaults() {
	if c.Dir == "" {
		c.Dir = "./data"
	}
	if c.HotCapacity == 0 {
		c.HotCapacity = 256
	}
	if c.HotTTL.Duration == 0 {
		c.HotTTL = common.NewDuration(10 * time.Minute) //nolint:mnd
	}
	if c.TierTTL.Duration == 0 {
		c.TierTTL = common.NewDuration(30 * 24 * time.Hour) //nolint:mnd
	}
	if c.DB.Path == "" {
		c.DB.Path = filepath.Join(c.Dir, "cache.db")
	}
	c.DB.ApplyDefaults()

	if c.Maintenance != nil {
		c.Maintenance.ApplyDefaults()
	}
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	// WAL mode is recommended for better concurrency
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
}

// Validate checks if the database configuration is valid.
func (d *DatabaseConfig) Validate() error {
	validJournal := []string{"WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY"}
	if d.JournalMode != "" && !slices.Contains(validJournal, d.JournalMode) {
		return fmt.Errorf("journal_mode must be one of: WAL, DELETE, TRUNCATE, PERSIST, MEMORY")
	}

	validSync := []string{"FULL", "NORMAL", "OFF"}
	if d.Synchronous != "" && !slices.Contains(validSync, d.Synchronous) {
		return fmt.Errorf("synchronous must be one of: FULL, NORMAL, OFF")
	}

	return nil
}

// MaintenanceConfig configures database maintenance behavior.
type MaintenanceConfig struct {
	// Enabled controls whether background maintenance runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// CheckInterval is how often to run maintenance (e.g., "30m", "1h")
	CheckInterval common.Duration `yaml:"check_interval" json:"check_interval" toml:"check_interval"`

	// VacuumOnStartup runs maintenance immediately on startup
	VacuumOnStartup bool `yaml:"vacuum_on_startup" json:"vacuum_on_startup" toml:"vacuum_on_startup"`

	// WALCheckpointMode controls the WAL checkpoint aggressiveness
	// Options: PASSIVE, FULL, RESTART, TRUNCATE
	WALCheckpointMode string `yaml:"wal_checkpoint_mode" json:"wal_checkpoint_mode" toml:"wal_checkpoint_mode"`
}

// ApplyDefaults sets default values for optional maintenance configuration fields.
func (m *MaintenanceConfig) ApplyDefaults() {
	if m.CheckInterval.Duration == 0 {
		m.CheckInterval = common.NewDuration(30 * time.Minute) //nolint:mnd
	}
	if m.WALCheckpointMode == "" {
		m.WALCheckpointMode = "TRUNCATE"
	}
}

// Validate checks if the maintenance configuration is valid.
func (m *MaintenanceConfig) Validate() error {
	if m.WALCheckpointMode != "" {
		validModes := []string{"PASSIVE", "FULL", "RESTART", "TRUNCATE"}
		if !slices.Contains(validModes, m.WALCheckpointMode) {
			return fmt.Errorf("maintenance.wal_checkpoint_mode: must be one of: PASSIVE, FULL, RESTART, TRUNCATE")
		}
	}

	return nil
}

// ContractConfig describes one tracked NFT contract and its capabilities.
type ContractConfig struct {
	// Key is the unique short name of the contract, used in cache keys and URLs
	Key string `yaml:"key" json:"key" toml:"key"`

	// Address is the contract address
	Address string `yaml:"address" json:"address" toml:"address"`

	// DeploymentBlock is the first block that can hold a Transfer event of this contract
	DeploymentBlock uint64 `yaml:"deployment_block" json:"deployment_block" toml:"deployment_block"`

	// ABIPath optionally points to a JSON ABI; function entries below may then be plain names
	ABIPath string `yaml:"abi_path,omitempty" json:"abi_path,omitempty" toml:"abi_path,omitempty"`

	// TierFunction returns the tier of a token, e.g. "getNftTier(uint256) returns (uint8)"
	TierFunction string `yaml:"tier_function" json:"tier_function" toml:"tier_function"`

	// SupplyFunction returns the minted supply, defaults to "totalSupply() returns (uint256)"
	SupplyFunction string `yaml:"supply_function" json:"supply_function" toml:"supply_function"`

	// OwnerOfFunction defaults to "ownerOf(uint256) returns (address)"
	OwnerOfFunction string `yaml:"owner_of_function" json:"owner_of_function" toml:"owner_of_function"`

	// Multipliers holds the reward multiplier of every tier: Multipliers[0] belongs to tier 1
	Multipliers []uint64 `yaml:"multipliers" json:"multipliers" toml:"multipliers"`

	// VerifyOwnership re-checks provider ownership with ownerOf, defaults to true
	VerifyOwnership *bool `yaml:"verify_ownership,omitempty" json:"verify_ownership,omitempty" toml:"verify_ownership,omitempty"` //nolint:lll

	// SupplyCountsBurned is set when totalSupply keeps counting burned tokens
	SupplyCountsBurned bool `yaml:"supply_counts_burned" json:"supply_counts_burned" toml:"supply_counts_burned"`

	// TierMutable forces tiers to be re-read on every run instead of served from the tier cache
	TierMutable bool `yaml:"tier_mutable" json:"tier_mutable" toml:"tier_mutable"`

	// Rewards configures reward resolution
	Rewards RewardConfig `yaml:"rewards" json:"rewards" toml:"rewards"`
}

// ApplyDefaults sets default values for optional contract fields.
func (c *ContractConfig) ApplyDefaults() {
	c.Key = common.ToLowerWithTrim(c.Key)
	if c.SupplyFunction == "" {
		c.SupplyFunction = "totalSupply() returns (uint256)"
	}
	if c.OwnerOfFunction == "" {
		c.OwnerOfFunction = "ownerOf(uint256) returns (address)"
	}
	if c.VerifyOwnership == nil {
		verify := true
		c.VerifyOwnership = &verify
	}
	c.Rewards.ApplyDefaults()
}

// Validate checks the contract configuration without touching the chain.
func (c *ContractConfig) Validate() error {
	if c.Key == "" {
		return fmt.Errorf("key is required")
	}
	if !ethcommon.IsHexAddress(c.Address) {
		return fmt.Errorf("address %q is not a valid hex address", c.Address)
	}
	if c.TierFunction == "" {
		return fmt.Errorf("tier_function is required")
	}
	if len(c.Multipliers) == 0 {
		return fmt.Errorf("at least one tier multiplier is required")
	}
	return c.Rewards.Validate()
}

// IsVerifyOwnership returns whether ownership verification is enabled.
func (c *ContractConfig) IsVerifyOwnership() bool {
	return c.VerifyOwnership == nil || *c.VerifyOwnership
}

// RewardConfig configures how rewards are resolved for a contract.
type RewardConfig struct {
	// Kind is one of: none, claimable, yield
	Kind string `yaml:"kind" json:"kind" toml:"kind"`

	// ClaimableFunction returns the claimable amount of a wallet. Its inputs may be
	// (uint256[] tokenIds), (address account) or both, in that order.
	ClaimableFunction string `yaml:"claimable_function,omitempty" json:"claimable_function,omitempty" toml:"claimable_function,omitempty"` //nolint:lll

	// RecordFunction returns the per token yield record, e.g.
	// "userRecords(uint256) returns (uint256 shares, uint256 lockedAmount, uint256 debt)"
	RecordFunction string `yaml:"record_function,omitempty" json:"record_function,omitempty" toml:"record_function,omitempty"` //nolint:lll

	// PendingFunctions return per token pending pool rewards, summed per wallet
	PendingFunctions []string `yaml:"pending_functions,omitempty" json:"pending_functions,omitempty" toml:"pending_functions,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for the reward configuration.
func (r *RewardConfig) ApplyDefaults() {
	if r.Kind == "" {
		r.Kind = RewardKindNone
	}
	r.Kind = common.ToLowerWithTrim(r.Kind)
}

// Validate checks if the reward configuration is valid.
func (r *RewardConfig) Validate() error {
	switch r.Kind {
	case RewardKindNone:
	case RewardKindClaimable:
		if r.ClaimableFunction == "" {
			return fmt.Errorf("rewards.claimable_function is required for claimable rewards")
		}
	case RewardKindYield:
		if r.RecordFunction == "" {
			return fmt.Errorf("rewards.record_function is required for yield rewards")
		}
	default:
		return fmt.Errorf("rewards.kind must be one of: none, claimable, yield")
	}
	return nil
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	// Available components:
	//   - synchronizer: Holder ledger synchronization
	//   - chain-reader: Contract view and multicall reads
	//   - owner-fetcher: Owner directory provider
	//   - log-tracker: Transfer event replay
	//   - tier-resolver: Tier and reward resolution
	//   - cache-store: Ledger, tier and state persistence
	//   - maintenance: Database maintenance
	//   - rpc: Remote call execution
	//   - api: HTTP API
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, validComponent := common.AllComponents[common.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}

		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if l == nil {
		return "info"
	}
	if level, ok := l.ComponentLevels[component]; ok {
		return common.ToLowerWithTrim(level)
	}
	return l.GetDefaultLevel()
}

// GetDefaultLevel returns the default log level.
func (l *LoggingConfig) GetDefaultLevel() string {
	if l == nil || l.DefaultLevel == "" {
		return "info"
	}
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l != nil && l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	// Format: "host:port" or ":port"
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" {
			return fmt.Errorf("path is required when metrics are enabled")
		}
		if m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// CORSConfig configures cross origin requests to the API.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled" toml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins" toml:"allowed_origins"`
}

// APIConfig configures the HTTP API server.
type APIConfig struct {
	// Enabled controls whether the API server is started
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the API server to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// CORS contains cross origin settings
	CORS CORSConfig `yaml:"cors" json:"cors" toml:"cors"`

	ReadTimeout  common.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`
	WriteTimeout common.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`
	IdleTimeout  common.Duration `yaml:"idle_timeout" json:"idle_timeout" toml:"idle_timeout"`

	// SyncWait is how long a POST waits for a synchronization before answering in_progress
	SyncWait common.Duration `yaml:"sync_wait" json:"sync_wait" toml:"sync_wait"`

	// DefaultPageSize and MaxPageSize bound holder pagination
	DefaultPageSize int `yaml:"default_page_size" json:"default_page_size" toml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size" json:"max_page_size" toml:"max_page_size"`
}

// ApplyDefaults sets default values for optional API configuration fields.
func (a *APIConfig) ApplyDefaults() {
	if a.ListenAddress == "" {
		a.ListenAddress = ":8080"
	}
	if a.ReadTimeout.Duration == 0 {
		a.ReadTimeout = common.NewDuration(15 * time.Second) //nolint:mnd
	}
	if a.WriteTimeout.Duration == 0 {
		a.WriteTimeout = common.NewDuration(60 * time.Second) //nolint:mnd
	}
	if a.IdleTimeout.Duration == 0 {
		a.IdleTimeout = common.NewDuration(120 * time.Second) //nolint:mnd
	}
	if a.SyncWait.Duration == 0 {
		a.SyncWait = common.NewDuration(5 * time.Second) //nolint:mnd
	}
	if a.DefaultPageSize == 0 {
		a.DefaultPageSize = 100
	}
	if a.MaxPageSize == 0 {
		a.MaxPageSize = 1000
	}
	if a.CORS.Enabled && len(a.CORS.AllowedOrigins) == 0 {
		a.CORS.AllowedOrigins = []string{"*"}
	}
}

// Validate checks if the API configuration is valid.
func (a *APIConfig) Validate() error {
	if a.Enabled && a.ListenAddress == "" {
		return fmt.Errorf("listen_address is required when the api is enabled")
	}
	if a.DefaultPageSize > a.MaxPageSize {
		return fmt.Errorf("default_page_size must not exceed max_page_size")
	}
	return nil
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	c.Chain.ApplyDefaults()
	c.Provider.ApplyDefaults()
	c.Sync.ApplyDefaults()
	c.Cache.ApplyDefaults()

	for i := range c.Contracts {
		c.Contracts[i].ApplyDefaults()
	}

	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}

	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}

	if c.API != nil {
		c.API.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}

	if !ethcommon.IsHexAddress(c.Chain.MulticallAddress) {
		return fmt.Errorf("chain.multicall_address is not a valid hex address")
	}

	if c.Chain.Retry != nil {
		if err := c.Chain.Retry.Validate(); err != nil {
			return fmt.Errorf("chain.retry: %w", err)
		}
	}

	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}

	if err := c.Sync.Validate(); err != nil {
		return err
	}

	if err := c.Cache.DB.Validate(); err != nil {
		return fmt.Errorf("cache.db: %w", err)
	}

	if c.Cache.Maintenance != nil {
		if err := c.Cache.Maintenance.Validate(); err != nil {
			return fmt.Errorf("cache.maintenance: %w", err)
		}
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	if c.API != nil {
		if err := c.API.Validate(); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}

	if len(c.Contracts) == 0 {
		return fmt.Errorf("at least one contract must be configured")
	}

	keys := make(map[string]bool)
	for i, contract := range c.Contracts {
		if err := contract.Validate(); err != nil {
			return fmt.Errorf("contracts[%d] (%s): %w", i, contract.Key, err)
		}

		if keys[contract.Key] {
			return fmt.Errorf("contracts[%d]: duplicate contract key '%s'", i, contract.Key)
		}
		keys[contract.Key] = true
	}

	return nil
}

// Contract returns the configuration of the contract with the given key.
func (c *Config) Contract(key string) (ContractConfig, bool) {
	key = common.ToLowerWithTrim(key)
	for _, contract := range c.Contracts {
		if contract.Key == key {
			return contract, true
		}
	}
	return ContractConfig{}, false
}
