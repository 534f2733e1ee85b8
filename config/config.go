package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full agent configuration. It is built once in main and
// never mutated afterwards.
type Config struct {
	Chain       ChainConfig       `yaml:"chain"`
	Aave        AaveConfig        `yaml:"aave"`
	Indexer     IndexerConfig     `yaml:"indexer"`
	Liquidation LiquidationConfig `yaml:"liquidation"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Reconciler  ReconcilerConfig  `yaml:"reconciler"`
	Storage     StorageConfig     `yaml:"storage"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
}

// ChainConfig selects the node. rpc_url must be a WebSocket endpoint for
// event and head subscriptions.
type ChainConfig struct {
	RPCURL  string  `yaml:"rpc_url"`
	ChainID int64   `yaml:"chain_id"`
	RPS     float64 `yaml:"rps"`   // read calls per second
	Burst   int     `yaml:"burst"` // read call burst
}

// AaveConfig holds the lending protocol contracts and the tracked reserves.
type AaveConfig struct {
	Pool              string          `yaml:"pool"`
	DataProvider      string          `yaml:"data_provider"`
	AddressesProvider string          `yaml:"addresses_provider"`
	Oracle            string          `yaml:"oracle"`
	Reserves          []ReserveConfig `yaml:"reserves"`
}

// ReserveConfig is one tracked market. An empty variable_debt_token is
// looked up from the pool at startup.
type ReserveConfig struct {
	Symbol            string `yaml:"symbol"`
	Asset             string `yaml:"asset"`
	VariableDebtToken string `yaml:"variable_debt_token"`
}

// IndexerConfig locates the subgraph used for the startup bootstrap.
type IndexerConfig struct {
	URL            string `yaml:"url"`
	APIKey         string `yaml:"api_key"`
	PageSize       int    `yaml:"page_size"`
	MaxPages       int    `yaml:"max_pages"` // listing fails past this many full pages
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// LiquidationConfig controls transaction submission.
type LiquidationConfig struct {
	DryRun                bool   `yaml:"dry_run"` // evaluate and report only
	Contract              string `yaml:"contract"`
	PrivateKey            string `yaml:"private_key"`
	ConcurrencyLimit      int    `yaml:"concurrency_limit"`
	MaxAttempts           int    `yaml:"max_attempts"`
	RetryDelayMs          int    `yaml:"retry_delay_ms"`
	ReceiptTimeoutSeconds int    `yaml:"receipt_timeout_seconds"`
}

// defaultSlippageBps applies only when slippage_bps is absent; an explicit
// 0 is kept.
const defaultSlippageBps = 30

// PipelineConfig controls candidate generation.
type PipelineConfig struct {
	Router        string  `yaml:"router"`
	SlippageBps   *uint64 `yaml:"slippage_bps"`
	HealthWorkers int     `yaml:"health_workers"`
}

// ReconcilerConfig controls watchlist maintenance.
type ReconcilerConfig struct {
	PruneIntervalMinutes    int `yaml:"prune_interval_minutes"` // 0 disables
	ResubscribeDelaySeconds int `yaml:"resubscribe_delay_seconds"`
	EventBuffer             int `yaml:"event_buffer"`
}

// StorageConfig controls the journal.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite path, ":memory:", or empty to disable
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables
}

// LogConfig controls log format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file and .env if present. Environment variables
// override the YAML for secrets and endpoints.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Validate checks addresses and limits.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}
	addr := func(field, v string) {
		if !common.IsHexAddress(v) {
			fail("%s: %q is not a hex address", field, v)
		}
	}

	if c.Chain.RPCURL == "" {
		fail("chain.rpc_url is required")
	}
	addr("aave.pool", c.Aave.Pool)
	addr("aave.data_provider", c.Aave.DataProvider)
	addr("aave.addresses_provider", c.Aave.AddressesProvider)
	addr("aave.oracle", c.Aave.Oracle)
	addr("pipeline.router", c.Pipeline.Router)

	if len(c.Aave.Reserves) == 0 {
		fail("aave.reserves: at least one reserve is required")
	}
	for i, r := range c.Aave.Reserves {
		addr(fmt.Sprintf("aave.reserves[%d].asset", i), r.Asset)
		if r.VariableDebtToken != "" {
			addr(fmt.Sprintf("aave.reserves[%d].variable_debt_token", i), r.VariableDebtToken)
		}
	}

	if c.Indexer.URL == "" {
		fail("indexer.url is required")
	}
	if s := c.Slippage(); s > domain.MaxSlippageBps {
		fail("pipeline.slippage_bps %d exceeds %d", s, domain.MaxSlippageBps)
	}
	if c.Liquidation.ConcurrencyLimit < 1 {
		fail("liquidation.concurrency_limit must be at least 1")
	}
	if c.Liquidation.MaxAttempts < 1 {
		fail("liquidation.max_attempts must be at least 1")
	}
	if c.Liquidation.RetryDelayMs <= 0 {
		fail("liquidation.retry_delay_ms must be positive")
	}
	if !c.Liquidation.DryRun {
		addr("liquidation.contract", c.Liquidation.Contract)
		if c.Liquidation.PrivateKey == "" {
			fail("liquidation.private_key is required unless dry_run is set")
		}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		fail("log.format %q: want text or json", c.Log.Format)
	}
	return errors.Join(errs...)
}

// Reserves converts the configured markets into domain reserves.
// Validate must have passed.
func (c *Config) Reserves() []domain.Reserve {
	out := make([]domain.Reserve, 0, len(c.Aave.Reserves))
	for _, r := range c.Aave.Reserves {
		res := domain.Reserve{Asset: common.HexToAddress(r.Asset)}
		if r.VariableDebtToken != "" {
			res.VariableDebtToken = common.HexToAddress(r.VariableDebtToken)
		}
		out = append(out, res)
	}
	return out
}

// Slippage returns the swap slippage tolerance in basis points.
func (c *Config) Slippage() uint64 {
	if c.Pipeline.SlippageBps == nil {
		return defaultSlippageBps
	}
	return *c.Pipeline.SlippageBps
}

// RetryDelay returns the pause between liquidation attempts.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Liquidation.RetryDelayMs) * time.Millisecond
}

// ReceiptTimeout returns how long to wait for a liquidation to be mined.
func (c *Config) ReceiptTimeout() time.Duration {
	return time.Duration(c.Liquidation.ReceiptTimeoutSeconds) * time.Second
}

// PruneInterval returns the periodic watchlist prune interval; 0 disables it.
func (c *Config) PruneInterval() time.Duration {
	return time.Duration(c.Reconciler.PruneIntervalMinutes) * time.Minute
}

// ResubscribeDelay returns the pause before re-opening a lost subscription.
func (c *Config) ResubscribeDelay() time.Duration {
	return time.Duration(c.Reconciler.ResubscribeDelaySeconds) * time.Second
}

// IndexerTimeout returns the HTTP timeout for indexer requests.
func (c *Config) IndexerTimeout() time.Duration {
	return time.Duration(c.Indexer.TimeoutSeconds) * time.Second
}

// applyEnvOverrides replaces values with environment variables when set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Chain.ChainID = id
		}
	}
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		cfg.Liquidation.PrivateKey = v
	}
	if v := os.Getenv("LIQUIDATOR_CONTRACT"); v != "" {
		cfg.Liquidation.Contract = v
	}
	if v := os.Getenv("SUBGRAPH_URL"); v != "" {
		cfg.Indexer.URL = v
	}
	if v := os.Getenv("SUBGRAPH_API_KEY"); v != "" {
		cfg.Indexer.APIKey = v
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		cfg.Liquidation.DryRun = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults fills in sensible values for anything left unset.
func setDefaults(cfg *Config) {
	if cfg.Chain.ChainID == 0 {
		cfg.Chain.ChainID = 137 // Polygon PoS
	}
	if cfg.Chain.RPS <= 0 {
		cfg.Chain.RPS = 25
	}
	if cfg.Chain.Burst <= 0 {
		cfg.Chain.Burst = 10
	}
	if cfg.Indexer.PageSize <= 0 {
		cfg.Indexer.PageSize = 1000
	}
	if cfg.Indexer.MaxPages <= 0 {
		cfg.Indexer.MaxPages = 200
	}
	if cfg.Indexer.TimeoutSeconds <= 0 {
		cfg.Indexer.TimeoutSeconds = 10
	}
	if cfg.Liquidation.ConcurrencyLimit == 0 {
		cfg.Liquidation.ConcurrencyLimit = 5
	}
	if cfg.Liquidation.MaxAttempts == 0 {
		cfg.Liquidation.MaxAttempts = 2
	}
	if cfg.Liquidation.RetryDelayMs == 0 {
		cfg.Liquidation.RetryDelayMs = 1000
	}
	if cfg.Liquidation.ReceiptTimeoutSeconds <= 0 {
		cfg.Liquidation.ReceiptTimeoutSeconds = 60
	}
	if cfg.Pipeline.SlippageBps == nil {
		v := uint64(defaultSlippageBps)
		cfg.Pipeline.SlippageBps = &v
	}
	if cfg.Pipeline.HealthWorkers <= 0 {
		cfg.Pipeline.HealthWorkers = 8
	}
	if cfg.Reconciler.ResubscribeDelaySeconds <= 0 {
		cfg.Reconciler.ResubscribeDelaySeconds = 5
	}
	if cfg.Reconciler.EventBuffer <= 0 {
		cfg.Reconciler.EventBuffer = 256
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
