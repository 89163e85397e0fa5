// Package config loads the engine's YAML configuration, overridden by
// .env-sourced API credentials, exactly as the teacher's config.Load does
// for its scanner.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Mode is the engine's trading mode.
type Mode string

const (
	ModeLive      Mode = "LIVE"
	ModePaper     Mode = "PAPER"
	ModeBacktest  Mode = "BACKTEST"
)

// Config is the engine's full configuration, covering capital limits,
// scan cadence, order sizing, and the API credentials the korbitapi
// client signs requests with.
type Config struct {
	Mode Mode `yaml:"mode"`

	InitialCapital      float64 `yaml:"initial_capital"`
	ScanIntervalSeconds int     `yaml:"scan_interval_seconds"`
	MinVolumeKRW        float64 `yaml:"min_volume_krw"`

	MaxPositions         int     `yaml:"max_positions"`
	MaxDailyTrades       int     `yaml:"max_daily_trades"`
	MaxDrawdown          float64 `yaml:"max_drawdown"`
	MaxDailyLossKRW      float64 `yaml:"max_daily_loss_krw"`
	MaxDailyLossPct      float64 `yaml:"max_daily_loss_pct"`

	MaxOrderKRW float64 `yaml:"max_order_krw"`
	MinOrderKRW float64 `yaml:"min_order_krw"`

	OrderFeeReservePct   float64 `yaml:"order_fee_reserve_pct"`
	MaxNewOrdersPerScan  int     `yaml:"max_new_orders_per_scan"`
	DryRun               bool    `yaml:"dry_run"`

	// SmallAccount carries the source's small-account tier knobs. The
	// core engine's small-seed correction is derived purely from
	// MinOrderKRW (see the engine's applyOrderSizeBounds); these fields are informational,
	// per the Open Questions carried into SPEC_FULL.md.
	SmallAccount SmallAccountConfig `yaml:"small_account"`

	// Hostility carries the source's hostile-market thresholds. Not
	// consumed by the core engine; informational until a component
	// claims them.
	Hostility HostilityConfig `yaml:"hostility"`

	EnabledStrategies []string `yaml:"enabled_strategies"`

	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// SmallAccountConfig is the source's tiered small-account knobs.
type SmallAccountConfig struct {
	Tier1Threshold float64 `yaml:"tier1_threshold"`
	Tier1MaxOrders int     `yaml:"tier1_max_orders"`
	Tier2Threshold float64 `yaml:"tier2_threshold"`
	Tier2MaxOrders int     `yaml:"tier2_max_orders"`
}

// HostilityConfig is the source's hostile-market detection thresholds.
type HostilityConfig struct {
	MaxSpreadPct       float64 `yaml:"max_spread_pct"`
	MinLiquidityScore  float64 `yaml:"min_liquidity_score"`
	MaxVolatilityPct   float64 `yaml:"max_volatility_pct"`
}

// APIConfig holds the exchange base URLs and signing credentials. Keys
// are only ever populated via .env overrides, never committed to the
// YAML file.
type APIConfig struct {
	RESTBase  string `yaml:"rest_base"`
	WSBase    string `yaml:"ws_base"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
}

// StorageConfig controls where trade/position and learning-state data is
// persisted.
type StorageConfig struct {
	DSN          string `yaml:"dsn"`           // SQLite file path
	LearningPath string `yaml:"learning_path"` // learning-state snapshot JSON path
	UpdatesPath  string `yaml:"updates_path"`  // execution-update JSONL path
}

// LogConfig controls the format and level of structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file at path, then applies .env overrides for API
// credentials (which are never read from YAML), and fills in defaults.
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

	return &cfg, nil
}

// ScanInterval is the engine's slow-path cadence as a time.Duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSeconds) * time.Second
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KORBIT_ACCESS_KEY"); v != "" {
		cfg.API.AccessKey = v
	}
	if v := os.Getenv("KORBIT_SECRET_KEY"); v != "" {
		cfg.API.SecretKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Mode == "" {
		cfg.Mode = ModePaper
	}
	if cfg.ScanIntervalSeconds <= 0 {
		cfg.ScanIntervalSeconds = 60
	}
	if cfg.MaxPositions <= 0 {
		cfg.MaxPositions = 5
	}
	if cfg.MaxDailyTrades <= 0 {
		cfg.MaxDailyTrades = 50
	}
	if cfg.MaxDrawdown <= 0 {
		cfg.MaxDrawdown = 0.2
	}
	if cfg.MaxOrderKRW <= 0 {
		cfg.MaxOrderKRW = 1_000_000
	}
	if cfg.MinOrderKRW <= 0 {
		cfg.MinOrderKRW = 5000
	}
	if cfg.OrderFeeReservePct <= 0 {
		cfg.OrderFeeReservePct = 0.0005
	}
	if cfg.MaxNewOrdersPerScan <= 0 {
		cfg.MaxNewOrdersPerScan = 3
	}
	if cfg.API.RESTBase == "" {
		cfg.API.RESTBase = "https://api.korbit-engine.example/v1"
	}
	if cfg.API.WSBase == "" {
		cfg.API.WSBase = "wss://api.korbit-engine.example/websocket/v1/private"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "korbit_engine.db"
	}
	if cfg.Storage.LearningPath == "" {
		cfg.Storage.LearningPath = "state/learning_state.json"
	}
	if cfg.Storage.UpdatesPath == "" {
		cfg.Storage.UpdatesPath = "logs/execution_updates_live.jsonl"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if len(cfg.EnabledStrategies) == 0 {
		cfg.EnabledStrategies = []string{"momentum", "scalping"}
	}
}
