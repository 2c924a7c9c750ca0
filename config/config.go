package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/slyncl12/luckyvault/internal/domain"
)

// Config is the keeper's complete configuration, built once at startup and
// injected into each component. No ambient globals.
type Config struct {
	Keeper    KeeperConfig    `yaml:"keeper"`
	Liquidity LiquidityConfig `yaml:"liquidity"`
	Draws     DrawsConfig     `yaml:"draws"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Lending   LendingConfig   `yaml:"lending"`
	Storage   StorageConfig   `yaml:"storage"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Log       LogConfig       `yaml:"log"`
}

// KeeperConfig controls the runtime's polling behavior.
type KeeperConfig struct {
	RebalanceIntervalSeconds int `yaml:"rebalance_interval_seconds"`
	FulfillIntervalSeconds   int `yaml:"fulfill_interval_seconds"`
	SubmitTimeoutSeconds     int `yaml:"submit_timeout_seconds"`
	LookbackMinutes          int `yaml:"lookback_minutes"`       // withdrawal event scan floor
	CursorOverlapSeconds     int `yaml:"cursor_overlap_seconds"` // re-scan overlap behind the cursor
}

// LiquidityConfig is the hysteresis band, in whole USDC.
type LiquidityConfig struct {
	MinUSDC    float64 `yaml:"min_usdc"`
	TargetUSDC float64 `yaml:"target_usdc"`
	MaxUSDC    float64 `yaml:"max_usdc"`
}

// DrawsConfig holds per-cadence yield shares and the payout dust threshold.
type DrawsConfig struct {
	HourlySharePercent  float64 `yaml:"hourly_share_percent"`
	DailySharePercent   float64 `yaml:"daily_share_percent"`
	WeeklySharePercent  float64 `yaml:"weekly_share_percent"`
	MonthlySharePercent float64 `yaml:"monthly_share_percent"`
	DustThresholdUSDC   float64 `yaml:"dust_threshold_usdc"`
}

// LedgerConfig identifies the chain objects the keeper drives.
type LedgerConfig struct {
	RPCURL       string `yaml:"rpc_url"`
	PackageID    string `yaml:"package_id"`
	Module       string `yaml:"module"`
	PoolID       string `yaml:"pool_id"`
	AdminCapID   string `yaml:"admin_cap_id"`
	TrackerID    string `yaml:"tracker_id"`
	DrawConfigID string `yaml:"draw_config_id"`
	CoinType     string `yaml:"coin_type"`
	GasBudget    uint64 `yaml:"gas_budget"`
}

// LendingConfig identifies the lending protocol's market objects and rate API.
type LendingConfig struct {
	PackageID string `yaml:"package_id"`
	MarketID  string `yaml:"market_id"`
	APIBase   string `yaml:"api_base"`
}

// StorageConfig controls where keeper-local state is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// AlertsConfig configures the Telegram alerter. The bot token comes from the
// environment, never from the file.
type AlertsConfig struct {
	TelegramChatID string `yaml:"telegram_chat_id"`
	telegramToken  string
}

// TelegramToken returns the bot token loaded from the environment.
func (a AlertsConfig) TelegramToken() string { return a.telegramToken }

// LogConfig controls log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML config and the .env file if present. Environment
// variables override file values for the keys that map to secrets.
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
		return nil, err
	}
	return &cfg, nil
}

// Validate fails fast on anything that would make ticking unsafe: malformed
// object IDs or an inverted liquidity band. The process must not start
// ticking against a half-configured ledger.
func (c *Config) Validate() error {
	if c.Ledger.RPCURL == "" {
		return fmt.Errorf("config.Validate: ledger.rpc_url is required")
	}
	required := map[string]string{
		"ledger.package_id":     c.Ledger.PackageID,
		"ledger.pool_id":        c.Ledger.PoolID,
		"ledger.admin_cap_id":   c.Ledger.AdminCapID,
		"ledger.tracker_id":     c.Ledger.TrackerID,
		"ledger.draw_config_id": c.Ledger.DrawConfigID,
		"lending.package_id":    c.Lending.PackageID,
		"lending.market_id":     c.Lending.MarketID,
	}
	for name, id := range required {
		if !validObjectID(id) {
			return fmt.Errorf("config.Validate: %s: malformed object ID %q", name, id)
		}
	}
	if c.Ledger.CoinType == "" {
		return fmt.Errorf("config.Validate: ledger.coin_type is required")
	}
	if err := c.Band().Validate(); err != nil {
		return fmt.Errorf("config.Validate: liquidity band: %w", err)
	}
	return nil
}

// Band converts the liquidity thresholds to base units.
func (c *Config) Band() domain.Band {
	return domain.Band{
		Min:    domain.FromUSD(c.Liquidity.MinUSDC),
		Target: domain.FromUSD(c.Liquidity.TargetUSDC),
		Max:    domain.FromUSD(c.Liquidity.MaxUSDC),
	}
}

// YieldShares maps each cadence to its configured share of available yield.
func (c *Config) YieldShares() map[domain.Cadence]float64 {
	return map[domain.Cadence]float64{
		domain.CadenceHourly:  c.Draws.HourlySharePercent,
		domain.CadenceDaily:   c.Draws.DailySharePercent,
		domain.CadenceWeekly:  c.Draws.WeeklySharePercent,
		domain.CadenceMonthly: c.Draws.MonthlySharePercent,
	}
}

func (c *Config) RebalanceInterval() time.Duration {
	return time.Duration(c.Keeper.RebalanceIntervalSeconds) * time.Second
}

func (c *Config) FulfillInterval() time.Duration {
	return time.Duration(c.Keeper.FulfillIntervalSeconds) * time.Second
}

func (c *Config) SubmitTimeout() time.Duration {
	return time.Duration(c.Keeper.SubmitTimeoutSeconds) * time.Second
}

func (c *Config) EventLookback() time.Duration {
	return time.Duration(c.Keeper.LookbackMinutes) * time.Minute
}

func (c *Config) CursorOverlap() time.Duration {
	return time.Duration(c.Keeper.CursorOverlapSeconds) * time.Second
}

func (c *Config) DustThreshold() domain.Amount {
	return domain.FromUSD(c.Draws.DustThresholdUSDC)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("LEDGER_RPC_URL"); v != "" {
		cfg.Ledger.RPCURL = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Alerts.TelegramChatID = v
	}
	cfg.Alerts.telegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
}

func setDefaults(cfg *Config) {
	if cfg.Keeper.RebalanceIntervalSeconds <= 0 {
		cfg.Keeper.RebalanceIntervalSeconds = 60
	}
	if cfg.Keeper.FulfillIntervalSeconds <= 0 {
		cfg.Keeper.FulfillIntervalSeconds = 30
	}
	if cfg.Keeper.SubmitTimeoutSeconds <= 0 {
		cfg.Keeper.SubmitTimeoutSeconds = 45
	}
	if cfg.Keeper.LookbackMinutes <= 0 {
		cfg.Keeper.LookbackMinutes = 60
	}
	if cfg.Keeper.CursorOverlapSeconds <= 0 {
		cfg.Keeper.CursorOverlapSeconds = 60
	}
	if cfg.Draws.HourlySharePercent <= 0 {
		cfg.Draws.HourlySharePercent = 1
	}
	if cfg.Draws.DailySharePercent <= 0 {
		cfg.Draws.DailySharePercent = 5
	}
	if cfg.Draws.WeeklySharePercent <= 0 {
		cfg.Draws.WeeklySharePercent = 20
	}
	if cfg.Draws.MonthlySharePercent <= 0 {
		cfg.Draws.MonthlySharePercent = 50
	}
	if cfg.Draws.DustThresholdUSDC <= 0 {
		cfg.Draws.DustThresholdUSDC = 0.01
	}
	if cfg.Ledger.Module == "" {
		cfg.Ledger.Module = "lottery"
	}
	if cfg.Ledger.GasBudget == 0 {
		cfg.Ledger.GasBudget = 50_000_000
	}
	if cfg.Lending.APIBase == "" {
		cfg.Lending.APIBase = "https://open-api.naviprotocol.io"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "keeper.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// validObjectID accepts 0x-prefixed hex object IDs.
func validObjectID(id string) bool {
	if !strings.HasPrefix(id, "0x") || len(id) < 4 {
		return false
	}
	for _, r := range id[2:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
