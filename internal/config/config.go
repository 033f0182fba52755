// Package config handles application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MaxActiveTenants caps how many configured tenants are traded per process.
const MaxActiveTenants = 1

// Config defines the structure for all application configuration.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Signal   SignalConfig   `yaml:"signal"`
	Timing   TimingConfig   `yaml:"timing"`
	PnL      PnLConfig      `yaml:"pnl"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Telegram TelegramConfig `yaml:"telegram"`
	Database DatabaseConfig `yaml:"database"`
	DBWriter DBWriterConfig `yaml:"db_writer"`
	Journal  JournalConfig  `yaml:"journal"`
	HTTP     HTTPConfig     `yaml:"http"`
	Tenants  []Tenant       `yaml:"tenants"`
}

// SignalConfig controls signal intake.
type SignalConfig struct {
	Tag             string   `yaml:"tag"`
	WindowSize      int      `yaml:"window_size"`
	ProcessingLimit int      `yaml:"processing_limit"`
	Blacklist       []string `yaml:"blacklist"`
	VolumeRate      float64  `yaml:"volume_rate"`
}

// TimingConfig holds loop intervals.
type TimingConfig struct {
	PositionsUpdateInterval time.Duration `yaml:"positions_update_interval"`
	MainCycleInterval       time.Duration `yaml:"main_cycle_interval"`
	PingInterval            time.Duration `yaml:"ping_interval"`
	WatchdogPollInterval    time.Duration `yaml:"watchdog_poll_interval"`
	AutoStart               FlexBool      `yaml:"auto_start"`
}

// PnLConfig selects the PnL strategy.
type PnLConfig struct {
	Strategy    string  `yaml:"strategy"` // "ledger" or "mark"
	SlippagePct float64 `yaml:"slippage_pct"`
}

// ExchangeConfig holds OKX transport settings.
type ExchangeConfig struct {
	BaseURL         string        `yaml:"base_url"`
	WSURL           string        `yaml:"ws_url"`
	EnableTickerWS  FlexBool      `yaml:"enable_ticker_ws"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateBurst       int           `yaml:"rate_burst"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	Simulated       FlexBool      `yaml:"simulated"`
}

// TelegramConfig configures the signal watcher and notifier bot.
type TelegramConfig struct {
	Enabled       FlexBool `yaml:"enabled"`
	BotToken      string   `yaml:"-"` // Loaded from env
	ChannelID     int64    `yaml:"channel_id"`
	PollTimeout   int      `yaml:"poll_timeout"`
	NotifyEnabled FlexBool `yaml:"notify_enabled"`
}

// DatabaseConfig holds Postgres connection settings for the event journal.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// DBWriterConfig holds batching parameters for the journal writer.
type DBWriterConfig struct {
	BatchSize            int `yaml:"batch_size"`
	WriteIntervalSeconds int `yaml:"write_interval_seconds"`
}

// JournalConfig enables the CSV journal.
type JournalConfig struct {
	CSVPath string `yaml:"csv_path"`
}

// HTTPConfig holds the status server address.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Credentials are the OKX API credentials of one tenant.
type Credentials struct {
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	Passphrase string `yaml:"passphrase"`
}

// Complete reports whether all three credential parts are set.
func (c Credentials) Complete() bool {
	return c.APIKey != "" && c.APISecret != "" && c.Passphrase != ""
}

// Tenant is the per-account trading configuration.
type Tenant struct {
	ID                  string      `yaml:"id"`
	MarginSize          float64     `yaml:"margin_size"`
	MarginMode          MarginMode  `yaml:"margin_mode"`
	Leverage            int         `yaml:"leverage"`
	UseMarketOrder      FlexBool    `yaml:"use_market_order"`
	OrderTimeoutSeconds int         `yaml:"order_timeout_seconds"`
	ChatID              int64       `yaml:"chat_id"`
	Credentials         Credentials `yaml:"credentials"`
}

// OrderTimeout returns the limit-order fill budget.
func (t Tenant) OrderTimeout() time.Duration {
	return time.Duration(t.OrderTimeoutSeconds) * time.Second
}

// DSN builds a Postgres connection URL.
func (d DatabaseConfig) DSN() string {
	ssl := d.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, ssl)
}

// Enabled reports whether a database host has been configured.
func (d DatabaseConfig) Enabled() bool {
	return d.Host != "" && d.Name != ""
}

var (
	globalConfig *Config
	configMutex  sync.RWMutex
)

func defaults() *Config {
	return &Config{
		LogLevel: "info",
		Signal: SignalConfig{
			Tag:             "#soft",
			WindowSize:      20,
			ProcessingLimit: 10,
			VolumeRate:      100,
		},
		Timing: TimingConfig{
			PositionsUpdateInterval: time.Second,
			MainCycleInterval:       time.Second,
			PingInterval:            10 * time.Second,
			WatchdogPollInterval:    100 * time.Millisecond,
			AutoStart:               true,
		},
		PnL: PnLConfig{
			Strategy:    "ledger",
			SlippagePct: 0.09,
		},
		Exchange: ExchangeConfig{
			BaseURL:         "https://www.okx.com",
			WSURL:           "wss://ws.okx.com:8443/ws/v5/public",
			RateLimitPerSec: 10,
			RateBurst:       20,
			RetryBackoff:    time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Telegram: TelegramConfig{PollTimeout: 30},
		DBWriter: DBWriterConfig{BatchSize: 50, WriteIntervalSeconds: 5},
		HTTP:     HTTPConfig{Addr: ":8080"},
	}
}

func applyTenantDefaults(t *Tenant, idx int) {
	if t.ID == "" {
		t.ID = strconv.Itoa(idx + 1)
	}
	if t.MarginMode == "" {
		t.MarginMode = MarginCross
	}
	if t.OrderTimeoutSeconds <= 0 {
		t.OrderTimeoutSeconds = 60
	}
}

// LoadConfig loads configuration from the specified YAML file path,
// an optional .env file next to the working directory, and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	// A missing .env is not an error.
	_ = godotenv.Load()

	cfg := defaults()

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(file, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)

	for i := range cfg.Tenants {
		applyTenantDefaults(&cfg.Tenants[i], i)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMutex.Lock()
	globalConfig = cfg
	configMutex.Unlock()
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Telegram.BotToken = token
	}
	if v := os.Getenv("OKX_BASE_URL"); v != "" {
		cfg.Exchange.BaseURL = v
	}

	key, secret, pass := os.Getenv("OKX_API_KEY"), os.Getenv("OKX_API_SECRET"), os.Getenv("OKX_API_PASSPHRASE")
	if key != "" || secret != "" || pass != "" {
		if len(cfg.Tenants) == 0 {
			cfg.Tenants = append(cfg.Tenants, Tenant{})
		}
		creds := &cfg.Tenants[0].Credentials
		if key != "" {
			creds.APIKey = key
		}
		if secret != "" {
			creds.APISecret = secret
		}
		if pass != "" {
			creds.Passphrase = pass
		}
	}

	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		if p, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = p
		}
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		cfg.Database.Password = dbPassword
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.Database.Name = dbName
	}
}

// Validate checks the values the trading loop depends on.
func (c *Config) Validate() error {
	var errs []error
	if c.Signal.WindowSize <= 0 {
		errs = append(errs, errors.New("signal.window_size must be positive"))
	}
	if c.Signal.ProcessingLimit <= 0 {
		errs = append(errs, errors.New("signal.processing_limit must be positive"))
	}
	if c.Timing.PositionsUpdateInterval <= 0 || c.Timing.MainCycleInterval <= 0 {
		errs = append(errs, errors.New("timing intervals must be positive"))
	}
	switch strings.ToLower(c.PnL.Strategy) {
	case "ledger", "mark":
	default:
		errs = append(errs, fmt.Errorf("pnl.strategy must be ledger or mark, got %q", c.PnL.Strategy))
	}
	for i, t := range c.Tenants {
		if t.MarginSize <= 0 {
			errs = append(errs, fmt.Errorf("tenants[%d].margin_size must be positive", i))
		}
		if t.Leverage < 0 {
			errs = append(errs, fmt.Errorf("tenants[%d].leverage must not be negative", i))
		}
	}
	return errors.Join(errs...)
}

// GetConfig returns the most recently loaded configuration.
func GetConfig() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig
}
