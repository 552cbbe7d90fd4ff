package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for marketpanel.
type Config struct {
	Storage    Storage    `yaml:"storage"`
	TwelveData TwelveData `yaml:"twelvedata"`
	Retry      Retry      `yaml:"retry"`
	Cache      Cache      `yaml:"cache"`
	Calendar   Calendar   `yaml:"calendar"`
	Alpaca     Alpaca     `yaml:"alpaca"`
	Panel      Panel      `yaml:"panel"`
	Refresh    Refresh    `yaml:"refresh"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// TwelveData configures the quote/series provider.
type TwelveData struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// RateLimitPerMin of 0 disables throttling.
	RateLimitPerMin int `yaml:"rate_limit_per_min"`
	OutputSize      int `yaml:"output_size"`
	QuoteOutputSize int `yaml:"quote_output_size"`
}

// Retry is the provider retry schedule.
type Retry struct {
	MaxAttempts    int             `yaml:"max_attempts"`
	Delays         []time.Duration `yaml:"delays"`
	TransportDelay time.Duration   `yaml:"transport_delay"`
}

// Cache configures the in-memory tier.
type Cache struct {
	TTL time.Duration `yaml:"ttl"`
}

// Calendar selects the trading calendar.
type Calendar struct {
	Market       string `yaml:"market"`
	LookbackDays int    `yaml:"lookback_days"`
	// SessionCutoff is an "HH:MM" market-local time before which today's
	// session is not yet considered complete. Empty disables it.
	SessionCutoff string `yaml:"session_cutoff"`
	// Source is "rules" or "alpaca".
	Source string `yaml:"source"`
}

// Alpaca holds credentials and endpoints for the Alpaca calendar API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
}

// Panel controls the panel build.
type Panel struct {
	Symbols        []string `yaml:"symbols"`
	OverviewSymbol string   `yaml:"overview_symbol"`
	NbYears        int      `yaml:"nb_years"`
	// MaxMissingData of 0 tolerates no missing sessions.
	MaxMissingData float64 `yaml:"max_missing_data"`
	// EndDateOffset shifts the window end back from today, in days.
	EndDateOffset int    `yaml:"end_date_offset"`
	DataFolder    string `yaml:"data_folder"`
	Workers       int    `yaml:"workers"`
}

// Refresh schedules the cache refresh job.
type Refresh struct {
	Cron       string `yaml:"cron"`
	RunOnStart bool   `yaml:"run_on_start"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// Documented defaults.
const (
	DefaultDataDir         = "resources/data"
	DefaultBaseURL         = "https://api.twelvedata.com"
	DefaultTimeout         = 30 * time.Second
	DefaultRateLimitPerMin = 8
	DefaultOutputSize      = 5000
	DefaultQuoteOutputSize = 30
	DefaultMaxAttempts     = 3
	DefaultTransportDelay  = 5 * time.Second
	DefaultCacheTTL        = 5 * time.Minute
	DefaultMarket          = "NYSE"
	DefaultLookbackDays    = 10
	DefaultOverviewSymbol  = "SPY"
	DefaultNbYears         = 5
	DefaultMaxMissingData  = 0.05
	DefaultRefreshCron     = "0 15 20 * * 1-5"
	DefaultGRPCPort        = 9090
)

// DefaultSymbols is the panel universe when none is configured.
var DefaultSymbols = []string{"AAPL", "NVDA", "MSFT", "AMZN", "GLD", "GOOGL", "TSLA"}

// DefaultDelays is the wait before each retry of a rate-limited request.
var DefaultDelays = []time.Duration{62 * time.Second, 122 * time.Second}

// ErrInvalid marks a configuration that fails validation.
var ErrInvalid = errors.New("invalid configuration")

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, applies
// environment variable overrides and defaults, and validates the result.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := newConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newConfig seeds the keys where zero is a meaningful setting, so only an
// absent key takes the default.
func newConfig() *Config {
	cfg := &Config{}
	cfg.TwelveData.RateLimitPerMin = DefaultRateLimitPerMin
	cfg.Panel.MaxMissingData = DefaultMaxMissingData
	return cfg
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TWELVE_API_KEY"); v != "" {
		cfg.TwelveData.APIKey = v
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("SYMBOLS"); v != "" {
		cfg.Panel.Symbols = strings.Split(v, ",")
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func (c *Config) applyDefaults() {
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = DefaultDataDir
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join(c.Storage.DataDir, "fetch_log.db")
	}

	td := &c.TwelveData
	if td.BaseURL == "" {
		td.BaseURL = DefaultBaseURL
	}
	if td.Timeout == 0 {
		td.Timeout = DefaultTimeout
	}
	if td.OutputSize == 0 {
		td.OutputSize = DefaultOutputSize
	}
	if td.QuoteOutputSize == 0 {
		td.QuoteOutputSize = DefaultQuoteOutputSize
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Retry.Delays == nil {
		c.Retry.Delays = append([]time.Duration(nil), DefaultDelays...)
	}
	if c.Retry.TransportDelay == 0 {
		c.Retry.TransportDelay = DefaultTransportDelay
	}

	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}

	if c.Calendar.Market == "" {
		c.Calendar.Market = DefaultMarket
	}
	if c.Calendar.LookbackDays == 0 {
		c.Calendar.LookbackDays = DefaultLookbackDays
	}
	if c.Calendar.Source == "" {
		c.Calendar.Source = "rules"
	}

	p := &c.Panel
	if len(p.Symbols) == 0 {
		p.Symbols = append([]string(nil), DefaultSymbols...)
	}
	if p.OverviewSymbol == "" {
		p.OverviewSymbol = DefaultOverviewSymbol
	}
	if p.NbYears == 0 {
		p.NbYears = DefaultNbYears
	}
	if p.DataFolder == "" {
		p.DataFolder = c.Storage.DataDir
	}
	if p.Workers == 0 {
		p.Workers = 1
	}

	if c.Refresh.Cron == "" {
		c.Refresh.Cron = DefaultRefreshCron
	}

	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = DefaultGRPCPort
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate reports the first invalid key.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalid, key, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.TwelveData.APIKey) == "" {
		return invalid("twelvedata.api_key", "required (set TWELVE_API_KEY)")
	}
	if c.TwelveData.RateLimitPerMin < 0 {
		return invalid("twelvedata.rate_limit_per_min", "must not be negative, got %d", c.TwelveData.RateLimitPerMin)
	}
	if c.TwelveData.OutputSize < 1 {
		return invalid("twelvedata.output_size", "must be positive, got %d", c.TwelveData.OutputSize)
	}
	if c.TwelveData.QuoteOutputSize < 2 {
		return invalid("twelvedata.quote_output_size", "must be at least 2, got %d", c.TwelveData.QuoteOutputSize)
	}
	if c.Retry.MaxAttempts < 1 {
		return invalid("retry.max_attempts", "must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	for i, d := range c.Retry.Delays {
		if d < 0 {
			return invalid(fmt.Sprintf("retry.delays[%d]", i), "must not be negative, got %s", d)
		}
	}
	if c.Cache.TTL < 0 {
		return invalid("cache.ttl", "must not be negative, got %s", c.Cache.TTL)
	}
	if c.Calendar.LookbackDays < 1 {
		return invalid("calendar.lookback_days", "must be positive, got %d", c.Calendar.LookbackDays)
	}
	if _, err := c.SessionCutoff(); err != nil {
		return invalid("calendar.session_cutoff", "%v", err)
	}
	switch c.Calendar.Source {
	case "rules":
	case "alpaca":
		if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
			return invalid("alpaca.api_key", "alpaca calendar requires api_key and api_secret")
		}
	default:
		return invalid("calendar.source", "want rules or alpaca, got %q", c.Calendar.Source)
	}
	if c.Panel.NbYears < 1 {
		return invalid("panel.nb_years", "must be positive, got %d", c.Panel.NbYears)
	}
	if c.Panel.MaxMissingData < 0 || c.Panel.MaxMissingData > 1 {
		return invalid("panel.max_missing_data", "must be within [0, 1], got %v", c.Panel.MaxMissingData)
	}
	if c.Panel.EndDateOffset < 0 {
		return invalid("panel.end_date_offset", "must not be negative, got %d", c.Panel.EndDateOffset)
	}
	if c.Panel.Workers < 1 {
		return invalid("panel.workers", "must be at least 1, got %d", c.Panel.Workers)
	}
	if len(c.PanelSymbols()) == 0 {
		return invalid("panel.symbols", "no symbols configured")
	}
	if c.Server.GRPCPort < 1 || c.Server.GRPCPort > 65535 {
		return invalid("server.grpc_port", "out of range: %d", c.Server.GRPCPort)
	}
	return nil
}

// SessionCutoff parses calendar.session_cutoff into a duration since
// midnight. Zero means no cutoff.
func (c *Config) SessionCutoff() (time.Duration, error) {
	s := strings.TrimSpace(c.Calendar.SessionCutoff)
	if s == "" {
		return 0, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// PanelSymbols returns the configured symbols uppercased and deduplicated,
// with the overview symbol appended when absent.
func (c *Config) PanelSymbols() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, s := range c.Panel.Symbols {
		add(s)
	}
	add(c.Panel.OverviewSymbol)
	return out
}

// GRPCAddr is the gRPC listen address.
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}
