// Package app wires configuration into the calendar, provider client,
// stores, cache manager, and panel builder shared by every command.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"marketpanel/internal/config"
	"marketpanel/internal/domain"
	"marketpanel/internal/gather/twelvedata"
	"marketpanel/internal/gather/us"
	"marketpanel/internal/marketcache"
	"marketpanel/internal/panel"
	"marketpanel/internal/store"
	"marketpanel/internal/util"
)

// NamesFile is the company-name cache file under storage.data_dir.
const NamesFile = "company_names.json"

// DefaultConfigPath is read when MARKETPANEL_CONFIG is unset.
const DefaultConfigPath = "config/marketpanel.yaml"

// App holds the wired components.
type App struct {
	Config   *config.Config
	Log      *slog.Logger
	Market   domain.Market
	Calendar *util.TradingCalendar
	Client   *twelvedata.Client
	Series   *store.ParquetStore
	Names    *store.NameFile
	FetchLog *store.SQLiteStore
	Cache    *marketcache.Manager
	Builder  *panel.Builder
}

// LoadConfig loads MARKETPANEL_CONFIG, or DefaultConfigPath when it exists,
// or the environment alone.
func LoadConfig() (*config.Config, error) {
	path := os.Getenv("MARKETPANEL_CONFIG")
	if path == "" {
		if _, err := os.Stat(DefaultConfigPath); err == nil {
			path = DefaultConfigPath
		}
	}
	return config.Load(path)
}

// New builds every component from cfg.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = util.Discard()
	}
	a := &App{Config: cfg, Log: logger, Market: domain.Market(strings.ToUpper(cfg.Calendar.Market))}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	cal, err := newCalendar(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Calendar = cal

	a.Client, err = twelvedata.NewClient(cfg.TwelveData.APIKey,
		twelvedata.WithBaseURL(cfg.TwelveData.BaseURL),
		twelvedata.WithHTTPClient(&http.Client{Timeout: cfg.TwelveData.Timeout}),
		twelvedata.WithRateLimit(cfg.TwelveData.RateLimitPerMin),
		twelvedata.WithRetryPolicy(util.RetryPolicy{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			Delays:         cfg.Retry.Delays,
			TransportDelay: cfg.Retry.TransportDelay,
		}),
		twelvedata.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("creating provider client: %w", err)
	}

	a.Series = store.NewParquetStore(cfg.Storage.DataDir)
	a.Names = store.OpenNameFile(filepath.Join(cfg.Storage.DataDir, NamesFile), logger)

	a.FetchLog, err = store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("opening fetch log: %w", err)
	}

	a.Cache = marketcache.New(a.Client, a.Series, a.Calendar, cfg.Cache.TTL,
		marketcache.WithMarket(a.Market),
		marketcache.WithOutputSize(cfg.TwelveData.OutputSize),
		marketcache.WithQuoteOutputSize(cfg.TwelveData.QuoteOutputSize),
		marketcache.WithNameStore(a.Names),
		marketcache.WithFetchLog(a.FetchLog),
		marketcache.WithLogger(logger),
	)
	a.Builder = panel.NewBuilder(a.Cache, a.Calendar, logger)
	return a, nil
}

func newCalendar(cfg *config.Config, logger *slog.Logger) (*util.TradingCalendar, error) {
	cutoff, err := cfg.SessionCutoff()
	if err != nil {
		return nil, err
	}
	var source util.CalendarSource = util.NYSERules{}
	if cfg.Calendar.Source == "alpaca" {
		source = us.NewAlpacaCalendar(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
	}
	return util.NewTradingCalendar(source,
		util.WithLookbackDays(cfg.Calendar.LookbackDays),
		util.WithSessionCutoff(cutoff),
		util.WithCalendarLogger(logger),
	), nil
}

// PanelRequest derives the build window from the configuration: the window
// ends end_date_offset days before now and spans nb_years of 365 days.
func (a *App) PanelRequest(now time.Time, symbols []string) panel.Request {
	p := a.Config.Panel
	end := domain.Day(now.In(util.MarketLocation(a.Market))).AddDate(0, 0, -p.EndDateOffset)
	if len(symbols) == 0 {
		symbols = a.Config.PanelSymbols()
	}
	return panel.Request{
		Symbols:    symbols,
		Start:      end.AddDate(0, 0, -365*p.NbYears),
		End:        end,
		Market:     a.Market,
		Years:      p.NbYears,
		MaxMissing: p.MaxMissingData,
		Interval:   marketcache.DefaultInterval,
		Workers:    p.Workers,
	}
}

// Close releases the fetch log.
func (a *App) Close() error {
	var errs []error
	if a.FetchLog != nil {
		errs = append(errs, a.FetchLog.Close())
	}
	return errors.Join(errs...)
}
