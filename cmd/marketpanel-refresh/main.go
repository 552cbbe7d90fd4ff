package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"marketpanel/internal/app"
	"marketpanel/internal/gather"
	"marketpanel/internal/util"
)

func main() {
	once := flag.Bool("once", false, "refresh once and exit")
	status := flag.Bool("status", false, "print cache status per symbol and exit")
	history := flag.Int("history", 0, "print the last N fetch log records per symbol and exit")
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	util.SetDefault(logger)

	a, err := app.New(cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialise: %v", err)
	}
	defer a.Close()

	g := gather.NewRefreshGatherer(a.Cache, cfg.PanelSymbols(),
		gather.WithSchedule(cfg.Refresh.Cron),
		gather.WithLocation(util.MarketLocation(a.Market)),
		gather.WithRunOnStart(cfg.Refresh.RunOnStart),
		gather.WithRefreshLogger(logger),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *status {
		st, err := a.Status(ctx, cfg.PanelSymbols())
		if err != nil {
			log.Fatalf("failed to read status: %v", err)
		}
		a.WriteStatus(os.Stdout, st)
		return
	}
	if *history > 0 {
		if err := a.WriteHistory(ctx, os.Stdout, cfg.PanelSymbols(), *history); err != nil {
			log.Fatalf("failed to read history: %v", err)
		}
		return
	}

	if *once {
		if err := g.RunOnce(ctx); err != nil {
			logger.Error("refresh failed", "error", err)
			os.Exit(1)
		}
		return
	}

	logger.Info("starting gatherer", "name", g.Name())
	if err := g.Run(ctx); err != nil {
		log.Fatalf("gatherer error: %v", err)
	}
}
