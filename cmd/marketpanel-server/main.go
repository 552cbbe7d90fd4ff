package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"marketpanel/internal/api"
	"marketpanel/internal/app"
	"marketpanel/internal/gather"
	"marketpanel/internal/util"
)

func main() {
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

	srv := api.NewServer(cfg.GRPCAddr(), api.NewMarketDataService(a.Cache, logger), logger)
	refresher := gather.NewRefreshGatherer(a.Cache, cfg.PanelSymbols(),
		gather.WithSchedule(cfg.Refresh.Cron),
		gather.WithLocation(util.MarketLocation(a.Market)),
		gather.WithRunOnStart(cfg.Refresh.RunOnStart),
		gather.WithRefreshLogger(logger),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	g.Go(func() error { return refresher.Run(gctx) })

	logger.Info("marketpanel-server starting", "grpc", cfg.GRPCAddr())
	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
