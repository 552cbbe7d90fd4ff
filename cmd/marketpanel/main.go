// Batch tool: build the forecasting panel for the configured symbols and
// write per-symbol CSVs, combined.csv, and combined.parquet.
//
// Usage:
//
//	marketpanel [-symbols AAPL,MSFT] [-symbols-file universe.csv] [-skip-failed]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"marketpanel/internal/app"
	"marketpanel/internal/domain"
	"marketpanel/internal/gather/us"
	"marketpanel/internal/panel"
	"marketpanel/internal/util"
)

func main() {
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols (default: panel.symbols)")
	symbolsFile := flag.String("symbols-file", "", "CSV file with a symbol column")
	skipFailed := flag.Bool("skip-failed", false, "log and drop symbols that fail instead of aborting")
	outDir := flag.String("out", "", "output folder (default: panel.data_folder)")
	horizon := flag.Int("horizon-days", panel.DefaultHorizonDays, "days past the panel end covered by the holiday list")
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	util.SetDefault(logger)

	a, err := app.New(cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialise: %v", err)
	}
	defer a.Close()

	var symbols []string
	if *symbolsFlag != "" {
		for _, s := range strings.Split(*symbolsFlag, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				symbols = append(symbols, s)
			}
		}
	}
	if *symbolsFile != "" {
		fromFile, err := us.LoadSymbolFile(*symbolsFile)
		if err != nil {
			log.Fatalf("failed to load symbols: %v", err)
		}
		symbols = append(symbols, fromFile...)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	req := a.PanelRequest(time.Now(), symbols)
	req.SkipFailed = *skipFailed

	p, err := a.Builder.Build(ctx, req)
	if err != nil {
		var se *panel.SymbolError
		if errors.As(err, &se) {
			fmt.Fprintf(os.Stderr, "panel build aborted at %s for %s: %v\n", se.Stage, se.Symbol, se.Err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "panel build failed: %v\n", err)
		os.Exit(1)
	}

	dir := cfg.Panel.DataFolder
	if *outDir != "" {
		dir = *outDir
	}
	if err := panel.WriteOutputs(dir, p); err != nil {
		log.Fatalf("failed to write outputs: %v", err)
	}

	freq := panel.ForecastFrequency(p.Rows, *horizon)
	fmt.Printf("panel: %d rows, %d symbols, %s..%s -> %s\n", len(p.Rows), len(p.Frames),
		p.Sessions[0].Format(domain.DateLayout), p.Sessions[len(p.Sessions)-1].Format(domain.DateLayout), dir)
	for sym, n := range p.Imputed() {
		if n > 0 {
			fmt.Printf("  %-6s %d sessions filled\n", sym, n)
		}
	}
	for _, f := range p.Failed {
		fmt.Printf("  %-6s skipped at %s: %v\n", f.Symbol, f.Stage, f.Err)
	}
	fmt.Printf("frequency: %s with %d holidays\n", freq.Base, len(freq.Holidays))
}
