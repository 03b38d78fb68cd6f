package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pricewatch-kr/danawa-scraper/config"
	"github.com/pricewatch-kr/danawa-scraper/models"
	"github.com/pricewatch-kr/danawa-scraper/pipeline"
	"github.com/pricewatch-kr/danawa-scraper/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Optional .env next to the binary; absence is fine.
	_ = godotenv.Load()

	defaultCfg := config.DefaultConfig()
	limitDefault := defaultCfg.PerOrderLimit
	if value, ok, err := config.EnvInt("SCRAPER_LIMIT"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_LIMIT: %v\n", err)
		os.Exit(1)
	} else if ok {
		limitDefault = value
	}
	delayDefault := defaultCfg.Delay
	if value, ok, err := config.EnvDuration("SCRAPER_DELAY"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_DELAY: %v\n", err)
		os.Exit(1)
	} else if ok {
		delayDefault = value
	}
	outputDefault := defaultCfg.OutputFile
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		outputDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	keyword := flag.String("keyword", "", "Search keyword (required)")
	makers := flag.String("maker", "", "Comma-separated facet codes to filter by")
	sorts := flag.String("sort", strings.Join(defaultCfg.SortOrders, ","), "Comma-separated sort orders")
	limit := flag.Int("limit", limitDefault, "Maximum products kept per sort order")
	optionsOnly := flag.Bool("options", false, "List manufacturer/brand facets and exit")
	delay := flag.Duration("delay", delayDefault, "Pause between successive requests")
	timeout := flag.Duration("timeout", defaultCfg.Timeout, "Per-request timeout")
	baseURL := flag.String("base-url", defaultCfg.BaseURL, "Search endpoint URL")
	outputFile := flag.String("output", outputDefault, "Output file path")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Output format: csv, json, xlsx, or dual")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	debugDir := flag.String("debug-dump", "", "Directory to write request/page/option-block dumps into")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if strings.TrimSpace(*keyword) == "" {
		fmt.Fprintln(os.Stderr, "usage: scraper -keyword <product> [-maker codes] [-sort orders]")
		os.Exit(2)
	}

	cfg := defaultCfg
	cfg.BaseURL = *baseURL
	cfg.Delay = *delay
	cfg.Timeout = *timeout
	cfg.PerOrderLimit = *limit
	cfg.SortOrders = splitList(*sorts)
	cfg.OutputFile = *outputFile
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	session := &models.SearchSession{
		Keyword:       *keyword,
		SelectedCodes: splitList(*makers),
	}

	slog.Info("discovering facets", slog.String("keyword", session.Keyword))
	facets, err := s.SearchOptions(ctx, session.Keyword)
	if err != nil {
		// A dead facet fetch is reported but not fatal: the listing
		// queries may still succeed, and an explicit maker filter does
		// not need the facet list at all.
		slog.Error("facet discovery failed", slog.Any("error", err))
	}
	session.Facets = facets

	if *optionsOnly {
		printFacets(session)
		dumpDebug(s, *debugDir)
		return
	}

	startTime := time.Now()
	result, err := s.Aggregate(ctx, scraper.AggregateRequest{
		Keyword:       session.Keyword,
		MakerCodes:    session.SelectedCodes,
		SortOrders:    toSortOrders(cfg.SortOrders),
		PerOrderLimit: cfg.PerOrderLimit,
	})
	if err != nil {
		slog.Error("search failed", slog.Any("error", err))
		os.Exit(1)
	}
	session.Results = result.Products
	result.FacetCount = len(session.Facets)

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}

	p := pipeline.NewPipeline(ctx, writer, cfg)
	p.Start(1)
	if err := p.Process(result.Products); err != nil {
		slog.Error("pipeline process failed", slog.Any("error", err))
	}
	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}
	if len(result.Products) > 0 {
		if err := writer.Validate(); err != nil {
			slog.Error("output validation failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
	if err := writer.Close(); err != nil {
		slog.Error("close writer", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	dumpDebug(s, *debugDir)
	printSummary(session, result, time.Since(startTime), cfg.OutputFile)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func toSortOrders(names []string) []scraper.SortOrder {
	orders := make([]scraper.SortOrder, 0, len(names))
	for _, name := range names {
		orders = append(orders, scraper.SortOrder(name))
	}
	return orders
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "xlsx":
		return pipeline.NewXLSXWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".json"
		return pipeline.NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printFacets(session *models.SearchSession) {
	if len(session.Facets) == 0 {
		fmt.Printf("No facets found for %q\n", session.Keyword)
		return
	}
	fmt.Printf("Facets for %q:\n", session.Keyword)
	for _, facet := range session.Facets {
		fmt.Printf("  %-10s %-24s code=%s\n", facet.Category, facet.Name, facet.Code)
	}
}

func printSummary(session *models.SearchSession, result *models.SearchResult, duration time.Duration, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Printf("Search complete: %q\n", session.Keyword)
	fmt.Printf("  Facets found:  %d\n", len(session.Facets))
	fmt.Printf("  Products:      %d\n", len(result.Products))
	fmt.Printf("  Requests:      %d\n", result.RequestCount)
	fmt.Printf("  Failed orders: %d\n", result.OrdersFailed)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)

	for i, product := range result.Products {
		price := product.PriceRaw
		if product.Price != nil {
			price = fmt.Sprintf("%d (%s)", *product.Price, product.PriceRaw)
		}
		fmt.Printf("%d. %s\n   price: %s\n   spec:  %s\n", i+1, product.Name, price, product.Specification)
	}
}

func dumpDebug(s *scraper.Scraper, dir string) {
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("create debug dir", slog.Any("error", err))
		return
	}
	dump := s.DebugDump()
	files := map[string][]byte{
		"request_url.txt":   dump.RequestURL,
		"page.html":         dump.PageHTML,
		"option_block.html": dump.OptionHTML,
	}
	for name, blob := range files {
		if len(blob) == 0 {
			continue
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, blob, 0o644); err != nil {
			slog.Error("write debug dump", slog.String("file", path), slog.Any("error", err))
		}
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
