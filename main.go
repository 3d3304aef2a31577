package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"liquorbot/api"
	"liquorbot/config"
	"liquorbot/models"
	"liquorbot/scraper/catalog"
	"liquorbot/scraper/images"
	"liquorbot/services"
	"liquorbot/storage"
	"liquorbot/utils"
)

const usage = `usage:
  liquorbot refresh                          run one refresh cycle (exit 1 on failure)
  liquorbot serve                            serve the HTTP API
  liquorbot query <type> <maxPrice> [store…] print the best listings
  liquorbot insights                         print cache statistics`

func main() {
	cfg := config.Load()
	logger := utils.NewLoggerTo(os.Stdout, cfg.LogLevel)

	cmd, args := "refresh", os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "refresh":
		os.Exit(runRefresh(cfg, logger))
	case "serve":
		os.Exit(runServe(cfg, logger))
	case "query":
		os.Exit(runQuery(cfg, logger, args))
	case "insights":
		os.Exit(runInsights(cfg, logger))
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func runRefresh(cfg *config.Config, logger *utils.Logger) int {
	logger.Info("=== Catalog refresh starting ===")
	logger.Info("Config: store=%s | page size: %d | batch: %d | delay: %v | concurrency: %d | halt on failure: %v",
		cfg.StoreBackend, cfg.PageSize, cfg.BatchSize, cfg.ItemDelay, cfg.EnrichConcurrency, cfg.HaltOnEnrichFailure)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open %s store: %v", cfg.StoreBackend, err)
		return 1
	}
	defer store.Close()

	refresher, cleanup, err := newRefresher(cfg, store, logger)
	if err != nil {
		logger.Error("Failed to set up refresher: %v", err)
		return 1
	}
	defer cleanup()

	report := refresher.RunCycle(ctx)
	if !report.Success {
		logger.Error("Refresh failed: %v", report.Err)
		return 1
	}

	printInsights(ctx, store, logger)
	return 0
}

func runServe(cfg *config.Config, logger *utils.Logger) int {
	logger.Info("=== Catalog API starting on %s ===", cfg.HTTPAddr)

	store, err := openStore(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to open %s store: %v", cfg.StoreBackend, err)
		return 1
	}

	// Everything that can fail is built before the listener starts.
	directory, err := newLocationDirectory(cfg)
	if err != nil {
		logger.Error("%v", err)
		store.Close()
		return 1
	}

	var (
		refresher *services.Refresher
		cleanup   func()
	)
	if cfg.RefreshInterval > 0 {
		refresher, cleanup, err = newRefresher(cfg, store, logger)
		if err != nil {
			logger.Error("Failed to set up refresher: %v", err)
			store.Close()
			return 1
		}
	}

	server := api.NewServer(
		services.NewRanker(store, cfg.TaxMultiplier, cfg.TopN, logger),
		store,
		directory,
		services.NewInsightService(logger),
		logger,
	)
	httpServer := server.HTTPServer(cfg.HTTPAddr)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error: %v", err)
		}
	}()

	operations := map[string]gfshutdown.Operation{
		"http-server": func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server")
			return httpServer.Shutdown(ctx)
		},
	}

	// Cycles never overlap: the scheduler waits for each one to finish.
	if refresher != nil {
		schedCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			runSchedule(schedCtx, refresher, cfg.RefreshInterval, logger)
		}()
		operations["refresh-scheduler"] = func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			cleanup()
			return nil
		}
		logger.Info("Refreshing every %v", cfg.RefreshInterval)
	}

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, operations)
	exitCode := <-wait

	if err := store.Close(); err != nil {
		logger.Warn("Closing store: %v", err)
	}
	logger.Info("Exited with code %d", exitCode)
	return exitCode
}

func runSchedule(ctx context.Context, refresher *services.Refresher, interval time.Duration, logger *utils.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		refresher.RunCycle(ctx)
		select {
		case <-ctx.Done():
			logger.Info("[scheduler] stopped")
			return
		case <-ticker.C:
		}
	}
}

func runQuery(cfg *config.Config, logger *utils.Logger, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	maxPrice, err := strconv.ParseFloat(args[1], 64)
	if err != nil || maxPrice < 0 {
		fmt.Fprintf(os.Stderr, "bad max price %q\n", args[1])
		return 2
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open %s store: %v", cfg.StoreBackend, err)
		return 1
	}
	defer store.Close()

	directory, err := newLocationDirectory(cfg)
	if err != nil {
		logger.Error("%v", err)
		return 1
	}

	q := services.Query{
		Type:      args[0],
		MaxPrice:  maxPrice,
		Locations: directory.Resolve(args[2:]),
	}
	ranker := services.NewRanker(store, cfg.TaxMultiplier, cfg.TopN, logger)
	results, err := ranker.Query(ctx, q)
	if err != nil {
		logger.Error("Query failed: %v", err)
		return 1
	}

	printResults(results, directory, cfg.TaxMultiplier)
	return 0
}

func runInsights(cfg *config.Config, logger *utils.Logger) int {
	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open %s store: %v", cfg.StoreBackend, err)
		return 1
	}
	defer store.Close()

	printInsights(ctx, store, logger)
	return 0
}

func openStore(ctx context.Context, cfg *config.Config) (storage.ListingStore, error) {
	switch cfg.StoreBackend {
	case "postgres":
		return storage.NewPostgresStore(cfg.DSN())
	case "redis":
		return storage.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q (want postgres, redis or memory)", cfg.StoreBackend)
	}
}

// newRefresher wires the refresh pipeline. The returned cleanup releases the
// browser and snapshot writer, if any.
func newRefresher(cfg *config.Config, store storage.ListingStore, logger *utils.Logger) (*services.Refresher, func(), error) {
	var closers []func() error

	var searcher images.Searcher
	switch cfg.ImageSearchMode {
	case "html":
		searcher = images.NewHTMLSearcher(cfg.ImageSearchURL, cfg.UserAgent, cfg.RequestTimeout)
	case "browser":
		browser := images.NewBrowserSearcher(cfg.ImageSearchURL, cfg.UserAgent, cfg.ChromeBin, cfg.RequestTimeout, logger)
		closers = append(closers, browser.Close)
		searcher = browser
	case "none", "":
	default:
		return nil, nil, fmt.Errorf("unknown image search mode %q (want html, browser or none)", cfg.ImageSearchMode)
	}

	scorer := services.NewScorer(services.ScoringConfig{
		Weights: services.Weights{
			Value:  cfg.ValueWeight,
			Rating: cfg.RatingWeight,
			Sale:   cfg.SaleWeight,
		},
		MinValue: cfg.MinValue,
		MaxPrice: cfg.MaxPrice,
	})

	refresher := services.NewRefresher(
		catalog.NewFetcher(cfg, logger),
		catalog.NewInventoryClient(cfg, logger),
		images.NewResolver(cfg.ImageBaseURL, cfg.ImageProbeTimeout, searcher, logger),
		store,
		scorer,
		services.RefreshConfig{
			FreshnessWindow: cfg.FreshnessWindow,
			StalenessWindow: cfg.StalenessWindow,
			BatchSize:       cfg.BatchSize,
			ItemDelay:       cfg.ItemDelay,
			Concurrency:     cfg.EnrichConcurrency,
			HaltOnFailure:   cfg.HaltOnEnrichFailure,
		},
		logger,
	)

	if cfg.CSVSnapshotPath != "" {
		csvWriter, err := storage.NewCSVWriter(cfg.CSVSnapshotPath)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, csvWriter.Close)
		refresher.WithSnapshot(csvWriter)
	}

	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("cleanup: %v", err)
			}
		}
	}
	return refresher, cleanup, nil
}

func newLocationDirectory(cfg *config.Config) (*services.LocationDirectory, error) {
	locations, err := services.ParseLocations(cfg.Locations)
	if err != nil {
		return nil, fmt.Errorf("LOCATIONS: %w", err)
	}
	return services.NewLocationDirectory(locations), nil
}

func printInsights(ctx context.Context, store storage.ListingStore, logger *utils.Logger) {
	listings, err := store.Scan(ctx)
	if err != nil {
		logger.Error("Failed to scan cache for insights: %v", err)
		return
	}
	insightSvc := services.NewInsightService(logger)
	insightSvc.Print(os.Stdout, insightSvc.Generate(listings))
}

func printResults(results []*models.Listing, directory *services.LocationDirectory, tax float64) {
	thin := strings.Repeat("─", 54)

	if len(results) == 0 {
		fmt.Printf("\n  No in-stock matches.\n\n")
		return
	}

	fmt.Println()
	for i, l := range results {
		fmt.Printf("  \033[1m%d. %s\033[0m\n", i+1, l.Name)
		fmt.Printf("  %s\n", thin)
		fmt.Printf("  Price  : \033[1;32m$%.2f\033[0m (shelf, incl. tax + deposit)\n", l.ShelfPrice(tax))
		fmt.Printf("  Size   : %d x %gL @ %.1f%%\n", l.Count, l.Volume, l.AlcPercent)
		fmt.Printf("  Score  : %.1f (value %.1f, sale %.1f%%, rating %.1f)\n", l.AdjValue, l.Value, l.Sale, l.Rating)

		ids := make([]int, 0, len(l.Inventory))
		for id, n := range l.Inventory {
			if n > 0 {
				ids = append(ids, id)
			}
		}
		sort.Ints(ids)
		for _, id := range ids {
			fmt.Printf("    %-24s %d\n", directory.Name(id), l.Inventory[id])
		}
		fmt.Println()
	}
}
