package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/openveil/pii-gateway/internal/catalog"
	"github.com/openveil/pii-gateway/internal/config"
	"github.com/openveil/pii-gateway/internal/ingest"
	"github.com/openveil/pii-gateway/internal/logger"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Configuration file path")
		inputFile    = flag.String("input", "", "Input dataset file (CSV, Parquet, or JSON lines)")
		kind         = flag.String("kind", "patterns", "Record kind: patterns or dictionary")
		batchSize    = flag.Int("batch-size", 1000, "Batch size for processing")
		validateOnly = flag.Bool("validate-only", false, "Only validate data, don't write")
		dryRun       = flag.Bool("dry-run", false, "Dry run - don't write to database")
		showStats    = flag.Bool("stats", false, "Show catalog statistics and exit")
	)
	flag.Parse()

	if *inputFile == "" && !*showStats {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input patterns.csv --kind patterns\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input dictionary.parquet --kind dictionary\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input patterns.csv --validate-only\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting catalog import",
		zap.String("config", *configPath),
		zap.String("input", *inputFile),
		zap.String("kind", *kind))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling operations...")
		cancel()
	}()

	recordKind := ingest.RecordKind(*kind)
	if recordKind != ingest.KindPatterns && recordKind != ingest.KindDictionary {
		log.Fatal("Invalid record kind", zap.String("kind", *kind))
	}

	ingestConfig := &ingest.Config{
		BatchSize:      *batchSize,
		ValidateData:   true,
		ValidateOnly:   *validateOnly,
		DryRun:         *dryRun,
		ProgressReport: 1000,
	}

	// Validation-only runs never touch the database.
	var store *catalog.Store
	if !*validateOnly {
		if cfg.Catalog.Source != "postgres" {
			log.Fatal("Catalog imports require catalog.source=postgres",
				zap.String("source", cfg.Catalog.Source))
		}
		store, err = catalog.NewStore(&catalog.StoreConfig{
			DatabaseURL:     cfg.Catalog.DatabaseURL,
			MaxOpenConns:    cfg.Catalog.MaxOpenConns,
			MaxIdleConns:    cfg.Catalog.MaxIdleConns,
			ConnMaxLifetime: cfg.Catalog.ConnMaxLifetime,
		}, log.Logger)
		if err != nil {
			log.Fatal("Failed to open catalog store", zap.Error(err))
		}
		defer store.Close()
	}

	if *showStats {
		if err := showCatalogStats(ctx, store, log); err != nil {
			log.Fatal("Failed to show stats", zap.Error(err))
		}
		return
	}

	pipeline := ingest.NewPipeline(store, ingestConfig, log.Logger)
	result, err := pipeline.ProcessFile(ctx, *inputFile, recordKind)
	if err != nil {
		log.Fatal("Catalog import failed", zap.Error(err))
	}

	log.Info("Catalog import finished",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("invalid", result.Invalid),
		zap.Int64("duplicates", result.Duplicates),
		zap.Duration("duration", result.Duration))
}

// showCatalogStats prints the current catalog table counts.
func showCatalogStats(ctx context.Context, store *catalog.Store, log *logger.Logger) error {
	if store == nil {
		return fmt.Errorf("stats require a database connection")
	}

	stats, err := store.GetStats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Catalog statistics:\n")
	fmt.Printf("  Patterns:           %d\n", stats.TotalPatterns)
	fmt.Printf("  Showstoppers:       %d\n", stats.ShowstopperCount)
	fmt.Printf("  Dictionary entries: %d\n", stats.DictionaryEntries)
	return nil
}
