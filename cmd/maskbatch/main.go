package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/raaihank/logmask/internal/batch"
	"github.com/raaihank/logmask/internal/config"
	"github.com/raaihank/logmask/internal/logger"
	"github.com/raaihank/logmask/internal/masking"
	"github.com/raaihank/logmask/internal/stats"
)

// optionList collects a repeatable flag
type optionList []string

func (o *optionList) String() string {
	return strings.Join(*o, ",")
}

func (o *optionList) Set(value string) error {
	*o = append(*o, value)
	return nil
}

func main() {
	var options optionList
	var (
		configPath  = flag.String("config", "", "Configuration file path")
		inputFile   = flag.String("input", "", "Input log export (CSV, Parquet, or JSON lines)")
		outputFile  = flag.String("output", "", "Output file, same format as the input")
		batchSize   = flag.Int("batch-size", 1000, "Records masked per batch")
		workers     = flag.Int("workers", 4, "Number of worker goroutines")
		failOpen    = flag.Bool("fail-open", false, "Keep the original message when masking fails")
		recordStats = flag.Bool("record-stats", false, "Add rule hits to the Redis counters")
	)
	flag.Var(&options, "option", "Masking option, repeatable; replaces the configured options")
	flag.Parse()

	if *inputFile == "" || *outputFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input app.csv --output app.masked.csv\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input app.jsonl --output out.jsonl --option PHONE:FULL --option 'ORDER:ORD-\\d{6}'\n", os.Args[0])
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling operations...")
		cancel()
	}()

	ruleOptions := cfg.Masking.Options
	if len(options) > 0 {
		ruleOptions = options
	}

	masker := masking.NewMasker(nil, masking.WithMaxMessageBytes(cfg.Masking.MaxMessageBytes))
	if err := masker.Reload(ruleOptions); err != nil {
		log.Warn("Some masking options were skipped", zap.Error(err))
	}

	failMode := masking.FailMode(cfg.Masking.FailMode)
	if *failOpen {
		failMode = masking.FailOpen
	}

	processor := batch.NewProcessor(masker, &batch.Config{
		BatchSize:   *batchSize,
		WorkerCount: *workers,
		FailMode:    failMode,
	}, log.Logger)

	if *recordStats {
		counters, err := stats.NewCounters(&stats.Config{
			RedisURL:       cfg.Redis.RedisURL,
			MaxConnections: cfg.Redis.MaxConnections,
			MinIdleConns:   cfg.Redis.MinIdleConns,
			KeyPrefix:      cfg.Redis.KeyPrefix,
		}, log.Logger)
		if err != nil {
			log.Fatal("Failed to initialize counters", zap.Error(err))
		}
		defer counters.Close()
		processor.WithHitRecorder(counters)
	}

	result, err := processor.ProcessFile(ctx, *inputFile, *outputFile)
	if err != nil {
		log.Fatal("Batch masking failed", zap.Error(err))
	}

	if len(result.Errors) > 0 {
		log.Warn("Masking completed with errors", zap.Strings("errors", result.Errors))
	}

	fmt.Printf("\n=== logmask batch summary ===\n")
	fmt.Printf("Records:    %d\n", result.TotalRecords)
	fmt.Printf("Masked:     %d\n", result.Masked)
	fmt.Printf("Unchanged:  %d\n", result.Unchanged)
	fmt.Printf("Failed:     %d\n", result.Failed)
	fmt.Printf("Duration:   %v\n", result.Duration)
	for expression, count := range result.Findings {
		fmt.Printf("  %-48s %d\n", expression, count)
	}

	if result.Failed > 0 {
		os.Exit(2)
	}
}
