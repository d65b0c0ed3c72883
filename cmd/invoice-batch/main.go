package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/invoiceflow/invoice-extractor/constants"
	"github.com/invoiceflow/invoice-extractor/internal/common"
	"github.com/invoiceflow/invoice-extractor/internal/export"
	"github.com/invoiceflow/invoice-extractor/internal/extract"
	"github.com/invoiceflow/invoice-extractor/internal/llm/gemini"
	"github.com/invoiceflow/invoice-extractor/internal/pdftext"
	"github.com/invoiceflow/invoice-extractor/internal/pipeline"
	"github.com/invoiceflow/invoice-extractor/internal/ratelimit"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir     = flag.String("dir", "", "directory of invoice PDFs to process (required)")
		out     = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
		csvOut  = flag.String("csv", "", "optional CSV output path")
		workers = flag.Int("workers", 4, "concurrent pipeline workers")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		parentDir := filepath.Dir(*dir)
		*out = filepath.Join(parentDir, "invoices.xlsx")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	files, err := listPDFs(*dir)
	if err != nil {
		logger.Error("failed to scan directory", "dir", *dir, "error", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		printError("No PDF files found in %s\n", *dir)
		os.Exit(1)
	}
	logger.Info("batch scan complete", "dir", *dir, "files", len(files))

	limiter := ratelimit.NewLimiter(cfg.Rate.MaxCallsPerWindow, cfg.Rate.Window, logger)
	limiter.SetBatchSize(len(files))

	generator := gemini.NewClient(gemini.Config{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	orchestrator := extract.NewOrchestrator(generator, limiter, extract.Options{
		MaxAttempts:    cfg.LLM.MaxAttempts,
		MaxPromptChars: cfg.LLM.MaxPromptChars,
	}, logger)

	textExtractor := pdftext.NewExtractor(cfg.Extract, logger)
	processor := pipeline.NewProcessor(logger, textExtractor, orchestrator, limiter)
	processor.UseCache(pipeline.NewLRUCache(1024, time.Hour))

	queue := pipeline.NewBatchQueue(processor, logger, pipeline.WithWorkers(*workers))
	for _, f := range files {
		queue.Enqueue(f)
	}
	queue.Shutdown(ctx)
	results := queue.Results()

	// Documents that hit the provider quota get one deferred pass after the
	// window has fully reset.
	if throttled := processor.ThrottledFiles(); len(throttled) > 0 {
		sort.Strings(throttled)
		logger.Warn("retrying throttled documents",
			"count", len(throttled), "cooldown", constants.ThrottleCooldown)
		time.Sleep(constants.ThrottleCooldown)

		processor.ResetThrottled()
		processor.SetBatchSize(len(throttled))
		for _, path := range throttled {
			results[path] = processor.ProcessInvoice(ctx, path)
		}
	}

	exporter := export.NewService(logger)
	rows := exporter.Flatten(results)
	sort.Slice(rows, func(i, j int) bool { return rows[i].SourceFile < rows[j].SourceFile })

	xlsxBytes, err := exporter.WriteXLSX(rows)
	if err != nil {
		logger.Error("failed to build workbook", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsxBytes, 0644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}
	if *csvOut != "" {
		if err := exporter.WriteCSV(rows, *csvOut); err != nil {
			logger.Error("failed to write csv", "error", err)
			os.Exit(1)
		}
	}

	succeeded, failed, rateLimited := 0, 0, 0
	for _, res := range results {
		switch {
		case res.Success:
			succeeded++
		case res.RateLimited:
			rateLimited++
		default:
			failed++
		}
	}

	logger.Info("batch processing complete",
		"files", len(files),
		"succeeded", succeeded,
		"failed", failed,
		"rate_limited", rateLimited,
		"utilization_pct", processor.Utilization(),
		"output_file", *out)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Files found: %d\n", len(files))
	fmt.Printf("- Succeeded: %d\n", succeeded)
	fmt.Printf("- Failed: %d\n", failed)
	fmt.Printf("- Rate limited: %d\n", rateLimited)
	fmt.Printf("- Output: %s\n", *out)
}

func listPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
