package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/invoiceflow/invoice-extractor/internal/extract"
	"github.com/invoiceflow/invoice-extractor/internal/layout"
	"github.com/invoiceflow/invoice-extractor/internal/ratelimit"
)

// TextExtractor abstracts the PDF text stage so tests can feed canned text.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Processor coordinates text extraction, layout classification, and the
// model attempt loop for one document at a time. It is safe for concurrent
// use; the shared rate limiter serializes admission.
type Processor struct {
	logger        *slog.Logger
	textExtractor TextExtractor
	orchestrator  *extract.Orchestrator
	limiter       *ratelimit.Limiter
	cache         ResultCache // nil disables caching
}

func NewProcessor(logger *slog.Logger, textExtractor TextExtractor, orchestrator *extract.Orchestrator, limiter *ratelimit.Limiter) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		logger:        logger,
		textExtractor: textExtractor,
		orchestrator:  orchestrator,
		limiter:       limiter,
	}
}

// UseCache installs a result cache. Only successful results are stored;
// failures always re-run.
func (p *Processor) UseCache(c ResultCache) { p.cache = c }

// ProcessInvoice runs the full pipeline for one document. It never returns
// an error: every failure mode collapses into a populated Result so batch
// callers can report uniformly.
func (p *Processor) ProcessInvoice(ctx context.Context, path string) extract.Result {
	started := time.Now()
	p.logger.Info("pipeline.start", "path", path)

	var key string
	if p.cache != nil {
		key = cacheKey(path)
		if res, ok := p.cache.Get(key); ok {
			p.logger.Info("pipeline.cache_hit", "path", path)
			return res
		}
	}

	text, err := p.textExtractor.Extract(ctx, path)
	if err != nil || strings.TrimSpace(text) == "" {
		p.logger.Error("pipeline.text_failed", "path", path, "error", err)
		res := extract.FailedResult("Could not extract text from PDF", false)
		res.ProcessingTime = extract.DurationSeconds(time.Since(started))
		return res
	}

	pattern := layout.Classify(text)
	p.logger.Info("pipeline.pattern",
		"path", path, "pattern", pattern.Key, "confidence", pattern.Confidence)

	rec, err := p.orchestrator.Run(ctx, text, pattern, path)
	if err != nil && pattern.Family != layout.Generic {
		// Last resort: a fresh attempt budget under the generic layout.
		p.logger.Info("pipeline.generic_retry", "path", path)
		pattern = layout.GenericPattern()
		rec, err = p.orchestrator.Run(ctx, text, pattern, path)
	}
	if err != nil {
		if p.orchestrator.Throttled(path) {
			p.logger.Error("pipeline.rate_limited", "path", path)
			res := extract.FailedResult(
				"API rate limit exceeded. Please try again later or process fewer files at once.", true)
			res.ProcessingTime = extract.DurationSeconds(time.Since(started))
			return res
		}
		p.logger.Error("pipeline.extract_failed", "path", path, "error", err)
		res := extract.FailedResult("extraction returned no result: "+err.Error(), false)
		res.ProcessingTime = extract.DurationSeconds(time.Since(started))
		return res
	}

	extract.FinalizeProducts(rec)

	res := extract.Result{
		Success:          true,
		PatternUsed:      pattern.Key,
		ConfidenceScores: extract.ComputeConfidence(rec),
		ProcessingTime:   extract.DurationSeconds(time.Since(started)),
		InvoiceFields:    *rec,
	}
	if p.cache != nil {
		p.cache.Put(key, res)
	}
	p.logger.Info("pipeline.done",
		"path", path,
		"pattern", pattern.Key,
		"products", len(res.Products),
		"overall_confidence", res.ConfidenceScores.Overall,
		"duration", res.ProcessingTime.Duration())
	return res
}

// SetBatchSize forwards the intended batch size to the shared limiter so
// inter-call pacing matches the workload.
func (p *Processor) SetBatchSize(n int) { p.limiter.SetBatchSize(n) }

// Utilization reports the limiter's current window usage percentage.
func (p *Processor) Utilization() float64 { return p.limiter.Utilization() }

// ThrottledFiles returns the documents that failed due to rate limiting.
func (p *Processor) ThrottledFiles() []string { return p.limiter.FailedFiles() }

// ResetThrottled clears the throttled-document set before a retry pass.
func (p *Processor) ResetThrottled() { p.limiter.ClearFailedFiles() }
