package extract

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/invoiceflow/invoice-extractor/constants"
	"github.com/invoiceflow/invoice-extractor/internal/common"
	"github.com/invoiceflow/invoice-extractor/internal/layout"
	"github.com/invoiceflow/invoice-extractor/internal/llm"
	"github.com/invoiceflow/invoice-extractor/internal/ratelimit"
)

// Options tune the attempt loop. Durations are injectable so tests run with
// microsecond backoffs.
type Options struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RetryDelay     time.Duration
	MaxPromptChars int
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = constants.DefaultMaxAttempts
	}
	if out.InitialBackoff <= 0 {
		out.InitialBackoff = constants.DefaultInitialBackoff
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = constants.DefaultMaxBackoff
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = constants.DefaultRetryDelay
	}
	return out
}

// Orchestrator drives the retry loop around one model call: admission
// through the shared rate limiter, response parsing, validation with prompt
// refinement, and exponential backoff on throttling.
type Orchestrator struct {
	generator llm.Generator
	limiter   *ratelimit.Limiter
	opts      Options
	logger    *slog.Logger

	sleep func(d time.Duration) // injectable for tests
}

func NewOrchestrator(generator llm.Generator, limiter *ratelimit.Limiter, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		generator: generator,
		limiter:   limiter,
		opts:      opts.withDefaults(),
		logger:    logger,
		sleep:     time.Sleep,
	}
}

// Run attempts structured extraction of text under the given layout pattern.
// docID identifies the document for throttle bookkeeping. On throttling the
// document is recorded for a deferred retry and the loop backs off
// exponentially; on validation failure the prompt is refined and retried.
// A record that still fails validation on the final attempt is returned
// as-is rather than discarded.
func (o *Orchestrator) Run(ctx context.Context, text string, pattern layout.Pattern, docID string) (*llm.InvoiceFields, error) {
	prompt := llm.BuildPrompt(pattern.Key, text, o.opts.MaxPromptChars)

	backoff := o.opts.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= o.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o.logger.Info("extract.attempt",
			"doc_id", docID, "attempt", attempt, "pattern", pattern.Key)

		// Retry attempts always wait; first attempts only when the window
		// is nearly spent.
		o.limiter.WaitIfNeeded(attempt > 1)
		o.limiter.AddCall()

		raw, err := o.generator.Generate(ctx, prompt)
		if err != nil {
			lastErr = err
			if errors.Is(err, llm.ErrThrottled) {
				o.limiter.AddFailedFile(docID)
				wait := backoff + time.Duration(rand.Float64()*float64(time.Second))
				o.logger.Warn("extract.throttled",
					"doc_id", docID, "attempt", attempt, "backoff", wait)
				o.sleep(wait)
				if backoff *= 2; backoff > o.opts.MaxBackoff {
					backoff = o.opts.MaxBackoff
				}
			} else {
				o.logger.Error("extract.generate_failed",
					"doc_id", docID, "attempt", attempt, "error", err)
				o.sleep(o.opts.RetryDelay)
			}
			continue
		}
		backoff = o.opts.InitialBackoff

		rec, err := llm.ParseResponse(raw)
		if err != nil {
			lastErr = err
			o.logger.Warn("extract.parse_failed",
				"doc_id", docID, "attempt", attempt, "error", err)
			o.sleep(o.opts.RetryDelay)
			continue
		}
		if err := llm.CheckShape(rec); err != nil {
			lastErr = err
			o.logger.Warn("extract.shape_mismatch",
				"doc_id", docID, "attempt", attempt, "error", err)
			o.sleep(o.opts.RetryDelay)
			continue
		}

		if errs := Validate(rec); len(errs) > 0 {
			o.logger.Warn("extract.validation_failed",
				"doc_id", docID, "attempt", attempt, "errors", joinErrors(errs))
			if attempt < o.opts.MaxAttempts {
				prompt = llm.RefinePrompt(prompt, errs)
				continue
			}
			// Final attempt: an imperfect record beats none at all.
		}

		Normalize(rec, text)
		o.logger.Info("extract.ok",
			"doc_id", docID, "attempt", attempt, "record", llm.Summarize(rec))
		return rec, nil
	}

	if lastErr == nil {
		lastErr = common.ErrExhausted
	}
	return nil, common.NewAppError(common.CodeLLMResponse, "extraction attempts exhausted", lastErr)
}

// Throttled reports whether docID failed due to rate limiting at any point.
func (o *Orchestrator) Throttled(docID string) bool {
	return o.limiter.HasFailedFile(docID)
}
