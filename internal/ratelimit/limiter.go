package ratelimit

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/invoiceflow/invoice-extractor/constants"
)

// Limiter is a sliding-window throttle shared by every extraction attempt in
// the process. All bookkeeping happens under one mutex; the admission
// decision is serialized even though request bodies are prepared and sent
// concurrently. Sleeps happen outside the lock so other workers can keep
// inspecting the window while one of them waits.
type Limiter struct {
	maxCalls int
	window   time.Duration
	logger   *slog.Logger

	mu          sync.Mutex
	calls       []time.Time
	batchSize   int
	currentWait time.Duration
	failedFiles map[string]struct{}

	now   func() time.Time      // injectable for tests
	sleep func(d time.Duration) // injectable for tests
}

func NewLimiter(maxCalls int, window time.Duration, logger *slog.Logger) *Limiter {
	if maxCalls <= 0 {
		maxCalls = constants.DefaultMaxCallsPerWindow
	}
	if window <= 0 {
		window = constants.DefaultRateWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Limiter{
		maxCalls:    maxCalls,
		window:      window,
		logger:      logger,
		failedFiles: make(map[string]struct{}),
		now:         time.Now,
		sleep:       time.Sleep,
	}
	l.SetBatchSize(1)
	return l
}

// SetBatchSize records the intended concurrent batch size and recomputes the
// nominal inter-call wait. Batches larger than the window cap spread their
// calls out with a 20% buffer; smaller batches keep a minimal 80% wait.
func (l *Limiter) SetBatchSize(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n < 1 {
		n = 1
	}
	l.batchSize = n
	perCall := l.window / time.Duration(l.maxCalls)
	if n > l.maxCalls {
		l.currentWait = perCall * 12 / 10
	} else {
		l.currentWait = perCall * 8 / 10
	}
	l.logger.Info("ratelimit.batch_size",
		"batch_size", n, "wait", l.currentWait)
}

// WaitIfNeeded blocks when the window is close to exhausted (or when force is
// set, e.g. on retry attempts). Returns whether it slept. The lock is held
// only for the eviction+decision step, never across the sleep.
func (l *Limiter) WaitIfNeeded(force bool) bool {
	l.mu.Lock()
	l.evictLocked()
	used := len(l.calls)
	remaining := l.maxCalls - used

	if !force && remaining >= constants.LowRemainingCalls &&
		float64(used) < float64(l.maxCalls)*constants.HighUtilizationFraction {
		l.mu.Unlock()
		return false
	}

	// Jitter avoids a thundering herd when several workers wake together.
	jitter := 0.8 + rand.Float64()*0.4
	wait := time.Duration(float64(l.currentWait) * jitter)
	if remaining <= 1 {
		if floor := time.Duration(float64(l.window) * constants.MinWindowSleepFraction); wait < floor {
			wait = floor
		}
	}
	l.mu.Unlock()

	l.logger.Info("ratelimit.wait",
		"wait", wait, "calls_used", used, "max_calls", l.maxCalls)
	l.sleep(wait)
	return true
}

// AddCall records an outbound request. Call exactly once per actual request,
// after WaitIfNeeded.
func (l *Limiter) AddCall() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, l.now())
	// Bound the queue; anything beyond 2x the cap is stale by construction.
	if limit := 2 * l.maxCalls; len(l.calls) > limit {
		l.calls = l.calls[len(l.calls)-limit:]
	}
}

// Utilization reports current window usage as a percentage.
func (l *Limiter) Utilization() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evictLocked()
	return float64(len(l.calls)) / float64(l.maxCalls) * 100
}

// AddFailedFile records a document that failed due to throttling, for an
// externally driven deferred retry. Duplicates are ignored.
func (l *Limiter) AddFailedFile(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failedFiles[id] = struct{}{}
}

// HasFailedFile reports whether id was recorded as throttled.
func (l *Limiter) HasFailedFile(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.failedFiles[id]
	return ok
}

// FailedFiles returns a copy of the throttled-document set.
func (l *Limiter) FailedFiles() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.failedFiles))
	for id := range l.failedFiles {
		out = append(out, id)
	}
	return out
}

// ClearFailedFiles resets the throttled-document set.
func (l *Limiter) ClearFailedFiles() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failedFiles = make(map[string]struct{})
}

// evictLocked drops timestamps older than the window. Idempotent; callers
// must hold the lock.
func (l *Limiter) evictLocked() {
	cutoff := l.now().Add(-l.window)
	i := 0
	for i < len(l.calls) && l.calls[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = l.calls[i:]
	}
}
