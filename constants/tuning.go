package constants

import "time"

// NA is the sentinel value for fields the model could not extract.
const NA = "N/A"

// Classification thresholds. These are empirically tuned values carried over
// from production runs; do not re-derive them.
const (
	// GenericConfidenceFloor is the minimum confidence assigned to the
	// generic fallback pattern.
	GenericConfidenceFloor = 0.3

	// SemanticConfidenceFloor applies whenever at least one column role was
	// detected directly from table headers.
	SemanticConfidenceFloor = 0.4

	// LiteralMatchThreshold is the minimum literal catalog score required to
	// prefer a catalog pattern over the generic fallback.
	LiteralMatchThreshold = 0.3
)

// Rate limiting defaults (free-tier service quota).
const (
	DefaultMaxCallsPerWindow = 15
	DefaultRateWindow        = 60 * time.Second

	// HighUtilizationFraction is the window utilization above which callers
	// are made to wait even when capacity remains.
	HighUtilizationFraction = 0.8

	// LowRemainingCalls forces a wait when fewer calls than this remain.
	LowRemainingCalls = 3

	// MinWindowSleepFraction is the minimum sleep, as a fraction of the
	// window, when the window is nearly exhausted.
	MinWindowSleepFraction = 0.25
)

// Retry policy defaults.
const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 1 * time.Second
	DefaultMaxBackoff     = 32 * time.Second
	DefaultRetryDelay     = 1 * time.Second

	// ThrottleCooldown is how long the batch layer waits before re-running
	// documents that failed due to throttling.
	ThrottleCooldown = 60 * time.Second
)

// Text extraction defaults.
const (
	DefaultOCRDPI      = 300
	DefaultMaxOCRPages = 3
)
