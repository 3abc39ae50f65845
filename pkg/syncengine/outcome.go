package syncengine

// Outcome classifies the result of executing a single sync request.
type Outcome string

const (
	// OutcomeSuccess: the request was fully applied to both local store
	// and/or cloud as appropriate.
	OutcomeSuccess Outcome = "success"

	// OutcomeRetry: a transient failure (cloud call error, context
	// deadline) occurred; the caller should re-offer the request.
	OutcomeRetry Outcome = "retry"

	// OutcomeSkip: the request no longer applies (e.g. the shadow was
	// deleted out from under a stale update) and nothing further is
	// needed.
	OutcomeSkip Outcome = "skip"

	// OutcomeConflict: a genuine three-way conflict was detected and
	// escalated to a follow-up request (full resync or an overwrite);
	// the original request is considered handled.
	OutcomeConflict Outcome = "conflict"
)

// Result is the full record of executing one request, returned by
// ExecuteResult for logging, metrics, and tests.
type Result struct {
	Outcome Outcome
	Err     error
}
