package batch

import "errors"

// Sentinel errors for run construction and execution.
// These can be checked with errors.Is().
var (
	// ErrInvalidArgument rejects a run before it is ever queued:
	// empty item list or quality outside 1-100.
	ErrInvalidArgument = errors.New("invalid run arguments")

	// ErrOutputDirUnavailable aborts a whole run. It is the only error
	// that does: everything else is isolated to a single item.
	ErrOutputDirUnavailable = errors.New("output directory unavailable")

	ErrRunNotFound = errors.New("run not found")
)

// FailureKind classifies a per-item failure by the pipeline stage it
// happened in. Failures never abort the batch.
type FailureKind string

const (
	FailDecode FailureKind = "decode"
	FailEncode FailureKind = "encode"
	FailWrite  FailureKind = "write"
)
