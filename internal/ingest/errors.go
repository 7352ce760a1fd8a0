package ingest

import (
	"fmt"
	"time"
)

// FailureKind classifies terminal cycle failures. Scorer and tokenizer
// failures are not here: they degrade in place and never abort a cycle.
type FailureKind string

const (
	FailureInvalidWindow     FailureKind = "invalid_window"
	FailureSourceUnavailable FailureKind = "source_unavailable"
	FailureStoreUnavailable  FailureKind = "store_unavailable"
)

// CycleError is the terminal failure of one channel's ingestion cycle. It
// carries enough context for an operator to re-trigger the same window.
type CycleError struct {
	Channel     string
	WindowStart time.Time
	WindowEnd   time.Time
	Kind        FailureKind
	Err         error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("ingest cycle %s [%s, %s): %s: %v",
		e.Channel,
		e.WindowStart.Format(time.RFC3339),
		e.WindowEnd.Format(time.RFC3339),
		e.Kind,
		e.Err,
	)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}

func (r *Runner) cycleErr(channel string, start, end time.Time, kind FailureKind, err error) *CycleError {
	return &CycleError{
		Channel:     channel,
		WindowStart: start,
		WindowEnd:   end,
		Kind:        kind,
		Err:         err,
	}
}
