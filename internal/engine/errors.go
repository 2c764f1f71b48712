package engine

// SkipReason explains why the posting pass left a feed record alone.
type SkipReason string

const (
	// SkipNoIdentity means no transaction hash could be resolved.
	SkipNoIdentity SkipReason = "no_identity"

	// SkipExists means the GAID is already stored.
	SkipExists SkipReason = "exists"

	// SkipNoTimestamp means the record has no origin time and cannot be
	// ordered against the watermark.
	SkipNoTimestamp SkipReason = "no_timestamp"

	// SkipNotAfterWatermark means the origin time is at or below the
	// watermark even though the feed returned it.
	SkipNotAfterWatermark SkipReason = "not_after_watermark"

	// SkipTargetMissing means the poll or its thread is gone. The record
	// stays unprocessed and is retried on the next collection pass.
	SkipTargetMissing SkipReason = "target_missing"
)

// ItemStatus is the per-record outcome of a pass.
type ItemStatus string

const (
	StatusPosted    ItemStatus = "posted"
	StatusProcessed ItemStatus = "processed"
	StatusSkipped   ItemStatus = "skipped"
	StatusFailed    ItemStatus = "failed"
)

// StepError identifies the platform or store step a record failed in.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepErr(step string, err error) error {
	return &StepError{Step: step, Err: err}
}
