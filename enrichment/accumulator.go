package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"hnenricher/batch"
	"hnenricher/config"
	"hnenricher/types"
)

// AddResult reports the pending batch after an append.
type AddResult struct {
	Appended int  `json:"appended"`
	Total    int  `json:"total"`
	Ready    bool `json:"ready"`
}

// Accumulator appends records to the pending batch and reports readiness.
type Accumulator struct {
	pending   batch.Pending
	threshold int
}

// NewAccumulator creates an Accumulator. A zero threshold takes the default.
func NewAccumulator(pending batch.Pending, threshold int) (*Accumulator, error) {
	if pending == nil {
		return nil, errors.New("enrichment: pending batch must not be nil")
	}
	if threshold <= 0 {
		threshold = config.FlushThreshold
	}
	return &Accumulator{pending: pending, threshold: threshold}, nil
}

// Add appends one JSON line per record, then re-counts the pending batch.
func (a *Accumulator) Add(ctx context.Context, records []types.BatchRecord) (AddResult, error) {
	lines := make([][]byte, 0, len(records))
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			return AddResult{}, fmt.Errorf("enrichment: marshal record %s: %w", r.RecordID, err)
		}
		lines = append(lines, line)
	}
	if err := a.pending.Append(ctx, lines); err != nil {
		return AddResult{}, newError(ErrorStoreUnavailable, "append pending batch", err)
	}

	total, err := a.pending.Count(ctx)
	if err != nil {
		return AddResult{}, newError(ErrorStoreUnavailable, "count pending batch", err)
	}
	return AddResult{Appended: len(lines), Total: total, Ready: total >= a.threshold}, nil
}

// Count returns the current pending line count.
func (a *Accumulator) Count(ctx context.Context) (int, error) {
	n, err := a.pending.Count(ctx)
	if err != nil {
		return 0, newError(ErrorStoreUnavailable, "count pending batch", err)
	}
	return n, nil
}
