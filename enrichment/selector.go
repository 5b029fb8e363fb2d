package enrichment

import (
	"context"
	"errors"
	"time"

	"hnenricher/config"
)

// Selector picks ranked candidates that are not inside the recency window.
type Selector struct {
	ranker Ranker
	items  ItemStore
	limit  int
	window time.Duration
}

// NewSelector creates a Selector. Zero limit and window take the defaults.
func NewSelector(ranker Ranker, items ItemStore, limit int, window time.Duration) (*Selector, error) {
	if ranker == nil {
		return nil, errors.New("enrichment: ranker must not be nil")
	}
	if items == nil {
		return nil, errors.New("enrichment: item store must not be nil")
	}
	if limit <= 0 {
		limit = config.DefaultCandidateLimit
	}
	if window <= 0 {
		window = config.RecencyWindow
	}
	return &Selector{ranker: ranker, items: items, limit: limit, window: window}, nil
}

// Select returns the ranked ids absent from the recency window, in rank order.
func (s *Selector) Select(ctx context.Context, now time.Time) ([]string, error) {
	ranked, err := s.ranker.Ranked(ctx, s.limit)
	if err != nil {
		return nil, newError(ErrorCandidateSource, "rank candidates", err)
	}
	recent, err := s.items.RecentIDs(ctx, now.Add(-s.window))
	if err != nil {
		return nil, newError(ErrorStoreUnavailable, "load recency window", err)
	}

	out := make([]string, 0, len(ranked))
	seen := make(map[string]bool, len(ranked))
	for _, id := range ranked {
		if recent[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}
