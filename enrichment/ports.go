// Package enrichment implements the batch enrichment cycles: candidate
// selection, record building, accumulation, job submission, output
// reconciliation and retention.
package enrichment

import (
	"context"
	"encoding/json"
	"time"

	"hnenricher/inference"
	"hnenricher/types"
)

// Ranker returns ranked candidate ids, best first.
type Ranker interface {
	Ranked(ctx context.Context, limit int) ([]string, error)
}

// DetailSource fetches item details inside a success/failure envelope.
type DetailSource interface {
	Item(ctx context.Context, id string) types.Result[types.Item]
}

// ContentFetcher scrapes a URL into text plus an optional image.
type ContentFetcher interface {
	Fetch(ctx context.Context, id, url string) types.Result[types.Scrape]
}

// PayloadBuilder renders model inputs.
type PayloadBuilder interface {
	TextOnly(title, text string) (json.RawMessage, error)
	Multimodal(title, text string, image []byte, mediaType string) (json.RawMessage, error)
}

// ItemStore is the relational membership and passage store.
type ItemStore interface {
	RecentIDs(ctx context.Context, since time.Time) (map[string]bool, error)
	UpsertMembership(ctx context.Context, members []types.Membership) error
	UpdatePassage(ctx context.Context, id, passage string, timeAdded int64) error
}

// ObjectStore holds batch artifacts.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
	URI(key string) string
}

// BatchSubmitter starts an asynchronous batch inference job.
type BatchSubmitter interface {
	Submit(ctx context.Context, inputURI, outputURI string, unixTS int64) (*inference.Job, error)
}

// Invoker runs a single model input synchronously.
type Invoker interface {
	Invoke(ctx context.Context, modelInput json.RawMessage) (string, error)
}

// VectorWriter upserts enriched items into the vector index.
type VectorWriter interface {
	Write(ctx context.Context, items []types.EnrichedItem) error
}

// VectorLookup reads enriched items already in the vector index. Missing ids
// are omitted from the result.
type VectorLookup interface {
	Fetch(ctx context.Context, ids []string) ([]types.EnrichedItem, error)
}

// VectorSweeper finds and removes expired vectors.
type VectorSweeper interface {
	ExpiredIDs(ctx context.Context, cutoff int64) ([]string, error)
	Delete(ctx context.Context, ids []string) error
}

// ScratchCleaner removes scraped artifacts once a batch is submitted.
type ScratchCleaner interface {
	Clear() error
}

// Publisher announces enriched items to downstream consumers.
type Publisher interface {
	PublishEnriched(ctx context.Context, items []types.EnrichedItem) error
}

// ReconciledMarker remembers which output artifacts were already processed.
type ReconciledMarker interface {
	IsReconciled(ctx context.Context, key string) (bool, error)
	MarkReconciled(ctx context.Context, key string) error
}
