package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"hnenricher/types"
)

// DefaultChunkSize is the embedding service batch ceiling.
const DefaultChunkSize = 96

// Index is the vector index contract. *Chroma satisfies it.
type Index interface {
	Upsert(ctx context.Context, records []Record) error
	Get(ctx context.Context, ids []string, where map[string]any, limit int) (*GetResults, error)
	Query(ctx context.Context, embedding []float32, nResults int, where map[string]any) (*QueryResults, error)
	Delete(ctx context.Context, ids []string) error
}

var _ Index = (*Chroma)(nil)

// Match is one similarity search hit.
type Match struct {
	Item     types.EnrichedItem `json:"item"`
	Distance float32            `json:"distance"`
}

// Writer embeds enriched items and maintains them in the vector index.
type Writer struct {
	index     Index
	embedder  Embedder
	chunkSize int
}

// NewWriter creates a Writer. chunkSize <= 0 selects DefaultChunkSize.
func NewWriter(index Index, embedder Embedder, chunkSize int) (*Writer, error) {
	if index == nil || embedder == nil {
		return nil, errors.New("vectorstore: index and embedder are required")
	}
	if chunkSize <= 0 || chunkSize > DefaultChunkSize {
		chunkSize = DefaultChunkSize
	}
	return &Writer{index: index, embedder: embedder, chunkSize: chunkSize}, nil
}

// Write embeds passages in chunks and upserts them. When the same id appears
// more than once, the last occurrence wins.
func (w *Writer) Write(ctx context.Context, items []types.EnrichedItem) error {
	items = lastByID(items)
	for start := 0; start < len(items); start += w.chunkSize {
		end := min(start+w.chunkSize, len(items))
		chunk := items[start:end]

		passages := make([]string, len(chunk))
		for i, it := range chunk {
			passages[i] = it.Passage
		}
		embs, err := w.embedder.Embed(ctx, passages, InputDocument)
		if err != nil {
			return fmt.Errorf("vectorstore: embed chunk %d-%d: %w", start, end, err)
		}
		if len(embs) != len(chunk) {
			return fmt.Errorf("vectorstore: embed chunk %d-%d: got %d vectors", start, end, len(embs))
		}

		records := make([]Record, len(chunk))
		for i, it := range chunk {
			records[i] = Record{
				ID:        it.ID,
				Embedding: embs[i],
				Document:  it.Passage,
				Metadata:  metadataFor(it),
			}
		}
		if err := w.index.Upsert(ctx, records); err != nil {
			return err
		}
	}
	return nil
}

// Fetch returns the stored items for ids; missing ids are omitted.
func (w *Writer) Fetch(ctx context.Context, ids []string) ([]types.EnrichedItem, error) {
	res, err := w.index.Get(ctx, ids, nil, 0)
	if err != nil {
		return nil, err
	}
	out := make([]types.EnrichedItem, 0, len(res.IDs))
	for i, id := range res.IDs {
		var meta map[string]any
		if i < len(res.Metadatas) {
			meta = res.Metadatas[i]
		}
		out = append(out, itemFromMetadata(id, meta))
	}
	return out, nil
}

// ExpiredIDs returns ids whose time_added is strictly before cutoff (epoch seconds).
func (w *Writer) ExpiredIDs(ctx context.Context, cutoff int64) ([]string, error) {
	res, err := w.index.Get(ctx, nil, map[string]any{"time_added": map[string]any{"$lt": cutoff}}, 0)
	if err != nil {
		return nil, err
	}
	return res.IDs, nil
}

// Delete removes ids from the index.
func (w *Writer) Delete(ctx context.Context, ids []string) error {
	return w.index.Delete(ctx, ids)
}

// Search embeds text as a query and returns the n nearest items.
func (w *Writer) Search(ctx context.Context, text string, n int, where map[string]any) ([]Match, error) {
	embs, err := w.embedder.Embed(ctx, []string{text}, InputQuery)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embed query: %w", err)
	}
	if len(embs) != 1 {
		return nil, fmt.Errorf("vectorstore: embed query: got %d vectors", len(embs))
	}
	res, err := w.index.Query(ctx, embs[0], n, where)
	if err != nil {
		return nil, err
	}
	if len(res.IDs) == 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(res.IDs[0]))
	for i, id := range res.IDs[0] {
		m := Match{}
		var meta map[string]any
		if len(res.Metadatas) > 0 && i < len(res.Metadatas[0]) {
			meta = res.Metadatas[0][i]
		}
		if len(res.Distances) > 0 && i < len(res.Distances[0]) {
			m.Distance = res.Distances[0][i]
		}
		m.Item = itemFromMetadata(id, meta)
		matches = append(matches, m)
	}
	return matches, nil
}

func metadataFor(it types.EnrichedItem) map[string]any {
	return map[string]any{
		"url":        it.URL,
		"time_added": it.TimeAdded,
		"passage":    it.Passage,
	}
}

func itemFromMetadata(id string, meta map[string]any) types.EnrichedItem {
	it := types.EnrichedItem{ID: id}
	if meta == nil {
		return it
	}
	it.URL, _ = meta["url"].(string)
	it.Passage, _ = meta["passage"].(string)
	switch v := meta["time_added"].(type) {
	case float64:
		it.TimeAdded = int64(v)
	case int64:
		it.TimeAdded = v
	case int:
		it.TimeAdded = int64(v)
	}
	return it
}

func lastByID(items []types.EnrichedItem) []types.EnrichedItem {
	pos := make(map[string]int, len(items))
	out := make([]types.EnrichedItem, 0, len(items))
	for _, it := range items {
		if i, ok := pos[it.ID]; ok {
			out[i] = it
			continue
		}
		pos[it.ID] = len(out)
		out = append(out, it)
	}
	return out
}
