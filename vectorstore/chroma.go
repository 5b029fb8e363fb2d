package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Chroma wraps the Chroma vector database v2 REST API for one collection.
// Embeddings are always supplied by the caller.
type Chroma struct {
	baseURL      string
	tenant       string
	database     string
	collectionID string
	httpClient   *http.Client
}

// ChromaConfig holds configuration for a Chroma connection.
type ChromaConfig struct {
	// BaseURL overrides Host/Port, e.g. "http://localhost:8000".
	BaseURL        string
	Host           string
	Port           int
	CollectionName string
	Timeout        time.Duration
}

// Record is one vector entry.
type Record struct {
	ID        string
	Embedding []float32
	Document  string
	Metadata  map[string]any
}

// GetResults represents the response from a get request.
type GetResults struct {
	IDs       []string         `json:"ids"`
	Metadatas []map[string]any `json:"metadatas"`
	Documents []*string        `json:"documents"`
}

// QueryResults represents the response from a similarity query.
type QueryResults struct {
	IDs       [][]string         `json:"ids"`
	Distances [][]float32        `json:"distances"`
	Metadatas [][]map[string]any `json:"metadatas"`
}

// NewChroma resolves (or creates) the collection and returns a client bound to it.
func NewChroma(ctx context.Context, cfg ChromaConfig) (*Chroma, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Chroma{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api/v2",
		tenant:     "default_tenant",
		database:   "default_database",
		httpClient: &http.Client{Timeout: timeout},
	}

	id, err := c.getOrCreateCollection(ctx, cfg.CollectionName)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: collection %s: %w", cfg.CollectionName, err)
	}
	c.collectionID = id
	return c, nil
}

func (c *Chroma) collectionsURL() string {
	return fmt.Sprintf("%s/tenants/%s/databases/%s/collections", c.baseURL, c.tenant, c.database)
}

func (c *Chroma) collectionURL() string {
	return c.collectionsURL() + "/" + c.collectionID
}

func (c *Chroma) getOrCreateCollection(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", errors.New("collection name is required")
	}
	payload := map[string]any{
		"name":          name,
		"get_or_create": true,
		"metadata": map[string]any{
			"description": "enriched hacker news items",
			"hnsw:space":  "cosine",
		},
	}
	var result struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, c.collectionsURL(), payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", errors.New("empty collection id in response")
	}
	return result.ID, nil
}

// Upsert inserts or overwrites records by id.
func (c *Chroma) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, len(records))
	embs := make([][]float32, len(records))
	docs := make([]string, len(records))
	metas := make([]map[string]any, len(records))
	for i, r := range records {
		ids[i] = r.ID
		embs[i] = r.Embedding
		docs[i] = r.Document
		metas[i] = r.Metadata
	}

	payload := map[string]any{
		"ids":        ids,
		"embeddings": embs,
		"documents":  docs,
		"metadatas":  metas,
	}
	if err := c.post(ctx, c.collectionURL()+"/upsert", payload, nil); err != nil {
		return fmt.Errorf("vectorstore: upsert: %w", err)
	}
	return nil
}

// Get fetches entries by id and/or metadata filter. A zero limit returns all matches.
func (c *Chroma) Get(ctx context.Context, ids []string, where map[string]any, limit int) (*GetResults, error) {
	payload := map[string]any{
		"include": []string{"metadatas", "documents"},
	}
	if len(ids) > 0 {
		payload["ids"] = ids
	}
	if len(where) > 0 {
		payload["where"] = where
	}
	if limit > 0 {
		payload["limit"] = limit
	}

	var result GetResults
	if err := c.post(ctx, c.collectionURL()+"/get", payload, &result); err != nil {
		return nil, fmt.Errorf("vectorstore: get: %w", err)
	}
	return &result, nil
}

// Query returns the nResults nearest entries to embedding, optionally filtered.
func (c *Chroma) Query(ctx context.Context, embedding []float32, nResults int, where map[string]any) (*QueryResults, error) {
	payload := map[string]any{
		"query_embeddings": [][]float32{embedding},
		"n_results":        nResults,
		"include":          []string{"metadatas", "distances"},
	}
	if len(where) > 0 {
		payload["where"] = where
	}

	var result QueryResults
	if err := c.post(ctx, c.collectionURL()+"/query", payload, &result); err != nil {
		return nil, fmt.Errorf("vectorstore: query: %w", err)
	}
	return &result, nil
}

// Delete removes entries by id.
func (c *Chroma) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.post(ctx, c.collectionURL()+"/delete", map[string]any{"ids": ids}, nil); err != nil {
		return fmt.Errorf("vectorstore: delete: %w", err)
	}
	return nil
}

// Count returns the number of entries in the collection.
func (c *Chroma) Count(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.collectionURL()+"/count", nil)
	if err != nil {
		return 0, err
	}
	var count int
	if err := c.do(req, &count); err != nil {
		return 0, fmt.Errorf("vectorstore: count: %w", err)
	}
	return count, nil
}

// Ping reports whether the collection is reachable.
func (c *Chroma) Ping(ctx context.Context) error {
	_, err := c.Count(ctx)
	return err
}

func (c *Chroma) post(ctx context.Context, url string, payload, dst any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, dst)
}

func (c *Chroma) do(req *http.Request, dst any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if dst == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
