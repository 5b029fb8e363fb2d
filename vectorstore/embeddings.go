package vectorstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/cohere-ai/cohere-go/v2/option"
)

// InputType distinguishes indexed passages from search queries.
type InputType string

const (
	InputDocument InputType = "search_document"
	InputQuery    InputType = "search_query"
)

// Embedder turns texts into vectors, one per input.
type Embedder interface {
	Embed(ctx context.Context, texts []string, inputType InputType) ([][]float32, error)
	ModelName() string
}

// embedAPI is the subset of the Cohere v2 client used here.
type embedAPI interface {
	Embed(ctx context.Context, request *cohere.V2EmbedRequest, opts ...option.RequestOption) (*cohere.EmbedByTypeResponse, error)
}

// CohereEmbeddings implements Embedder with the Cohere Embed API (v2).
type CohereEmbeddings struct {
	api   embedAPI
	model string
}

// NewCohereEmbeddings builds a Cohere client for apiKey.
func NewCohereEmbeddings(apiKey, model string) (*CohereEmbeddings, error) {
	if apiKey == "" {
		return nil, errors.New("vectorstore: cohere api key is required")
	}
	// Force HTTP/1.1; the embed endpoint has shown HTTP/2 stream resets.
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			TLSNextProto:      make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
			ForceAttemptHTTP2: false,
		},
	}
	client := cohereclient.NewClient(
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(httpClient),
	)
	return NewCohereEmbeddingsWithClient(client.V2, model)
}

// NewCohereEmbeddingsWithClient wraps an existing v2 client; used by tests.
func NewCohereEmbeddingsWithClient(api embedAPI, model string) (*CohereEmbeddings, error) {
	if api == nil {
		return nil, errors.New("vectorstore: cohere api must not be nil")
	}
	if model == "" {
		model = "embed-multilingual-v3.0"
	}
	return &CohereEmbeddings{api: api, model: model}, nil
}

func (c *CohereEmbeddings) ModelName() string { return c.model }

func (c *CohereEmbeddings) Embed(ctx context.Context, texts []string, inputType InputType) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	it := cohere.EmbedInputTypeSearchDocument
	if inputType == InputQuery {
		it = cohere.EmbedInputTypeSearchQuery
	}

	resp, err := c.api.Embed(ctx, &cohere.V2EmbedRequest{
		Texts:          texts,
		Model:          c.model,
		InputType:      it,
		EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: cohere embed: %w", err)
	}
	if resp == nil || resp.Embeddings == nil || resp.Embeddings.Float == nil {
		return nil, errors.New("vectorstore: cohere embed returned no float embeddings")
	}

	floats := resp.Embeddings.Float
	if len(floats) != len(texts) {
		return nil, fmt.Errorf("vectorstore: embedding count mismatch: got %d, want %d", len(floats), len(texts))
	}

	out := make([][]float32, len(floats))
	for i, vec := range floats {
		fv := make([]float32, len(vec))
		for j, v := range vec {
			fv[j] = float32(v)
		}
		out[i] = fv
	}
	return out, nil
}
