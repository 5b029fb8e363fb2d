package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	cohere "github.com/cohere-ai/cohere-go/v2"
	"github.com/cohere-ai/cohere-go/v2/option"
	"github.com/stretchr/testify/require"
)

const collectionsPath = "/api/v2/tenants/default_tenant/databases/default_database/collections"

type chromaRecorder struct {
	mu     sync.Mutex
	bodies map[string]map[string]any
	fail   map[string]bool
}

func (r *chromaRecorder) body(path string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodies[path]
}

func newChromaServer(t *testing.T, rec *chromaRecorder) *httptest.Server {
	t.Helper()
	rec.bodies = make(map[string]map[string]any)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, collectionsPath)
		if rec.fail[path] {
			http.Error(w, `{"error":"bad"}`, http.StatusBadRequest)
			return
		}

		if r.Method == http.MethodPost {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			rec.mu.Lock()
			rec.bodies[path] = body
			rec.mu.Unlock()
		}

		switch path {
		case "":
			_, _ = w.Write([]byte(`{"id":"col-1","name":"items"}`))
		case "/col-1/upsert", "/col-1/delete":
			_, _ = w.Write([]byte(`{}`))
		case "/col-1/get":
			_, _ = w.Write([]byte(`{"ids":["a"],"metadatas":[{"url":"u","time_added":5,"passage":"p"}],"documents":["p"]}`))
		case "/col-1/query":
			_, _ = w.Write([]byte(`{"ids":[["a","b"]],"distances":[[0.1,0.2]],"metadatas":[[{"url":"u"},{"url":"v"}]]}`))
		case "/col-1/count":
			_, _ = w.Write([]byte(`2`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mustNewChroma(t *testing.T, srv *httptest.Server) *Chroma {
	t.Helper()
	c, err := NewChroma(context.Background(), ChromaConfig{BaseURL: srv.URL, CollectionName: "items"})
	require.NoError(t, err)
	return c
}

func TestChroma_CreatesCollection(t *testing.T) {
	rec := &chromaRecorder{}
	srv := newChromaServer(t, rec)
	mustNewChroma(t, srv)

	body := rec.body("")
	require.Equal(t, "items", body["name"])
	require.Equal(t, true, body["get_or_create"])
}

func TestChroma_UpsertPayload(t *testing.T) {
	rec := &chromaRecorder{}
	srv := newChromaServer(t, rec)
	c := mustNewChroma(t, srv)

	err := c.Upsert(context.Background(), []Record{{
		ID:        "1",
		Embedding: []float32{0.5, 1},
		Document:  "T. x",
		Metadata:  map[string]any{"url": "u", "time_added": int64(9), "passage": "T. x"},
	}})
	require.NoError(t, err)

	body := rec.body("/col-1/upsert")
	require.Equal(t, []any{"1"}, body["ids"])
	require.Equal(t, []any{[]any{0.5, 1.0}}, body["embeddings"])
	require.Equal(t, []any{"T. x"}, body["documents"])
	meta := body["metadatas"].([]any)[0].(map[string]any)
	require.Equal(t, 9.0, meta["time_added"])

	require.NoError(t, c.Upsert(context.Background(), nil))
}

func TestChroma_GetQueryDeleteCount(t *testing.T) {
	rec := &chromaRecorder{}
	srv := newChromaServer(t, rec)
	c := mustNewChroma(t, srv)
	ctx := context.Background()

	got, err := c.Get(ctx, nil, map[string]any{"time_added": map[string]any{"$lt": 10}}, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, got.IDs)
	require.Equal(t, map[string]any{"time_added": map[string]any{"$lt": 10.0}}, rec.body("/col-1/get")["where"])
	_, hasIDs := rec.body("/col-1/get")["ids"]
	require.False(t, hasIDs)

	q, err := c.Query(ctx, []float32{1}, 2, nil)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"a", "b"}}, q.IDs)
	require.Equal(t, 2.0, rec.body("/col-1/query")["n_results"])

	require.NoError(t, c.Delete(ctx, []string{"a"}))
	require.Equal(t, []any{"a"}, rec.body("/col-1/delete")["ids"])
	require.NoError(t, c.Delete(ctx, nil))

	n, err := c.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestChroma_Ping(t *testing.T) {
	c := mustNewChroma(t, newChromaServer(t, &chromaRecorder{}))
	require.NoError(t, c.Ping(context.Background()))

	down := mustNewChroma(t, newChromaServer(t, &chromaRecorder{fail: map[string]bool{"/col-1/count": true}}))
	require.ErrorContains(t, down.Ping(context.Background()), "vectorstore: count")
}

func TestChroma_ErrorStatus(t *testing.T) {
	rec := &chromaRecorder{fail: map[string]bool{"/col-1/upsert": true}}
	srv := newChromaServer(t, rec)
	c := mustNewChroma(t, srv)

	err := c.Upsert(context.Background(), []Record{{ID: "1"}})
	require.ErrorContains(t, err, "status 400")
}

func TestNewChroma_CollectionFailure(t *testing.T) {
	rec := &chromaRecorder{fail: map[string]bool{"": true}}
	srv := newChromaServer(t, rec)
	_, err := NewChroma(context.Background(), ChromaConfig{BaseURL: srv.URL, CollectionName: "items"})
	require.Error(t, err)

	_, err = NewChroma(context.Background(), ChromaConfig{BaseURL: srv.URL})
	require.Error(t, err)
}

type fakeCohere struct {
	last *cohere.V2EmbedRequest
	resp *cohere.EmbedByTypeResponse
}

func (f *fakeCohere) Embed(_ context.Context, req *cohere.V2EmbedRequest, _ ...option.RequestOption) (*cohere.EmbedByTypeResponse, error) {
	f.last = req
	return f.resp, nil
}

func TestCohereEmbeddings(t *testing.T) {
	api := &fakeCohere{resp: &cohere.EmbedByTypeResponse{
		Embeddings: &cohere.EmbedByTypeResponseEmbeddings{Float: [][]float64{{1, 2}, {3, 4}}},
	}}
	emb, err := NewCohereEmbeddingsWithClient(api, "")
	require.NoError(t, err)
	require.Equal(t, "embed-multilingual-v3.0", emb.ModelName())

	out, err := emb.Embed(context.Background(), []string{"a", "b"}, InputDocument)
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 2}, {3, 4}}, out)
	require.Equal(t, cohere.EmbedInputTypeSearchDocument, api.last.InputType)

	_, err = emb.Embed(context.Background(), []string{"a"}, InputQuery)
	require.ErrorContains(t, err, "count mismatch")
	require.Equal(t, cohere.EmbedInputTypeSearchQuery, api.last.InputType)

	out, err = emb.Embed(context.Background(), nil, InputDocument)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestCohereEmbeddings_NoFloats(t *testing.T) {
	emb, err := NewCohereEmbeddingsWithClient(&fakeCohere{resp: &cohere.EmbedByTypeResponse{}}, "m")
	require.NoError(t, err)
	_, err = emb.Embed(context.Background(), []string{"a"}, InputDocument)
	require.ErrorContains(t, err, "no float embeddings")
}
