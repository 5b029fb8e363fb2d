package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"hnenricher/inference"
	"hnenricher/types"
)

var testNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

type fakeRanker struct {
	ids       []string
	err       error
	lastLimit int
}

func (f *fakeRanker) Ranked(_ context.Context, limit int) ([]string, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if len(f.ids) > limit {
		return f.ids[:limit], nil
	}
	return f.ids, nil
}

type fakeDetails struct {
	items map[string]types.Item
	calls int
}

func (f *fakeDetails) Item(_ context.Context, id string) types.Result[types.Item] {
	f.calls++
	it, ok := f.items[id]
	if !ok {
		return types.Fail[types.Item](errors.New("item not found"))
	}
	return types.Ok(it)
}

type fakeFetcher struct {
	scrapes map[string]types.Scrape
	calls   []string
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string, url string) types.Result[types.Scrape] {
	f.calls = append(f.calls, url)
	s, ok := f.scrapes[url]
	if !ok {
		return types.Fail[types.Scrape](errors.New("fetch timed out"))
	}
	return types.Ok(s)
}

type fakeItems struct {
	recent      map[string]bool
	recentErr   error
	recentSince time.Time
	members     []types.Membership
	upsertErr   error
	passages    map[string]string
	timeAdded   map[string]int64
	updateErr   map[string]error
}

func newFakeItems() *fakeItems {
	return &fakeItems{
		recent:    map[string]bool{},
		passages:  map[string]string{},
		timeAdded: map[string]int64{},
		updateErr: map[string]error{},
	}
}

func (f *fakeItems) RecentIDs(_ context.Context, since time.Time) (map[string]bool, error) {
	f.recentSince = since
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	return f.recent, nil
}

func (f *fakeItems) UpsertMembership(_ context.Context, members []types.Membership) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.members = append(f.members, members...)
	return nil
}

func (f *fakeItems) UpdatePassage(_ context.Context, id, passage string, timeAdded int64) error {
	if err := f.updateErr[id]; err != nil {
		return err
	}
	f.passages[id] = passage
	f.timeAdded[id] = timeAdded
	return nil
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	getErr  map[string]error
	listErr map[string]error
	headErr error
	deleted []string
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}, getErr: map[string]error{}, listErr: map[string]error{}}
}

func (m *memObjects) Put(_ context.Context, key string, body []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[key] = append([]byte(nil), body...)
	return nil
}

func (m *memObjects) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.getErr[key]; err != nil {
		return nil, err
	}
	b, ok := m.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey: " + key)
	}
	return b, nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memObjects) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.headErr != nil {
		return false, m.headErr
	}
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memObjects) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.listErr[prefix]; err != nil {
		return nil, err
	}
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memObjects) URI(key string) string { return "s3://artifacts/" + key }

func (m *memObjects) keys() []string {
	keys, _ := m.List(context.Background(), "")
	return keys
}

type fakeJobs struct {
	calls     int
	err       error
	inputURI  string
	outputURI string
}

func (f *fakeJobs) Submit(_ context.Context, inputURI, outputURI string, unixTS int64) (*inference.Job, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.inputURI, f.outputURI = inputURI, outputURI
	return &inference.Job{Name: inference.JobName("hn-enrich", unixTS), ARN: "arn:job", InputURI: inputURI, OutputURI: outputURI}, nil
}

type fakeScratch struct{ cleared int }

func (f *fakeScratch) Clear() error {
	f.cleared++
	return nil
}

type fakeVectors struct {
	writes    [][]types.EnrichedItem
	err       error
	timeAdded map[string]int64
	deleteErr error
	fetchErr  error
	lastCut   int64
}

func (f *fakeVectors) Fetch(_ context.Context, ids []string) ([]types.EnrichedItem, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []types.EnrichedItem
	for _, written := range f.writes {
		for _, item := range written {
			if want[item.ID] {
				out = append(out, item)
			}
		}
	}
	return out, nil
}

func (f *fakeVectors) Write(_ context.Context, items []types.EnrichedItem) error {
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, items)
	return nil
}

func (f *fakeVectors) ExpiredIDs(_ context.Context, cutoff int64) ([]string, error) {
	f.lastCut = cutoff
	var ids []string
	for id, ta := range f.timeAdded {
		if ta < cutoff {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeVectors) Delete(_ context.Context, ids []string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for _, id := range ids {
		delete(f.timeAdded, id)
	}
	return nil
}

type fakePublisher struct {
	published []types.EnrichedItem
	err       error
}

func (f *fakePublisher) PublishEnriched(_ context.Context, items []types.EnrichedItem) error {
	f.published = append(f.published, items...)
	return f.err
}

type fakeMarker struct {
	done map[string]bool
}

func (f *fakeMarker) IsReconciled(_ context.Context, key string) (bool, error) {
	return f.done[key], nil
}

func (f *fakeMarker) MarkReconciled(_ context.Context, key string) error {
	f.done[key] = true
	return nil
}

type fakeInvoker struct {
	text  string
	err   error
	calls int
	last  json.RawMessage
}

func (f *fakeInvoker) Invoke(_ context.Context, in json.RawMessage) (string, error) {
	f.calls++
	f.last = in
	return f.text, f.err
}

func testPayloads() inference.PayloadBuilder {
	return inference.PayloadBuilder{Prompt: "Summarize the story.", MaxTokens: 256, AnthropicVersion: "bedrock-2023-05-31"}
}

// threeItems returns a linked story with an image, a linked story without
// one, and a text post.
func threeItems() (*fakeDetails, *fakeFetcher) {
	details := &fakeDetails{items: map[string]types.Item{
		"101": {ID: "101", Title: "Rust in the kernel", URL: "https://example.com/rust"},
		"102": {ID: "102", Title: "A quiet database", URL: "https://example.com/db"},
		"103": {ID: "103", Title: "Ask HN: Favorite editor?", Text: "Which one and why?"},
	}}
	fetcher := &fakeFetcher{scrapes: map[string]types.Scrape{
		"https://example.com/rust": {Text: "Rust lands in mainline.", Image: []byte{0x89, 'P', 'N', 'G'}, MediaType: "image/png"},
		"https://example.com/db":   {Text: "Postgres tuning notes."},
	}}
	return details, fetcher
}

func outputLine(id, text string) string {
	line := types.OutputLine{RecordID: id, ModelOutput: &types.ModelOutput{Content: []types.ContentBlock{{Type: "text", Text: text}}}}
	b, _ := json.Marshal(line)
	return string(b)
}

func inputDoc(ids ...string) []byte {
	var sb strings.Builder
	for _, id := range ids {
		b, _ := json.Marshal(types.BatchRecord{RecordID: id, ModelInput: json.RawMessage(`{}`)})
		sb.Write(b)
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}
