package hackernews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hnenricher/types"
)

// DefaultBaseURL is the public Hacker News Firebase API.
const DefaultBaseURL = "https://hacker-news.firebaseio.com/v0"

// ErrNotFound is returned when the API answers null for an item.
var ErrNotFound = errors.New("hackernews: item not found")

// Client reads rankings and item details from the Firebase API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// apiItem mirrors the Firebase item JSON.
type apiItem struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	By      string `json:"by"`
	Time    int64  `json:"time"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Text    string `json:"text"`
	Score   int    `json:"score"`
	Deleted bool   `json:"deleted"`
	Dead    bool   `json:"dead"`
}

// TopStories returns up to limit ranked story ids.
func (c *Client) TopStories(ctx context.Context, limit int) ([]string, error) {
	var ids []int64
	if err := c.getJSON(ctx, "/topstories.json", &ids); err != nil {
		return nil, fmt.Errorf("hackernews: TopStories: %w", err)
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatInt(id, 10)
	}
	return out, nil
}

// Ranked implements the ranking source contract over TopStories.
func (c *Client) Ranked(ctx context.Context, limit int) ([]string, error) {
	return c.TopStories(ctx, limit)
}

// Item fetches a single item. Failures are returned inside the envelope rather
// than as an error so one bad id never stops a cycle.
func (c *Client) Item(ctx context.Context, id string) types.Result[types.Item] {
	var raw *apiItem
	if err := c.getJSON(ctx, "/item/"+id+".json", &raw); err != nil {
		return types.Fail[types.Item](fmt.Errorf("hackernews: Item %s: %w", id, err))
	}
	if raw == nil || raw.Deleted || raw.Dead {
		return types.Fail[types.Item](fmt.Errorf("%w: %s", ErrNotFound, id))
	}

	text, err := PlainText(raw.Text)
	if err != nil {
		return types.Fail[types.Item](fmt.Errorf("hackernews: Item %s: text: %w", id, err))
	}

	return types.Ok(types.Item{
		ID:    strconv.FormatInt(raw.ID, 10),
		URL:   raw.URL,
		Title: raw.Title,
		Text:  text,
		By:    raw.By,
		Type:  raw.Type,
		Score: raw.Score,
		Time:  time.Unix(raw.Time, 0).UTC(),
	})
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
