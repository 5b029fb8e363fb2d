package hackernews

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
)

// DefaultFeedURL lists the newest stories as RSS.
const DefaultFeedURL = "https://hnrss.org/newest"

// FeedRanker ranks ids by their order in an hnrss feed. It is the fallback
// when the Firebase API is unavailable.
type FeedRanker struct {
	feedURL string
	parser  *gofeed.Parser
}

// NewFeedRanker creates a FeedRanker. An empty feedURL selects DefaultFeedURL.
func NewFeedRanker(feedURL string) *FeedRanker {
	if feedURL == "" {
		feedURL = DefaultFeedURL
	}
	return &FeedRanker{feedURL: feedURL, parser: gofeed.NewParser()}
}

// Ranked returns up to limit item ids in feed order.
func (f *FeedRanker) Ranked(ctx context.Context, limit int) ([]string, error) {
	feed, err := f.parser.ParseURLWithContext(f.feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("hackernews: parse feed %s: %w", f.feedURL, err)
	}

	ids := make([]string, 0, len(feed.Items))
	seen := make(map[string]bool, len(feed.Items))
	for _, item := range feed.Items {
		id := itemIDFromFeed(item)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
		if limit > 0 && len(ids) == limit {
			break
		}
	}
	return ids, nil
}

// itemIDFromFeed extracts the HN id from the comments link or GUID.
func itemIDFromFeed(item *gofeed.Item) string {
	candidates := []string{item.GUID, item.Link}
	if c, ok := item.Custom["comments"]; ok {
		candidates = append([]string{c}, candidates...)
	}
	for _, raw := range candidates {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || !strings.HasSuffix(u.Host, "ycombinator.com") {
			continue
		}
		if id := u.Query().Get("id"); id != "" {
			return id
		}
	}
	return ""
}
