package types

import (
	"fmt"
	"time"
)

// HNItemURL is the discussion page used when a story links nowhere.
const HNItemURL = "https://news.ycombinator.com/item?id=%s"

// Item is a single Hacker News story as returned by the item-detail source.
type Item struct {
	ID    string    `json:"id"`
	URL   string    `json:"url,omitempty"`
	Title string    `json:"title"`
	Text  string    `json:"text,omitempty"`
	By    string    `json:"by,omitempty"`
	Type  string    `json:"type,omitempty"`
	Score int       `json:"score,omitempty"`
	Time  time.Time `json:"time"`
}

// LinkOrFallback returns the story URL, or the HN discussion URL for text posts.
func (i Item) LinkOrFallback() string {
	if i.URL != "" {
		return i.URL
	}
	return FallbackURL(i.ID)
}

// FallbackURL returns the HN discussion URL for id.
func FallbackURL(id string) string {
	return fmt.Sprintf(HNItemURL, id)
}

// Membership records that an item was selected for enrichment.
type Membership struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// EnrichedItem is the reconciled result written to both stores.
type EnrichedItem struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Passage   string `json:"passage"`
	TimeAdded int64  `json:"time_added"`
}

// ComposePassage joins a title and generated text the way passages are indexed.
func ComposePassage(title, generated string) string {
	return title + ". " + generated
}

// Scrape is the output of the content fetcher for one URL.
type Scrape struct {
	Text      string `json:"text"`
	Image     []byte `json:"-"`
	MediaType string `json:"media_type,omitempty"`
	ImagePath string `json:"image_path,omitempty"`
}

// HasImage reports whether the scrape carries an image artifact.
func (s Scrape) HasImage() bool {
	return len(s.Image) > 0
}
