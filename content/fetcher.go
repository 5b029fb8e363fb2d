package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"hnenricher/types"
)

const (
	// DefaultTimeout bounds one content fetch, extraction and image download included.
	DefaultTimeout = 30 * time.Second

	maxImageBytes = 5 << 20
)

// extractFunc matches readability.FromURL.
type extractFunc func(pageURL string, timeout time.Duration) (readability.Article, error)

func fromURL(pageURL string, timeout time.Duration) (readability.Article, error) {
	return readability.FromURL(pageURL, timeout)
}

// Fetcher extracts readable text and the lead image for a URL, standing in for
// the page-rendering collaborator. Images are also written to a scratch directory
// that the submitter clears after a flush.
type Fetcher struct {
	timeout    time.Duration
	scratchDir string
	httpClient *http.Client
	extract    extractFunc
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher. An empty scratchDir keeps images in memory only.
func NewFetcher(scratchDir string, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		timeout:    timeout,
		scratchDir: scratchDir,
		httpClient: &http.Client{Timeout: timeout},
		extract:    fromURL,
		logger:     logger.With("component", "content"),
	}
}

// Fetch returns the page text and, when the page declares one, its lead image.
// A page without a usable image still succeeds with text only.
func (f *Fetcher) Fetch(ctx context.Context, id, pageURL string) types.Result[types.Scrape] {
	if strings.TrimSpace(pageURL) == "" {
		return types.Fail[types.Scrape](errors.New("content: url is empty"))
	}

	article, err := f.extract(pageURL, f.timeout)
	if err != nil {
		return types.Fail[types.Scrape](fmt.Errorf("content: readability extraction failed: %w", err))
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		text = strings.TrimSpace(article.Excerpt)
	}
	if text == "" {
		return types.Fail[types.Scrape](fmt.Errorf("content: no readable text at %s", pageURL))
	}

	scrape := types.Scrape{Text: text}
	if article.Image == "" {
		return types.Ok(scrape)
	}

	img, mediaType, err := f.downloadImage(ctx, article.Image)
	if err != nil {
		f.logger.Warn("lead image unavailable", "id", id, "image", article.Image, "err", err)
		return types.Ok(scrape)
	}
	scrape.Image = img
	scrape.MediaType = mediaType

	if f.scratchDir != "" {
		path, err := f.writeScratch(id, mediaType, img)
		if err != nil {
			f.logger.Warn("scratch write failed", "id", id, "err", err)
		} else {
			scrape.ImagePath = path
		}
	}
	return types.Ok(scrape)
}

func (f *Fetcher) downloadImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(body) > maxImageBytes {
		return nil, "", fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}

	mediaType := http.DetectContentType(body)
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}
	if !supportedImage(mediaType) {
		return nil, "", fmt.Errorf("unsupported media type %s", mediaType)
	}
	return body, mediaType, nil
}

func supportedImage(mediaType string) bool {
	switch mediaType {
	case "image/png", "image/jpeg", "image/gif", "image/webp":
		return true
	}
	return false
}

func (f *Fetcher) writeScratch(id, mediaType string, img []byte) (string, error) {
	if err := os.MkdirAll(f.scratchDir, 0o755); err != nil {
		return "", err
	}
	ext := "." + strings.TrimPrefix(mediaType, "image/")
	path := filepath.Join(f.scratchDir, id+ext)
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Clear removes every scratch artifact written by Fetch.
func (f *Fetcher) Clear() error {
	if f.scratchDir == "" {
		return nil
	}
	entries, err := os.ReadDir(f.scratchDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("content: clear scratch: %w", err)
	}
	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(f.scratchDir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
