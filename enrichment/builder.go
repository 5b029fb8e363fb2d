package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"hnenricher/common"
	"hnenricher/types"
)

// Skip records an item dropped while building a batch.
type Skip struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BuildResult is the outcome of one build pass. Records and Members are
// index-aligned: one of each per successful item.
type BuildResult struct {
	Records []types.BatchRecord
	Members []types.Membership
	Skipped []Skip
}

// Builder turns candidate ids into batch records and membership rows.
type Builder struct {
	details  DetailSource
	fetcher  ContentFetcher
	payloads PayloadBuilder
	logger   *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(details DetailSource, fetcher ContentFetcher, payloads PayloadBuilder, logger *slog.Logger) (*Builder, error) {
	if details == nil {
		return nil, errors.New("enrichment: detail source must not be nil")
	}
	if fetcher == nil {
		return nil, errors.New("enrichment: content fetcher must not be nil")
	}
	if payloads == nil {
		return nil, errors.New("enrichment: payload builder must not be nil")
	}
	if logger == nil {
		logger = common.DiscardLogger()
	}
	return &Builder{
		details:  details,
		fetcher:  fetcher,
		payloads: payloads,
		logger:   logger.With("component", "builder"),
	}, nil
}

// Build fetches each id and renders its record. Failures are skipped and the
// pass continues.
func (b *Builder) Build(ctx context.Context, ids []string) BuildResult {
	var res BuildResult
	for _, id := range ids {
		if ctx.Err() != nil {
			res.Skipped = append(res.Skipped, Skip{ID: id, Reason: ctx.Err().Error()})
			continue
		}
		built := b.buildOne(ctx, id)
		if !built.Success {
			b.logger.Warn("skipping item", "id", id, "err", built.Err)
			res.Skipped = append(res.Skipped, Skip{ID: id, Reason: built.Err.Error()})
			continue
		}
		res.Records = append(res.Records, built.Payload.record)
		res.Members = append(res.Members, built.Payload.member)
	}
	return res
}

type builtItem struct {
	item   types.Item
	record types.BatchRecord
	member types.Membership
}

func (b *Builder) buildOne(ctx context.Context, id string) types.Result[builtItem] {
	item, err := b.details.Item(ctx, id).Unwrap()
	if err != nil {
		return types.Fail[builtItem](fmt.Errorf("detail: %w", err))
	}
	if item.ID == "" {
		item.ID = id
	}

	input, err := b.modelInput(ctx, item)
	if err != nil {
		return types.Fail[builtItem](err)
	}
	return types.Ok(builtItem{
		item:   item,
		record: types.BatchRecord{RecordID: item.ID, ModelInput: input},
		member: types.Membership{ID: item.ID, URL: item.LinkOrFallback()},
	})
}

func (b *Builder) modelInput(ctx context.Context, item types.Item) (json.RawMessage, error) {
	if item.URL == "" {
		text := item.Text
		if strings.TrimSpace(text) == "" {
			text = item.Title
		}
		input, err := b.payloads.TextOnly(item.Title, text)
		if err != nil {
			return nil, fmt.Errorf("payload: %w", err)
		}
		return input, nil
	}

	scrape, err := b.fetcher.Fetch(ctx, item.ID, item.URL).Unwrap()
	if err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}
	if !scrape.HasImage() {
		input, err := b.payloads.TextOnly(item.Title, scrape.Text)
		if err != nil {
			return nil, fmt.Errorf("payload: %w", err)
		}
		return input, nil
	}
	input, err := b.payloads.Multimodal(item.Title, scrape.Text, scrape.Image, scrape.MediaType)
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	return input, nil
}
