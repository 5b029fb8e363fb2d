package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hnenricher/common"
	"hnenricher/inference"
	"hnenricher/types"
)

// PipelineDeps wires every component used by the cycles. Publisher, Invoker
// and Lookup are optional.
type PipelineDeps struct {
	Selector    *Selector
	Builder     *Builder
	Accumulator *Accumulator
	Submitter   *Submitter
	Reconciler  *Reconciler
	Retention   *Retention
	Items       ItemStore
	Vectors     VectorWriter
	Publisher   Publisher
	Invoker     Invoker
	Lookup      VectorLookup
	Logger      *slog.Logger
}

// Pipeline runs the ingest, reconcile and retention cycles. Cycles are not
// safe to run concurrently; callers serialize them.
type Pipeline struct {
	selector    *Selector
	builder     *Builder
	accumulator *Accumulator
	submitter   *Submitter
	reconciler  *Reconciler
	retention   *Retention
	items       ItemStore
	vectors     VectorWriter
	publisher   Publisher
	invoker     Invoker
	lookup      VectorLookup
	now         func() time.Time
	logger      *slog.Logger
}

// NewPipeline validates deps and creates a Pipeline.
func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	switch {
	case deps.Selector == nil:
		return nil, errors.New("enrichment: selector must not be nil")
	case deps.Builder == nil:
		return nil, errors.New("enrichment: builder must not be nil")
	case deps.Accumulator == nil:
		return nil, errors.New("enrichment: accumulator must not be nil")
	case deps.Submitter == nil:
		return nil, errors.New("enrichment: submitter must not be nil")
	case deps.Reconciler == nil:
		return nil, errors.New("enrichment: reconciler must not be nil")
	case deps.Retention == nil:
		return nil, errors.New("enrichment: retention must not be nil")
	case deps.Items == nil:
		return nil, errors.New("enrichment: item store must not be nil")
	case deps.Vectors == nil:
		return nil, errors.New("enrichment: vector writer must not be nil")
	}
	logger := deps.Logger
	if logger == nil {
		logger = common.DiscardLogger()
	}
	return &Pipeline{
		selector:    deps.Selector,
		builder:     deps.Builder,
		accumulator: deps.Accumulator,
		submitter:   deps.Submitter,
		reconciler:  deps.Reconciler,
		retention:   deps.Retention,
		items:       deps.Items,
		vectors:     deps.Vectors,
		publisher:   deps.Publisher,
		invoker:     deps.Invoker,
		lookup:      deps.Lookup,
		now:         time.Now,
		logger:      logger.With("component", "pipeline"),
	}, nil
}

// IngestReport summarizes one ingest cycle.
type IngestReport struct {
	Selected int            `json:"selected"`
	Built    int            `json:"built"`
	Skipped  []Skip         `json:"skipped,omitempty"`
	Pending  AddResult      `json:"pending"`
	Job      *inference.Job `json:"job,omitempty"`
}

// Ingest selects candidates, builds their records, records membership,
// appends to the pending batch and flushes it once ready.
func (p *Pipeline) Ingest(ctx context.Context) (*IngestReport, error) {
	now := p.now()
	ids, err := p.selector.Select(ctx, now)
	if err != nil {
		return nil, err
	}

	built := p.builder.Build(ctx, ids)
	rep := &IngestReport{Selected: len(ids), Built: len(built.Records), Skipped: built.Skipped}

	if err := p.items.UpsertMembership(ctx, built.Members); err != nil {
		return rep, newError(ErrorStoreUnavailable, "record membership", err)
	}

	rep.Pending, err = p.accumulator.Add(ctx, built.Records)
	if err != nil {
		return rep, err
	}
	p.logger.Info("ingest cycle",
		"selected", rep.Selected, "built", rep.Built, "skipped", len(rep.Skipped),
		"pending", rep.Pending.Total, "ready", rep.Pending.Ready)

	if !rep.Pending.Ready {
		return rep, nil
	}
	rep.Job, err = p.submitter.Flush(ctx, now)
	if err != nil {
		return rep, err
	}
	if rep.Job != nil {
		rep.Pending.Total = 0
		rep.Pending.Ready = false
	}
	return rep, nil
}

// ReconcileReport summarizes one reconcile cycle.
type ReconcileReport struct {
	Artifacts []ArtifactReport `json:"artifacts"`
	Paired    int              `json:"paired"`
	Written   int              `json:"written"`
	Failed    []string         `json:"failed,omitempty"`
}

// Reconcile pairs batch outputs with their items, updates passages, writes
// the vectors and marks the artifacts done.
func (p *Pipeline) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	collected, err := p.reconciler.Collect(ctx)
	if err != nil {
		return nil, err
	}
	rep := &ReconcileReport{Artifacts: collected.Artifacts, Paired: len(collected.Results)}
	for _, a := range collected.Artifacts {
		if !a.OK() {
			rep.Failed = append(rep.Failed, a.Err.Error())
		}
	}

	items, err := p.reconciler.Process(ctx, collected.Results)
	if err != nil {
		return rep, fmt.Errorf("enrichment: process results: %w", err)
	}
	if len(items) > 0 {
		if err := p.vectors.Write(ctx, items); err != nil {
			return rep, newError(ErrorVectorWrite, "write vectors", err)
		}
		rep.Written = len(items)
		p.publish(ctx, items)
	}
	p.reconciler.Mark(ctx, collected.Artifacts)

	p.logger.Info("reconcile cycle",
		"artifacts", len(rep.Artifacts), "paired", rep.Paired, "written", rep.Written, "failed", len(rep.Failed))
	return rep, nil
}

// SweepSummary holds both retention reports.
type SweepSummary struct {
	Vectors   SweepReport `json:"vectors"`
	Artifacts SweepReport `json:"artifacts"`
}

// Sweep runs both retention sweeps. It never fails.
func (p *Pipeline) Sweep(ctx context.Context) SweepSummary {
	now := p.now()
	return SweepSummary{
		Vectors:   p.retention.SweepVectors(ctx, now),
		Artifacts: p.retention.SweepArtifacts(ctx, now),
	}
}

// PendingCount returns the number of records waiting for the next flush.
func (p *Pipeline) PendingCount(ctx context.Context) (int, error) {
	return p.accumulator.Count(ctx)
}

// ErrNoInvoker is returned by EnrichNow when synchronous inference is not wired.
var ErrNoInvoker = errors.New("enrichment: synchronous inference is not configured")

// EnrichNow enriches one item synchronously, bypassing the batch. An item
// already in the vector index is returned as stored without invoking the model.
func (p *Pipeline) EnrichNow(ctx context.Context, id string) (*types.EnrichedItem, error) {
	if p.invoker == nil {
		return nil, ErrNoInvoker
	}
	if existing := p.indexed(ctx, id); existing != nil {
		return existing, nil
	}
	built, err := p.builder.buildOne(ctx, id).Unwrap()
	if err != nil {
		return nil, newError(ErrorCandidateSource, "build "+id, err)
	}
	if err := p.items.UpsertMembership(ctx, []types.Membership{built.member}); err != nil {
		return nil, newError(ErrorStoreUnavailable, "record membership", err)
	}

	text, err := p.invoker.Invoke(ctx, built.record.ModelInput)
	if err != nil {
		return nil, newError(ErrorSubmit, "invoke "+id, err)
	}

	item := types.EnrichedItem{
		ID:        built.item.ID,
		URL:       built.item.URL,
		Passage:   types.ComposePassage(built.item.Title, text),
		TimeAdded: p.now().Unix(),
	}
	if err := p.items.UpdatePassage(ctx, item.ID, item.Passage, item.TimeAdded); err != nil {
		return nil, newError(ErrorStoreUnavailable, "update passage", err)
	}
	if err := p.vectors.Write(ctx, []types.EnrichedItem{item}); err != nil {
		return nil, newError(ErrorVectorWrite, "write vector", err)
	}
	p.publish(ctx, []types.EnrichedItem{item})
	return &item, nil
}

func (p *Pipeline) indexed(ctx context.Context, id string) *types.EnrichedItem {
	if p.lookup == nil {
		return nil
	}
	found, err := p.lookup.Fetch(ctx, []string{id})
	if err != nil {
		p.logger.Warn("vector lookup failed, enriching anyway", "id", id, "err", err)
		return nil
	}
	for _, item := range found {
		if item.ID == id {
			p.logger.Info("item already indexed", "id", id)
			return &item
		}
	}
	return nil
}

func (p *Pipeline) publish(ctx context.Context, items []types.EnrichedItem) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishEnriched(ctx, items); err != nil {
		p.logger.Warn("publishing enriched items", "count", len(items), "err", err)
	}
}
