package enrichment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"hnenricher/batch"
	"hnenricher/common"
	"hnenricher/inference"
)

// Submitter uploads the pending batch and starts a batch inference job.
type Submitter struct {
	pending      batch.Pending
	objects      ObjectStore
	jobs         BatchSubmitter
	scratch      ScratchCleaner
	inputPrefix  string
	outputPrefix string
	logger       *slog.Logger
}

// SubmitterDeps wires a Submitter. Scratch is optional.
type SubmitterDeps struct {
	Pending      batch.Pending
	Objects      ObjectStore
	Jobs         BatchSubmitter
	Scratch      ScratchCleaner
	InputPrefix  string
	OutputPrefix string
	Logger       *slog.Logger
}

// NewSubmitter creates a Submitter.
func NewSubmitter(deps SubmitterDeps) (*Submitter, error) {
	if deps.Pending == nil {
		return nil, errors.New("enrichment: pending batch must not be nil")
	}
	if deps.Objects == nil {
		return nil, errors.New("enrichment: object store must not be nil")
	}
	if deps.Jobs == nil {
		return nil, errors.New("enrichment: batch submitter must not be nil")
	}
	logger := deps.Logger
	if logger == nil {
		logger = common.DiscardLogger()
	}
	return &Submitter{
		pending:      deps.Pending,
		objects:      deps.Objects,
		jobs:         deps.Jobs,
		scratch:      deps.Scratch,
		inputPrefix:  deps.InputPrefix,
		outputPrefix: deps.OutputPrefix,
		logger:       logger.With("component", "submitter"),
	}, nil
}

// Flush uploads the pending batch as input-<unix_ts>.jsonl and submits a job.
// The pending batch and scratch files are cleared only after the job starts.
// An empty batch returns a nil job.
func (s *Submitter) Flush(ctx context.Context, now time.Time) (*inference.Job, error) {
	doc, err := s.pending.Contents(ctx)
	if err != nil {
		return nil, newError(ErrorStoreUnavailable, "read pending batch", err)
	}
	if len(batch.SplitLines(doc)) == 0 {
		return nil, nil
	}

	ts := now.Unix()
	key := s.inputPrefix + InputArtifactName(ts)
	if err := s.objects.Put(ctx, key, doc, "application/jsonl"); err != nil {
		return nil, newError(ErrorUpload, "upload "+key, err)
	}

	job, err := s.jobs.Submit(ctx, s.objects.URI(key), s.objects.URI(s.outputPrefix), ts)
	if err != nil {
		return nil, newError(ErrorSubmit, "submit "+key, err)
	}
	s.logger.Info("batch job submitted", "job", job.Name, "arn", job.ARN, "input", job.InputURI)

	if err := s.pending.Reset(ctx); err != nil {
		return job, newError(ErrorStoreUnavailable, "reset pending batch", err)
	}
	if s.scratch != nil {
		if err := s.scratch.Clear(); err != nil {
			s.logger.Warn("clearing scratch", "err", err)
		}
	}
	return job, nil
}
