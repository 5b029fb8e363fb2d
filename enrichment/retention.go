package enrichment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"hnenricher/common"
	"hnenricher/config"
)

// SweepReport summarizes one retention sweep. Sweeps never fail the caller;
// Err holds the first error seen.
type SweepReport struct {
	Cutoff  time.Time `json:"cutoff"`
	Expired int       `json:"expired"`
	Deleted int       `json:"deleted"`
	Err     error     `json:"-"`
}

// Retention deletes expired vectors and old batch artifacts.
type Retention struct {
	vectors      VectorSweeper
	objects      ObjectStore
	vectorTTL    time.Duration
	cutoff       func(time.Time) (time.Time, error)
	inputPrefix  string
	outputPrefix string
	logger       *slog.Logger
}

// RetentionDeps wires a Retention. ArtifactCutoff maps now to the oldest
// artifact time kept; nil keeps artifacts from the current UTC day.
type RetentionDeps struct {
	Vectors        VectorSweeper
	Objects        ObjectStore
	VectorTTL      time.Duration
	ArtifactCutoff func(time.Time) (time.Time, error)
	InputPrefix    string
	OutputPrefix   string
	Logger         *slog.Logger
}

// NewRetention creates a Retention.
func NewRetention(deps RetentionDeps) (*Retention, error) {
	if deps.Vectors == nil {
		return nil, errors.New("enrichment: vector sweeper must not be nil")
	}
	if deps.Objects == nil {
		return nil, errors.New("enrichment: object store must not be nil")
	}
	ttl := deps.VectorTTL
	if ttl <= 0 {
		ttl = config.VectorTTL
	}
	cutoff := deps.ArtifactCutoff
	if cutoff == nil {
		cutoff = config.RetentionConfig{ArtifactTTL: config.ArtifactTTLSameDay}.Cutoff
	}
	logger := deps.Logger
	if logger == nil {
		logger = common.DiscardLogger()
	}
	return &Retention{
		vectors:      deps.Vectors,
		objects:      deps.Objects,
		vectorTTL:    ttl,
		cutoff:       cutoff,
		inputPrefix:  deps.InputPrefix,
		outputPrefix: deps.OutputPrefix,
		logger:       logger.With("component", "retention"),
	}, nil
}

// SweepVectors deletes vectors whose time_added is older than the TTL.
func (r *Retention) SweepVectors(ctx context.Context, now time.Time) SweepReport {
	rep := SweepReport{Cutoff: now.Add(-r.vectorTTL)}
	ids, err := r.vectors.ExpiredIDs(ctx, rep.Cutoff.Unix())
	if err != nil {
		rep.Err = err
		r.logger.Error("listing expired vectors", "err", err)
		return rep
	}
	rep.Expired = len(ids)
	if len(ids) == 0 {
		return rep
	}
	if err := r.vectors.Delete(ctx, ids); err != nil {
		rep.Err = err
		r.logger.Error("deleting expired vectors", "count", len(ids), "err", err)
		return rep
	}
	rep.Deleted = len(ids)
	r.logger.Info("expired vectors deleted", "count", rep.Deleted, "cutoff", rep.Cutoff)
	return rep
}

// SweepArtifacts deletes input artifacts older than the artifact cutoff,
// together with every output artifact for the same timestamp.
func (r *Retention) SweepArtifacts(ctx context.Context, now time.Time) SweepReport {
	var rep SweepReport
	cutoff, err := r.cutoff(now)
	if err != nil {
		rep.Err = err
		r.logger.Error("computing artifact cutoff", "err", err)
		return rep
	}
	rep.Cutoff = cutoff

	inputs, err := r.objects.List(ctx, r.inputPrefix)
	if err != nil {
		rep.Err = err
		r.logger.Error("listing input artifacts", "err", err)
		return rep
	}

	expired := make(map[int64]bool)
	var doomed []string
	for _, key := range inputs {
		ts, isOutput, ok := artifactTS(key)
		if !ok || isOutput || !time.Unix(ts, 0).Before(cutoff) {
			continue
		}
		expired[ts] = true
		doomed = append(doomed, key)
	}
	if len(doomed) == 0 {
		return rep
	}

	outputs, err := r.objects.List(ctx, r.outputPrefix)
	if err != nil {
		rep.Err = err
		r.logger.Error("listing output artifacts", "err", err)
		return rep
	}
	for _, key := range outputs {
		if ts, _, ok := artifactTS(key); ok && expired[ts] {
			doomed = append(doomed, key)
		}
	}

	rep.Expired = len(doomed)
	for _, key := range doomed {
		if err := r.objects.Delete(ctx, key); err != nil {
			if rep.Err == nil {
				rep.Err = err
			}
			r.logger.Error("deleting artifact", "key", key, "err", err)
			continue
		}
		rep.Deleted++
	}
	r.logger.Info("expired artifacts deleted", "count", rep.Deleted, "cutoff", cutoff)
	return rep
}
