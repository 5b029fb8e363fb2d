package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"hnenricher/batch"
	"hnenricher/common"
	"hnenricher/types"
)

// ArtifactReport describes one output artifact seen by Collect.
type ArtifactReport struct {
	Key       string `json:"key"`
	InputKey  string `json:"input_key"`
	Records   int    `json:"records"`
	Paired    int    `json:"paired"`
	Malformed int    `json:"malformed"`
	Failed    int    `json:"failed"`
	Err       error  `json:"-"`
}

// OK reports whether the artifact was paired without an artifact-level error.
func (a ArtifactReport) OK() bool { return a.Err == nil }

// Collected is the result of the first reconciliation pass.
type Collected struct {
	Results   map[string]string
	Artifacts []ArtifactReport
}

// Pairing is the outcome of matching output lines to input record ids.
type Pairing struct {
	Results   map[string]string
	Malformed int
	Failed    int
	// MalformedLines holds the output line indexes that could not be paired.
	MalformedLines []int
}

// Reconciler maps batch outputs back to items and records their passages.
type Reconciler struct {
	objects      ObjectStore
	details      DetailSource
	items        ItemStore
	marker       ReconciledMarker
	inputPrefix  string
	outputPrefix string
	now          func() time.Time
	logger       *slog.Logger
}

// ReconcilerDeps wires a Reconciler. Marker is optional.
type ReconcilerDeps struct {
	Objects      ObjectStore
	Details      DetailSource
	Items        ItemStore
	Marker       ReconciledMarker
	InputPrefix  string
	OutputPrefix string
	Logger       *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(deps ReconcilerDeps) (*Reconciler, error) {
	if deps.Objects == nil {
		return nil, errors.New("enrichment: object store must not be nil")
	}
	if deps.Details == nil {
		return nil, errors.New("enrichment: detail source must not be nil")
	}
	if deps.Items == nil {
		return nil, errors.New("enrichment: item store must not be nil")
	}
	logger := deps.Logger
	if logger == nil {
		logger = common.DiscardLogger()
	}
	return &Reconciler{
		objects:      deps.Objects,
		details:      deps.Details,
		items:        deps.Items,
		marker:       deps.Marker,
		inputPrefix:  deps.InputPrefix,
		outputPrefix: deps.OutputPrefix,
		now:          time.Now,
		logger:       logger.With("component", "reconciler"),
	}, nil
}

// Collect reads every output artifact under the output prefix and pairs its
// lines with the record ids of the matching input artifact. A failing
// artifact is reported and skipped; only a listing failure is returned.
func (r *Reconciler) Collect(ctx context.Context) (*Collected, error) {
	keys, err := r.objects.List(ctx, r.outputPrefix)
	if err != nil {
		return nil, newError(ErrorArtifact, "list "+r.outputPrefix, err)
	}
	sort.Strings(keys)

	out := &Collected{Results: make(map[string]string)}
	for _, key := range keys {
		ts, _, ok := artifactTS(key)
		if !ok {
			continue
		}
		if r.marker != nil {
			done, err := r.marker.IsReconciled(ctx, key)
			if err != nil {
				r.logger.Warn("reading reconciled marker", "key", key, "err", err)
			} else if done {
				continue
			}
		}

		rep := r.collectOne(ctx, key, ts)
		if rep.Err != nil {
			r.logger.Error("skipping artifact", "key", key, "code", CodeOf(rep.Err), "err", rep.Err)
		} else {
			r.logger.Info("artifact paired", "key", key, "paired", rep.Paired, "malformed", rep.Malformed, "failed", rep.Failed)
		}
		out.Artifacts = append(out.Artifacts, rep.ArtifactReport)
		for id, text := range rep.results {
			out.Results[id] = text
		}
	}
	return out, nil
}

type collectedArtifact struct {
	ArtifactReport
	results map[string]string
}

func (r *Reconciler) collectOne(ctx context.Context, key string, ts int64) collectedArtifact {
	inputKey := r.inputPrefix + InputArtifactName(ts)
	rep := collectedArtifact{ArtifactReport: ArtifactReport{Key: key, InputKey: inputKey}}

	exists, err := r.objects.Exists(ctx, inputKey)
	if err != nil {
		rep.Err = newError(ErrorArtifact, "stat "+inputKey, err)
		return rep
	}
	if !exists {
		rep.Err = newError(ErrorArtifact, "input artifact "+inputKey+" is missing", nil)
		return rep
	}
	inputDoc, err := r.objects.Get(ctx, inputKey)
	if err != nil {
		rep.Err = newError(ErrorArtifact, "read "+inputKey, err)
		return rep
	}
	ids := InputRecordIDs(inputDoc)
	rep.Records = len(ids)

	outputDoc, err := r.objects.Get(ctx, key)
	if err != nil {
		rep.Err = newError(ErrorArtifact, "read "+key, err)
		return rep
	}

	pairing, err := Pair(ids, ParseOutputLines(outputDoc))
	if err != nil {
		rep.Err = err
		return rep
	}
	for _, i := range pairing.MalformedLines {
		r.logger.Warn("malformed output line", "key", key, "line", i)
	}
	rep.results = pairing.Results
	rep.Paired = len(pairing.Results)
	rep.Malformed = pairing.Malformed
	rep.Failed = pairing.Failed
	return rep
}

// InputRecordIDs returns the record ids of an input artifact in line order.
// A line that does not decode keeps its slot with an empty id.
func InputRecordIDs(doc []byte) []string {
	lines := batch.SplitLines(doc)
	ids := make([]string, len(lines))
	for i, l := range lines {
		var rec types.BatchRecord
		if err := json.Unmarshal(l, &rec); err == nil {
			ids[i] = rec.RecordID
		}
	}
	return ids
}

// ParseOutputLines decodes an output artifact. A malformed line yields a nil
// entry so later lines keep their position.
func ParseOutputLines(doc []byte) []*types.OutputLine {
	lines := batch.SplitLines(doc)
	out := make([]*types.OutputLine, len(lines))
	for i, l := range lines {
		var line types.OutputLine
		if err := json.Unmarshal(l, &line); err != nil {
			continue
		}
		out[i] = &line
	}
	return out
}

// Pair matches output lines to input ids. When every decodable line echoes
// its recordId, lines are paired by that id in any order; an unknown or
// repeated id fails the artifact with INTEGRITY, and ids without a line are
// simply left unpaired. Otherwise lines are paired by position: the line
// counts must match and any echoed id must agree with its position.
// Malformed lines and per-record service errors are counted and skipped
// without shifting later lines.
func Pair(ids []string, lines []*types.OutputLine) (Pairing, error) {
	if allEchoed(lines) {
		return pairByEcho(ids, lines)
	}
	if len(lines) != len(ids) {
		return Pairing{}, newError(ErrorIntegrity,
			fmt.Sprintf("output has %d lines, input has %d", len(lines), len(ids)), nil)
	}

	p := Pairing{Results: make(map[string]string, len(ids))}
	for i, line := range lines {
		if line == nil || ids[i] == "" {
			p.malformed(i)
			continue
		}
		if line.RecordID != "" && line.RecordID != ids[i] {
			return Pairing{}, newError(ErrorIntegrity,
				fmt.Sprintf("line %d echoes %q, expected %q", i, line.RecordID, ids[i]), nil)
		}
		p.add(ids[i], line)
	}
	return p, nil
}

func pairByEcho(ids []string, lines []*types.OutputLine) (Pairing, error) {
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" {
			known[id] = true
		}
	}
	seen := make(map[string]bool, len(lines))
	p := Pairing{Results: make(map[string]string, len(ids))}
	for i, line := range lines {
		if line == nil {
			p.malformed(i)
			continue
		}
		id := line.RecordID
		if !known[id] {
			return Pairing{}, newError(ErrorIntegrity,
				fmt.Sprintf("line %d echoes unknown record %q", i, id), nil)
		}
		if seen[id] {
			return Pairing{}, newError(ErrorIntegrity,
				fmt.Sprintf("line %d repeats record %q", i, id), nil)
		}
		seen[id] = true
		p.add(id, line)
	}
	return p, nil
}

// allEchoed reports whether at least one line decoded and every decoded line
// carries a recordId.
func allEchoed(lines []*types.OutputLine) bool {
	decoded := 0
	for _, line := range lines {
		if line == nil {
			continue
		}
		if line.RecordID == "" {
			return false
		}
		decoded++
	}
	return decoded > 0
}

func (p *Pairing) malformed(line int) {
	p.Malformed++
	p.MalformedLines = append(p.MalformedLines, line)
}

func (p *Pairing) add(id string, line *types.OutputLine) {
	text := strings.TrimSpace(line.ModelOutput.Text())
	if line.Error != nil || text == "" {
		p.Failed++
		return
	}
	p.Results[id] = text
}

// PairPositional pairs output texts to input ids by line index alone. It is
// the fallback when the service does not echo ids: a dropped line shifts
// every later result onto the wrong id, and extra or missing lines are
// silently truncated.
func PairPositional(ids []string, lines []*types.OutputLine) map[string]string {
	out := make(map[string]string)
	for i, line := range lines {
		if i >= len(ids) {
			break
		}
		if line == nil || ids[i] == "" {
			continue
		}
		if text := strings.TrimSpace(line.ModelOutput.Text()); text != "" {
			out[ids[i]] = text
		}
	}
	return out
}

// Process refetches each item, composes its passage and updates the
// relational row. Items whose detail fetch or update fails are logged and
// left out of the returned slice.
func (r *Reconciler) Process(ctx context.Context, results map[string]string) ([]types.EnrichedItem, error) {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	timeAdded := r.now().Unix()
	out := make([]types.EnrichedItem, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		item, err := r.details.Item(ctx, id).Unwrap()
		if err != nil {
			r.logger.Warn("skipping reconciled item", "id", id, "err", err)
			continue
		}
		if item.ID == "" {
			item.ID = id
		}
		passage := types.ComposePassage(item.Title, results[id])
		if err := r.items.UpdatePassage(ctx, id, passage, timeAdded); err != nil {
			r.logger.Warn("updating passage", "id", id, "err", err)
			continue
		}
		out = append(out, types.EnrichedItem{
			ID:        id,
			URL:       item.URL,
			Passage:   passage,
			TimeAdded: timeAdded,
		})
	}
	return out, nil
}

// Mark records artifacts as reconciled. It is a no-op without a marker.
func (r *Reconciler) Mark(ctx context.Context, artifacts []ArtifactReport) {
	if r.marker == nil {
		return
	}
	for _, a := range artifacts {
		if !a.OK() {
			continue
		}
		if err := r.marker.MarkReconciled(ctx, a.Key); err != nil {
			r.logger.Warn("marking artifact reconciled", "key", a.Key, "err", err)
		}
	}
}
