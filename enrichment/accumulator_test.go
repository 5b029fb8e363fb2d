package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"hnenricher/batch"
	"hnenricher/config"
	"hnenricher/types"
)

func records(from, n int) []types.BatchRecord {
	out := make([]types.BatchRecord, n)
	for i := range out {
		out[i] = types.BatchRecord{RecordID: fmt.Sprint(from + i), ModelInput: json.RawMessage(`{"max_tokens":1}`)}
	}
	return out
}

func newFilePending(t *testing.T) *batch.FileStore {
	t.Helper()
	fs, err := batch.NewFileStore(filepath.Join(t.TempDir(), "batch_input.jsonl"))
	require.NoError(t, err)
	return fs
}

func TestAccumulator_ThresholdAt100(t *testing.T) {
	ctx := context.Background()
	pending := newFilePending(t)
	acc, err := NewAccumulator(pending, 0)
	require.NoError(t, err)

	res, err := acc.Add(ctx, records(0, 99))
	require.NoError(t, err)
	require.Equal(t, AddResult{Appended: 99, Total: 99, Ready: false}, res)

	res, err = acc.Add(ctx, records(99, 1))
	require.NoError(t, err)
	require.Equal(t, AddResult{Appended: 1, Total: config.FlushThreshold, Ready: true}, res)
}

func TestAccumulator_StatePersistsAcrossCycles(t *testing.T) {
	ctx := context.Background()
	pending := newFilePending(t)

	first, err := NewAccumulator(pending, 5)
	require.NoError(t, err)
	_, err = first.Add(ctx, records(0, 3))
	require.NoError(t, err)

	// A fresh accumulator over the same store sees the earlier lines.
	second, err := NewAccumulator(pending, 5)
	require.NoError(t, err)
	res, err := second.Add(ctx, records(3, 2))
	require.NoError(t, err)
	require.Equal(t, 5, res.Total)
	require.True(t, res.Ready)

	doc, err := pending.Contents(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"0", "1", "2", "3", "4"}, InputRecordIDs(doc))
}

func TestAccumulator_EmptyAddCounts(t *testing.T) {
	ctx := context.Background()
	pending := newFilePending(t)
	acc, err := NewAccumulator(pending, 2)
	require.NoError(t, err)

	_, err = acc.Add(ctx, records(0, 2))
	require.NoError(t, err)
	res, err := acc.Add(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, AddResult{Appended: 0, Total: 2, Ready: true}, res)
}
