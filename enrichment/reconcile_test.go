package enrichment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hnenricher/types"
)

func parse(lines ...string) []*types.OutputLine {
	return ParseOutputLines([]byte(strings.Join(lines, "\n")))
}

func TestPair_EchoedIDs(t *testing.T) {
	p, err := Pair([]string{"1", "2"}, parse(outputLine("1", "one"), outputLine("2", "two")))
	require.NoError(t, err)
	require.Equal(t, map[string]string{"1": "one", "2": "two"}, p.Results)
}

func TestPair_WithoutEchoFallsBackToPosition(t *testing.T) {
	p, err := Pair([]string{"1", "2"}, parse(outputLine("", "one"), outputLine("", "two")))
	require.NoError(t, err)
	require.Equal(t, map[string]string{"1": "one", "2": "two"}, p.Results)
}

func TestPair_MalformedLineKeepsIndex(t *testing.T) {
	p, err := Pair([]string{"1", "2", "3"}, parse(outputLine("1", "one"), `{"modelOutput":`, outputLine("3", "three")))
	require.NoError(t, err)
	require.Equal(t, map[string]string{"1": "one", "3": "three"}, p.Results)
	require.Equal(t, 1, p.Malformed)
	require.Equal(t, []int{1}, p.MalformedLines)
}

func TestPair_MalformedLineWithoutEchoKeepsIndex(t *testing.T) {
	p, err := Pair([]string{"1", "2", "3"}, parse(outputLine("", "one"), `{"modelOutput":`, outputLine("", "three")))
	require.NoError(t, err)
	require.Equal(t, map[string]string{"1": "one", "3": "three"}, p.Results)
	require.Equal(t, []int{1}, p.MalformedLines)
}

func TestPair_EchoedIDsInAnyOrder(t *testing.T) {
	p, err := Pair([]string{"a", "b", "c"}, parse(outputLine("b", "about b"), outputLine("a", "about a"), outputLine("c", "about c")))
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "about a", "b": "about b", "c": "about c"}, p.Results)
}

func TestPair_DroppedEchoedLineKeepsTheRest(t *testing.T) {
	p, err := Pair([]string{"a", "b", "c"}, parse(outputLine("a", "about a"), outputLine("c", "about c")))
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "about a", "c": "about c"}, p.Results)
	require.Zero(t, p.Malformed)
}

func TestPair_ServiceErrorsAreCounted(t *testing.T) {
	failed := `{"recordId":"2","error":{"errorCode":400,"errorMessage":"bad image"}}`
	p, err := Pair([]string{"1", "2"}, parse(outputLine("1", "one"), failed))
	require.NoError(t, err)
	require.Equal(t, map[string]string{"1": "one"}, p.Results)
	require.Equal(t, 1, p.Failed)
}

func TestPair_IntegrityFailures(t *testing.T) {
	cases := []struct {
		name  string
		ids   []string
		lines []*types.OutputLine
	}{
		{"unknown echoed id", []string{"1", "2"}, parse(outputLine("1", "one"), outputLine("9", "nine"))},
		{"repeated echoed id", []string{"1", "2"}, parse(outputLine("1", "one"), outputLine("1", "again"))},
		{"partial echo disagrees with position", []string{"1", "2"}, parse(outputLine("", "one"), outputLine("1", "two"))},
		{"partial echo with missing line", []string{"1", "2", "3"}, parse(outputLine("1", "one"), outputLine("", "three"))},
		{"extra output line", []string{"1"}, parse(outputLine("1", "one"), outputLine("", "stray"))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Pair(tc.ids, tc.lines)
			require.Equal(t, ErrorIntegrity, CodeOf(err))
		})
	}
}

func TestPairPositional_DroppedLineShiftsResults(t *testing.T) {
	ids := []string{"a", "b", "c"}
	lines := parse(outputLine("", "about a"), outputLine("", "about c"))

	got := PairPositional(ids, lines)
	// "about c" lands on b and c gets nothing.
	require.Equal(t, map[string]string{"a": "about a", "b": "about c"}, got)

	_, err := Pair(ids, lines)
	require.Equal(t, ErrorIntegrity, CodeOf(err))
}

func TestPairPositional_AlignedInput(t *testing.T) {
	got := PairPositional([]string{"a", "b"}, parse(outputLine("", "x"), `not json`))
	require.Equal(t, map[string]string{"a": "x"}, got)
}

type reconcileFixture struct {
	rec     *Reconciler
	objects *memObjects
	details *fakeDetails
	items   *fakeItems
	marker  *fakeMarker
}

func newReconcileFixture(t *testing.T) reconcileFixture {
	t.Helper()
	details, _ := threeItems()
	f := reconcileFixture{
		objects: newMemObjects(),
		details: details,
		items:   newFakeItems(),
		marker:  &fakeMarker{done: map[string]bool{}},
	}
	var err error
	f.rec, err = NewReconciler(ReconcilerDeps{
		Objects:      f.objects,
		Details:      f.details,
		Items:        f.items,
		Marker:       f.marker,
		InputPrefix:  "batch/input/",
		OutputPrefix: "batch/output/",
	})
	require.NoError(t, err)
	f.rec.now = func() time.Time { return testNow }
	return f
}

func (f reconcileFixture) put(key string, body string) {
	f.objects.objects[key] = []byte(body)
}

func TestCollect_PairsGoodArtifactsAndReportsBadOnes(t *testing.T) {
	f := newReconcileFixture(t)
	f.objects.objects["batch/input/input-100.jsonl"] = inputDoc("101", "102")
	f.put("batch/output/job-a/input-100.jsonl.out", outputLine("101", "r1")+"\n"+outputLine("102", "r2")+"\n")
	f.objects.objects["batch/input/input-200.jsonl"] = inputDoc("103", "104")
	f.put("batch/output/job-b/input-200.jsonl.out", outputLine("103", "y")+"\n"+outputLine("999", "x")+"\n")
	f.put("batch/output/job-b/manifest.json.out", `{"totalRecordCount":2}`)

	got, err := f.rec.Collect(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]string{"101": "r1", "102": "r2"}, got.Results)

	require.Len(t, got.Artifacts, 2)
	require.True(t, got.Artifacts[0].OK())
	require.Equal(t, 2, got.Artifacts[0].Paired)
	require.False(t, got.Artifacts[1].OK())
	require.Equal(t, ErrorIntegrity, CodeOf(got.Artifacts[1].Err))
}

func TestCollect_MissingInputIsArtifactError(t *testing.T) {
	f := newReconcileFixture(t)
	f.put("batch/output/job-a/input-300.jsonl.out", outputLine("101", "r1"))

	got, err := f.rec.Collect(context.Background())
	require.NoError(t, err)
	require.Empty(t, got.Results)
	require.Len(t, got.Artifacts, 1)
	require.Equal(t, ErrorArtifact, CodeOf(got.Artifacts[0].Err))
	require.ErrorContains(t, got.Artifacts[0].Err, "is missing")
}

func TestCollect_InputStatFailure(t *testing.T) {
	f := newReconcileFixture(t)
	f.objects.objects["batch/input/input-100.jsonl"] = inputDoc("101")
	f.put("batch/output/job-a/input-100.jsonl.out", outputLine("101", "r1"))
	f.objects.headErr = errors.New("AccessDenied")

	got, err := f.rec.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Artifacts, 1)
	require.Equal(t, ErrorArtifact, CodeOf(got.Artifacts[0].Err))
	require.ErrorContains(t, got.Artifacts[0].Err, "stat batch/input/input-100.jsonl")
}

func TestCollect_SkipsReconciledArtifacts(t *testing.T) {
	f := newReconcileFixture(t)
	f.objects.objects["batch/input/input-100.jsonl"] = inputDoc("101")
	f.put("batch/output/job-a/input-100.jsonl.out", outputLine("101", "r1"))

	got, err := f.rec.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Artifacts, 1)

	f.rec.Mark(context.Background(), got.Artifacts)
	require.True(t, f.marker.done["batch/output/job-a/input-100.jsonl.out"])

	got, err = f.rec.Collect(context.Background())
	require.NoError(t, err)
	require.Empty(t, got.Artifacts)
	require.Empty(t, got.Results)
}

func TestCollect_ListFailure(t *testing.T) {
	f := newReconcileFixture(t)
	f.objects.listErr["batch/output/"] = errors.New("AccessDenied")

	_, err := f.rec.Collect(context.Background())
	require.Equal(t, ErrorArtifact, CodeOf(err))
}

func TestProcess_ComposesPassagesAndExcludesFailedUpdates(t *testing.T) {
	f := newReconcileFixture(t)
	f.items.updateErr["102"] = errors.New("store: item not found: 102")

	got, err := f.rec.Process(context.Background(), map[string]string{
		"101": "Rust is now in the kernel.",
		"102": "Tuning notes.",
		"103": "People like vim.",
		"999": "orphan",
	})
	require.NoError(t, err)
	require.Equal(t, []types.EnrichedItem{
		{ID: "101", URL: "https://example.com/rust", Passage: "Rust in the kernel. Rust is now in the kernel.", TimeAdded: testNow.Unix()},
		{ID: "103", URL: "", Passage: "Ask HN: Favorite editor?. People like vim.", TimeAdded: testNow.Unix()},
	}, got)

	require.Equal(t, "Rust in the kernel. Rust is now in the kernel.", f.items.passages["101"])
	require.NotContains(t, f.items.passages, "102")
	require.NotContains(t, f.items.passages, "999")
}
