package metrics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T) (*Store, string) {
	t.Helper()
	path := Path(t.TempDir())
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestRecordCheckpoints(t *testing.T) {
	ctx := context.Background()
	s, _ := open(t)

	base := time.UnixMilli(1_700_000_000_000)
	want := []Checkpoint{
		{Run: "a", Step: 100, LearningRate: 0.5, Loss: 4.5, StepTime: 120 * time.Millisecond, Time: base},
		{Run: "a", Step: 200, LearningRate: 0.5, Loss: 3.25, StepTime: 110 * time.Millisecond, Time: base.Add(time.Minute)},
		{Run: "a", Step: 300, LearningRate: 0.25, Loss: 3.5, StepTime: 115 * time.Millisecond, Time: base.Add(2 * time.Minute)},
	}

	// out of order inserts come back in step order
	for _, i := range []int{2, 0, 1} {
		require.NoError(t, s.RecordCheckpoint(ctx, want[i]))
	}
	require.NoError(t, s.RecordCheckpoint(ctx, Checkpoint{Run: "b", Step: 100, Loss: 9, Time: base.Add(time.Hour)}))

	got, err := s.Checkpoints(ctx, "a")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got, cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	got, err = s.Checkpoints(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	s, _ := open(t)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)

	base := time.UnixMilli(1_700_000_000_000)
	for i, loss := range []float64{5, 3, 4} {
		require.NoError(t, s.RecordCheckpoint(ctx, Checkpoint{Run: "old", Step: (i + 1) * 10, Loss: loss, Time: base.Add(time.Duration(i) * time.Second)}))
	}
	require.NoError(t, s.RecordCheckpoint(ctx, Checkpoint{Run: "new", Step: 50, Loss: 2, Time: base.Add(time.Hour)}))

	runs, err = s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, Run{
		ID:          "old",
		FirstStep:   10,
		LastStep:    30,
		Checkpoints: 3,
		BestLoss:    3,
		LastLoss:    4,
		Updated:     runs[1].Updated,
	}, runs[1])
	assert.True(t, runs[1].Updated.Equal(base.Add(2*time.Second)))
}

func TestEvals(t *testing.T) {
	ctx := context.Background()
	s, _ := open(t)

	for _, e := range []Eval{
		{Run: "a", Step: 100, Bucket: 2, Loss: 3},
		{Run: "a", Step: 100, Bucket: 0, Loss: 1},
		{Run: "a", Step: 200, Bucket: 0, Loss: 0.5},
	} {
		require.NoError(t, s.RecordEval(ctx, e))
	}

	evals, err := s.Evals(ctx, "a", 100)
	require.NoError(t, err)
	require.Len(t, evals, 2)
	assert.Equal(t, 0, evals[0].Bucket)
	assert.Equal(t, 2, evals[1].Bucket)
	assert.Equal(t, 3.0, evals[1].Loss)
	assert.False(t, evals[0].Time.IsZero())
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	s, path := open(t)
	require.NoError(t, s.RecordCheckpoint(ctx, Checkpoint{Run: "a", Step: 1, Loss: 1}))
	require.NoError(t, s.Close())

	s, err := Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "a", runs[0].ID)
}

func TestOpenError(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing", "metrics.sqlite3"))
	require.Error(t, err)
}
