package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/replay"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

func sampleReport() *replay.Report {
	return &replay.Report{
		Results: []replay.Result{
			{Index: 1, Code: 1, Expected: txlog.StatusOK, Actual: txlog.StatusOK, Matched: true},
			{Index: 2, Code: 2, Expected: txlog.StatusOK, Actual: txlog.StatusDeadObject},
			{Index: 3, Code: 3, Flags: txlog.FlagOneway, Expected: txlog.StatusOK, Actual: txlog.StatusDeadObject, Error: "connection reset"},
		},
	}
}

func sampleRun(started time.Time) Run {
	return Run{
		Service:     "demo/counter",
		Interface:   "demo.ICounter",
		LogPath:     "/data/local/recordings/demo.counter",
		SpecHash:    "sha256:abc",
		ToolVersion: "0.1.0",
		StartedAt:   started,
		FinishedAt:  started.Add(time.Second),
	}
}

func TestWriteRunAssignsUUIDv7(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	report := sampleReport()
	run := RunFromReport(sampleRun(time.Unix(1700000000, 0).UTC()), report)
	assert.Equal(t, 3, run.Total)
	assert.Equal(t, 2, run.Mismatched)
	assert.False(t, run.AllMatched)

	id, err := s.WriteRun(ctx, run, report.Results)
	require.NoError(t, err)

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())

	got, err := s.ReadRun(ctx, id)
	require.NoError(t, err)
	run.ID = id
	assert.Equal(t, run, got)
}

func TestReadResultsOrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	report := sampleReport()
	// Write out of order; reads must come back by seq.
	results := []replay.Result{report.Results[2], report.Results[0], report.Results[1]}
	id, err := s.WriteRun(ctx, RunFromReport(sampleRun(time.Now()), report), results)
	require.NoError(t, err)

	got, err := s.ReadResults(ctx, id, false)
	require.NoError(t, err)
	assert.Equal(t, report.Results, got)

	mismatched, err := s.ReadResults(ctx, id, true)
	require.NoError(t, err)
	require.Len(t, mismatched, 2)
	assert.Equal(t, 2, mismatched[0].Index)
	assert.Equal(t, "connection reset", mismatched[1].Error)
}

func TestWriteRunIsAtomic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	dup := []replay.Result{{Index: 1}, {Index: 1}}
	_, err := s.WriteRun(ctx, Run{ID: "run-1", StartedAt: time.Now(), FinishedAt: time.Now()}, dup)
	require.Error(t, err)

	_, err = s.ReadRun(ctx, "run-1")
	assert.True(t, errors.Is(err, ErrRunNotFound), "failed write must leave no run behind")
}

func TestListRunsMostRecentFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	base := time.Unix(1700000000, 0).UTC()
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run := sampleRun(base.Add(time.Duration(i) * time.Minute))
		run.ID = id
		_, err := s.WriteRun(ctx, run, nil)
		require.NoError(t, err)
	}

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"run-c", "run-b", "run-a"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})
}

func TestListRunsEmpty(t *testing.T) {
	s := createTestStore(t)
	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestReadRunNotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRun(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestResultsRequireRun(t *testing.T) {
	s := createTestStore(t)
	_, err := s.DB().Exec(`
		INSERT INTO replay_results (run_id, seq, code, flags, expected_status, actual_status, matched)
		VALUES ('ghost', 1, 1, 0, 0, 0, 1)
	`)
	assert.Error(t, err, "foreign_keys must reject results without a run")
}

func TestDeletingRunCascades(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	report := sampleReport()
	id, err := s.WriteRun(ctx, RunFromReport(sampleRun(time.Now()), report), report.Results)
	require.NoError(t, err)

	_, err = s.DB().Exec(`DELETE FROM replay_runs WHERE id = ?`, id)
	require.NoError(t, err)

	got, err := s.ReadResults(ctx, id, false)
	require.NoError(t, err)
	assert.Empty(t, got)
}
