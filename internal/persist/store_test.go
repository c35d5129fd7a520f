package persist

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kayz/teachcut/internal/report"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStartAndFinishRun(t *testing.T) {
	s := newTestStore(t)

	run, err := s.StartRun(KindTests)
	require.NoError(t, err)
	_, err = uuid.Parse(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)

	results := []report.TestResult{report.Pass("a"), report.Fail("b", "HTTP 500")}
	require.NoError(t, s.FinishRun(run, StatusFailed, "1 test failed", results))

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, KindTests, got.Kind)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "1 test failed", got.Detail)
	assert.Equal(t, results, got.Results)
	assert.True(t, got.StartedAt.Equal(run.StartedAt))
	assert.False(t, got.FinishedAt.IsZero())
	assert.GreaterOrEqual(t, got.Duration().Nanoseconds(), int64(0))
	assert.Equal(t, report.Report{Total: 2, Passed: 1, Failed: 1, Percentage: 50}, got.Summary())
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = s.FinishRun(&Run{ID: "missing"}, StatusSucceeded, "", nil)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRecentRunsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	var ids []string
	for _, k := range []Kind{KindInstall, KindConfigure, KindQuickDeploy} {
		run, err := s.StartRun(k)
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	runs, err := s.RecentRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
	assert.True(t, runs[0].FinishedAt.IsZero())
	assert.Empty(t, runs[0].Results)
}

func TestPruneRuns(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		_, err := s.StartRun(KindTests)
		require.NoError(t, err)
	}
	n, err := s.PruneRuns(2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	runs, err := s.RecentRuns(10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := NewStore(path)
	require.NoError(t, err)
	run, err := s.StartRun(KindStart)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewStore(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, KindStart, got.Kind)
}
