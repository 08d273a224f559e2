package progress

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admi-n/poc-excavator/src/internal/logging"
)

func openTracker(t *testing.T) *Tracker {
	t.Helper()
	tr, err := NewTracker(filepath.Join(t.TempDir(), "nested", "progress.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestTracker_MarkDone(t *testing.T) {
	tr := openTracker(t)

	done, err := tr.IsDone("source/2024-03/Foo_exp/Foo_exp.sol")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, tr.MarkDone("source/2024-03/Foo_exp/Foo_exp.sol", "run-1", "r.md"))
	require.NoError(t, tr.MarkDone("source/2024-01/Bar_exp/Bar_exp.sol", "run-1", "b.md"))

	done, err = tr.IsDone("source/2024-03/Foo_exp/Foo_exp.sol")
	require.NoError(t, err)
	assert.True(t, done)

	entries, err := tr.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "source/2024-01/Bar_exp/Bar_exp.sol", entries[0].SourcePath)
	assert.Equal(t, "run-1", entries[1].RunID)
	assert.False(t, entries[1].DoneAt.IsZero())
}

func TestTracker_Runs(t *testing.T) {
	tr := openTracker(t)
	now := time.Now()

	require.NoError(t, tr.SaveRun(RunInfo{RunID: "old", StartedAt: now.Add(-time.Hour), Written: 1}))
	require.NoError(t, tr.SaveRun(RunInfo{RunID: "new", StartedAt: now, Failed: 2}))

	runs, err := tr.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].RunID)
	assert.Equal(t, 2, runs[0].Failed)
}

func TestTracker_Reset(t *testing.T) {
	tr := openTracker(t)
	require.NoError(t, tr.MarkDone("a.sol", "run-1", ""))
	require.NoError(t, tr.SaveRun(RunInfo{RunID: "run-1"}))

	require.NoError(t, tr.Reset())

	entries, err := tr.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
	runs, err := tr.Runs()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestTracker_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.db")
	tr, err := NewTracker(path, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, tr.MarkDone("a.sol", "run-1", ""))
	require.NoError(t, tr.Close())

	tr, err = NewTracker(path, logging.Discard())
	require.NoError(t, err)
	defer tr.Close()
	done, err := tr.IsDone("a.sol")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, path, tr.Path())
}
