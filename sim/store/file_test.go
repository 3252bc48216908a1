package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_SaveLoad_RoundTrip(t *testing.T) {
	// GIVEN a file store and a checkpoint
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	snap := snapshotsAt(t, createTestSimulation(t), 2)[0]
	ctx := context.Background()

	// WHEN saved and loaded
	require.NoError(t, s.Save(ctx, snap))
	got, err := s.Load(ctx, snap.RunID, snap.Step)

	// THEN the file exists under the run directory and round-trips exactly
	require.NoError(t, err)
	assert.Equal(t, snap, got)
	_, err = os.Stat(filepath.Join(dir, snap.RunID, fileName(snap.Step)))
	assert.NoError(t, err)
}

func TestFileStore_Latest_HighestStep(t *testing.T) {
	// GIVEN snapshots at steps 1 and 10
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	snaps := snapshotsAt(t, createTestSimulation(t), 1, 10)
	ctx := context.Background()
	for _, snap := range snaps {
		require.NoError(t, s.Save(ctx, snap))
	}

	// WHEN fetching the latest and listing
	latest, err := s.Latest(ctx, snaps[0].RunID)
	require.NoError(t, err)
	entries, err := s.List(ctx, snaps[0].RunID)
	require.NoError(t, err)

	// THEN step 10 is latest and both entries are listed in order
	assert.Equal(t, int64(10), latest.Step)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].Step)
	assert.Equal(t, int64(10), entries[1].Step)
}

func TestFileStore_MissingRun_ErrNotFound(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Latest(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_InvalidRunID_Rejected(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Load(context.Background(), "../escape", 0)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestReadSnapshotFile_ReadsSavedFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	snap := snapshotsAt(t, createTestSimulation(t), 1)[0]
	require.NoError(t, s.Save(context.Background(), snap))

	got, err := ReadSnapshotFile(filepath.Join(dir, snap.RunID, fileName(1)))

	require.NoError(t, err)
	assert.Equal(t, snap.RunID, got.RunID)
}

func TestOpen_UnknownKind_Errors(t *testing.T) {
	_, err := Open("postgres", t.TempDir())
	assert.Error(t, err)
	assert.True(t, IsValidKind("sqlite"))
	assert.False(t, IsValidKind("postgres"))
}
