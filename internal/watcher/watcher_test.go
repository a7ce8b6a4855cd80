package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_StartStop(t *testing.T) {
	w := WatchDatabase(filepath.Join(t.TempDir(), "board.db"), 10*time.Millisecond, nil, zerolog.Nop())

	require.NoError(t, w.Start())
	assert.True(t, w.IsRunning())
	require.NoError(t, w.Start())

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
	require.NoError(t, w.Stop())
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "board.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("x"), 0644))

	var calls atomic.Int32
	w := WatchDatabase(dbPath, 50*time.Millisecond, func() { calls.Add(1) }, zerolog.Nop())
	require.NoError(t, w.Start())
	defer w.Stop()

	for range 5 {
		require.NoError(t, os.WriteFile(dbPath, []byte("y"), 0644))
	}

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatcher_WatchesWAL(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "board.db")

	var calls atomic.Int32
	w := WatchDatabase(dbPath, 10*time.Millisecond, func() { calls.Add(1) }, zerolog.Nop())
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(dbPath+"-wal", []byte("wal"), 0644))

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "board.db")

	var calls atomic.Int32
	w := WatchDatabase(dbPath, 10*time.Millisecond, func() { calls.Add(1) }, zerolog.Nop())
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644))

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestWatcher_Matches(t *testing.T) {
	w := WatchDatabase("/data/board.db", time.Millisecond, nil, zerolog.Nop())

	tests := []struct {
		path string
		want bool
	}{
		{"/data/board.db", true},
		{"/data/board.db-wal", true},
		{"/data/board.db-journal", true},
		{"/data/board.db-shm", false},
		{"/data/other.db", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, w.matches(tt.path), tt.path)
	}
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := WatchDatabase(filepath.Join(t.TempDir(), "gone", "board.db"), time.Millisecond, nil, zerolog.Nop())
	assert.Error(t, w.Start())
	assert.False(t, w.IsRunning())
}
