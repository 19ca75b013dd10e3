package janitor

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestJanitor(t *testing.T, cfg Config) *Janitor {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	j, err := New(cfg, *logger, prometheus.NewPedanticRegistry())
	require.NoError(t, err)

	return j
}

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()

	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestSweepRemovesOnlyExpiredSegments(t *testing.T) {
	dir := t.TempDir()

	expired := filepath.Join(dir, "archive-2025_12_01-08_00_00.mp3")
	fresh := filepath.Join(dir, "archive-2026_01_10-08_00_00.mp3")
	part := filepath.Join(dir, "archive-2025_12_01-09_00_00.mp3.part")

	writeAged(t, expired, 45*24*time.Hour)
	writeAged(t, fresh, time.Hour)
	writeAged(t, part, 45*24*time.Hour)

	j := newTestJanitor(t, Config{Dir: dir, Retention: 30 * 24 * time.Hour})
	j.sweep()

	_, err := os.Stat(expired)
	require.True(t, os.IsNotExist(err))

	_, err = os.Stat(fresh)
	require.NoError(t, err)

	// In-progress files are never swept, no matter their age.
	_, err = os.Stat(part)
	require.NoError(t, err)

	require.Equal(t, 1.0, testutil.ToFloat64(j.metrics.removed))
	require.Equal(t, 4.0, testutil.ToFloat64(j.metrics.removedBytes))
	require.Equal(t, 1.0, testutil.ToFloat64(j.metrics.sweeps))
}

func TestSweepMissingDirectory(t *testing.T) {
	j := newTestJanitor(t, Config{Dir: filepath.Join(t.TempDir(), "missing"), Retention: time.Hour})

	// Nothing to do, nothing to crash on.
	j.sweep()
	require.Equal(t, 0.0, testutil.ToFloat64(j.metrics.removed))
}

func TestRunningDisabledWithoutRetention(t *testing.T) {
	dir := t.TempDir()
	writeAged(t, filepath.Join(dir, "archive-2020_01_01-00_00_00.mp3"), 5*365*24*time.Hour)

	j := newTestJanitor(t, Config{Dir: dir, Retention: 0})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, j.running(ctx))

	// Retention off keeps everything, however old.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
