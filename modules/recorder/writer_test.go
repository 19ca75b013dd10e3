package recorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriterSealRenamesPart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mp3")
	t0 := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	w, err := openSegment(path, 0, t0)
	require.NoError(t, err)

	_, err = os.Stat(path + partSuffix)
	require.NoError(t, err)

	require.NoError(t, w.Append([]byte("hello ")))
	require.NoError(t, w.Append([]byte("world")))

	seg, err := w.Close(t0.Add(3 * time.Second))
	require.NoError(t, err)
	require.Equal(t, path, seg.Path)
	require.Equal(t, int64(11), seg.Bytes)
	require.Equal(t, t0, seg.OpenedAt)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), data)

	_, err = os.Stat(path + partSuffix)
	require.True(t, os.IsNotExist(err))
}

func TestWriterRotate(t *testing.T) {
	dir := t.TempDir()
	t0 := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	w, err := openSegment(filepath.Join(dir, "a.mp3"), 0, t0)
	require.NoError(t, err)
	require.NoError(t, w.Append([]byte("first")))

	seg, err := w.Rotate(filepath.Join(dir, "b.mp3"), t0.Add(10*time.Second))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "a.mp3"), seg.Path)
	require.Equal(t, int64(5), seg.Bytes)

	require.NoError(t, w.Append([]byte("second")))

	seg, err = w.Close(t0.Add(20 * time.Second))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "b.mp3"), seg.Path)

	a, err := os.ReadFile(filepath.Join(dir, "a.mp3"))
	require.NoError(t, err)
	require.Equal(t, []byte("first"), a)

	b, err := os.ReadFile(filepath.Join(dir, "b.mp3"))
	require.NoError(t, err)
	require.Equal(t, []byte("second"), b)
}

func TestWriterSealCollision(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mp3")
	require.NoError(t, os.WriteFile(path, []byte("existing"), 0o644))

	w, err := openSegment(path, 0, time.Now())
	require.NoError(t, err)
	require.NoError(t, w.Append([]byte("fresh")))

	seg, err := w.Close(time.Now())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "a-1.mp3"), seg.Path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("existing"), data)

	data, err = os.ReadFile(seg.Path)
	require.NoError(t, err)
	require.Equal(t, []byte("fresh"), data)
}

func TestWriterCloseIdempotent(t *testing.T) {
	w, err := openSegment(filepath.Join(t.TempDir(), "a.mp3"), 0, time.Now())
	require.NoError(t, err)

	_, err = w.Close(time.Now())
	require.NoError(t, err)

	seg, err := w.Close(time.Now())
	require.NoError(t, err)
	require.Zero(t, seg)

	require.Error(t, w.Append([]byte("late")))
}

func TestClampWriteBufSize(t *testing.T) {
	require.Equal(t, minWriteBufSize, clampWriteBufSize(1))
	require.Equal(t, maxWriteBufSize, clampWriteBufSize(64*1024*1024))
	require.Equal(t, 512*1024, clampWriteBufSize(512*1024))
}
