package recorder

import (
	"bufio"
	"os"
	"time"

	"github.com/pkg/errors"
)

// partSuffix marks an in-progress segment on disk; sealing renames it away.
const partSuffix = ".part"

// Bounds for the configured write buffer; sizes outside this range are
// clamped.
const (
	minWriteBufSize = 32 * 1024       // 32 KiB
	maxWriteBufSize = 4 * 1024 * 1024 // 4 MiB
)

func clampWriteBufSize(n int) int {
	if n < minWriteBufSize {
		return minWriteBufSize
	}
	if n > maxWriteBufSize {
		return maxWriteBufSize
	}
	return n
}

// Segment describes one sealed archive file.
type Segment struct {
	Path     string
	OpenedAt time.Time
	ClosedAt time.Time
	Bytes    int64
}

// archiveWriter owns the single open segment file. Data lands in a .part
// file and is renamed into place when the segment is sealed, so a reader of
// the archive directory only ever sees finished segments.
type archiveWriter struct {
	f        *os.File
	bw       *bufio.Writer
	path     string
	openedAt time.Time
	bytes    int64
	bufSize  int
	closed   bool
}

func openSegment(path string, bufSize int, at time.Time) (*archiveWriter, error) {
	w := &archiveWriter{bufSize: clampWriteBufSize(bufSize)}
	if err := w.open(path, at); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *archiveWriter) open(path string, at time.Time) error {
	f, err := os.OpenFile(path+partSuffix, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "opening segment")
	}

	w.f = f
	w.bw = bufio.NewWriterSize(f, w.bufSize)
	w.path = path
	w.openedAt = at
	w.bytes = 0
	w.closed = false

	return nil
}

func (w *archiveWriter) Append(b []byte) error {
	if w.closed {
		return errors.New("append on sealed segment")
	}

	n, err := w.bw.Write(b)
	w.bytes += int64(n)
	if err != nil {
		return errors.Wrap(err, "writing segment")
	}

	return nil
}

// Rotate seals the open segment and opens path as the next one. The sealed
// segment is returned even when sealing or reopening failed, so the caller
// can still account for whatever made it to disk.
func (w *archiveWriter) Rotate(path string, at time.Time) (Segment, error) {
	sealed, err := w.seal(at)
	if err != nil {
		return sealed, err
	}
	return sealed, w.open(path, at)
}

// Close seals the open segment. Calling it again is a no-op.
func (w *archiveWriter) Close(at time.Time) (Segment, error) {
	if w.closed {
		return Segment{}, nil
	}
	return w.seal(at)
}

func (w *archiveWriter) seal(at time.Time) (Segment, error) {
	w.closed = true

	var firstErr error
	if err := w.bw.Flush(); err != nil {
		firstErr = errors.Wrap(err, "flushing segment")
	}
	if err := w.f.Sync(); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "syncing segment")
	}
	if err := w.f.Close(); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "closing segment")
	}

	final := uniquePath(w.path)
	if err := os.Rename(w.path+partSuffix, final); err != nil {
		if firstErr == nil {
			firstErr = errors.Wrap(err, "sealing segment")
		}
		// Whatever made it to disk stays reachable under the .part name.
		final = w.path + partSuffix
	}

	return Segment{Path: final, OpenedAt: w.openedAt, ClosedAt: at, Bytes: w.bytes}, firstErr
}
