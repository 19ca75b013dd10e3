package recorder

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SegmentClock maps wall-clock time onto archive rotation boundaries.
// Boundaries sit on multiples of Interval, so hour-long segments split on
// the hour regardless of when capture started. The zero value never
// rotates.
type SegmentClock struct {
	Interval time.Duration
}

// NextAfter returns the first boundary strictly after t, or the zero time
// when rotation is unbounded.
func (c SegmentClock) NextAfter(t time.Time) time.Time {
	if c.Interval <= 0 {
		return time.Time{}
	}
	return t.Truncate(c.Interval).Add(c.Interval)
}

// Crossed reports whether a boundary lies in (last, now]. A clock that
// stepped backwards never crosses, so rotation stays monotonic.
func (c SegmentClock) Crossed(last, now time.Time) bool {
	next := c.NextAfter(last)
	return !next.IsZero() && !now.Before(next)
}

// uniquePath returns path, or the first name-N.ext variant that does not
// exist yet, so two segments opened within the same clock second never
// clobber each other.
func uniquePath(path string) string {
	if _, err := os.Stat(path); err != nil {
		return path
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		cand := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if _, err := os.Stat(cand); err != nil {
			return cand
		}
	}
}

// recoverParts adopts in-progress segments left behind by an earlier run,
// sealing them under their final names so already captured audio is not
// orphaned.
func recoverParts(dir string, logger *slog.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Error("error reading archive directory", "err", err, "dir", dir)
		return
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), partSuffix) {
			continue
		}

		part := filepath.Join(dir, e.Name())
		final := uniquePath(strings.TrimSuffix(part, partSuffix))
		if err := os.Rename(part, final); err != nil {
			logger.Error("error recovering partial segment", "err", err, "path", part)
			continue
		}
		logger.Info("recovered partial segment", "path", final)
	}
}
