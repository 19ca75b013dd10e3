package janitor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
)

var module = "janitor"

// partSuffix matches the recorder's in-progress marker; those files are
// never swept.
const partSuffix = ".part"

// Janitor enforces the archive retention policy: every sweep deletes sealed
// segments whose modification time fell out of the retention window.
type Janitor struct {
	services.Service
	cfg     *Config
	logger  *slog.Logger
	metrics *metrics

	now func() time.Time
}

// New creates and returns a new Janitor.
func New(cfg Config, logger slog.Logger, reg prometheus.Registerer) (*Janitor, error) {
	j := &Janitor{
		cfg:     &cfg,
		logger:  logger.With("module", module),
		metrics: newMetrics(reg),
		now:     time.Now,
	}

	j.Service = services.NewBasicService(nil, j.running, j.stopping)

	return j, nil
}

func (j *Janitor) running(ctx context.Context) error {
	if j.cfg.Retention <= 0 {
		j.logger.Info("retention disabled, nothing to sweep")
		<-ctx.Done()
		return nil
	}

	interval := j.cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	j.logger.Info("sweeping archive", "dir", j.cfg.Dir, "retention", j.cfg.Retention, "interval", interval)

	// One sweep up front; an instance that was down for a while catches up
	// immediately.
	j.sweep()

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			j.sweep()
		}
	}
}

func (j *Janitor) stopping(_ error) error {
	j.logger.Info("stopping")
	return nil
}

func (j *Janitor) sweep() {
	j.metrics.sweeps.Inc()

	cutoff := j.now().Add(-j.cfg.Retention)

	entries, err := os.ReadDir(j.cfg.Dir)
	if err != nil {
		j.logger.Error("error reading archive directory", "err", err, "dir", j.cfg.Dir)
		return
	}

	var removed, bytes int64
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), partSuffix) {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(j.cfg.Dir, e.Name())
		if err := os.Remove(path); err != nil {
			j.logger.Error("error removing expired segment", "err", err, "path", path)
			continue
		}

		removed++
		bytes += info.Size()
		j.logger.Debug("removed expired segment", "path", path, "age", j.now().Sub(info.ModTime()))
	}

	if removed > 0 {
		j.metrics.removed.Add(float64(removed))
		j.metrics.removedBytes.Add(float64(bytes))
		j.logger.Info("swept archive", "removed", removed, "bytes", bytes)
	}
}
