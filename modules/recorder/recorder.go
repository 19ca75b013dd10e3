package recorder

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/grafana/dskit/backoff"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mont29/qaspar/pkg/engine"
	"github.com/mont29/qaspar/pkg/playlist"
)

var module = "recorder"

// Recorder supervises one live capture of a network audio stream. It owns
// the engine subprocess and the open archive segment, rotates segments on
// wall-clock boundaries, and reconnects with exponential backoff when the
// stream stalls or the engine dies.
type Recorder struct {
	services.Service
	cfg     *Config
	logger  *slog.Logger
	metrics *metrics
	clock   SegmentClock

	// Replaced by fakes in tests.
	now        func() time.Time
	startProc  func(ctx context.Context, url string) (mediaProcess, error)
	openPlayer func() (io.WriteCloser, error)
	resolveURL func(ctx context.Context, url string) (string, error)
}

// New creates and returns a new Recorder.
func New(cfg Config, logger slog.Logger, reg prometheus.Registerer) (*Recorder, error) {
	if cfg.Dir == "" {
		cfg.Dir = defaultDir
	}
	if cfg.FilenameLayout == "" {
		cfg.FilenameLayout = defaultFilenameLayout
	}
	if cfg.WriteBufferSize == 0 {
		cfg.WriteBufferSize = defaultWriteBufferSize
	}
	if cfg.StallTimeout == 0 {
		cfg.StallTimeout = defaultStallTimeout
	}
	if cfg.StableAfter == 0 {
		cfg.StableAfter = defaultStableAfter
	}
	if cfg.TerminateGrace == 0 {
		cfg.TerminateGrace = defaultTerminateGrace
	}
	if cfg.Reconnect.MinBackoff == 0 {
		cfg.Reconnect.MinBackoff = defaultReconnectInitial
	}
	if cfg.Reconnect.MaxBackoff == 0 {
		cfg.Reconnect.MaxBackoff = defaultReconnectMax
	}

	r := &Recorder{
		cfg:     &cfg,
		logger:  logger.With("module", module),
		metrics: newMetrics(reg),
		clock:   SegmentClock{Interval: cfg.SegmentDuration},
		now:     time.Now,
	}
	r.startProc = func(ctx context.Context, url string) (mediaProcess, error) {
		return engine.Start(ctx, r.engineConfig(), url)
	}
	r.openPlayer = func() (io.WriteCloser, error) {
		return engine.StartPlayer(r.engineConfig(), r.cfg.PlaybackSink)
	}
	r.resolveURL = playlist.Resolve

	r.Service = services.NewBasicService(r.starting, r.running, r.stopping)

	return r, nil
}

func (r *Recorder) engineConfig() engine.Config {
	return engine.Config{
		Path:           r.cfg.EnginePath,
		Format:         r.cfg.Format,
		ExtraArgs:      r.cfg.EngineArgs,
		StallTimeout:   r.cfg.StallTimeout,
		TerminateGrace: r.cfg.TerminateGrace,
		Logger:         r.logger,
	}
}

func (r *Recorder) starting(ctx context.Context) error {
	if r.cfg.URL == "" {
		return errors.New("no stream url configured")
	}

	if err := os.MkdirAll(r.cfg.Dir, 0o755); err != nil {
		return errors.Wrap(err, "creating archive directory")
	}
	recoverParts(r.cfg.Dir, r.logger)

	return nil
}

func (r *Recorder) running(ctx context.Context) error {
	boff := backoff.New(ctx, r.cfg.Reconnect)

	for boff.Ongoing() {
		began := r.now()

		err := r.runSession(ctx)
		if ctx.Err() != nil {
			r.logger.Info("shutdown requested")
			return nil
		}

		r.observeFailure(err)

		if r.now().Sub(began) >= r.cfg.StableAfter {
			// The session held long enough to count as recovered; the next
			// failure backs off from the initial delay again.
			boff.Reset()
		}

		r.logger.Info("reconnecting", "attempt", boff.NumRetries()+1)
		boff.Wait()
	}

	if ctx.Err() != nil {
		return nil
	}

	return errors.Wrap(boff.Err(), "giving up on stream")
}

func (r *Recorder) stopping(_ error) error {
	r.logger.Info("stopping")
	return nil
}

// runSession drives one capture session to its end and reports why it
// ended. A nil error means shutdown was requested.
func (r *Recorder) runSession(ctx context.Context) error {
	sess := &session{url: r.cfg.URL, startedAt: r.now(), health: HealthStarting}
	r.metrics.sessionsStarted.Inc()
	r.metrics.setHealth(sess.health)

	url, err := r.resolveURL(ctx, sess.url)
	if err != nil {
		return failSession(reasonSpawn, errors.Wrap(err, "resolving stream url"))
	}

	proc, err := r.startProc(ctx, url)
	if err != nil {
		return failSession(reasonSpawn, errors.Wrap(err, "starting engine"))
	}
	sess.proc = proc
	defer func() {
		if err := sess.proc.Terminate(); err != nil {
			r.logger.Error("error terminating engine", "err", err)
		}
		if code, ok := sess.proc.ExitStatus(); ok && code != 0 {
			r.logger.Warn("engine exited with error", "code", code, "stderr", sess.proc.StderrTail())
		}
	}()
	defer func() {
		r.logger.Info("capture session ended",
			"duration", r.now().Sub(sess.startedAt),
			"segments", sess.segments)
	}()

	// The segment is sealed before the deferred terminate above runs;
	// defers run in reverse order.
	defer r.sealOpenSegment(sess)

	sess.sink = r.openSink()
	defer func() {
		if err := sess.sink.Close(); err != nil {
			r.logger.Warn("error closing playback sink", "err", err)
		}
	}()

	r.logger.Info("capture session started", "url", url)

	for {
		chunk, err := proc.ReadChunk(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return failSession(classifyRead(err), err)
		}

		if sess.health != HealthStreaming {
			sess.health = HealthStreaming
			r.metrics.setHealth(sess.health)
		}

		sess.sink.Forward(chunk)

		now := r.now()
		if sess.writer == nil {
			// The segment opens on first data, so a session that never
			// produced anything leaves no file behind.
			w, err := openSegment(r.segmentPath(now), r.cfg.WriteBufferSize, now)
			if err != nil {
				return failSession(reasonWrite, err)
			}
			sess.writer = w
			r.logger.Info("opened archive segment", "path", w.path+partSuffix)
		} else if r.clock.Crossed(sess.writer.openedAt, now) {
			head, tail := r.splitForRotation(chunk)
			if err := r.append(sess, head); err != nil {
				return err
			}

			sealed, err := sess.writer.Rotate(r.segmentPath(now), now)
			if sealed.Path != "" {
				r.recordSealed(sess, sealed)
			}
			if err != nil {
				return failSession(reasonWrite, err)
			}
			chunk = tail
		}

		if err := r.append(sess, chunk); err != nil {
			return err
		}
	}
}

// splitForRotation splits the chunk in hand at an mp3 frame sync so rotated
// segments start on a frame boundary. Other containers rotate on the raw
// chunk edge.
func (r *Recorder) splitForRotation(b []byte) (head, tail []byte) {
	if f := r.cfg.Format; f == "" || f == engine.DefaultFormat {
		return splitAtFrameSync(b)
	}
	return nil, b
}

func (r *Recorder) append(sess *session, b []byte) error {
	if len(b) == 0 {
		return nil
	}

	if err := sess.writer.Append(b); err != nil {
		return failSession(reasonWrite, err)
	}
	r.metrics.archiveBytes.Add(float64(len(b)))

	return nil
}

func (r *Recorder) sealOpenSegment(sess *session) {
	if sess.writer == nil {
		return
	}

	sealed, err := sess.writer.Close(r.now())
	if err != nil {
		r.logger.Error("error sealing segment", "err", err)
	}
	if sealed.Path != "" {
		r.recordSealed(sess, sealed)
	}
}

func (r *Recorder) recordSealed(sess *session, seg Segment) {
	sess.segments++
	r.metrics.segmentsSealed.Inc()
	r.logger.Info("sealed archive segment",
		"path", seg.Path,
		"bytes", seg.Bytes,
		"duration", seg.ClosedAt.Sub(seg.OpenedAt))
}

func (r *Recorder) observeFailure(err error) {
	if err == nil {
		return
	}

	var f *sessionFailure
	if !errors.As(err, &f) {
		f = failSession(reasonRead, err)
	}

	r.metrics.setHealth(f.health())
	r.metrics.sessionFailures.WithLabelValues(string(f.reason)).Inc()
	r.logger.Error("capture session failed", "reason", string(f.reason), "err", f.cause)
}

func (r *Recorder) openSink() *playbackSink {
	if r.cfg.PlaybackSink == "" {
		return nil
	}

	wc, err := r.openPlayer()
	if err != nil {
		r.logger.Warn("playback disabled for this session", "err", err)
		return nil
	}

	return newPlaybackSink(wc, r.logger, r.metrics.playbackDropped)
}

func (r *Recorder) segmentPath(t time.Time) string {
	return filepath.Join(r.cfg.Dir, t.Format(r.cfg.FilenameLayout))
}
