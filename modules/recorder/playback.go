package recorder

import (
	"io"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// playbackBuffer is how many chunks may queue for the player before new
// ones are dropped.
const playbackBuffer = 64

// playbackSink fans captured chunks out to the local player without ever
// blocking the capture loop: a full buffer drops the chunk, and a player
// that stops accepting writes swallows the rest of the session. Archival
// never waits on playback.
type playbackSink struct {
	wc      io.WriteCloser
	logger  *slog.Logger
	dropped prometheus.Counter

	mu     sync.Mutex
	ch     chan []byte
	closed bool
	done   chan struct{}
}

func newPlaybackSink(wc io.WriteCloser, logger *slog.Logger, dropped prometheus.Counter) *playbackSink {
	s := &playbackSink{
		wc:      wc,
		logger:  logger,
		dropped: dropped,
		ch:      make(chan []byte, playbackBuffer),
		done:    make(chan struct{}),
	}
	go s.drain()

	return s
}

// Forward hands a chunk to the player. It never blocks, and a nil sink is
// a no-op.
func (s *playbackSink) Forward(b []byte) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.ch <- b:
	default:
		s.dropped.Inc()
	}
}

func (s *playbackSink) drain() {
	defer close(s.done)

	dead := false
	for b := range s.ch {
		if s.isClosed() {
			continue
		}
		if dead {
			s.dropped.Inc()
			continue
		}
		if _, err := s.wc.Write(b); err != nil {
			s.dropped.Inc()
			dead = true
			// One warning per sink, then drop the rest.
			if !s.isClosed() {
				s.logger.Warn("playback sink failed, audio is muted for this session", "err", err)
			}
		}
	}
}

func (s *playbackSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops the fan-out and releases the player. Chunks still queued at
// close time are dropped; playback is live, not a replay. Safe on a nil
// sink, and idempotent.
func (s *playbackSink) Close() error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	// Closing the player first unblocks a drain stuck on a wedged write.
	err := s.wc.Close()
	<-s.done

	return err
}
