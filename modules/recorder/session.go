package recorder

import (
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/mont29/qaspar/pkg/engine"
)

// HealthState tracks where a capture session is in its lifecycle.
type HealthState string

const (
	// HealthStarting covers the window between spawning the engine and its
	// first chunk.
	HealthStarting HealthState = "starting"

	// HealthStreaming means data is flowing to the archive.
	HealthStreaming HealthState = "streaming"

	// HealthStalled means the engine is alive but silent past the stall
	// timeout.
	HealthStalled HealthState = "stalled"

	// HealthDead means the engine exited or failed outright.
	HealthDead HealthState = "dead"
)

func (h HealthState) String() string { return string(h) }

// healthStates lists every state, for the labeled gauge.
var healthStates = []HealthState{HealthStarting, HealthStreaming, HealthStalled, HealthDead}

// session is one connect-to-disconnect lifetime: a single engine process
// and its open segment, owned exclusively by the supervisor loop.
type session struct {
	url       string
	startedAt time.Time
	proc      mediaProcess
	writer    *archiveWriter
	sink      *playbackSink
	health    HealthState
	segments  int
}

type failureReason string

const (
	reasonSpawn failureReason = "spawn"
	reasonStall failureReason = "stall"
	reasonRead  failureReason = "read"
	reasonEOF   failureReason = "eof"
	reasonWrite failureReason = "write"
)

// sessionFailure carries why a session ended, so the supervisor can log and
// count it without re-deriving the cause.
type sessionFailure struct {
	reason failureReason
	cause  error
}

func failSession(reason failureReason, cause error) *sessionFailure {
	return &sessionFailure{reason: reason, cause: cause}
}

func (f *sessionFailure) Error() string {
	return fmt.Sprintf("capture session failed (%s): %v", f.reason, f.cause)
}

func (f *sessionFailure) Unwrap() error { return f.cause }

// health maps the failure to the state it leaves the session in. Only a
// stall keeps the engine nominally alive; everything else is dead.
func (f *sessionFailure) health() HealthState {
	if f.reason == reasonStall {
		return HealthStalled
	}
	return HealthDead
}

// classifyRead buckets a ReadChunk error into a failure reason.
func classifyRead(err error) failureReason {
	switch {
	case errors.Is(err, engine.ErrStall):
		return reasonStall
	case errors.Is(err, io.EOF):
		return reasonEOF
	default:
		return reasonRead
	}
}
