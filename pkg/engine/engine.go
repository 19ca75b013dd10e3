package engine

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrStall is returned by ReadChunk when the engine produced no data for a
// full stall timeout while the process is still running.
var ErrStall = errors.New("engine produced no data within the stall timeout")

const (
	// DefaultPath is the engine binary resolved on PATH when none is
	// configured.
	DefaultPath = "ffmpeg"

	// DefaultFormat is the container format the engine copies into.
	DefaultFormat = "mp3"

	defaultStallTimeout   = 15 * time.Second
	defaultTerminateGrace = 3 * time.Second
	defaultChunkSize      = 32 * 1024

	// stderrTailLines bounds how much engine chatter is kept for error
	// reports.
	stderrTailLines = 8
)

// Config holds the engine invocation settings shared by capture processes
// and players.
type Config struct {
	// Path is the engine executable, either absolute or resolved on PATH.
	Path string `yaml:"path,omitempty"`

	// Format is the stream container format, passed to the engine muxer.
	Format string `yaml:"format,omitempty"`

	// ExtraArgs are appended to the engine command line before the output.
	ExtraArgs []string `yaml:"extra_args,omitempty"`

	// StallTimeout is how long a read waits for data before reporting
	// ErrStall.
	StallTimeout time.Duration `yaml:"stall_timeout,omitempty"`

	// TerminateGrace is how long a terminated engine gets to exit on
	// SIGTERM before it is killed.
	TerminateGrace time.Duration `yaml:"terminate_grace,omitempty"`

	Logger *slog.Logger `yaml:"-"`
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.Format == "" {
		c.Format = DefaultFormat
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = defaultStallTimeout
	}
	if c.TerminateGrace <= 0 {
		c.TerminateGrace = defaultTerminateGrace
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Process is one running capture engine. ReadChunk and Terminate are safe
// for one reader plus any number of terminators; chunks are consumed by a
// single goroutine at a time.
type Process struct {
	cfg    Config
	cmd    *exec.Cmd
	logger *slog.Logger

	chunks chan []byte
	stop   chan struct{}
	waitCh chan error

	mu       sync.Mutex
	readErr  error
	exited   bool
	exitCode int
	tail     []string

	termOnce sync.Once
	termErr  error
}

// Start launches the engine against url and begins pumping its output.
// Spawn failures (missing binary, bad permissions) surface here; everything
// after a successful start is reported through ReadChunk.
func Start(ctx context.Context, cfg Config, url string) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	cmd := exec.Command(cfg.Path, captureArgs(cfg, url)...)
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "engine stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "engine stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "starting engine")
	}

	p := &Process{
		cfg:    cfg,
		cmd:    cmd,
		logger: cfg.Logger,
		chunks: make(chan []byte, 1),
		stop:   make(chan struct{}),
		waitCh: make(chan error, 1),
	}

	pumpDone := make(chan struct{})
	drainDone := make(chan struct{})
	go p.pump(stdout, pumpDone)
	go p.drainStderr(stderr, drainDone)

	// Wait may only run once both pipe readers are finished.
	go func() {
		<-pumpDone
		<-drainDone
		err := cmd.Wait()
		p.mu.Lock()
		p.exited = true
		p.exitCode = cmd.ProcessState.ExitCode()
		p.mu.Unlock()
		p.waitCh <- err
	}()

	p.logger.Debug("engine started", "pid", cmd.Process.Pid, "path", cfg.Path)

	return p, nil
}

// captureArgs builds the engine command line for copying url to stdout
// without re-encoding.
func captureArgs(cfg Config, url string) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-nostdin",
		"-i", url,
		"-c:a", "copy",
		"-f", cfg.Format,
	}
	args = append(args, cfg.ExtraArgs...)
	return append(args, "pipe:1")
}

// ReadChunk returns the next chunk of engine output. It returns ErrStall
// when no data arrived within the stall timeout, io.EOF when the engine
// closed its output cleanly, the underlying read error otherwise, and
// ctx.Err() when the context ends the wait early.
func (p *Process) ReadChunk(ctx context.Context) ([]byte, error) {
	timer := time.NewTimer(p.cfg.StallTimeout)
	defer timer.Stop()

	select {
	case chunk, ok := <-p.chunks:
		if !ok {
			if err := p.readError(); err != nil {
				return nil, errors.Wrap(err, "reading engine output")
			}
			return nil, io.EOF
		}
		return chunk, nil
	case <-timer.C:
		return nil, ErrStall
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Terminate stops the engine and reaps it: SIGTERM to the process group,
// a grace period, then SIGKILL. It is idempotent and safe on an already
// exited process; repeated calls return the first result.
func (p *Process) Terminate() error {
	p.termOnce.Do(func() {
		close(p.stop)
		p.termErr = p.shutdown()
	})
	return p.termErr
}

func (p *Process) shutdown() error {
	if err := signalGroup(p.cmd, false); err != nil {
		p.logger.Debug("engine signal failed", "err", err)
	}

	select {
	case <-p.waitCh:
		return nil
	case <-time.After(p.cfg.TerminateGrace):
	}

	p.logger.Warn("engine did not exit in time, killing", "pid", p.cmd.Process.Pid)
	if err := signalGroup(p.cmd, true); err != nil {
		return errors.Wrap(err, "killing engine")
	}
	<-p.waitCh

	return nil
}

// ExitStatus returns the engine exit code once the process has been reaped.
func (p *Process) ExitStatus() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, p.exited
}

// StderrTail returns the last few lines the engine wrote to stderr, for
// error reports.
func (p *Process) StderrTail() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.tail, "\n")
}

func (p *Process) readError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readErr
}

// pump moves engine stdout into the chunks channel until the pipe closes or
// the process is being terminated. It is the only closer of chunks.
func (p *Process) pump(r io.Reader, done chan<- struct{}) {
	defer close(done)
	defer close(p.chunks)

	buf := make([]byte, defaultChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			select {
			case p.chunks <- chunk:
			case <-p.stop:
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				p.mu.Lock()
				p.readErr = err
				p.mu.Unlock()
			}
			return
		}
	}
}

func (p *Process) drainStderr(r io.Reader, done chan<- struct{}) {
	defer close(done)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		p.logger.Debug("engine stderr", "line", line)

		p.mu.Lock()
		p.tail = append(p.tail, line)
		if len(p.tail) > stderrTailLines {
			p.tail = p.tail[1:]
		}
		p.mu.Unlock()
	}
}
