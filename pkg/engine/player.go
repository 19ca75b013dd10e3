package engine

import (
	"bufio"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// playerStreamName is the sink-side name the player registers under, so the
// stream is recognisable in the audio server's inputs.
const playerStreamName = "qaspar_player"

// Player is a local monitor for the captured stream: an engine process that
// reads audio on stdin and plays it on a sink such as pulse or alsa. It
// implements io.WriteCloser.
type Player struct {
	cfg    Config
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	waitCh chan error

	closeOnce sync.Once
	closeErr  error
}

// StartPlayer launches a playback engine writing to the named sink.
func StartPlayer(cfg Config, sink string) (*Player, error) {
	cfg = cfg.withDefaults()

	cmd := exec.Command(cfg.Path, playerArgs(cfg, sink)...)
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "player stdin pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "player stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "starting player")
	}

	pl := &Player{
		cfg:    cfg,
		cmd:    cmd,
		stdin:  stdin,
		waitCh: make(chan error, 1),
	}

	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			cfg.Logger.Debug("player stderr", "line", sc.Text())
		}
	}()
	go func() {
		<-drainDone
		pl.waitCh <- cmd.Wait()
	}()

	cfg.Logger.Debug("player started", "pid", cmd.Process.Pid, "sink", sink)

	return pl, nil
}

func playerArgs(cfg Config, sink string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.Format,
		"-i", "pipe:0",
		"-f", sink,
		playerStreamName,
	}
}

// Write feeds captured audio to the player. A dead player returns a write
// error, as any pipe would.
func (pl *Player) Write(b []byte) (int, error) {
	return pl.stdin.Write(b)
}

// Close stops the player: closing stdin lets it drain and exit on its own,
// with the SIGTERM/SIGKILL ladder behind it for a player that lingers.
// Idempotent.
func (pl *Player) Close() error {
	pl.closeOnce.Do(func() {
		pl.closeErr = pl.shutdown()
	})
	return pl.closeErr
}

func (pl *Player) shutdown() error {
	_ = pl.stdin.Close()

	select {
	case <-pl.waitCh:
		return nil
	case <-time.After(pl.cfg.TerminateGrace):
	}

	if err := signalGroup(pl.cmd, false); err != nil {
		pl.cfg.Logger.Debug("player signal failed", "err", err)
	}

	select {
	case <-pl.waitCh:
		return nil
	case <-time.After(pl.cfg.TerminateGrace):
	}

	pl.cfg.Logger.Warn("player did not exit in time, killing", "pid", pl.cmd.Process.Pid)
	if err := signalGroup(pl.cmd, true); err != nil {
		return errors.Wrap(err, "killing player")
	}
	<-pl.waitCh

	return nil
}
