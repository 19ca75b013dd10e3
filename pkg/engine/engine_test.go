//go:build unix

package engine

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "engine.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))

	return path
}

func testConfig(path string) Config {
	return Config{
		Path:           path,
		StallTimeout:   200 * time.Millisecond,
		TerminateGrace: 200 * time.Millisecond,
	}
}

// readAll drains a process until clean EOF.
func readAll(t *testing.T, p *Process) []byte {
	t.Helper()

	var out []byte
	for {
		chunk, err := p.ReadChunk(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, chunk...)
	}
}

func TestProcessDeliversOutput(t *testing.T) {
	p, err := Start(context.Background(), testConfig(writeScript(t, `printf 'stream data'`)), "http://radio.test/live")
	require.NoError(t, err)
	defer func() { require.NoError(t, p.Terminate()) }()

	require.Equal(t, []byte("stream data"), readAll(t, p))
}

func TestProcessStall(t *testing.T) {
	p, err := Start(context.Background(), testConfig(writeScript(t, "printf 'x'\nsleep 30")), "http://radio.test/live")
	require.NoError(t, err)
	defer func() { require.NoError(t, p.Terminate()) }()

	chunk, err := p.ReadChunk(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte("x"), chunk)

	_, err = p.ReadChunk(context.Background())
	require.ErrorIs(t, err, ErrStall)
}

func TestProcessExitStatus(t *testing.T) {
	p, err := Start(context.Background(), testConfig(writeScript(t, "printf 'tail'\nexit 3")), "http://radio.test/live")
	require.NoError(t, err)

	require.Equal(t, []byte("tail"), readAll(t, p))

	require.Eventually(t, func() bool {
		_, exited := p.ExitStatus()
		return exited
	}, 2*time.Second, 10*time.Millisecond)

	code, _ := p.ExitStatus()
	require.Equal(t, 3, code)

	require.NoError(t, p.Terminate())
}

func TestStartMissingBinary(t *testing.T) {
	_, err := Start(context.Background(), testConfig(filepath.Join(t.TempDir(), "missing")), "http://radio.test/live")
	require.Error(t, err)
}

func TestTerminateIdempotent(t *testing.T) {
	p, err := Start(context.Background(), testConfig(writeScript(t, `sleep 30`)), "http://radio.test/live")
	require.NoError(t, err)

	require.NoError(t, p.Terminate())
	require.NoError(t, p.Terminate())

	_, exited := p.ExitStatus()
	require.True(t, exited)
}

func TestTerminateKillsStubbornEngine(t *testing.T) {
	p, err := Start(context.Background(), testConfig(writeScript(t, "trap '' TERM\nprintf 'x'\nwhile :; do sleep 1; done")), "http://radio.test/live")
	require.NoError(t, err)

	// The first chunk proves the trap is installed before we terminate.
	chunk, err := p.ReadChunk(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte("x"), chunk)

	require.NoError(t, p.Terminate())

	_, exited := p.ExitStatus()
	require.True(t, exited)
}

func TestReadChunkContextCanceled(t *testing.T) {
	cfg := testConfig(writeScript(t, `sleep 30`))
	cfg.StallTimeout = 10 * time.Second

	p, err := Start(context.Background(), cfg, "http://radio.test/live")
	require.NoError(t, err)
	defer func() { require.NoError(t, p.Terminate()) }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.ReadChunk(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStderrTail(t *testing.T) {
	p, err := Start(context.Background(), testConfig(writeScript(t, "echo 'Connection refused' >&2\nexit 1")), "http://radio.test/live")
	require.NoError(t, err)

	_, err = p.ReadChunk(context.Background())
	require.ErrorIs(t, err, io.EOF)

	require.Eventually(t, func() bool {
		return p.StderrTail() != ""
	}, 2*time.Second, 10*time.Millisecond)
	require.Contains(t, p.StderrTail(), "Connection refused")

	require.NoError(t, p.Terminate())
}

func TestCaptureArgs(t *testing.T) {
	cfg := Config{ExtraArgs: []string{"-map_metadata", "0"}}.withDefaults()

	require.Equal(t, []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-nostdin",
		"-i", "http://radio.test/live",
		"-c:a", "copy",
		"-f", "mp3",
		"-map_metadata", "0",
		"pipe:1",
	}, captureArgs(cfg, "http://radio.test/live"))
}

func TestPlayerWritesThrough(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	script := filepath.Join(dir, "player.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncat > \""+out+"\"\n"), 0o755))

	pl, err := StartPlayer(Config{Path: script, TerminateGrace: time.Second}, "pulse")
	require.NoError(t, err)

	_, err = pl.Write([]byte("audio bytes"))
	require.NoError(t, err)

	require.NoError(t, pl.Close())
	require.NoError(t, pl.Close())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, []byte("audio bytes"), data)
}
