package recorder

import "context"

// mediaProcess is the part of engine.Process the supervisor drives, so
// tests can substitute a scripted engine.
type mediaProcess interface {
	ReadChunk(ctx context.Context) ([]byte, error)
	Terminate() error
	ExitStatus() (int, bool)
	StderrTail() string
}
