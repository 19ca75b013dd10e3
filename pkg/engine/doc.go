// Package engine runs the external media engine (ffmpeg) as a supervised
// subprocess.
//
// A capture Process connects to a stream URL and emits the copied audio on
// stdout in chunks; reads carry a stall timeout so a silent engine is
// detected while the process is still alive. A Player is the inverse: it
// consumes audio on stdin and plays it on a local sink. Both are stopped
// with a SIGTERM, grace period, SIGKILL ladder addressed to the whole
// process group, so helper processes the engine forks do not leak.
package engine
