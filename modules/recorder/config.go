package recorder

import (
	"flag"
	"time"

	"github.com/grafana/dskit/backoff"
	"github.com/zachfi/zkit/pkg/util"

	"github.com/mont29/qaspar/pkg/engine"
)

// Write buffer sizing guidance (write-buffer-size):
// - SSD wear: fewer, larger writes reduce I/O overhead; 256KiB–1MiB is a good range.
// - NFS: larger buffers amortize round-trip cost; 512KiB–1MiB often performs better than 256KiB.
// - Upper bound: config is clamped to 4MiB to limit memory and avoid huge single writes.
const (
	defaultWriteBufferSize  = 256 * 1024 // 256 KiB
	defaultReconnectInitial = 1 * time.Second
	defaultReconnectMax     = 60 * time.Second
	defaultStallTimeout     = 15 * time.Second
	defaultStableAfter      = 30 * time.Second
	defaultTerminateGrace   = 3 * time.Second

	defaultDir            = "archived_files"
	defaultFilenameLayout = "archive-2006_01_02-15_04_05.mp3"
)

type Config struct {
	URL             string         `yaml:"url,omitempty"`
	Dir             string         `yaml:"dir,omitempty"`
	FilenameLayout  string         `yaml:"filename-layout,omitempty"`   // Go time layout rendered from each segment's open time
	Format          string         `yaml:"format,omitempty"`            // container format the engine copies into
	SegmentDuration time.Duration  `yaml:"segment-duration,omitempty"`  // 0 records a single unbounded segment per session
	WriteBufferSize int            `yaml:"write-buffer-size,omitempty"` // bytes to buffer before writing
	StallTimeout    time.Duration  `yaml:"stall-timeout,omitempty"`     // silence on a live engine counted as a stall
	StableAfter     time.Duration  `yaml:"stable-after,omitempty"`      // session age that counts as recovered, resetting backoff
	PlaybackSink    string         `yaml:"playback-sink,omitempty"`     // local audio sink (e.g. pulse); empty disables playback
	EnginePath      string         `yaml:"engine-path,omitempty"`
	EngineArgs      []string       `yaml:"engine-args,omitempty"`       // extra engine arguments, yaml only
	TerminateGrace  time.Duration  `yaml:"terminate-grace,omitempty"`
	Reconnect       backoff.Config `yaml:"reconnect,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.URL, util.PrefixConfig(prefix, "url"), "", "The URL from which to stream")
	f.StringVar(&cfg.Dir, util.PrefixConfig(prefix, "dir"), defaultDir, "The directory to save archived segments into")
	f.StringVar(&cfg.FilenameLayout, util.PrefixConfig(prefix, "filename-layout"), defaultFilenameLayout,
		"Go time layout for segment file names, rendered from the time each segment was opened.")
	f.StringVar(&cfg.Format, util.PrefixConfig(prefix, "format"), engine.DefaultFormat,
		"Container format the engine copies the stream into.")
	f.StringVar(&cfg.EnginePath, util.PrefixConfig(prefix, "engine-path"), engine.DefaultPath,
		"Path to the media engine executable, absolute or resolved on PATH.")
	f.DurationVar(&cfg.SegmentDuration, util.PrefixConfig(prefix, "segment-duration"), 0,
		"Rotate the archive on wall-clock multiples of this duration (e.g. 1h splits on the hour). 0 records one segment per session.")
	f.IntVar(&cfg.WriteBufferSize, util.PrefixConfig(prefix, "write-buffer-size"), defaultWriteBufferSize,
		"Bytes to buffer in memory before writing to disk (default 256KiB). Larger values reduce write frequency (helps SSD longevity and NFS). Reasonable range: 256KiB-1MiB.")
	f.DurationVar(&cfg.StallTimeout, util.PrefixConfig(prefix, "stall-timeout"), defaultStallTimeout,
		"Declare the stream stalled when the engine delivers no data for this long, and reconnect.")
	f.DurationVar(&cfg.StableAfter, util.PrefixConfig(prefix, "stable-after"), defaultStableAfter,
		"Treat a session that lasted this long as recovered, restarting the reconnect backoff from its initial delay.")
	f.StringVar(&cfg.PlaybackSink, util.PrefixConfig(prefix, "playback-sink"), "",
		"Local audio sink for live playback of the capture (e.g. pulse, alsa). Empty disables playback.")
	f.DurationVar(&cfg.TerminateGrace, util.PrefixConfig(prefix, "terminate-grace"), defaultTerminateGrace,
		"How long a terminated engine gets to exit on SIGTERM before it is killed.")
	f.DurationVar(&cfg.Reconnect.MinBackoff, util.PrefixConfig(prefix, "reconnect-backoff"), defaultReconnectInitial,
		"Initial delay before reconnecting after a capture failure. Exponential backoff is used up to reconnect-backoff-max.")
	f.DurationVar(&cfg.Reconnect.MaxBackoff, util.PrefixConfig(prefix, "reconnect-backoff-max"), defaultReconnectMax,
		"Maximum delay between reconnection attempts.")
	f.IntVar(&cfg.Reconnect.MaxRetries, util.PrefixConfig(prefix, "reconnect-max-retries"), 0,
		"Give up after this many consecutive failed reconnection attempts. 0 retries forever.")
}
