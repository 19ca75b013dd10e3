package janitor

import (
	"flag"
	"time"

	"github.com/zachfi/zkit/pkg/util"
)

const defaultRetention = 30 * 24 * time.Hour

type Config struct {
	Dir       string        `yaml:"dir,omitempty"`
	Retention time.Duration `yaml:"retention,omitempty"` // segments older than this are deleted; 0 disables
	Interval  time.Duration `yaml:"interval,omitempty"`  // time between sweeps
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Dir, util.PrefixConfig(prefix, "dir"), "",
		"The directory to sweep. Defaults to the recorder's archive directory.")
	f.DurationVar(&cfg.Retention, util.PrefixConfig(prefix, "retention"), defaultRetention,
		"Delete archived segments older than this. 0 keeps everything and disables the janitor.")
	f.DurationVar(&cfg.Interval, util.PrefixConfig(prefix, "interval"), 0,
		"Time between sweeps. 0 derives the interval from the recorder's segment duration.")
}
