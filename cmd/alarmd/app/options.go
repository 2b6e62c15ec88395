package app

import (
	goflag "flag"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/nvr-ai/go-alarm/config"
)

// Options are the flags shared by every alarmd command.
type Options struct {
	ConfigPath string
	Database   string
	DataDir    string
}

// NewOptions creates options with no overrides.
func NewOptions() *Options {
	return &Options{}
}

// Flags returns the global flags, klog's included.
func (o *Options) Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("alarmd", pflag.ExitOnError)
	fs.StringVarP(&o.ConfigPath, "config", "c", o.ConfigPath, "Path to the YAML configuration. Defaults apply when empty.")
	fs.StringVar(&o.Database, "database", o.Database, "SQLite database path, overrides the configuration.")
	fs.StringVar(&o.DataDir, "data-dir", o.DataDir, "Frame directory root, overrides the configuration.")

	gofs := goflag.NewFlagSet("klog", goflag.ExitOnError)
	klog.InitFlags(gofs)
	fs.AddGoFlagSet(gofs)
	return fs
}

// Config loads the configuration and applies flag overrides.
func (o *Options) Config() (*config.Config, error) {
	var cfg *config.Config
	if o.ConfigPath == "" {
		def := config.Default()
		cfg = &def
	} else {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.Override(config.Config{Database: o.Database, DataDir: o.DataDir}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "after flag overrides")
	}
	return cfg, nil
}
