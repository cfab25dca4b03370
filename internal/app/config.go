package app

import (
	"context"

	"github.com/specialistvlad/fnnxgo/internal/config"
)

// Overrides carries configuration set on the command line. Zero fields keep
// the value from the configuration files.
type Overrides struct {
	LogLevel        string
	LogFormat       string
	ParallelNodes   *bool
	MaxWorkers      *int
	AllowUnknownOps *bool
}

// LoadConfig loads the configuration files at paths and applies o on top.
func LoadConfig(ctx context.Context, loader config.Loader, o Overrides, paths ...string) (*config.Model, error) {
	cfg, err := loader.Load(ctx, paths...)
	if err != nil {
		return nil, err
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.LogFormat = o.LogFormat
	}
	if o.ParallelNodes != nil {
		cfg.Runtime.ParallelNodes = *o.ParallelNodes
	}
	if o.MaxWorkers != nil {
		cfg.Runtime.MaxWorkers = *o.MaxWorkers
	}
	if o.AllowUnknownOps != nil {
		cfg.Runtime.AllowUnknownOps = *o.AllowUnknownOps
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
