package config

import "context"

// Loader reads configuration from files and returns the resulting model.
type Loader interface {
	// Load reads every configuration file found at paths, applying them in
	// order on top of Default(). Directories contribute their .hcl files in
	// lexical order; missing paths are skipped.
	Load(ctx context.Context, paths ...string) (*Model, error)
}
