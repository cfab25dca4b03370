// Package config defines the runtime configuration of the fnnx tool and
// loads it from HCL files.
//
// The `config.Model` is what the application layer consumes: logging
// settings, execution options for sessions, and the dynamic attributes
// passed to every compute call. Command-line flags are applied on top of a
// loaded model by the caller. Every field has a default, so running without
// a configuration file is the same as running with an empty one.
package config
