package config

import (
	"fmt"
	"slices"

	"github.com/specialistvlad/fnnxgo/internal/value"
)

// Log levels and formats accepted by the application logger.
var (
	LogLevels  = []string{"debug", "info", "warn", "error"}
	LogFormats = []string{"text", "json"}
)

// Model is the resolved runtime configuration.
type Model struct {
	LogLevel  string
	LogFormat string
	Runtime   Runtime
	// DynamicAttributes are passed to every compute call. Attributes given
	// with the call take precedence.
	DynamicAttributes value.Map
}

// Runtime holds the execution options of a session.
type Runtime struct {
	ParallelNodes   bool
	MaxWorkers      int
	AllowUnknownOps bool
}

// Default returns the configuration used when no file sets a value.
func Default() *Model {
	return &Model{
		LogLevel:          "info",
		LogFormat:         "text",
		DynamicAttributes: value.Map{},
	}
}

// Validate checks that every field holds a supported value.
func (m *Model) Validate() error {
	if !slices.Contains(LogLevels, m.LogLevel) {
		return fmt.Errorf("invalid log_level %q: must be one of %v", m.LogLevel, LogLevels)
	}
	if !slices.Contains(LogFormats, m.LogFormat) {
		return fmt.Errorf("invalid log_format %q: must be one of %v", m.LogFormat, LogFormats)
	}
	if m.Runtime.MaxWorkers < 0 {
		return fmt.Errorf("invalid max_workers %d: must not be negative", m.Runtime.MaxWorkers)
	}
	return nil
}

