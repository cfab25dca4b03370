package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/specialistvlad/fnnxgo/internal/config"
	"github.com/specialistvlad/fnnxgo/internal/ctxlog"
	"github.com/specialistvlad/fnnxgo/internal/pyfunc"
	"github.com/specialistvlad/fnnxgo/internal/runtime"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *config.Model
	plugins *pyfunc.Registry
	impls   *runtime.Implementations
}

// NewApp is the constructor for the main application. Logs go to logW. impls
// supplies op kinds such as ONNX_v1 that the runtime does not execute
// itself; it may be nil. Without modules, the core modules are registered.
func NewApp(logW io.Writer, cfg *config.Model, impls *runtime.Implementations, modules ...pyfunc.Module) *App {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	logger.Debug("Logger configured successfully.")

	if impls == nil {
		impls = runtime.NewImplementations()
	}
	if len(modules) == 0 {
		modules = coreModules
	}
	plugins := pyfunc.NewRegistry()
	pyfunc.RegisterAll(plugins, modules...)
	logger.Debug("All plugin modules registered.", "count", len(modules), "classes", plugins.Names())

	return &App{
		outW:    logW,
		logger:  logger,
		config:  cfg,
		plugins: plugins,
		impls:   impls,
	}
}

// Plugins returns the application's plugin registry. This is primarily for testing.
func (a *App) Plugins() *pyfunc.Registry {
	return a.plugins
}

// Config returns the configuration the application runs with.
func (a *App) Config() *config.Model {
	return a.config
}

func (a *App) context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}
