package app

import (
	"context"
	"fmt"

	"github.com/specialistvlad/fnnxgo/internal/runtime"
	"github.com/specialistvlad/fnnxgo/internal/schema"
	"github.com/specialistvlad/fnnxgo/internal/value"
)

// Run executes the package at pkgPath once. Dynamic attributes from the
// configuration apply underneath dynattrs.
func (a *App) Run(ctx context.Context, pkgPath string, inputs, dynattrs value.Map) (value.Map, error) {
	ctx = a.context(ctx)
	a.logger.Debug("App.Run method started.", "path", pkgPath)

	pkg, err := a.Open(ctx, pkgPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := pkg.Close(); err != nil {
			a.logger.Warn("Failed to remove extracted package.", "error", err)
		}
	}()

	s, err := runtime.NewSession(ctx, pkg, a.impls, a.plugins, runtime.Options{
		ParallelNodes: a.config.Runtime.ParallelNodes,
		MaxWorkers:    a.config.Runtime.MaxWorkers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	defer s.Close(ctx)

	if err := s.Warmup(ctx); err != nil {
		return nil, err
	}
	out, err := s.Compute(ctx, inputs, a.config.DynamicAttributes.Overlay(dynattrs))
	if err != nil {
		return nil, err
	}
	a.logger.Info("Execution finished.", "outputs", out.Keys())
	return out, nil
}

// Schema writes the schema bundle for version into dir.
func (a *App) Schema(ctx context.Context, version, dir string) error {
	b, err := schema.Generate(version)
	if err != nil {
		return err
	}
	if err := b.WriteFiles(dir); err != nil {
		return fmt.Errorf("failed to write schemas: %w", err)
	}
	a.logger.Info("Schema bundle written.", "version", version, "path", dir)
	return nil
}
