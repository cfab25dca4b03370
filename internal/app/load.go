package app

import (
	"context"
	"strings"

	"github.com/specialistvlad/fnnxgo/internal/ctxlog"
	"github.com/specialistvlad/fnnxgo/internal/fsutil"
	"github.com/specialistvlad/fnnxgo/internal/loader"
	"github.com/specialistvlad/fnnxgo/internal/manifest"
	"github.com/specialistvlad/fnnxgo/internal/ops"
)

// Open loads the package at pkgPath with the configured loader options. The
// caller closes the package.
func (a *App) Open(ctx context.Context, pkgPath string) (*loader.Package, error) {
	ctx = a.context(ctx)
	ctxlog.FromContext(ctx).Debug("Opening package.", "path", pkgPath)
	return loader.Open(ctx, pkgPath, loader.Options{AllowUnknownOps: a.config.Runtime.AllowUnknownOps})
}

// Validate loads the package at pkgPath and runs every integrity check.
func (a *App) Validate(ctx context.Context, pkgPath string) error {
	pkg, err := a.Open(ctx, pkgPath)
	if err != nil {
		return err
	}
	defer pkg.Close()
	a.logger.Info("Package is valid.", "path", pkgPath, "variant", pkg.Manifest.Variant())
	return nil
}

// OpRow describes one op instance.
type OpRow struct {
	ID      string
	Kind    ops.Kind
	Summary string
}

// Report is what Inspect finds in a package.
type Report struct {
	Header manifest.Header
	Ops    []OpRow
	Meta   []manifest.MetaEntry
	Envs   []manifest.EnvDescriptor
	// EnvVars are the manifest's declared environment variables.
	EnvVars []EnvVarStatus
	// Order is the root execution order; empty for pyfunc packages.
	Order []string
	// Artifacts lists the files under the artifact directories, relative
	// to the package root.
	Artifacts []string
}

// Inspect loads the package at pkgPath and describes its contents.
func (a *App) Inspect(ctx context.Context, pkgPath string) (*Report, error) {
	pkg, err := a.Open(ctx, pkgPath)
	if err != nil {
		return nil, err
	}
	defer pkg.Close()

	m := pkg.Manifest
	r := &Report{
		Header: m.Header(),
		Meta:   m.Meta(),
		Envs:   m.Envs(),
	}
	r.EnvVars = envVarStatus(r.Header.EnvVars)
	for _, id := range m.OpIDs() {
		inst, err := m.Resolve(id)
		if err != nil {
			return nil, err
		}
		r.Ops = append(r.Ops, OpRow{ID: id, Kind: inst.Op, Summary: inst.Summary()})
	}
	if plan := m.RootPlan(); plan != nil {
		r.Order = plan.Order()
	}

	files, err := fsutil.ListFiles(pkg.Dir)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		top, _, _ := strings.Cut(f, "/")
		if top == loader.VariantArtifacts || top == loader.OpsArtifacts {
			r.Artifacts = append(r.Artifacts, f)
		}
	}
	return r, nil
}
