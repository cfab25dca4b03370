// Package loader reads a model package from disk and produces a validated
// Manifest.
//
// A package is either a directory or a tar archive (plain, gzip or zstd)
// with this layout:
//
//	manifest.json          package header
//	ops.json               op instance entries
//	variant_config.json    root variant configuration
//	meta.json              meta entries (optional)
//	env.json               environment descriptors (optional)
//	dtypes.json            dtype definitions (optional, not interpreted)
//	variant_artifacts/     root pyfunc code and data
//	ops_artifacts/<id>/    per op instance artifacts
//
// Loading either fully succeeds or returns an error; no partially loaded
// package is ever returned.
package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/specialistvlad/fnnxgo/internal/ctxlog"
	"github.com/specialistvlad/fnnxgo/internal/fnnxerr"
	"github.com/specialistvlad/fnnxgo/internal/manifest"
	"github.com/specialistvlad/fnnxgo/internal/ops"
	"github.com/specialistvlad/fnnxgo/internal/value"
)

// Package file names.
const (
	ManifestFile      = "manifest.json"
	OpsFile           = "ops.json"
	VariantConfigFile = "variant_config.json"
	MetaFile          = "meta.json"
	EnvFile           = "env.json"
	DTypesFile        = "dtypes.json"
	VariantArtifacts  = "variant_artifacts"
	OpsArtifacts      = "ops_artifacts"
)

// Options controls loading.
type Options struct {
	// AllowUnknownOps keeps op instances of unregistered kinds as opaque
	// entries instead of failing.
	AllowUnknownOps bool
	// Kinds overrides the kind registry; manifest.DefaultKinds() otherwise.
	// Loading never modifies it.
	Kinds *ops.Kinds
}

// Package is a loaded model package.
type Package struct {
	// Dir is the package root on disk.
	Dir      string
	Manifest *manifest.Manifest
	// DTypes is dtypes.json as loaded, or null.
	DTypes value.Value

	tempDir string
}

// VariantArtifactsDir returns the directory of root pyfunc artifacts.
func (p *Package) VariantArtifactsDir() string {
	return filepath.Join(p.Dir, VariantArtifacts)
}

// OpArtifactsDir returns the artifact directory of one op instance.
func (p *Package) OpArtifactsDir(id string) string {
	return filepath.Join(p.Dir, OpsArtifacts, id)
}

// PyFuncScope returns the directory a pyfunc's Context is confined to: the
// variant artifacts for the root variant (empty id), or the per-instance
// subdirectory of the variant artifacts for a pyfunc op instance.
func (p *Package) PyFuncScope(id string) string {
	if id == "" {
		return p.VariantArtifactsDir()
	}
	return filepath.Join(p.VariantArtifactsDir(), id)
}

// Close removes data extracted from an archive. It is a no-op for
// directory packages.
func (p *Package) Close() error {
	if p.tempDir == "" {
		return nil
	}
	err := os.RemoveAll(p.tempDir)
	p.tempDir = ""
	return err
}

// Open loads the package at path.
func Open(ctx context.Context, path string, opts Options) (*Package, error) {
	logger := ctxlog.FromContext(ctx).With("path", path)

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	pkg := &Package{Dir: path}
	if !info.IsDir() {
		tmp, err := os.MkdirTemp("", "fnnx-*")
		if err != nil {
			return nil, err
		}
		if err := extractArchive(ctx, path, tmp); err != nil {
			os.RemoveAll(tmp)
			return nil, err
		}
		pkg.Dir, pkg.tempDir = tmp, tmp
	}

	if err := pkg.load(ctx, opts); err != nil {
		if cerr := pkg.Close(); cerr != nil {
			logger.Warn("Failed to remove extracted package.", "error", cerr)
		}
		return nil, err
	}
	logger.Debug("Package loaded.", "variant", pkg.Manifest.Variant(), "op_instances", len(pkg.Manifest.OpIDs()))
	return pkg, nil
}

func (p *Package) load(ctx context.Context, opts Options) error {
	kinds := opts.Kinds
	if kinds == nil {
		kinds = manifest.DefaultKinds()
	}
	kinds = kinds.WithLenient(opts.AllowUnknownOps || kinds.Lenient)

	var header manifest.Header
	if err := p.readJSON(ManifestFile, true, &header); err != nil {
		return err
	}

	var rawRoot json.RawMessage
	if err := p.readJSON(VariantConfigFile, true, &rawRoot); err != nil {
		return err
	}
	root, err := manifest.DecodeRoot(header.Variant, rawRoot)
	if err != nil {
		return err
	}

	var entries []ops.Entry
	if err := p.readJSON(OpsFile, header.Variant == ops.KindPipeline, &entries); err != nil {
		return err
	}

	b := manifest.NewBuilder().SetHeader(header).SetRoot(root)
	for _, e := range entries {
		inst, err := kinds.Decode(e)
		if err != nil {
			return err
		}
		if err := b.AddOp(inst); err != nil {
			return err
		}
	}

	var meta []manifest.MetaEntry
	if err := p.readJSON(MetaFile, false, &meta); err != nil {
		return err
	}
	b.AddMeta(meta...)

	envs, err := p.readEnvs()
	if err != nil {
		return err
	}
	b.AddEnv(envs...)

	p.DTypes = value.Null()
	if err := p.readJSON(DTypesFile, false, &p.DTypes); err != nil {
		return err
	}

	m, err := b.Build(ctx)
	if err != nil {
		return err
	}
	p.Manifest = m
	return nil
}

// readJSON decodes one package document. A missing optional document leaves
// into untouched.
func (p *Package) readJSON(name string, required bool, into any) error {
	data, err := os.ReadFile(filepath.Join(p.Dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		if required {
			return fnnxerr.New(fnnxerr.ErrValidation, name, "required file is missing")
		}
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fnnxerr.Validation(name, err)
	}
	return nil
}

// readEnvs decodes env.json, reporting names that occur more than once.
// encoding/json would keep the last duplicate silently, so the object is
// walked token by token.
func (p *Package) readEnvs() ([]manifest.EnvDescriptor, error) {
	data, err := os.ReadFile(filepath.Join(p.Dir, EnvFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fnnxerr.Validation(EnvFile, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fnnxerr.Validation(EnvFile, fmt.Errorf("expected an object, got %v", tok))
	}

	var envs []manifest.EnvDescriptor
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fnnxerr.Validation(EnvFile, err)
		}
		name := tok.(string)
		var body value.Value
		if err := dec.Decode(&body); err != nil {
			return nil, fnnxerr.Validation(EnvFile, fmt.Errorf("environment %q: %w", name, err))
		}
		envs = append(envs, manifest.EnvDescriptor{Name: name, Body: body})
	}
	return envs, nil
}
