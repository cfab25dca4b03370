package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/fnnxgo/internal/ctxlog"
	"github.com/specialistvlad/fnnxgo/internal/fsutil"
	"github.com/specialistvlad/fnnxgo/internal/value"
)

// HCLLoader is the HCL implementation of Loader.
type HCLLoader struct{}

// NewHCLLoader creates a new HCL configuration loader.
func NewHCLLoader() *HCLLoader {
	return &HCLLoader{}
}

// fileRoot is the top-level structure of one configuration file. Pointer
// fields distinguish unset values from zero values.
type fileRoot struct {
	LogLevel          *string        `hcl:"log_level,optional"`
	LogFormat         *string        `hcl:"log_format,optional"`
	Runtime           *runtimeBlock  `hcl:"runtime,block"`
	DynamicAttributes hcl.Expression `hcl:"dynamic_attributes,optional"`
}

type runtimeBlock struct {
	ParallelNodes   *bool `hcl:"parallel_nodes,optional"`
	MaxWorkers      *int  `hcl:"max_workers,optional"`
	AllowUnknownOps *bool `hcl:"allow_unknown_ops,optional"`
}

// Load implements Loader.
func (l *HCLLoader) Load(ctx context.Context, paths ...string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered configuration files.", "count", len(files))

	model := Default()
	parser := hclparse.NewParser()
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}
		if err := model.apply(&root); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	}

	if err := model.Validate(); err != nil {
		return nil, err
	}
	logger.Debug("Configuration loaded.", "log_level", model.LogLevel, "parallel_nodes", model.Runtime.ParallelNodes, "dynamic_attributes", len(model.DynamicAttributes))
	return model, nil
}

func (m *Model) apply(root *fileRoot) error {
	if root.LogLevel != nil {
		m.LogLevel = *root.LogLevel
	}
	if root.LogFormat != nil {
		m.LogFormat = *root.LogFormat
	}
	if rt := root.Runtime; rt != nil {
		if rt.ParallelNodes != nil {
			m.Runtime.ParallelNodes = *rt.ParallelNodes
		}
		if rt.MaxWorkers != nil {
			m.Runtime.MaxWorkers = *rt.MaxWorkers
		}
		if rt.AllowUnknownOps != nil {
			m.Runtime.AllowUnknownOps = *rt.AllowUnknownOps
		}
	}
	if root.DynamicAttributes == nil {
		return nil
	}

	cv, diags := root.DynamicAttributes.Value(nil)
	if diags.HasErrors() {
		return fmt.Errorf("dynamic_attributes: %w", diags)
	}
	attrs, err := value.MapFromCty(cv)
	if err != nil {
		return fmt.Errorf("dynamic_attributes: %w", err)
	}
	m.DynamicAttributes = m.DynamicAttributes.Overlay(attrs)
	return nil
}

// findAllHCLFiles expands paths into a flat list of .hcl files.
func (l *HCLLoader) findAllHCLFiles(paths []string) ([]string, error) {
	var all []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			all = append(all, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}
		rel, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, err
		}
		for _, r := range rel {
			add(filepath.Join(path, filepath.FromSlash(r)))
		}
	}
	return all, nil
}
