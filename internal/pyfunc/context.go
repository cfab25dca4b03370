package pyfunc

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/fnnxgo/internal/fnnxerr"
	"github.com/specialistvlad/fnnxgo/internal/value"
)

// Context gives a function read-only access to named values and to the files
// under one artifacts directory. A Context belongs to one session and is
// never shared across packages.
type Context struct {
	root   string
	values value.Map
}

// NewContext creates a Context scoped to dir. dir does not have to exist; a
// function without artifacts can still read values.
func NewContext(dir string, values value.Map) (*Context, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &Context{root: abs, values: values.Clone()}, nil
}

// Root returns the absolute artifacts directory.
func (c *Context) Root() string { return c.root }

// GetValue returns the named value.
func (c *Context) GetValue(key string) (value.Value, error) {
	v, ok := c.values[key]
	if !ok {
		return value.Null(), fnnxerr.New(fnnxerr.ErrUnknownReference, key, "no such context value")
	}
	return v, nil
}

// GetFilepath resolves rel against the artifacts directory and returns the
// absolute path. Absolute paths, parent traversal and symlinks leading
// outside the directory fail with ErrPathEscape. The file does not have to
// exist.
func (c *Context) GetFilepath(rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", fnnxerr.New(fnnxerr.ErrPathEscape, rel, "path contains a NUL byte")
	}
	if filepath.IsAbs(rel) || !filepath.IsLocal(rel) {
		return "", fnnxerr.New(fnnxerr.ErrPathEscape, rel, "path must be relative to %s", c.root)
	}

	full := filepath.Join(c.root, rel)
	if err := c.checkSymlinks(rel, full); err != nil {
		return "", err
	}
	return full, nil
}

// checkSymlinks resolves the deepest existing ancestor of full and requires
// it to stay under the resolved root.
func (c *Context) checkSymlinks(rel, full string) error {
	realRoot, err := filepath.EvalSymlinks(c.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	existing := full
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return nil
		}
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		// A dangling link cannot be followed; treat it as an escape.
		return fnnxerr.Wrap(fnnxerr.ErrPathEscape, rel, err)
	}
	within, err := filepath.Rel(realRoot, resolved)
	if err != nil || !filepath.IsLocal(within) {
		return fnnxerr.New(fnnxerr.ErrPathEscape, rel, "resolves to %s outside %s", resolved, c.root)
	}
	return nil
}

// Open opens a file under the artifacts directory for reading. The open goes
// through os.Root, so no link can lead outside the directory.
func (c *Context) Open(rel string) (fs.File, error) {
	if _, err := c.GetFilepath(rel); err != nil {
		return nil, err
	}
	root, err := os.OpenRoot(c.root)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	f, err := root.Open(filepath.Clean(rel))
	if err != nil {
		return nil, classifyOpenError(rel, err)
	}
	return f, nil
}

// classifyOpenError keeps missing and unreadable files as they are. Any other
// failure of a scoped open means the path left the directory.
func classifyOpenError(rel string, err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return err
	}
	return fnnxerr.Wrap(fnnxerr.ErrPathEscape, rel, err)
}

// ReadFile reads a whole file under the artifacts directory.
func (c *Context) ReadFile(rel string) ([]byte, error) {
	f, err := c.Open(rel)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
