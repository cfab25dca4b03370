package loader

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/specialistvlad/fnnxgo/internal/ctxlog"
	"github.com/specialistvlad/fnnxgo/internal/fnnxerr"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Compression names the container encoding of a package archive.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// decompress sniffs the stream and wraps it in the matching decoder.
func decompress(r *bufio.Reader) (io.Reader, Compression, func(), error) {
	magic, err := r.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, "", nil, err
	}
	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, "", nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		return gz, CompressionGzip, func() { gz.Close() }, nil
	case bytes.HasPrefix(magic, zstdMagic):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, "", nil, fmt.Errorf("creating zstd reader: %w", err)
		}
		return zr, CompressionZstd, zr.Close, nil
	}
	return r, CompressionNone, func() {}, nil
}

// extractArchive unpacks the tar archive at src into dst. Entries must stay
// inside dst; link entries are refused.
func extractArchive(ctx context.Context, src, dst string) error {
	logger := ctxlog.FromContext(ctx)

	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	r, compression, closeFn, err := decompress(bufio.NewReader(f))
	if err != nil {
		return fnnxerr.Validation(src, err)
	}
	defer closeFn()
	logger.Debug("Extracting package archive.", "path", src, "compression", compression)

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		switch {
		case err == io.EOF:
			return nil
		case err != nil:
			return fnnxerr.Validation(src, fmt.Errorf("reading tar: %w", err))
		case hdr == nil:
			continue
		}

		name := filepath.FromSlash(hdr.Name)
		if !filepath.IsLocal(name) {
			return fnnxerr.New(fnnxerr.ErrPathEscape, hdr.Name, "archive entry escapes the package root")
		}
		target := filepath.Join(dst, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating directory: %w", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("creating parent directory: %w", err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return fmt.Errorf("creating file: %w", err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("writing file: %w", err)
			}
			if err := out.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink, tar.TypeLink:
			return fnnxerr.New(fnnxerr.ErrPathEscape, hdr.Name, "archive links are not allowed")
		default:
			logger.Debug("Skipping archive entry.", "name", hdr.Name, "type", hdr.Typeflag)
		}
	}
}
