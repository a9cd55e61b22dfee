// Package file reads service documents from the local filesystem, so a run
// can be replayed from saved query and hierarchy payloads.
package file

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Local is a filesystem data source bound to one path.
type Local struct{ path string }

// NewLocal returns a Local data source for path.
func NewLocal(path string) *Local { return &Local{path: path} }

// FromURL accepts a file:// URL or a plain path. Relative paths are resolved
// against baseDir when it is not empty.
func FromURL(raw, baseDir string) (*Local, error) {
	p := raw
	if strings.HasPrefix(raw, "file:") {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("file: parse %q: %w", raw, err)
		}
		p = u.Path
		if p == "" {
			p = u.Opaque
		}
	}
	if p == "" {
		return nil, fmt.Errorf("file: empty path in %q", raw)
	}
	if !filepath.IsAbs(p) && baseDir != "" {
		p = filepath.Join(baseDir, p)
	}
	return NewLocal(p), nil
}

// Path returns the resolved filesystem path.
func (l *Local) Path() string { return l.path }

// Open returns the file for reading. A canceled context is reported without
// touching the filesystem. Filesystem errors keep errors.Is compatibility.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	return f, nil
}
