// Package statapi fetches query results and classification trees from the
// statistical data service, or from saved copies on disk.
package statapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"statflat/internal/datasource"
	"statflat/internal/datasource/file"
	"statflat/internal/datasource/httpds"
	jsonparser "statflat/internal/parser/json"
	"statflat/internal/schema"
)

// Logger is satisfied by *log.Logger.
type Logger interface {
	Printf(format string, v ...any)
}

// Fetcher resolves http(s) URLs through an httpds.Client and everything else
// (file:// URLs, plain paths) through the local filesystem.
type Fetcher struct {
	HTTP *httpds.Client

	// BaseDir resolves relative file paths.
	BaseDir string

	// MaxBytes caps a single HTTP document; 0 means no limit.
	MaxBytes int64

	// DumpDir, when set, receives a copy of every fetched document so the
	// run can be replayed offline with file URLs.
	DumpDir string

	Logger Logger
}

// New returns a Fetcher using client for remote documents.
func New(client *httpds.Client) *Fetcher {
	return &Fetcher{HTTP: client}
}

// FetchQuery fetches and decodes a query result document.
func (f *Fetcher) FetchQuery(ctx context.Context, rawURL string) (*schema.Query, error) {
	b, err := f.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	q, err := jsonparser.DecodeQuery(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("statapi: query %s: %w", rawURL, err)
	}
	return q, nil
}

// FetchHierarchy fetches and decodes a classification tree. A document
// without a tree yields (nil, nil).
func (f *Fetcher) FetchHierarchy(ctx context.Context, rawURL string) (*schema.Node, error) {
	b, err := f.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	root, err := jsonparser.DecodeHierarchy(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("statapi: hierarchy %s: %w", rawURL, err)
	}
	return root, nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	if isRemote(rawURL) {
		if f.HTTP == nil {
			return nil, fmt.Errorf("statapi: no http client for %s", rawURL)
		}
		b, err = f.HTTP.GetBytes(ctx, rawURL, f.MaxBytes)
	} else {
		var src *file.Local
		src, err = file.FromURL(rawURL, f.BaseDir)
		if err == nil {
			b, err = readSource(ctx, src)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("statapi: fetch %s: %w", rawURL, err)
	}
	if f.DumpDir != "" {
		f.dump(rawURL, b)
	}
	return b, nil
}

func (f *Fetcher) dump(rawURL string, b []byte) {
	p := filepath.Join(f.DumpDir, httpds.SafeFilenameFromURL(rawURL)+".json")
	if err := os.WriteFile(p, b, 0o644); err != nil && f.Logger != nil {
		f.Logger.Printf("stage=fetch dump_error=%q url=%s", err.Error(), rawURL)
	}
}

func readSource(ctx context.Context, src datasource.Source) ([]byte, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func isRemote(raw string) bool {
	l := strings.ToLower(raw)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// BuildURL adds params to base's query string, e.g. D_TEMPORAL_0=2023 or
// posord=f. Existing parameters with the same name are replaced. The query
// is re-encoded with sorted keys.
func BuildURL(base string, params map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("statapi: parse %q: %w", base, err)
	}
	if len(params) == 0 {
		return base, nil
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
