// Package datasource defines the byte sources documents are read from.
package datasource

import (
	"context"
	"io"
)

// Source opens one document for reading.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}
