// Package datasource defines where raw input bytes come from.
package datasource

import (
	"context"
	"io"
)

// Source opens the raw run document.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}
