package intake

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"
)

// Opener opens the content of the triggering object. It is called at most once per invocation.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// Event is one trigger delivery.
type Event struct {
	Path       string
	Open       Opener
	ReceivedAt time.Time
}

// BytesOpener serves content already in memory.
func BytesOpener(b []byte) Opener {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}
}

// ContentSource opens objects by path; storage.Blob satisfies it.
type ContentSource interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// SourceOpener defers to src.Open(path).
func SourceOpener(src ContentSource, path string) Opener {
	return func(ctx context.Context) (io.ReadCloser, error) {
		return src.Open(ctx, path)
	}
}

var errNoContent = errors.New("event has no content")
