package documents

import (
	"context"
	"io"
)

// System defines the public contract for document repository operations.
type System interface {
	// Search returns every document stored under key, oldest first.
	Search(ctx context.Context, key string) ([]Document, error)
	// Open streams the binary content of doc along with its content type.
	// The caller must close the reader.
	Open(ctx context.Context, doc Document) (io.ReadCloser, string, error)
	// Ping authenticates and verifies the configured file cabinet is reachable.
	Ping(ctx context.Context) error
}
