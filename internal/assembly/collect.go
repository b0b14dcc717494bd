package assembly

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/JaimeStill/expedite/internal/documents"
)

// Opener streams a document's content.
type Opener interface {
	Open(ctx context.Context, doc documents.Document) (io.ReadCloser, string, error)
}

// Collector downloads documents to local disk. A failed download skips that
// document only.
type Collector struct {
	Source  Opener
	Timeout time.Duration
	Logger  *slog.Logger
}

// Collect downloads docs into dir in the given order. It returns
// ErrNoDocuments for an empty input and ErrAllDownloadsFailed when nothing
// could be downloaded.
func (c *Collector) Collect(ctx context.Context, docs []documents.Document, dir string) ([]File, error) {
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	files := make([]File, 0, len(docs))
	var lastErr error
	for i, doc := range docs {
		f, err := c.download(ctx, doc, filepath.Join(dir, fmt.Sprintf("%04d", i+1)))
		if err != nil {
			lastErr = err
			c.Logger.WarnContext(ctx, "document download skipped", "document", doc.ID, "key", doc.SecondaryKey, "error", err)
			continue
		}
		files = append(files, f)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %d documents: %w", ErrAllDownloadsFailed, len(docs), lastErr)
	}
	if skipped := len(docs) - len(files); skipped > 0 {
		c.Logger.WarnContext(ctx, "some documents were not downloaded", "downloaded", len(files), "skipped", skipped)
	}
	return files, nil
}

func (c *Collector) download(ctx context.Context, doc documents.Document, base string) (File, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	rc, contentType, err := c.Source.Open(ctx, doc)
	if err != nil {
		return File{}, err
	}
	defer rc.Close()

	path := base + Ext(contentType)
	out, err := os.Create(path)
	if err != nil {
		return File{}, fmt.Errorf("create %s: %w", path, err)
	}

	n, err := io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return File{}, fmt.Errorf("write %s: %w", path, err)
	}

	return File{Document: doc, Path: path, ContentType: contentType, Size: n}, nil
}
