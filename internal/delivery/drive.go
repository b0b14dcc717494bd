package delivery

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/JaimeStill/expedite/internal/graph"
	"github.com/JaimeStill/expedite/pkg/storage"
)

type graphDrive struct {
	client *graph.Client
}

// NewGraphDrive adapts a Microsoft Graph client to Drive (OneDrive).
func NewGraphDrive(client *graph.Client) Drive {
	return &graphDrive{client: client}
}

func fromGraph(it graph.Item, remote string) Item {
	return Item{ID: it.ID, Name: it.Name, Path: remote, WebURL: it.WebURL}
}

func toGraph(it Item) graph.Item {
	return graph.Item{ID: it.ID, Name: it.Name, WebURL: it.WebURL}
}

func (g *graphDrive) UploadFile(ctx context.Context, src, remote string) (Item, error) {
	it, err := g.client.UploadFile(ctx, src, remote)
	if err != nil {
		return Item{}, err
	}
	return fromGraph(it, remote), nil
}

func (g *graphDrive) UploadTree(ctx context.Context, root, remote string) (Item, error) {
	it, err := g.client.UploadTree(ctx, root, remote)
	if err != nil {
		return Item{}, err
	}
	return fromGraph(it, remote), nil
}

func (g *graphDrive) ShareWithUser(ctx context.Context, item Item, email, role string) (string, error) {
	return g.client.ShareWithUser(ctx, toGraph(item), email, role)
}

func (g *graphDrive) ShareOrganization(ctx context.Context, item Item, role string) (string, error) {
	return g.client.ShareOrganization(ctx, toGraph(item), role)
}

func (g *graphDrive) WebURL(ctx context.Context, item Item) (string, error) {
	return g.client.WebURL(ctx, toGraph(item))
}

// blobDrive stores deliverables in blob storage. Folder trees are uploaded
// as a single zip archive so one signed URL covers them. Per-user grants
// do not exist for blobs; the organization tier is a read-only SAS link.
type blobDrive struct {
	store  storage.System
	logger *slog.Logger
}

// NewBlobDrive creates a Drive over blob storage.
func NewBlobDrive(store storage.System, logger *slog.Logger) Drive {
	return &blobDrive{store: store, logger: logger.With("system", "blob-drive")}
}

func (b *blobDrive) UploadFile(ctx context.Context, src, remote string) (Item, error) {
	f, err := os.Open(src)
	if err != nil {
		return Item{}, fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()

	if err := b.store.Upload(ctx, remote, f, contentType(src)); err != nil {
		return Item{}, err
	}
	return Item{ID: remote, Name: path.Base(remote), Path: remote}, nil
}

func (b *blobDrive) UploadTree(ctx context.Context, root, remote string) (Item, error) {
	tmp, err := os.CreateTemp("", "expedite-*.zip")
	if err != nil {
		return Item{}, fmt.Errorf("create archive: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := archive(tmp, root); err != nil {
		return Item{}, fmt.Errorf("archive %s: %w", root, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return Item{}, err
	}

	key := remote + ".zip"
	if err := b.store.Upload(ctx, key, tmp, "application/zip"); err != nil {
		return Item{}, err
	}

	b.logger.DebugContext(ctx, "tree archived", "root", root, "key", key)
	return Item{ID: key, Name: path.Base(key), Path: key}, nil
}

func (b *blobDrive) ShareWithUser(context.Context, Item, string, string) (string, error) {
	return "", fmt.Errorf("%w: blob storage has no per-user grants", ErrShareUnsupported)
}

func (b *blobDrive) ShareOrganization(_ context.Context, item Item, _ string) (string, error) {
	return b.store.SignedURL(item.Path)
}

func (b *blobDrive) WebURL(_ context.Context, item Item) (string, error) {
	return b.store.URL(item.Path)
}

func archive(w io.Writer, root string) error {
	zw := zip.NewWriter(w)

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		dst, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(dst, src)
		return err
	})
	if err != nil {
		return err
	}
	return zw.Close()
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
