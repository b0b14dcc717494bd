package assembly

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// FolderAssembler lays files out as <ticket>/<key>/<type>/<type> <n>.<ext>,
// numbering each (key, type) group from 1 in ascending creation time.
type FolderAssembler struct {
	logger *slog.Logger
}

// NewFolderAssembler creates a FolderAssembler.
func NewFolderAssembler(logger *slog.Logger) *FolderAssembler {
	return &FolderAssembler{logger: logger.With("system", "assembly", "kind", KindFolder)}
}

func (a *FolderAssembler) Assemble(ctx context.Context, req Request) (*Deliverable, error) {
	if len(req.Files) == 0 {
		return nil, ErrNoDocuments
	}

	root := filepath.Join(req.Dir, Sanitize(req.Ticket))
	d := &Deliverable{Kind: KindFolder, Path: root}

	for _, g := range GroupFiles(req.Files) {
		dir := filepath.Join(root, g.Key, g.Type)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}

		for i, f := range g.Files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			name := fmt.Sprintf("%s %d%s", g.Type, i+1, filepath.Ext(f.Path))
			if err := place(f.Path, filepath.Join(dir, name)); err != nil {
				return nil, err
			}
			d.Size += f.Size
			d.Entries = append(d.Entries, Entry{
				DocumentID:   f.Document.ID,
				SecondaryKey: g.Key,
				Type:         g.Type,
				Name:         filepath.ToSlash(filepath.Join(g.Key, g.Type, name)),
				CreatedAt:    f.CreatedAt(),
			})
		}
	}

	a.logger.InfoContext(ctx, "folder assembled", "root", root, "files", len(d.Entries), "size", d.Size)
	return d, nil
}

// place moves src to dst, copying when a rename is not possible.
func place(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close()
}
