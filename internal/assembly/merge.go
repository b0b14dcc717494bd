package assembly

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"slices"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var imageTypes = []string{"image/jpeg", "image/jpg", "image/png", "image/tiff"}

// MergeAssembler concatenates every file into a single PDF ordered oldest
// first across the whole case. Images become PDF pages; unsupported content
// is skipped.
type MergeAssembler struct {
	conf   *model.Configuration
	logger *slog.Logger
}

// NewMergeAssembler creates a MergeAssembler with relaxed PDF validation.
// pdfcpu's on-disk configuration directory is not used.
func NewMergeAssembler(logger *slog.Logger) *MergeAssembler {
	api.DisableConfigDir()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &MergeAssembler{
		conf:   conf,
		logger: logger.With("system", "assembly", "kind", KindMerged),
	}
}

func (a *MergeAssembler) Assemble(ctx context.Context, req Request) (*Deliverable, error) {
	if len(req.Files) == 0 {
		return nil, ErrNoDocuments
	}

	files := slices.Clone(req.Files)
	SortOldestFirst(files)

	work := filepath.Join(req.Dir, ".pages")
	if err := os.MkdirAll(work, 0o755); err != nil {
		return nil, fmt.Errorf("create merge dir: %w", err)
	}
	defer os.RemoveAll(work)

	var (
		inputs  []string
		entries []Entry
	)
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in, err := a.prepare(f, filepath.Join(work, fmt.Sprintf("%04d.pdf", i+1)))
		if err != nil {
			a.logger.WarnContext(ctx, "document left out of merge", "document", f.Document.ID, "content_type", f.ContentType, "error", err)
			continue
		}
		inputs = append(inputs, in)
		entries = append(entries, Entry{
			DocumentID:   f.Document.ID,
			SecondaryKey: f.Document.SecondaryKey,
			Type:         f.Document.Type,
			Name:         filepath.Base(f.Path),
			CreatedAt:    f.CreatedAt(),
		})
	}

	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no mergeable documents among %d", ErrMergeFailed, len(files))
	}

	out := filepath.Join(req.Dir, Sanitize(req.Ticket)+".pdf")
	if len(inputs) == 1 {
		if err := place(inputs[0], out); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMergeFailed, err)
		}
	} else if err := api.MergeCreateFile(inputs, out, false, a.conf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMergeFailed, err)
	}

	info, err := os.Stat(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMergeFailed, err)
	}

	a.logger.InfoContext(ctx, "documents merged", "path", out, "documents", len(inputs), "size", info.Size())
	return &Deliverable{Kind: KindMerged, Path: out, Size: info.Size(), Entries: entries}, nil
}

// prepare returns a PDF path for f: validated PDFs are used in place and
// images are converted into dst.
func (a *MergeAssembler) prepare(f File, dst string) (string, error) {
	mt, _, err := mime.ParseMediaType(f.ContentType)
	if err != nil {
		mt = f.ContentType
	}

	switch {
	case mt == "application/pdf":
		if err := api.ValidateFile(f.Path, a.conf); err != nil {
			return "", fmt.Errorf("invalid pdf: %w", err)
		}
		return f.Path, nil
	case slices.Contains(imageTypes, mt):
		if err := api.ImportImagesFile([]string{f.Path}, dst, pdfcpu.DefaultImportConfig(), a.conf); err != nil {
			return "", fmt.Errorf("convert image: %w", err)
		}
		return dst, nil
	default:
		return "", fmt.Errorf("unsupported content type %q", f.ContentType)
	}
}
