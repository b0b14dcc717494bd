// Package assembly turns a case's admitted documents into a deliverable:
// one merged PDF or a folder tree grouped by secondary key and type.
package assembly

import (
	"context"
	"time"

	"github.com/JaimeStill/expedite/internal/documents"
)

// Kind identifies the deliverable shape.
type Kind string

const (
	KindMerged Kind = "merged"
	KindFolder Kind = "folder"
)

// File is a downloaded document on local disk.
type File struct {
	Document    documents.Document
	Path        string
	ContentType string
	Size        int64
}

// CreatedAt returns the document creation time used for ordering.
func (f File) CreatedAt() time.Time { return f.Document.CreatedAt }

// Entry is one document as placed in a deliverable.
type Entry struct {
	DocumentID   string
	SecondaryKey string
	Type         string
	Name         string
	CreatedAt    time.Time
}

// Deliverable is the assembled artifact. Path is the merged file or the
// root directory of the tree.
type Deliverable struct {
	Kind    Kind
	Path    string
	Size    int64
	Entries []Entry
}

// Request describes one case's assembly input. Output is written under Dir.
type Request struct {
	Dir    string
	Ticket string
	CaseID string
	Files  []File
}

// Assembler builds a deliverable from downloaded files.
type Assembler interface {
	Assemble(ctx context.Context, req Request) (*Deliverable, error)
}
