package assembly

import (
	"cmp"
	"mime"
	"slices"
	"strings"
)

// UntypedFolder names the group of documents that carry no type.
const UntypedFolder = "SinTipo"

// Sanitize makes s safe as a file or folder name: every rune outside
// [A-Za-z0-9 _-] becomes '_', accented letters included. The result is
// never empty.
func Sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "_"
	}
	return out
}

var extensions = map[string]string{
	"application/pdf": ".pdf",
	"image/tiff":      ".tiff",
	"image/jpeg":      ".jpg",
	"image/jpg":       ".jpg",
	"image/png":       ".png",
}

// Ext returns the file extension for a content type, defaulting to .pdf.
func Ext(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".pdf"
	}
	if ext, ok := extensions[mt]; ok {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(mt); len(exts) > 0 {
		return exts[0]
	}
	return ".pdf"
}

// SortOldestFirst orders files by document creation time, breaking ties by
// document ID so the order is total.
func SortOldestFirst(files []File) {
	slices.SortStableFunc(files, func(a, b File) int {
		if c := a.CreatedAt().Compare(b.CreatedAt()); c != 0 {
			return c
		}
		return cmp.Compare(a.Document.ID, b.Document.ID)
	})
}

// Group is the set of files sharing a sanitized secondary key and type.
type Group struct {
	Key   string
	Type  string
	Files []File
}

// GroupFiles buckets files by sanitized (secondary key, type), each bucket
// ordered oldest first. Groups are returned sorted by key, then type.
func GroupFiles(files []File) []Group {
	index := make(map[[2]string]int)
	var groups []Group

	for _, f := range files {
		typ := strings.TrimSpace(f.Document.Type)
		if typ == "" {
			typ = UntypedFolder
		}
		k := [2]string{Sanitize(f.Document.SecondaryKey), Sanitize(typ)}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{Key: k[0], Type: k[1]})
		}
		groups[i].Files = append(groups[i].Files, f)
	}

	for i := range groups {
		SortOldestFirst(groups[i].Files)
	}
	slices.SortFunc(groups, func(a, b Group) int {
		if c := cmp.Compare(a.Key, b.Key); c != 0 {
			return c
		}
		return cmp.Compare(a.Type, b.Type)
	})
	return groups
}
