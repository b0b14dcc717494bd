// Package documents models repository documents and retrieves them from
// DocuWare.
package documents

import (
	"regexp"
	"strconv"
	"time"
)

// Document is a repository entry found under one secondary key. Content is
// fetched on demand through System.Open.
type Document struct {
	ID           string
	SecondaryKey string
	Type         string
	Act          string
	CreatedAt    time.Time
	ContentType  string
	Fields       map[string]string
}

// DocumentType returns the document type tag.
func (d Document) DocumentType() string { return d.Type }

// ActType returns the registered act tag, which may be empty.
func (d Document) ActType() string { return d.Act }

var datePattern = regexp.MustCompile(`/Date\((-?\d+)`)

// ParseDate reads DocuWare's "/Date(<unix ms>)/" notation. It returns the
// zero time when raw is not in that form.
func ParseDate(raw string) time.Time {
	m := datePattern.FindStringSubmatch(raw)
	if m == nil {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t
		}
		return time.Time{}
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
