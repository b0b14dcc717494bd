// Package pagination sizes and describes pages of listed records.
package pagination

import "github.com/JaimeStill/expedite/pkg/query"

// Request asks for one page. Number is 1-based.
type Request struct {
	Number int
	Size   int
	Sort   []query.SortField
}

// ParseRequest builds a request from command-line values and clamps it to
// cfg. An empty sort keeps the listing's own ordering.
func ParseRequest(number, size int, sort string, cfg Config) Request {
	return Request{
		Number: number,
		Size:   size,
		Sort:   query.ParseSortFields(sort),
	}.Within(cfg)
}

// Within returns r with a page number of at least 1 and a size between 1
// and cfg.MaxPageSize. A missing size becomes cfg.DefaultPageSize.
func (r Request) Within(cfg Config) Request {
	r.Number = max(r.Number, 1)
	if r.Size < 1 {
		r.Size = cfg.DefaultPageSize
	}
	r.Size = min(r.Size, cfg.MaxPageSize)
	return r
}

// Offset is the number of rows before the page.
func (r Request) Offset() int {
	return (r.Number - 1) * r.Size
}

// Page is one page of T and where it sits in the full listing.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"page_size"`
	Pages int `json:"pages"`
}

// NewPage describes items as page req of a listing with total rows. Items
// is never nil and Pages is at least 1.
func NewPage[T any](items []T, total int, req Request) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 1
	if req.Size > 0 && total > req.Size {
		pages = (total + req.Size - 1) / req.Size
	}
	return Page[T]{
		Items: items,
		Total: total,
		Page:  req.Number,
		Size:  req.Size,
		Pages: pages,
	}
}

// HasNext reports whether a later page exists.
func (p Page[T]) HasNext() bool {
	return p.Page < p.Pages
}
