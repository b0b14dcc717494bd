package query

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownField is returned when a filter or sort names a field the
// projection does not expose.
var ErrUnknownField = errors.New("unknown field")

// SortField is one ORDER BY term over a logical field name.
type SortField struct {
	Field      string
	Descending bool
}

// ParseSortFields parses a comma-separated list such as "Status,-StartedAt".
// A leading "-" sorts that field descending.
func ParseSortFields(s string) []SortField {
	var fields []SortField
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		name, desc := strings.CutPrefix(part, "-")
		if name == "" {
			continue
		}
		fields = append(fields, SortField{Field: name, Descending: desc})
	}
	return fields
}

// Builder accumulates conditions and ordering for one projection.
// Parameters are numbered in the order conditions are added. The first
// unknown field is remembered and returned by every Build method.
type Builder struct {
	proj     *Projection
	where    []string
	args     []any
	order    []SortField
	fallback []SortField
	err      error
}

// NewBuilder creates a Builder ordered by fallback unless OrderBy overrides it.
func NewBuilder(p *Projection, fallback ...SortField) *Builder {
	return &Builder{proj: p, fallback: fallback}
}

// WhereEquals adds "field = value". Nil values, including typed nil
// pointers, are skipped.
func (b *Builder) WhereEquals(field string, value any) *Builder {
	if isNil(value) {
		return b
	}
	return b.cond(field, "=", deref(value))
}

// WhereContains adds a case-insensitive substring match. Nil or empty
// values are skipped.
func (b *Builder) WhereContains(field string, value *string) *Builder {
	if value == nil || *value == "" {
		return b
	}
	return b.cond(field, "ILIKE", "%"+*value+"%")
}

// WhereSince adds an inclusive lower bound. Nil is skipped.
func (b *Builder) WhereSince(field string, since *time.Time) *Builder {
	if since == nil {
		return b
	}
	return b.cond(field, ">=", *since)
}

// OrderBy replaces the fallback ordering when fields is not empty.
func (b *Builder) OrderBy(fields []SortField) *Builder {
	for _, f := range fields {
		b.column(f.Field)
	}
	if len(fields) > 0 {
		b.order = fields
	}
	return b
}

// BuildCount returns a COUNT(*) over the filtered rows.
func (b *Builder) BuildCount() (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	return "SELECT COUNT(*) FROM " + b.proj.From() + b.whereClause(), b.params(), nil
}

// BuildPage returns limit ordered rows of the filtered set after skipping
// offset rows.
func (b *Builder) BuildPage(limit, offset int) (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(b.proj.Select())
	sb.WriteString(" FROM ")
	sb.WriteString(b.proj.From())
	sb.WriteString(b.whereClause())
	sb.WriteString(b.orderClause())
	fmt.Fprintf(&sb, " LIMIT %d OFFSET %d", limit, offset)
	return sb.String(), b.params(), nil
}

func (b *Builder) cond(field, op string, value any) *Builder {
	col, ok := b.column(field)
	if !ok {
		return b
	}
	b.args = append(b.args, value)
	b.where = append(b.where, col+" "+op+" $"+strconv.Itoa(len(b.args)))
	return b
}

func (b *Builder) column(field string) (string, bool) {
	col, ok := b.proj.Column(field)
	if !ok && b.err == nil {
		b.err = fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return col, ok
}

func (b *Builder) params() []any {
	return append([]any(nil), b.args...)
}

func (b *Builder) whereClause() string {
	if len(b.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.where, " AND ")
}

func (b *Builder) orderClause() string {
	fields := b.order
	if len(fields) == 0 {
		fields = b.fallback
	}

	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		col, ok := b.proj.Column(f.Field)
		if !ok {
			continue
		}
		if f.Descending {
			col += " DESC"
		}
		terms = append(terms, col)
	}
	if len(terms) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(terms, ", ")
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// deref unwraps pointer filter values so drivers receive the element.
func deref(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		return rv.Elem().Interface()
	}
	return v
}
