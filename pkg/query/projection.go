// Package query builds parameterized SELECT statements over a projection of
// logical field names onto table columns.
package query

import "strings"

// Projection maps logical field names to the alias-qualified columns of one
// table. Field names are matched case-insensitively.
type Projection struct {
	table   string
	alias   string
	fields  map[string]string
	columns []string
}

// NewProjection creates a Projection over table, which may be
// schema-qualified, selected as alias.
func NewProjection(table, alias string) *Projection {
	return &Projection{
		table:  table,
		alias:  alias,
		fields: make(map[string]string),
	}
}

// Field exposes column under the logical name. Columns are selected in the
// order they are added.
func (p *Projection) Field(name, column string) *Projection {
	qualified := p.alias + "." + column
	p.fields[strings.ToLower(name)] = qualified
	p.columns = append(p.columns, qualified)
	return p
}

// Column resolves a logical name to its qualified column.
func (p *Projection) Column(name string) (string, bool) {
	col, ok := p.fields[strings.ToLower(strings.TrimSpace(name))]
	return col, ok
}

// From returns the FROM target, "table alias".
func (p *Projection) From() string {
	return p.table + " " + p.alias
}

// Select returns the select list.
func (p *Projection) Select() string {
	return strings.Join(p.columns, ", ")
}
