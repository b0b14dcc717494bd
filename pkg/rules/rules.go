// Package rules decides which repository documents are admitted to a
// deliverable based on (document type, act type) exclusion rules.
package rules

import (
	"strings"

	"golang.org/x/text/cases"
)

// Rule excludes documents of DocumentType. An empty ActType excludes every
// document of that type; otherwise only documents whose act matches.
type Rule struct {
	DocumentType string `toml:"document_type"`
	ActType      string `toml:"act_type"`
}

// Document is the view of a repository document the filter needs.
type Document interface {
	DocumentType() string
	ActType() string
}

// Filter evaluates a fixed rule set. It is safe for concurrent use.
type Filter struct {
	rules []Rule
}

// NewFilter normalizes rules and drops entries with no document type.
func NewFilter(rules []Rule) *Filter {
	normalized := make([]Rule, 0, len(rules))
	for _, r := range rules {
		dt := normalize(r.DocumentType)
		if dt == "" {
			continue
		}
		normalized = append(normalized, Rule{
			DocumentType: dt,
			ActType:      normalize(r.ActType),
		})
	}
	return &Filter{rules: normalized}
}

// Len returns the number of active rules.
func (f *Filter) Len() int {
	return len(f.rules)
}

// ShouldDownload reports whether doc survives every rule. Documents with no
// type never match a rule and are always admitted.
func (f *Filter) ShouldDownload(doc Document) bool {
	dt := normalize(doc.DocumentType())
	if dt == "" {
		return true
	}

	act := normalize(doc.ActType())
	for _, r := range f.rules {
		if r.DocumentType != dt {
			continue
		}
		if r.ActType == "" || r.ActType == act {
			return false
		}
	}
	return true
}

// Apply returns the admitted documents in their original order.
func Apply[T Document](f *Filter, docs []T) []T {
	admitted := make([]T, 0, len(docs))
	for _, d := range docs {
		if f.ShouldDownload(d) {
			admitted = append(admitted, d)
		}
	}
	return admitted
}

func normalize(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}
