package rules_test

import (
	"slices"
	"testing"

	"github.com/JaimeStill/expedite/pkg/rules"
)

type doc struct {
	name string
	typ  string
	act  string
}

func (d doc) DocumentType() string { return d.typ }
func (d doc) ActType() string      { return d.act }

func names(docs []doc) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.name
	}
	return out
}

func TestShouldDownload(t *testing.T) {
	f := rules.NewFilter([]rules.Rule{
		{DocumentType: "Certificado"},
		{DocumentType: "Escritura", ActType: "Hipoteca"},
		{DocumentType: "  "},
	})

	tests := []struct {
		name string
		doc  doc
		want bool
	}{
		{"type-wide exclusion", doc{typ: "Certificado", act: "Venta"}, false},
		{"type-wide exclusion no act", doc{typ: "certificado"}, false},
		{"act-specific match", doc{typ: "Escritura", act: "hipoteca"}, false},
		{"act-specific other act", doc{typ: "Escritura", act: "Venta"}, true},
		{"act-specific empty act", doc{typ: "Escritura"}, true},
		{"unrelated type", doc{typ: "Plano"}, true},
		{"empty type always admitted", doc{typ: "", act: "Hipoteca"}, true},
		{"whitespace and case insensitive", doc{typ: "  ESCRITURA ", act: "HIPOTECA"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.ShouldDownload(tt.doc); got != tt.want {
				t.Errorf("ShouldDownload(%+v) = %v, want %v", tt.doc, got, tt.want)
			}
		})
	}

	if f.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (blank rule dropped)", f.Len())
	}
}

func TestApplyIdempotent(t *testing.T) {
	docs := []doc{
		{"d1", "Escritura", "Venta"},
		{"d2", "Escritura", "Hipoteca"},
		{"d3", "Certificado", ""},
		{"d4", "", ""},
		{"d5", "Plano", "Hipoteca"},
	}

	ruleSets := map[string][]rules.Rule{
		"none":       nil,
		"type-wide":  {{DocumentType: "Escritura"}},
		"act-scoped": {{DocumentType: "Escritura", ActType: "Hipoteca"}, {DocumentType: "Certificado"}},
		"everything": {{DocumentType: "Escritura"}, {DocumentType: "Certificado"}, {DocumentType: "Plano"}},
	}

	for name, rs := range ruleSets {
		t.Run(name, func(t *testing.T) {
			f := rules.NewFilter(rs)
			once := rules.Apply(f, docs)
			twice := rules.Apply(f, once)

			if !slices.Equal(names(once), names(twice)) {
				t.Errorf("Apply not idempotent: once=%v twice=%v", names(once), names(twice))
			}
		})
	}
}

func TestApplyPreservesOrder(t *testing.T) {
	f := rules.NewFilter([]rules.Rule{{DocumentType: "Certificado"}})
	docs := []doc{{"a", "Plano", ""}, {"b", "Certificado", ""}, {"c", "Escritura", ""}}

	got := names(rules.Apply(f, docs))
	if want := []string{"a", "c"}; !slices.Equal(got, want) {
		t.Errorf("Apply() = %v, want %v", got, want)
	}
}
