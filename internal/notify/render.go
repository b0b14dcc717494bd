package notify

import (
	"maps"
	"slices"
	"strings"
)

// Values maps literal placeholders, such as "[Número PQRS]" or "{link}", to
// their replacements.
type Values map[string]string

var aliases = map[string]string{
	"[Correo Electrónico]": "[Correo electrónico]",
}

// Render substitutes every known placeholder in s. Zero-width spaces that
// editors leave inside placeholders are removed first; unknown placeholders
// are left as written.
func Render(s string, v Values) string {
	s = strings.ReplaceAll(s, "\u200b", "")

	pairs := make([]string, 0, 2*(len(v)+len(aliases)))
	for _, k := range slices.Sorted(maps.Keys(v)) {
		pairs = append(pairs, k, v[k])
	}
	for _, alias := range slices.Sorted(maps.Keys(aliases)) {
		if val, ok := v[aliases[alias]]; ok {
			pairs = append(pairs, alias, val)
		}
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

// Sign inserts signature before the closing body tag, or appends it, unless
// body already contains it.
func Sign(body, signature string) string {
	if signature == "" || strings.Contains(body, signature) {
		return body
	}
	lower := strings.ToLower(body)
	if i := strings.LastIndex(lower, "</body>"); i >= 0 {
		return body[:i] + signature + body[i:]
	}
	return body + signature
}
