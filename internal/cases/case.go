// Package cases models copy-request cases and talks to the case-management
// system (Dynamics 365 Web API) that owns them.
package cases

import (
	"regexp"
	"strings"
	"time"
)

// Case is a single copy request read from the case-management system.
type Case struct {
	ID            string
	Reference     string
	TicketNumber  string
	Title         string
	SecondaryKeys []string
	Email         string
	CreatorRef    string
	CreatedAt     time.Time
	Category      string
	Subcategory   string
	Specification string
}

// Ticket returns the canonical ticket reference: Reference, then
// TicketNumber, then ID.
func (c Case) Ticket() string {
	switch {
	case strings.TrimSpace(c.Reference) != "":
		return strings.TrimSpace(c.Reference)
	case strings.TrimSpace(c.TicketNumber) != "":
		return strings.TrimSpace(c.TicketNumber)
	default:
		return c.ID
	}
}

var companyPattern = regexp.MustCompile(`Caso\s+(.+?)\s+\d{1,2}/\d{1,2}/\d{2,4}`)

// Company extracts the company name embedded in titles of the form
// "Caso <name> dd/mm/yyyy". It returns "" when the title does not match.
func (c Case) Company() string {
	m := companyPattern.FindStringSubmatch(c.Title)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ParseKeys splits a comma-separated key list, trimming blanks and dropping
// duplicates while keeping first-seen order.
func ParseKeys(raw string) []string {
	seen := make(map[string]struct{})
	var keys []string
	for part := range strings.SplitSeq(raw, ",") {
		k := strings.TrimSpace(part)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// Tags selects candidate cases by subcategory and specification identifiers.
type Tags struct {
	Subcategories  []string `toml:"subcategories"`
	Specifications []string `toml:"specifications"`
}
