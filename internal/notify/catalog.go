// Package notify renders templated correspondence and sends it through a
// mailer: deliveries to requesters and operational notices to the
// responsible party.
package notify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Kind selects the per-case template within a Set.
type Kind string

const (
	KindAttachment    Kind = "attachment"
	KindLink          Kind = "link"
	KindNoAttachments Kind = "no_attachments"
)

// System template names.
const (
	RunStarted      = "run_started"
	ConnectionError = "connection_error"
	NonCritical     = "non_critical"
	ShareAdvisory   = "share_advisory"
	UpdateFailed    = "update_failed"
	CaseError       = "case_error"
	LockBusy        = "lock_busy"
	ReportReady     = "report"
)

// Template is a subject and HTML body with placeholders.
type Template struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

func (t Template) empty() bool {
	return t.Subject == "" && t.Body == ""
}

// Set groups the per-case templates for one subcategory or variant.
type Set struct {
	Attachment    Template `yaml:"attachment"`
	Link          Template `yaml:"link"`
	NoAttachments Template `yaml:"no_attachments"`
}

func (s Set) get(k Kind) Template {
	switch k {
	case KindAttachment:
		return s.Attachment
	case KindLink:
		return s.Link
	case KindNoAttachments:
		return s.NoAttachments
	}
	return Template{}
}

// Catalog holds every template the pipeline sends.
type Catalog struct {
	Signature     string              `yaml:"signature"`
	Default       Set                 `yaml:"default"`
	Variants      map[string]Set      `yaml:"variants"`
	Subcategories map[string]Set      `yaml:"subcategories"`
	System        map[string]Template `yaml:"system"`
}

// LoadCatalog reads a YAML template catalog from path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML template catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &c, nil
}

// ForCase resolves the template of kind k, preferring the subcategory set,
// then the variant set, then the default set.
func (c *Catalog) ForCase(variant, subcategory string, k Kind) (Template, error) {
	if s, ok := c.Subcategories[subcategory]; ok {
		if t := s.get(k); !t.empty() {
			return t, nil
		}
	}
	if s, ok := c.Variants[variant]; ok {
		if t := s.get(k); !t.empty() {
			return t, nil
		}
	}
	if t := c.Default.get(k); !t.empty() {
		return t, nil
	}
	return Template{}, fmt.Errorf("%w: %s for variant %s subcategory %q", ErrTemplateNotFound, k, variant, subcategory)
}

// ForSystem resolves a system template by name.
func (c *Catalog) ForSystem(name string) (Template, error) {
	t, ok := c.System[name]
	if !ok || t.empty() {
		return Template{}, fmt.Errorf("%w: system %s", ErrTemplateNotFound, name)
	}
	return t, nil
}
