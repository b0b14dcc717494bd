package config

import (
	"fmt"
	"slices"

	"github.com/JaimeStill/expedite/internal/cases"
	"github.com/JaimeStill/expedite/pkg/formatting"
	"github.com/JaimeStill/expedite/pkg/rules"
)

const (
	VariantMerge  = "merge"
	VariantFolder = "folder"
)

// Variants lists the supported pipeline variants.
var Variants = []string{VariantMerge, VariantFolder}

// VariantConfig holds the selection tags, exclusion rules and delivery
// settings of one pipeline variant.
type VariantConfig struct {
	Subcategories  []string     `toml:"subcategories"`
	Specifications []string     `toml:"specifications"`
	BasePath       string       `toml:"base_path"`
	SizeThreshold  string       `toml:"size_threshold"`
	BotCode        string       `toml:"bot_code"`
	Rules          []rules.Rule `toml:"rules"`
}

// Tags returns the case selection tags.
func (c *VariantConfig) Tags() cases.Tags {
	return cases.Tags{
		Subcategories:  c.Subcategories,
		Specifications: c.Specifications,
	}
}

// SizeThresholdBytes returns SizeThreshold in bytes.
func (c *VariantConfig) SizeThresholdBytes() int64 {
	n, err := formatting.ParseBytes(c.SizeThreshold)
	if err != nil {
		return 20 * 1024 * 1024
	}
	return n
}

// Merge overwrites non-zero fields from overlay. Lists are replaced whole.
func (c *VariantConfig) Merge(overlay *VariantConfig) {
	if len(overlay.Subcategories) > 0 {
		c.Subcategories = overlay.Subcategories
	}
	if len(overlay.Specifications) > 0 {
		c.Specifications = overlay.Specifications
	}
	if overlay.BasePath != "" {
		c.BasePath = overlay.BasePath
	}
	if overlay.SizeThreshold != "" {
		c.SizeThreshold = overlay.SizeThreshold
	}
	if overlay.BotCode != "" {
		c.BotCode = overlay.BotCode
	}
	if len(overlay.Rules) > 0 {
		c.Rules = overlay.Rules
	}
}

func (c *VariantConfig) finalize(name string) error {
	if c.SizeThreshold == "" {
		c.SizeThreshold = "20MB"
	}
	if c.BasePath == "" {
		c.BasePath = "Expediciones/" + name
	}
	if c.BotCode == "" {
		c.BotCode = "ExpedicionCopias_" + name
	}

	n, err := formatting.ParseBytes(c.SizeThreshold)
	if err != nil {
		return fmt.Errorf("invalid size_threshold: %w", err)
	}
	if n <= 0 {
		return fmt.Errorf("size_threshold must be positive")
	}
	for i, r := range c.Rules {
		if r.DocumentType == "" {
			return fmt.Errorf("rules[%d]: document_type required", i)
		}
	}
	return nil
}

// VariantsConfig holds the per-variant sections.
type VariantsConfig struct {
	Merged VariantConfig `toml:"merge"`
	Folder VariantConfig `toml:"folder"`
}

// Get returns the section for name.
func (c *VariantsConfig) Get(name string) (*VariantConfig, error) {
	switch name {
	case VariantMerge:
		return &c.Merged, nil
	case VariantFolder:
		return &c.Folder, nil
	default:
		return nil, fmt.Errorf("unknown variant %q: want one of %v", name, Variants)
	}
}

// Finalize applies defaults and validation to both variants.
func (c *VariantsConfig) Finalize() error {
	for _, name := range Variants {
		v, _ := c.Get(name)
		if err := v.finalize(name); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *VariantsConfig) Merge(overlay *VariantsConfig) {
	c.Merged.Merge(&overlay.Merged)
	c.Folder.Merge(&overlay.Folder)
}

// IsVariant reports whether name is a supported variant.
func IsVariant(name string) bool {
	return slices.Contains(Variants, name)
}
