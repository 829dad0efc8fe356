package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is the serialized form of a rule set.
type Document struct {
	Tag                string                    `json:"tag" yaml:"tag"`
	Base               map[string]any            `json:"base" yaml:"base"`
	MarketOverrides    map[string]map[string]any `json:"market_overrides,omitempty" yaml:"market_overrides,omitempty"`
	EmergencyOverrides map[string]any            `json:"emergency_overrides,omitempty" yaml:"emergency_overrides,omitempty"`
	Metadata           map[string]any            `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Document exports the rule set. The bound market is not part of it.
func (rs *RuleSet) Document() Document {
	return Document{
		Tag:                rs.tag,
		Base:               rs.Base(),
		MarketOverrides:    rs.MarketOverrides(),
		EmergencyOverrides: rs.EmergencyOverrides(),
		Metadata:           rs.Metadata(),
	}
}

// FromDocument builds a rule set from its serialized form.
func FromDocument(d Document) (*RuleSet, error) {
	if len(d.Base) == 0 {
		return nil, fmt.Errorf("rule set %q: base is required", d.Tag)
	}
	return New(d.Tag, d.Base,
		WithMarketOverrides(d.MarketOverrides),
		WithEmergencyOverrides(d.EmergencyOverrides),
		WithMetadata(d.Metadata),
	), nil
}

// Parse decodes a YAML or JSON document. A document without a "base" key
// is read as bare base rules.
func Parse(data []byte) (*RuleSet, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		if jerr := json.Unmarshal(data, &raw); jerr != nil {
			return nil, fmt.Errorf("parse rules (tried YAML and JSON): %w", err)
		}
	}
	if raw == nil {
		return nil, fmt.Errorf("parse rules: empty document")
	}
	if _, ok := raw["base"]; !ok {
		return New("", raw), nil
	}

	var d Document
	if err := yaml.Unmarshal(data, &d); err != nil {
		if jerr := json.Unmarshal(data, &d); jerr != nil {
			return nil, fmt.Errorf("parse rules document: %w", err)
		}
	}
	return FromDocument(d)
}

// LoadFile reads a rule set from a YAML or JSON file. When the file has no
// tag the file name is used.
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if rs.Tag() == "" {
		name := filepath.Base(path)
		rs = rs.WithTag(strings.TrimSuffix(name, filepath.Ext(name)))
	}
	return rs, nil
}

// SaveFile writes the rule set as YAML or JSON depending on the extension.
func SaveFile(rs *RuleSet, path string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(rs.Document())
	} else {
		data, err = json.MarshalIndent(rs.Document(), "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write rules file: %w", err)
	}
	return nil
}
