// Package codebook defines the labeling scheme: the fixed set of labels a
// coder may apply and the roster of coders the dataset tracks columns for.
package codebook

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yml
var defaultYAML []byte

// Label is one selectable entry in the taxonomy. Key is the value written
// into the dataset; Description is the card text shown to the coder.
type Label struct {
	Key         string `yaml:"key"`
	Description string `yaml:"description"`
}

// Coder is one roster entry. ID is the token used in URLs and to derive the
// dataset column name; Name is the default display name.
type Coder struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Codebook is the top-level codebook.yml configuration.
type Codebook struct {
	Version string  `yaml:"version"`
	Labels  []Label `yaml:"labels"`
	Coders  []Coder `yaml:"coders"`
}

// Load reads and validates a codebook from path.
func Load(path string) (*Codebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read codebook: %w", err)
	}
	return parse(data)
}

// Default returns the embedded codebook, used when no file is configured.
func Default() *Codebook {
	cb, err := parse(defaultYAML)
	if err != nil {
		// The embedded file is validated by tests; a parse failure here is a
		// build defect, not a runtime condition.
		panic(fmt.Sprintf("embedded codebook invalid: %v", err))
	}
	return cb
}

func parse(data []byte) (*Codebook, error) {
	var cb Codebook
	if err := yaml.Unmarshal(data, &cb); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cb.Validate(); err != nil {
		return nil, fmt.Errorf("invalid codebook: %w", err)
	}
	return &cb, nil
}

// Validate performs strict validation on the codebook.
func (c *Codebook) Validate() error {
	if c.Version != "1" {
		return fmt.Errorf("unsupported version: %q (expected: 1)", c.Version)
	}

	if len(c.Labels) == 0 {
		return fmt.Errorf("no labels defined")
	}
	seenLabels := make(map[string]struct{}, len(c.Labels))
	for i, label := range c.Labels {
		key := strings.TrimSpace(label.Key)
		if key == "" {
			return fmt.Errorf("label %d: key must not be empty", i)
		}
		if key != label.Key {
			return fmt.Errorf("label %q: key must not contain surrounding whitespace", label.Key)
		}
		if _, dup := seenLabels[key]; dup {
			return fmt.Errorf("duplicate label key %q", key)
		}
		seenLabels[key] = struct{}{}
	}

	if len(c.Coders) == 0 {
		return fmt.Errorf("no coders defined")
	}
	seenCoders := make(map[string]struct{}, len(c.Coders))
	for i, coder := range c.Coders {
		if err := validateCoderID(coder.ID); err != nil {
			return fmt.Errorf("coder %d: %w", i, err)
		}
		if _, dup := seenCoders[coder.ID]; dup {
			return fmt.Errorf("duplicate coder id %q", coder.ID)
		}
		seenCoders[coder.ID] = struct{}{}
	}

	return nil
}

// validateCoderID keeps IDs safe to embed in column names and URLs.
func validateCoderID(id string) error {
	if id == "" {
		return fmt.Errorf("coder id must not be empty")
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return fmt.Errorf("coder id %q contains invalid character %q", id, r)
		}
	}
	return nil
}

// HasLabel reports whether key is part of the taxonomy.
func (c *Codebook) HasLabel(key string) bool {
	for _, label := range c.Labels {
		if label.Key == key {
			return true
		}
	}
	return false
}

// Coder returns the roster entry for id.
func (c *Codebook) Coder(id string) (Coder, bool) {
	for _, coder := range c.Coders {
		if coder.ID == id {
			return coder, true
		}
	}
	return Coder{}, false
}

// CoderIDs returns roster IDs in configured order.
func (c *Codebook) CoderIDs() []string {
	ids := make([]string, len(c.Coders))
	for i, coder := range c.Coders {
		ids[i] = coder.ID
	}
	return ids
}

// CoderColumns maps each roster coder ID to its dataset column name.
func (c *Codebook) CoderColumns() map[string]string {
	columns := make(map[string]string, len(c.Coders))
	for _, coder := range c.Coders {
		columns[coder.ID] = Column(coder.ID)
	}
	return columns
}

// Column returns the dataset column name that stores coder id's labels.
func Column(coderID string) string {
	return "label_" + coderID
}
