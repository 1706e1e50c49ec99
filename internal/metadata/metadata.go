// Package metadata reads the document describing the viewer's filter
// categories and their selectable values.
package metadata

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-poi/internal/filter"
)

// Value is one selectable value of a category.
type Value struct {
	Value string `yaml:"value" json:"value" doc:"Value matched against the feature attribute" example:"Seating"`
	Label string `yaml:"label,omitempty" json:"label" doc:"Button label" example:"🪑 Seating"`
}

// Category describes one filter category.
type Category struct {
	ID        string        `yaml:"id" json:"id" doc:"Category identifier" example:"amenities"`
	Label     string        `yaml:"label,omitempty" json:"label" doc:"Human label" example:"Amenities"`
	Attribute string        `yaml:"attribute,omitempty" json:"attribute" doc:"Feature attribute tested by this category" example:"amenities"`
	Policy    filter.Policy `yaml:"policy" json:"policy" enum:"any,all" doc:"Combination policy of selected values" example:"all"`
	Values    []Value       `yaml:"values" json:"values" doc:"Selectable values"`
}

// Document is the metadata document.
type Document struct {
	Title      string     `yaml:"title,omitempty" json:"title"`
	Categories []Category `yaml:"categories" json:"categories"`
}

// Parse decodes a metadata document. YAML and JSON are both accepted.
func Parse(r io.Reader) (Document, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return Document{}, nil
		}
		return Document{}, fmt.Errorf("decoding metadata: %w", err)
	}
	if err := doc.normalize(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Load reads the metadata document at path.
func Load(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, err
	}
	defer f.Close()
	return Parse(f)
}

// Write encodes the document as YAML.
func Write(w io.Writer, doc Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func (d *Document) normalize() error {
	seen := make(map[string]bool, len(d.Categories))
	for i := range d.Categories {
		c := &d.Categories[i]
		if c.ID == "" {
			return fmt.Errorf("metadata: category %d has no id", i)
		}
		if seen[c.ID] {
			return fmt.Errorf("metadata: duplicate category %q", c.ID)
		}
		seen[c.ID] = true

		if c.Policy == "" {
			c.Policy = filter.Any
		}
		p, err := filter.ParsePolicy(string(c.Policy))
		if err != nil {
			return fmt.Errorf("metadata: category %q: %w", c.ID, err)
		}
		c.Policy = p

		if c.Attribute == "" {
			c.Attribute = c.ID
		}
		if c.Label == "" {
			c.Label = c.ID
		}
		for j := range c.Values {
			if c.Values[j].Label == "" {
				c.Values[j].Label = c.Values[j].Value
			}
		}
	}
	return nil
}

// Definitions returns the filter definitions in document order.
func (d Document) Definitions() []filter.Definition {
	defs := make([]filter.Definition, 0, len(d.Categories))
	for _, c := range d.Categories {
		defs = append(defs, filter.Definition{
			ID:        c.ID,
			Attribute: c.Attribute,
			Policy:    c.Policy,
		})
	}
	return defs
}

// Category returns the category with id.
func (d Document) Category(id string) (Category, bool) {
	for _, c := range d.Categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}
