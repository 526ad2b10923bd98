package catalog

import (
	"bytes"
	"fmt"
	"os"

	"github.com/dunamismax/styleflow/internal/domain"
	"gopkg.in/yaml.v3"
)

type fileFormat struct {
	Styles []domain.StylePreset `yaml:"styles"`
}

// LoadFile reads a YAML catalog of the form
//
//	styles:
//	  - id: van-gogh
//	    name: Van Gogh
//	    ...
//
// An empty path yields the built-in catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var doc fileFormat
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(doc.Styles)
}
