package tools

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadCatalogue reads tool description overrides from a YAML file:
//
//	tools:
//	  - name: wikipedia_search
//	    description: ...
func LoadCatalogue(path string) ([]CatalogueEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Tools []CatalogueEntry `yaml:"tools"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse tool catalogue %s: %w", path, err)
	}
	return doc.Tools, nil
}
