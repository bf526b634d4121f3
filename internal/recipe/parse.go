package recipe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes a recipe document. The format is chosen from the file
// extension: .yaml and .yml are YAML, everything else is JSON.
func Parse(filename string, data []byte) (Recipe, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Recipe{}, fmt.Errorf("recipe %s: document is empty", filename)
	}

	var rec Recipe
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &rec); err != nil {
			return Recipe{}, fmt.Errorf("failed to decode recipe %s: %w", filename, err)
		}
	default:
		if err := json.Unmarshal(data, &rec); err != nil {
			return Recipe{}, fmt.Errorf("failed to decode recipe %s: %w", filename, err)
		}
	}

	if err := rec.Validate(); err != nil {
		return Recipe{}, fmt.Errorf("invalid recipe %s: %w", filename, err)
	}
	return rec, nil
}
