package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load decodes a configuration file, selecting the decoder by extension:
// .json uses encoding/json, .yaml/.yml use yaml.v3. Decoding alone does not
// validate; run ValidateFile over the result.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Decode(b, filepath.Ext(path))
}

// Decode parses raw bytes using the decoder matching ext.
func Decode(b []byte, ext string) (*File, error) {
	var f File
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("config: decode json: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("config: unsupported config extension %q (want .json, .yaml, or .yml)", ext)
	}
	return &f, nil
}
