package waf

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadDocument reads and parses a policy document from a YAML or JSON
// file. The document is parsed only; call Compile to validate it and
// produce an evaluation-ready Policy.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %q: %w", path, err)
	}

	var doc Document
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse policy file %q: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse policy file %q: %w", path, err)
		}
	}

	return &doc, nil
}

// LoadPolicy reads, parses and compiles a policy document in one step.
func LoadPolicy(path string) (*Policy, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}
	return Compile(doc)
}
