package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toJSON routes the raw config bytes through a single strict decode path:
// files with a .yaml/.yml extension are converted to JSON first, anything
// else is treated as JSON already. Keeping one decoder means unknown keys
// are rejected in both formats.
func toJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	b, err := json.Marshal(stringifyKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("%s: converting to json: %w", filepath.Base(path), err)
	}
	return b, nil
}

// stringifyKeys rewrites YAML's map[any]any nodes into map[string]any so
// the document survives json.Marshal.
func stringifyKeys(node any) any {
	switch n := node.(type) {
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, v := range n {
			out[fmt.Sprint(k)] = stringifyKeys(v)
		}
		return out
	case map[string]any:
		for k, v := range n {
			n[k] = stringifyKeys(v)
		}
		return n
	case []any:
		for i, v := range n {
			n[i] = stringifyKeys(v)
		}
		return n
	}
	return node
}
