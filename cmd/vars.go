package cmd

import (
	"fmt"
	"maps"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseVars merges the values of a vars file with --var key=value pairs.
// Pairs win over the file.
func parseVars(file string, pairs []string) (map[string]string, error) {
	out := make(map[string]string)
	if file != "" {
		fromFile, err := readVarsFile(file)
		if err != nil {
			return nil, err
		}
		maps.Copy(out, fromFile)
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q: expected key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}

// readVarsFile reads a flat YAML (or JSON) mapping of variable values.
// Booleans and numbers are accepted and converted to their string form.
func readVarsFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is supplied by the user
	if err != nil {
		return nil, fmt.Errorf("failed to read vars file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse vars file %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		case int:
			out[k] = strconv.Itoa(val)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case nil:
			out[k] = ""
		default:
			return nil, fmt.Errorf("vars file %s: value of %s must be a scalar", path, k)
		}
	}
	return out, nil
}
