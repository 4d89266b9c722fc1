package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// SaveTemplatePaths replaces templates.paths in the config file.
// This preserves comments and formatting in other sections by using yaml.Node.
func SaveTemplatePaths(configPath string, paths []string) error {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Content: make([]*yaml.Node, 0, len(paths))}
	for _, p := range paths {
		seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: p})
	}
	return setKey(configPath, []string{"templates", "paths"}, seq)
}

// AddTemplatePath appends path to the existing search paths unless it is
// already present, and saves. It reports whether the file changed.
func AddTemplatePath(configPath string, existing []string, path string) (bool, error) {
	if slices.Contains(existing, path) {
		return false, nil
	}
	updated := append(slices.Clone(existing), path)
	if err := SaveTemplatePaths(configPath, updated); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveTemplatePath drops path from the search paths and saves.
// It reports whether the path was present.
func RemoveTemplatePath(configPath string, existing []string, path string) (bool, error) {
	idx := slices.Index(existing, path)
	if idx < 0 {
		return false, nil
	}
	updated := slices.Delete(slices.Clone(existing), idx, idx+1)
	if err := SaveTemplatePaths(configPath, updated); err != nil {
		return false, err
	}
	return true, nil
}

// setKey sets the value at a nested mapping key path, creating mappings as
// needed, and writes the file atomically.
func setKey(configPath string, keys []string, value *yaml.Node) error {
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	// Parse into yaml.Node to preserve comments
	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	if doc.Kind == 0 {
		// Empty or new file - create document structure
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("parsing config: top level is not a mapping")
	}

	node := doc.Content[0]
	for i, key := range keys {
		last := i == len(keys)-1
		child := lookup(node, key)
		switch {
		case last && child != nil:
			*child = *value
		case last:
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, value)
		case child == nil:
			child = &yaml.Node{Kind: yaml.MappingNode}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, child)
		case child.Kind != yaml.MappingNode:
			// A scalar or null placeholder such as "templates:" becomes a mapping.
			*child = yaml.Node{Kind: yaml.MappingNode}
		}
		node = child
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	return writeAtomic(configPath, buf.Bytes())
}

// lookup returns the value node for key in a mapping node, or nil.
func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i < len(mapping.Content)-1; i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// writeAtomic writes to a temp file in the target directory, then renames.
func writeAtomic(configPath string, data []byte) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".progest.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}
