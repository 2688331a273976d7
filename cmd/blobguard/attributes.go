package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseAttributeFlags turns repeated key=value flags into a map.
func parseAttributeFlags(values []string) (map[string]string, error) {
	attrs := map[string]string{}
	for _, raw := range values {
		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid attribute %q: expected key=value", raw)
		}
		attrs[key] = value
	}
	return attrs, nil
}

// loadAttributesFile reads a flat YAML mapping of attribute names to scalar values.
func loadAttributesFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attributes file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse attributes file %s: %w", path, err)
	}
	attrs := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
			attrs[key] = ""
		case map[string]any, []any:
			return nil, fmt.Errorf("attribute %q in %s must be a scalar", key, path)
		default:
			attrs[key] = fmt.Sprint(v)
		}
	}
	return attrs, nil
}

// collectAttributes merges the attributes file with flags; flags win.
func collectAttributes(file string, flags []string) (map[string]string, error) {
	attrs := map[string]string{}
	if file != "" {
		fromFile, err := loadAttributesFile(file)
		if err != nil {
			return nil, err
		}
		for k, v := range fromFile {
			attrs[k] = v
		}
	}
	fromFlags, err := parseAttributeFlags(flags)
	if err != nil {
		return nil, err
	}
	for k, v := range fromFlags {
		attrs[k] = v
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	return attrs, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
