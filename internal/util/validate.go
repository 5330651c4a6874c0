package util

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseStringArray validates and unmarshals a JSON array of strings, filtering
// empty and whitespace-only elements. expectedMin of 0 disables the count
// check.
func ParseStringArray(jsonStr string, expectedMin int) ([]string, error) {
	trimmed := strings.TrimSpace(jsonStr)
	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return nil, fmt.Errorf("not a JSON array: missing brackets")
	}

	var items []string
	if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal strings: %w", err)
	}

	valid := make([]string, 0, len(items))
	for _, item := range items {
		if t := strings.TrimSpace(item); t != "" {
			valid = append(valid, t)
		}
	}

	if len(valid) < expectedMin {
		return nil, fmt.Errorf("insufficient elements: got %d, expected at least %d", len(valid), expectedMin)
	}

	return valid, nil
}

// DeduplicateStrings removes duplicates case-insensitively while preserving
// order and original casing.
func DeduplicateStrings(items []string) []string {
	seen := make(map[string]bool, len(items))
	unique := make([]string, 0, len(items))

	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		normalized := strings.ToLower(trimmed)
		if normalized == "" {
			continue
		}
		if !seen[normalized] {
			seen[normalized] = true
			unique = append(unique, trimmed)
		}
	}

	return unique
}
