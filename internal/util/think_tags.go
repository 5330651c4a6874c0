package util

import (
	"regexp"
	"strings"
)

// Reasoning models wrap chain-of-thought in think tags. Narrative output must
// not include them.
var thinkTagRegex = regexp.MustCompile(`(?i)<think(?:ing)?>([\s\S]*?)</think(?:ing)?>`)

// ContainsThinkTags reports whether the response carries reasoning tags.
func ContainsThinkTags(response string) bool {
	return thinkTagRegex.MatchString(response)
}

// StripThinkTags removes reasoning tags and their content, leaving the answer.
func StripThinkTags(response string) string {
	result := thinkTagRegex.ReplaceAllString(response, "")
	return strings.TrimSpace(result)
}
