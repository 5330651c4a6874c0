package util

import (
	"regexp"
	"strings"
)

var codeFenceRegex = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

// ExtractJSON pulls the JSON payload out of a model response that may wrap it
// in markdown code fences or surrounding prose. Handles both objects {} and
// arrays [], and closes truncated arrays when the content allows it.
func ExtractJSON(s string) string {
	matches := codeFenceRegex.FindStringSubmatch(s)
	if len(matches) > 1 {
		s = strings.TrimSpace(matches[1])
	} else {
		s = strings.TrimSpace(s)
	}

	// Whichever structure opens first wins: stage responses are objects whose
	// bodies contain arrays, and the outer structure is the payload.
	objectStart := strings.Index(s, "{")
	arrayStart := strings.Index(s, "[")

	if objectStart != -1 && (arrayStart == -1 || objectStart < arrayStart) {
		objectEnd := findMatchingBracket(s, objectStart, '{', '}')
		if objectEnd != -1 {
			return s[objectStart : objectEnd+1]
		}
		// Truncated object, hand the tail to RepairJSON's brace balancing
		return strings.TrimRight(s[objectStart:], " \n\t,")
	}

	if arrayStart != -1 {
		arrayEnd := findMatchingBracket(s, arrayStart, '[', ']')
		if arrayEnd != -1 {
			return s[arrayStart : arrayEnd+1]
		}
		// Truncated array, close it if it has content
		lastQuote := strings.LastIndex(s, "\"")
		if lastQuote > arrayStart {
			trimmed := strings.TrimRight(s[arrayStart:], " \n\t,")
			return trimmed + "]"
		}
	}

	return s
}

// findMatchingBracket finds the matching closing bracket for the opening
// bracket at startPos, skipping brackets inside strings and escape sequences.
// Returns -1 if the structure is unbalanced.
func findMatchingBracket(s string, startPos int, openChar, closeChar rune) int {
	count := 0
	inString := false
	escaped := false

	for i := startPos; i < len(s); i++ {
		ch := rune(s[i])

		if escaped {
			escaped = false
			continue
		}

		if ch == '\\' {
			escaped = true
			continue
		}

		if ch == '"' {
			inString = !inString
			continue
		}

		if !inString {
			if ch == openChar {
				count++
			} else if ch == closeChar {
				count--
				if count == 0 {
					return i
				}
			}
		}
	}

	return -1
}

// SanitizeJSON escapes literal newlines inside string values. Models routinely
// emit multi-line narrative text inside JSON strings without escaping it.
func SanitizeJSON(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if escaped {
			result.WriteByte(ch)
			escaped = false
			continue
		}

		if ch == '\\' {
			result.WriteByte(ch)
			escaped = true
			continue
		}

		if ch == '"' {
			result.WriteByte(ch)
			inString = !inString
			continue
		}

		if inString && (ch == '\n' || ch == '\r') {
			result.WriteString("\\n")
			if ch == '\r' && i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
			continue
		}

		result.WriteByte(ch)
	}

	return result.String()
}
