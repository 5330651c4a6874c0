package util

import (
	"regexp"
	"strings"
)

// Heuristic repair patterns, applied in order. Each targets a malformation
// that shows up repeatedly in model JSON output.
var (
	trailingCommaRegex  = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKeyRegex    = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	adjacentStringRegex = regexp.MustCompile(`"\s*\n\s*"`)
	adjacentObjectRegex = regexp.MustCompile(`}\s*\n\s*{`)
	arrayThenKeyRegex   = regexp.MustCompile(`]\s*\n\s*"`)
)

// RepairJSON applies heuristic fixes to near-JSON model output: trailing
// commas, unquoted keys, missing commas between adjacent values, and
// unbalanced braces or brackets. It does not guarantee valid JSON; callers
// should unmarshal and fall back on failure.
func RepairJSON(s string) string {
	s = strings.TrimSpace(s)

	s = trailingCommaRegex.ReplaceAllString(s, "$1")
	s = unquotedKeyRegex.ReplaceAllString(s, `$1"$2":`)
	s = adjacentStringRegex.ReplaceAllString(s, "\",\n\"")
	s = adjacentObjectRegex.ReplaceAllString(s, "},\n{")
	s = arrayThenKeyRegex.ReplaceAllString(s, "],\n\"")

	return balanceBrackets(s)
}

// balanceBrackets appends the closing braces and brackets a truncated
// structure is missing, in reverse nesting order.
func balanceBrackets(s string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

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

		if inString {
			continue
		}

		switch ch {
		case '{', '[':
			stack = append(stack, ch)
		case '}':
			if len(stack) > 0 && stack[len(stack)-1] == '{' {
				stack = stack[:len(stack)-1]
			}
		case ']':
			if len(stack) > 0 && stack[len(stack)-1] == '[' {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if len(stack) == 0 {
		return s
	}

	// An unterminated string has to be closed before any brackets
	if inString {
		s += "\""
	}
	s = strings.TrimRight(s, " \n\t,")

	var closers strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			closers.WriteByte('}')
		} else {
			closers.WriteByte(']')
		}
	}

	return s + closers.String()
}
