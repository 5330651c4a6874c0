package util

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// RenderTemplate renders a prompt template with the given data. Templates come
// from user config, so directives that could execute arbitrary template logic
// are rejected.
func RenderTemplate(tmpl string, data map[string]interface{}) (string, error) {
	forbiddenDirectives := []string{"{{call", "{{define", "{{template", "{{block"}
	for _, directive := range forbiddenDirectives {
		if strings.Contains(tmpl, directive) {
			return "", fmt.Errorf("template contains forbidden directive: %s", directive)
		}
	}

	t, err := template.New("prompt").
		Option("missingkey=error").
		Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// TruncateString truncates s to maxLen runes, appending an ellipsis when
// anything was cut.
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// SanitizeTitle converts a campaign title into a filesystem-safe name:
// lowercase, spaces to underscores, everything outside [a-z0-9_] dropped.
func SanitizeTitle(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = strings.ReplaceAll(s, " ", "_")

	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}

	if b.Len() == 0 {
		return "untitled_campaign"
	}
	return b.String()
}
