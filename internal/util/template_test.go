package util

import (
	"strings"
	"testing"
)

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name    string
		tmpl    string
		data    map[string]interface{}
		want    string
		wantErr bool
	}{
		{
			name: "simple substitution",
			tmpl: "Create a campaign about {{.Request}}.",
			data: map[string]interface{}{"Request": "a cursed lighthouse"},
			want: "Create a campaign about a cursed lighthouse.",
		},
		{
			name: "multiple fields",
			tmpl: "Title: {{.Title}}, Acts: {{.ActCount}}",
			data: map[string]interface{}{"Title": "X", "ActCount": 3},
			want: "Title: X, Acts: 3",
		},
		{
			name:    "missing key fails",
			tmpl:    "{{.Missing}}",
			data:    map[string]interface{}{"Request": "x"},
			wantErr: true,
		},
		{
			name:    "forbidden call directive",
			tmpl:    "{{call .Fn}}",
			data:    map[string]interface{}{},
			wantErr: true,
		},
		{
			name:    "forbidden template directive",
			tmpl:    `{{template "other"}}`,
			data:    map[string]interface{}{},
			wantErr: true,
		},
		{
			name:    "malformed template",
			tmpl:    "{{.Request",
			data:    map[string]interface{}{"Request": "x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderTemplate(tt.tmpl, tt.data)
			if tt.wantErr {
				if err == nil {
					t.Errorf("RenderTemplate() expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("RenderTemplate() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("RenderTemplate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"shorter than max", "hello", 10, "hello"},
		{"exact length", "hello", 5, "hello"},
		{"truncated", "hello world", 5, "hello..."},
		{"multibyte safe", "héllo wörld", 5, "héllo..."},
		{"empty", "", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateString(tt.input, tt.maxLen)
			if got != tt.want {
				t.Errorf("TruncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "The Hollow Crown", "the_hollow_crown"},
		{"punctuation stripped", "Shadows & Embers: Act I!", "shadows__embers_act_i"},
		{"digits kept", "Campaign 2", "campaign_2"},
		{"whitespace trimmed", "  Drift  ", "drift"},
		{"all invalid", "!!!", "untitled_campaign"},
		{"empty", "", "untitled_campaign"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeTitle(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeTitle(%q) = %q, want %q", tt.input, got, tt.want)
			}
			for _, r := range got {
				if !strings.ContainsRune("abcdefghijklmnopqrstuvwxyz0123456789_", r) {
					t.Errorf("SanitizeTitle(%q) contains invalid rune %q", tt.input, r)
				}
			}
		})
	}
}

func TestStripThinkTags(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "no tags",
			input: "The campaign opens at dusk.",
			want:  "The campaign opens at dusk.",
		},
		{
			name:  "think tag removed",
			input: "<think>planning the acts</think>The campaign opens at dusk.",
			want:  "The campaign opens at dusk.",
		},
		{
			name:  "thinking variant",
			input: "<thinking>hmm</thinking>\n\nFinal answer.",
			want:  "Final answer.",
		},
		{
			name:  "case insensitive",
			input: "<THINK>x</THINK>answer",
			want:  "answer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripThinkTags(tt.input); got != tt.want {
				t.Errorf("StripThinkTags() = %q, want %q", got, tt.want)
			}
		})
	}
}
