package util

import (
	"encoding/json"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType string // "array" or "object"
	}{
		{
			name:     "plain object",
			input:    `{"title": "The Hollow Crown"}`,
			wantType: "object",
		},
		{
			name:     "object in markdown fence",
			input:    "```json\n{\"title\": \"The Hollow Crown\"}\n```",
			wantType: "object",
		},
		{
			name:     "object with prose around it",
			input:    `Here is your campaign outline: {"title": "The Hollow Crown", "acts": []} Hope you like it!`,
			wantType: "object",
		},
		{
			name:     "plain array",
			input:    `["forest", "ruin", "harbor"]`,
			wantType: "array",
		},
		{
			name:     "array in markdown fence",
			input:    "```\n[\"forest\", \"ruin\", \"harbor\"]\n```",
			wantType: "array",
		},
		{
			name:     "truncated array",
			input:    `["forest", "ruin", "harbor"`,
			wantType: "array",
		},
		{
			name:     "truncated array with trailing comma",
			input:    `["forest", "ruin",`,
			wantType: "array",
		},
		{
			name:     "nested object",
			input:    `{"acts": [{"number": 1, "title": "Arrival"}], "title": "X"}`,
			wantType: "object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSON(tt.input)
			if len(got) == 0 {
				t.Fatal("ExtractJSON() returned empty string")
			}

			if tt.wantType == "array" {
				var arr []interface{}
				if err := json.Unmarshal([]byte(got), &arr); err != nil {
					t.Errorf("ExtractJSON() produced invalid array JSON: %v\nGot: %s", err, got)
				}
			} else {
				var obj map[string]interface{}
				if err := json.Unmarshal([]byte(got), &obj); err != nil {
					t.Errorf("ExtractJSON() produced invalid object JSON: %v\nGot: %s", err, got)
				}
			}
		})
	}
}

func TestExtractJSONTruncatedObject(t *testing.T) {
	// A truncated object needs RepairJSON to become parseable; extraction
	// alone should at least locate the object start.
	input := `{"title": "The Hollow Crown", "acts": [{"number": 1`
	got := RepairJSON(ExtractJSON(input))

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(got), &obj); err != nil {
		t.Fatalf("extract+repair produced invalid JSON: %v\nGot: %s", err, got)
	}
	if obj["title"] != "The Hollow Crown" {
		t.Errorf("title = %v, want The Hollow Crown", obj["title"])
	}
}

func TestSanitizeJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "literal newline in string",
			input: "{\"summary\": \"line one\nline two\"}",
			want:  `{"summary": "line one\nline two"}`,
		},
		{
			name:  "crlf in string",
			input: "{\"summary\": \"line one\r\nline two\"}",
			want:  `{"summary": "line one\nline two"}`,
		},
		{
			name:  "newline outside string untouched",
			input: "{\n\"key\": \"value\"\n}",
			want:  "{\n\"key\": \"value\"\n}",
		},
		{
			name:  "already escaped newline untouched",
			input: `{"summary": "line one\nline two"}`,
			want:  `{"summary": "line one\nline two"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeJSON(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeJSON() = %q, want %q", got, tt.want)
			}
			if !json.Valid([]byte(got)) {
				t.Errorf("SanitizeJSON() produced invalid JSON: %s", got)
			}
		})
	}
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "trailing comma in object",
			input: `{"title": "X", "themes": ["a", "b"],}`,
		},
		{
			name:  "trailing comma in array",
			input: `{"themes": ["a", "b",]}`,
		},
		{
			name:  "unquoted keys",
			input: `{title: "X", core_concept: "Y"}`,
		},
		{
			name:  "missing comma between quoted strings",
			input: "{\"themes\": [\"betrayal\"\n\"redemption\"]}",
		},
		{
			name:  "missing comma between objects",
			input: "{\"acts\": [{\"number\": 1}\n{\"number\": 2}]}",
		},
		{
			name:  "missing comma after array before key",
			input: "{\"themes\": [\"a\"]\n\"title\": \"X\"}",
		},
		{
			name:  "unclosed braces",
			input: `{"title": "X", "acts": [{"number": 1`,
		},
		{
			name:  "combined malformations",
			input: "{title: \"X\", \"themes\": [\"a\", \"b\",]\n\"acts\": [{\"number\": 1}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RepairJSON(tt.input)
			var obj map[string]interface{}
			if err := json.Unmarshal([]byte(got), &obj); err != nil {
				t.Errorf("RepairJSON() output does not parse: %v\nGot: %s", err, got)
			}
		})
	}
}

func TestRepairJSONPreservesValid(t *testing.T) {
	input := `{"title": "The Hollow Crown", "estimated_sessions": 12}`
	got := RepairJSON(input)

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(got), &obj); err != nil {
		t.Fatalf("RepairJSON() broke valid JSON: %v", err)
	}
	if obj["title"] != "The Hollow Crown" {
		t.Errorf("title = %v", obj["title"])
	}
	if obj["estimated_sessions"] != float64(12) {
		t.Errorf("estimated_sessions = %v", obj["estimated_sessions"])
	}
}
