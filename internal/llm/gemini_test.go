package llm

import (
	"testing"
)

func TestGeminiModelMapping(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"gemini-flash", "gemini-2.5-flash"},
		{"gemini-pro", "gemini-2.5-pro"},
		{"gemini-2.5-flash-lite", "gemini-2.5-flash-lite"},
	}
	for _, tt := range tests {
		if got := resolveModel(tt.input, geminiModels); got != tt.expected {
			t.Errorf("resolveModel(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestBuildGeminiSchema(t *testing.T) {
	def := evaluationSchema().Definition
	def["properties"].(map[string]any)["tags"] = map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string", "enum": []any{"accurate", "partial", "off-topic"}},
	}

	schema := buildGeminiSchema(def)

	if schema.Type != "OBJECT" {
		t.Fatalf("expected OBJECT type, got %s", schema.Type)
	}
	if len(schema.Properties) != 4 {
		t.Fatalf("expected 4 properties, got %d", len(schema.Properties))
	}
	if schema.Properties["score"].Type != "INTEGER" {
		t.Fatalf("expected INTEGER for score, got %s", schema.Properties["score"].Type)
	}
	if schema.Properties["correct"].Type != "BOOLEAN" {
		t.Fatalf("expected BOOLEAN for correct, got %s", schema.Properties["correct"].Type)
	}
	tags := schema.Properties["tags"]
	if tags.Type != "ARRAY" || tags.Items.Type != "STRING" || len(tags.Items.Enum) != 3 {
		t.Fatalf("tags = %+v", tags)
	}
	if len(schema.Required) != 3 {
		t.Fatalf("expected 3 required fields, got %d", len(schema.Required))
	}
}
