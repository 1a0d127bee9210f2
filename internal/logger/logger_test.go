package logger

import (
	"strings"
	"testing"
)

func TestSanitizeKVs(t *testing.T) {
	kv := sanitizeKVs([]interface{}{
		"api_key", "sk-123",
		"learner", "ada",
		"percent", 42,
		"dangling",
	})

	if len(kv) != 7 {
		t.Fatalf("expected 7 entries, got %d: %v", len(kv), kv)
	}
	if kv[1] != "[REDACTED]" {
		t.Errorf("api_key not redacted: %v", kv[1])
	}
	if s, ok := kv[3].(string); !ok || !strings.HasPrefix(s, "hash:") {
		t.Errorf("learner not hashed: %v", kv[3])
	}
	if kv[5] != 42 {
		t.Errorf("percent changed: %v", kv[5])
	}
	if kv[6] != "dangling" {
		t.Errorf("odd trailing key dropped: %v", kv)
	}
}

func TestHashValue_Stable(t *testing.T) {
	a := hashValue("ada")
	b := hashValue("ada")
	if a != b {
		t.Fatalf("hash not stable: %q vs %q", a, b)
	}
	if hashValue("") != "" {
		t.Fatal("empty value should hash to empty string")
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.With("component", "test").Info("hello", "k", "v")
}
