package app

import (
	"testing"
	"time"
)

func TestEnvString(t *testing.T) {
	t.Setenv("NEPDORA_TEST_STR", "  hello  ")
	if got := EnvString("NEPDORA_TEST_STR", "def"); got != "hello" {
		t.Fatalf("EnvString = %q, want trimmed value", got)
	}

	t.Setenv("NEPDORA_TEST_STR", "   ")
	if got := EnvString("NEPDORA_TEST_STR", "def"); got != "def" {
		t.Fatalf("EnvString blank = %q, want default", got)
	}
}

func TestEnvBool(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"false", true, false},
		{"", true, true},
		{"not-a-bool", true, true},
	}
	for _, tt := range tests {
		t.Setenv("NEPDORA_TEST_BOOL", tt.value)
		if got := EnvBool("NEPDORA_TEST_BOOL", tt.def); got != tt.want {
			t.Fatalf("EnvBool(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestEnvInt(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"8080", 8080},
		{"", 42},
		{"0", 42},
		{"-3", 42},
		{"nope", 42},
	}
	for _, tt := range tests {
		t.Setenv("NEPDORA_TEST_INT", tt.value)
		if got := EnvInt("NEPDORA_TEST_INT", 42); got != tt.want {
			t.Fatalf("EnvInt(%q) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestEnvDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"45s", 45 * time.Second},
		{"2m", 2 * time.Minute},
		{"", 30 * time.Second},
		{"-5s", 30 * time.Second},
		{"soon", 30 * time.Second},
	}
	for _, tt := range tests {
		t.Setenv("NEPDORA_TEST_DUR", tt.value)
		if got := EnvDuration("NEPDORA_TEST_DUR", 30*time.Second); got != tt.want {
			t.Fatalf("EnvDuration(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
