package auth

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestHashKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "key with whitespace trimmed",
			input:    "  test-api-key  ",
			expected: HashKey("test-api-key"),
		},
		{
			name:     "empty string",
			input:    "",
			expected: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", // SHA256 of empty
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := HashKey(tt.input)
			if len(result) != 64 {
				t.Errorf("HashKey() returned %d chars, want 64", len(result))
			}
			if result != tt.expected {
				t.Errorf("HashKey(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	fp := Fingerprint("bd_secret")
	if len(fp) != 12 {
		t.Errorf("expected 12 chars, got %q", fp)
	}
	if strings.Contains(fp, "secret") {
		t.Error("fingerprint must not contain the token")
	}
}

func TestGenerate(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	b, _ := Generate()

	if !strings.HasPrefix(a, "bd_") || len(a) != len("bd_")+64 {
		t.Errorf("unexpected token format: %q", a)
	}
	if a == b {
		t.Error("expected distinct tokens")
	}
}

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backdesk", "token")

	if _, err := Load(path); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected ErrNotExist before creation, got %v", err)
	}

	created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("token file not written: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0o600 {
		t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
	}

	again, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}
	if again != created {
		t.Errorf("expected stored token %q, got %q", created, again)
	}
}

func TestLoad_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for empty token file")
	}
}
