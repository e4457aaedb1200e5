package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("BACKEND_URL=https://dotenv.example\nADMIN_KEY=from-file\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("BACKEND_URL", "")
	t.Setenv("ADMIN_KEY", "from-env")
	// t.Setenv restores the old values; drop the empty one so the file can fill it
	_ = os.Unsetenv("BACKEND_URL")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	var c ServerConfig
	c.SetDefaults()
	c.ApplyEnv()
	if c.BackendURL != "https://dotenv.example" {
		t.Fatalf("backend url %q", c.BackendURL)
	}
	if c.AdminKey != "from-env" {
		t.Fatalf("existing env must win, got %q", c.AdminKey)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
}
