package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Port != 110 {
		t.Errorf("expected port 110, got %d", cfg.Port)
	}
	if cfg.Timeout != "30s" {
		t.Errorf("expected timeout '30s', got %q", cfg.Timeout)
	}
	if cfg.AuthMethod != "auto" {
		t.Errorf("expected auth_method 'auto', got %q", cfg.AuthMethod)
	}
	if cfg.TLSVersion != "1.2" {
		t.Errorf("expected tls_version '1.2', got %q", cfg.TLSVersion)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load of missing file should not error, got: %v", err)
	}
	if cfg != Default() {
		t.Errorf("expected defaults for a missing config file, got: %+v", cfg)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pop3tool.toml")
	body := `
host = "mail.example.com"
port = 995
pop3s = true
username = "alice"
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host != "mail.example.com" {
		t.Errorf("expected host from file, got %q", cfg.Host)
	}
	if cfg.Port != 995 {
		t.Errorf("expected port 995, got %d", cfg.Port)
	}
	if !cfg.POP3S {
		t.Error("expected pop3s true")
	}
	if cfg.Username != "alice" {
		t.Errorf("expected username 'alice', got %q", cfg.Username)
	}
	// Fields absent from the file keep the default value.
	if cfg.AuthMethod != "auto" {
		t.Errorf("expected auth_method to keep default 'auto', got %q", cfg.AuthMethod)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("expected max_retries to keep default 3, got %d", cfg.MaxRetries)
	}
}

func TestValidateRejectsBadDurations(t *testing.T) {
	cfg := Default()
	cfg.Timeout = "not-a-duration"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid timeout")
	}

	cfg = Default()
	cfg.RetryDelay = "nope"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid retry_delay")
	}
}

func TestValidateRejectsConflictingTLSOptions(t *testing.T) {
	cfg := Default()
	cfg.POP3S = true
	cfg.StartTLS = true
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when pop3s and starttls are both set")
	}
}
