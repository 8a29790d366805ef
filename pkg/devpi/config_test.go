package devpi

import (
	"testing"
	"time"

	"github.com/spf13/afero"

	apierr "github.com/devpi-tools/devpi-client/pkg/errors"
)

func TestLoadConfig(t *testing.T) {
	fsys := afero.NewMemMapFs()
	afero.WriteFile(fsys, "/etc/devpi.toml", []byte(`
base_url = "http://localhost:3141"
username = "root"
password = "secret"
timeout_seconds = 10.5
`), 0600)

	cfg, err := LoadConfig(fsys, "/etc/devpi.toml")
	if err != nil {
		t.Fatalf("LoadConfig() returned error: %v", err)
	}
	if cfg.BaseURL != "http://localhost:3141" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.Username != "root" || cfg.Password != "secret" {
		t.Errorf("credentials = (%q, %q)", cfg.Username, cfg.Password)
	}
	if want := 10500 * time.Millisecond; cfg.Timeout != want {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, want)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New(loaded config) returned error: %v", err)
	}
	c.Close()
}

func TestLoadConfigToken(t *testing.T) {
	fsys := afero.NewMemMapFs()
	afero.WriteFile(fsys, "/devpi.toml", []byte(`
base_url = "http://localhost:3141"
token = "devpi-abc"
`), 0600)

	cfg, err := LoadConfig(fsys, "/devpi.toml")
	if err != nil {
		t.Fatalf("LoadConfig() returned error: %v", err)
	}
	if cfg.Token != "devpi-abc" {
		t.Errorf("Token = %q", cfg.Token)
	}
	if cfg.Timeout != 0 {
		t.Errorf("Timeout = %v, want zero when unset", cfg.Timeout)
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	fsys := afero.NewMemMapFs()
	afero.WriteFile(fsys, "/devpi.toml", []byte(`base_url = [broken`), 0600)

	_, err := LoadConfig(fsys, "/devpi.toml")
	if !apierr.Is(err, apierr.CodeValidation) {
		t.Errorf("code = %q, want VALIDATION", apierr.GetCode(err))
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(afero.NewMemMapFs(), "/nope.toml")
	if err == nil {
		t.Fatal("LoadConfig() should fail for a missing file")
	}
	// filesystem failures pass through untranslated
	if code := apierr.GetCode(err); code != "" {
		t.Errorf("code = %q, want a plain filesystem error", code)
	}
}
