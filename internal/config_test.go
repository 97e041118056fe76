package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/sensiblebit/gpgkit"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileConfig(t *testing.T) {
	// WHY: Every documented key must land in its field, and the file must convert to the library config without losing settings.
	t.Parallel()
	path := writeConfig(t, `binary: /usr/bin/gpg2
homedir: /srv/gnupg
pubring: pubring.kbx
useAgent: true
options:
  - --no-emit-version
  - --throw-keyids
keyserver: hkps://keys.example.com
catalog: /var/lib/gpgkit/catalog.db
`)

	cfg, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig: %v", err)
	}

	want := gpgkit.Config{
		Binary:   "/usr/bin/gpg2",
		Home:     "/srv/gnupg",
		Keyring:  "pubring.kbx",
		UseAgent: true,
		Options:  []string{"--no-emit-version", "--throw-keyids"},
	}
	if diff := cmp.Diff(want, cfg.GPGConfig(nil), cmpopts.IgnoreFields(gpgkit.Config{}, "Logger")); diff != "" {
		t.Errorf("GPGConfig mismatch (-want +got):\n%s", diff)
	}
	if cfg.Keyserver != "hkps://keys.example.com" || cfg.Catalog != "/var/lib/gpgkit/catalog.db" {
		t.Errorf("Keyserver, Catalog = %q, %q", cfg.Keyserver, cfg.Catalog)
	}
}

func TestLoadFileConfig_RejectsUnknownKeys(t *testing.T) {
	// WHY: A misspelled key such as "homdir" would otherwise be ignored and gpg would run against the wrong keyring.
	t.Parallel()
	path := writeConfig(t, "homdir: /srv/gnupg\n")
	_, err := LoadFileConfig(path)
	if err == nil || !strings.Contains(err.Error(), "parsing config") {
		t.Errorf("LoadFileConfig error = %v, want parse error", err)
	}
}

func TestLoadFileConfig_EmptyInputs(t *testing.T) {
	// WHY: Running without a config file, or with an empty one, must yield defaults rather than an error.
	t.Parallel()
	cfg, err := LoadFileConfig("")
	if err != nil || cfg.Binary != "" {
		t.Errorf("LoadFileConfig(\"\") = %+v, %v", cfg, err)
	}
	cfg, err = LoadFileConfig(writeConfig(t, ""))
	if err != nil || cfg.Homedir != "" {
		t.Errorf("LoadFileConfig(empty file) = %+v, %v", cfg, err)
	}
	if _, err := LoadFileConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFileConfig(missing) succeeded, want error")
	}
}

func TestExpandHome(t *testing.T) {
	// WHY: Config paths are commonly written with ~; gpg would treat it as a literal directory name.
	t.Parallel()
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	tests := []struct {
		in   string
		want string
	}{
		{"~/.gnupg", filepath.Join(home, ".gnupg")},
		{"~", home},
		{"/abs/path", "/abs/path"},
		{"rel/~/x", "rel/~/x"},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := ExpandHome(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, %v, want %q", tt.in, got, err, tt.want)
		}
	}
}
