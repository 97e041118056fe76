package internal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/99designs/keyring"
)

func TestPassphraseSource_FromFile(t *testing.T) {
	// WHY: Automation passes passphrases in files; only the line terminator may be stripped since spaces can be part of the secret.
	t.Parallel()
	path := filepath.Join(t.TempDir(), "pass.txt")
	if err := os.WriteFile(path, []byte(" spaced secret \r\nsecond line\n"), 0o600); err != nil {
		t.Fatalf("write passphrase file: %v", err)
	}

	got, err := PassphraseSource{File: path}.Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != " spaced secret " {
		t.Errorf("Resolve = %q, want %q", got, " spaced secret ")
	}
}

func TestPassphraseSource_FileErrors(t *testing.T) {
	// WHY: A missing or blank passphrase file must fail loudly; an empty passphrase would make gpg prompt or fail obscurely.
	t.Parallel()
	_, err := PassphraseSource{File: "/nonexistent/pass.txt"}.Resolve("")
	if err == nil || !strings.Contains(err.Error(), "loading passphrase from file") {
		t.Errorf("missing file: error = %v", err)
	}

	blank := filepath.Join(t.TempDir(), "blank.txt")
	if err := os.WriteFile(blank, []byte("\nsecret\n"), 0o600); err != nil {
		t.Fatalf("write passphrase file: %v", err)
	}
	if _, err := (PassphraseSource{File: blank}).Resolve(""); err == nil {
		t.Error("blank first line: Resolve succeeded, want error")
	}
}

func TestPassphraseSource_FromEnv(t *testing.T) {
	// WHY: The environment source must distinguish an unset variable from a set one.
	t.Setenv("GPGKIT_TEST_PASS", "from-env")

	got, err := PassphraseSource{Env: "GPGKIT_TEST_PASS"}.Resolve("")
	if err != nil || got != "from-env" {
		t.Errorf("Resolve = %q, %v, want from-env", got, err)
	}
	if _, err := (PassphraseSource{Env: "GPGKIT_TEST_UNSET_VAR"}).Resolve(""); err == nil {
		t.Error("unset variable: Resolve succeeded, want error")
	}
}

func TestPassphraseSource_FromKeyring(t *testing.T) {
	// WHY: Passphrases stored in the OS secret store are looked up under the gpgkit service by item name.
	t.Parallel()
	var openedService string
	ring := keyring.NewArrayKeyring([]keyring.Item{{Key: "signing", Data: []byte("ring-secret")}})
	src := PassphraseSource{
		Keyring: "signing",
		OpenKeyring: func(service string) (keyring.Keyring, error) {
			openedService = service
			return ring, nil
		},
	}

	got, err := src.Resolve("")
	if err != nil || got != "ring-secret" {
		t.Errorf("Resolve = %q, %v, want ring-secret", got, err)
	}
	if openedService != KeyringService {
		t.Errorf("opened service %q, want %q", openedService, KeyringService)
	}

	src.Keyring = "missing"
	if _, err := src.Resolve(""); !errors.Is(err, keyring.ErrKeyNotFound) {
		t.Errorf("missing item: error = %v, want keyring.ErrKeyNotFound", err)
	}
}

func TestPassphraseSource_Precedence(t *testing.T) {
	// WHY: With several sources configured the file wins, so scripted runs are deterministic.
	t.Parallel()
	path := filepath.Join(t.TempDir(), "pass.txt")
	if err := os.WriteFile(path, []byte("file-wins\n"), 0o600); err != nil {
		t.Fatalf("write passphrase file: %v", err)
	}
	got, err := PassphraseSource{File: path, Env: "GPGKIT_TEST_UNSET_VAR", Prompt: true}.Resolve("")
	if err != nil || got != "file-wins" {
		t.Errorf("Resolve = %q, %v, want file-wins", got, err)
	}
}

func TestPassphraseSource_NoSource(t *testing.T) {
	// WHY: Commands that do not need a passphrase call Resolve unconditionally; no source means no passphrase.
	t.Parallel()
	got, err := PassphraseSource{}.Resolve("Passphrase: ")
	if err != nil || got != "" {
		t.Errorf("Resolve = %q, %v, want empty", got, err)
	}
}

func TestPassphraseSource_PromptNeedsTerminal(t *testing.T) {
	// WHY: Prompting on a pipe would read payload bytes as the passphrase; it must be refused.
	t.Parallel()
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()

	_, err = PassphraseSource{Prompt: true, Terminal: f}.Resolve("Passphrase: ")
	if !errors.Is(err, ErrNoTerminal) {
		t.Errorf("Resolve error = %v, want ErrNoTerminal", err)
	}
}
