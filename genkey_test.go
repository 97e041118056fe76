package gpgkit

import (
	"strings"
	"testing"
)

func TestGenKeyInput_Defaults(t *testing.T) {
	// WHY: Unattended generation needs a complete control block; missing parameters get defaults and Key-Type must come first.
	t.Setenv("LOGNAME", "test user")
	got := genKeyInput(nil, false)

	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	if lines[0] != "Key-Type: RSA" {
		t.Errorf("first line = %q, want Key-Type: RSA", lines[0])
	}
	if lines[len(lines)-1] != "%commit" {
		t.Errorf("last line = %q, want %%commit", lines[len(lines)-1])
	}
	for _, want := range []string{
		"Key-Length: 2048\n",
		"Name-Real: Autogenerated Key\n",
		"Name-Comment: Generated by gpgkit\n",
		"Name-Email: test_user@",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("control block missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "%no-protection") {
		t.Error("legacy gpg control block contains %no-protection")
	}
}

func TestGenKeyInput_NormalizesNames(t *testing.T) {
	// WHY: Callers may use attribute-style or mixed-case names; gpg only accepts its own Title-Case hyphenated spelling.
	t.Parallel()
	got := genKeyInput(map[string]string{
		"key_type":     "DSA",
		"NAME_EMAIL":   "alice@example.com",
		"subkey-type":  "ELG-E",
		"name_comment": "  ",
		"passphrase":   "secret",
	}, true)

	want := "Key-Type: DSA\n" +
		"Key-Length: 2048\n" +
		"Name-Comment: Generated by gpgkit\n" +
		"Name-Email: alice@example.com\n" +
		"Name-Real: Autogenerated Key\n" +
		"Passphrase: secret\n" +
		"Subkey-Type: ELG-E\n" +
		"%commit\n"
	if got != want {
		t.Errorf("genKeyInput =\n%s\nwant\n%s", got, want)
	}
}

func TestGenKeyInput_NoProtectionOnModernGPG(t *testing.T) {
	// WHY: gpg 2.1+ prompts for a passphrase unless told the key is unprotected, which would hang a batch run.
	t.Parallel()
	got := genKeyInput(map[string]string{"name_email": "bob@example.com"}, true)
	if !strings.HasSuffix(got, "%no-protection\n%commit\n") {
		t.Errorf("control block does not end with %%no-protection, %%commit:\n%s", got)
	}
}

func TestTitleCase(t *testing.T) {
	// WHY: Parameter names are case-normalized per hyphenated word.
	t.Parallel()
	tests := map[string]string{
		"name-email":  "Name-Email",
		"KEY-LENGTH":  "Key-Length",
		"expire-date": "Expire-Date",
		"-odd-":       "-Odd-",
	}
	for in, want := range tests {
		if got := titleCase(in); got != want {
			t.Errorf("titleCase(%q) = %q, want %q", in, got, want)
		}
	}
}
