package internal

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/sensiblebit/gpgkit"
)

func TestFormatAlgorithm(t *testing.T) {
	// WHY: Listings carry numeric algorithm IDs; unknown IDs must still render instead of disappearing.
	t.Parallel()
	tests := []struct {
		id   string
		want string
	}{
		{"1", "RSA"},
		{"17", "DSA"},
		{"22", "EdDSA"},
		{"18", "ECDH"},
		{"99", "algo 99"},
	}
	for _, tt := range tests {
		if got := FormatAlgorithm(tt.id); got != tt.want {
			t.Errorf("FormatAlgorithm(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestFormatTime(t *testing.T) {
	// WHY: Keys without expiry have a nil time and must read "never", not a zero date.
	t.Parallel()
	if got := FormatTime(nil); got != "never" {
		t.Errorf("FormatTime(nil) = %q, want never", got)
	}
	ts := time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)
	if got := FormatTime(&ts); got != "2024-03-09" {
		t.Errorf("FormatTime = %q, want 2024-03-09", got)
	}
}

func TestFormatKeyList(t *testing.T) {
	// WHY: The list-keys command output must show fingerprint, uids with validity and subkeys for each key.
	t.Parallel()
	keys := []gpgkit.KeyInfo{{
		Type:        "pub",
		Trust:       "u",
		Length:      "3072",
		Algorithm:   "1",
		KeyID:       "0123456789ABCDEF",
		Date:        "1700000000",
		Fingerprint: "AAAABBBBCCCCDDDDEEEEFFFF0000111122223333",
		UIDs:        []string{"Alice <alice@example.com>"},
		Subkeys:     []gpgkit.Subkey{{KeyID: "FEDCBA9876543210", Algorithm: "1", Capabilities: "e"}},
	}}

	var buf bytes.Buffer
	if err := FormatKeyList(&buf, keys); err != nil {
		t.Fatalf("FormatKeyList: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"pub   RSA3072/0123456789ABCDEF 2023-11-14\n",
		"      AAAABBBBCCCCDDDDEEEEFFFF0000111122223333\n",
		"uid   [ultimate] Alice <alice@example.com>\n",
		"sub   RSA/FEDCBA9876543210 [E]\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "expires") {
		t.Errorf("key without expiry rendered an expiry:\n%s", out)
	}
}

func TestFormatImport(t *testing.T) {
	// WHY: Multi-line IMPORT_OK reasons must collapse onto the key's line, and the summary must follow.
	t.Parallel()
	r := &gpgkit.ImportResult{
		Results: []gpgkit.ImportStatus{
			{Fingerprint: "AAAA", OK: "3", Text: "Entirely new key\nNew user IDs\n"},
			{Fingerprint: "<unknown>", Problem: "1", Text: "Invalid Certificate"},
		},
	}
	r.Imported = 1
	r.NotImported = 1

	var buf bytes.Buffer
	if err := FormatImport(&buf, r); err != nil {
		t.Fatalf("FormatImport: %v", err)
	}
	want := "AAAA: Entirely new key, New user IDs\n<unknown>: Invalid Certificate\n1 imported, 1 not imported\n"
	if buf.String() != want {
		t.Errorf("FormatImport =\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestFormatVerification(t *testing.T) {
	// WHY: A failed verification must say why, and a good one must name the signer.
	t.Parallel()
	var good bytes.Buffer
	if err := FormatVerification(&good, gpgkit.Verification{
		Valid:     true,
		Username:  "Alice <alice@example.com>",
		KeyID:     "0123456789ABCDEF",
		Timestamp: "1700000000",
		TrustText: "TRUST_ULTIMATE",
	}); err != nil {
		t.Fatalf("FormatVerification: %v", err)
	}
	for _, want := range []string{`Good signature from "Alice <alice@example.com>"`, "2023-11-14T22:13:20Z", "TRUST_ULTIMATE"} {
		if !strings.Contains(good.String(), want) {
			t.Errorf("good output missing %q:\n%s", want, good.String())
		}
	}

	var bad bytes.Buffer
	if err := FormatVerification(&bad, gpgkit.Verification{Status: "signature bad"}); err != nil {
		t.Fatalf("FormatVerification: %v", err)
	}
	if !strings.HasPrefix(bad.String(), "Signature not valid: signature bad") {
		t.Errorf("bad output = %q", bad.String())
	}
}

func TestFormatCount(t *testing.T) {
	// WHY: Summary lines read "1 key" and "2 keys".
	t.Parallel()
	if got := FormatCount(1, "key"); got != "1 key" {
		t.Errorf("FormatCount(1) = %q", got)
	}
	if got := FormatCount(0, "key"); got != "0 keys" {
		t.Errorf("FormatCount(0) = %q", got)
	}
}
