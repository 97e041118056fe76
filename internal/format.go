package internal

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sensiblebit/gpgkit"
)

// pubkeyAlgorithms names the OpenPGP public key algorithm IDs gpg lists.
var pubkeyAlgorithms = map[string]string{
	"1":  "RSA",
	"2":  "RSA-E",
	"3":  "RSA-S",
	"16": "ELG-E",
	"17": "DSA",
	"18": "ECDH",
	"19": "ECDSA",
	"22": "EdDSA",
}

// FormatAlgorithm names an algorithm ID, falling back to "algo N".
func FormatAlgorithm(id string) string {
	if name, ok := pubkeyAlgorithms[id]; ok {
		return name
	}
	return "algo " + id
}

// FormatTime renders a key time as a date, or "never" for nil.
func FormatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.DateOnly)
}

// trustLabels names the validity and owner trust letters of a listing.
var trustLabels = map[string]string{
	"o": "unknown",
	"i": "invalid",
	"d": "disabled",
	"r": "revoked",
	"e": "expired",
	"-": "unknown",
	"q": "undefined",
	"n": "never",
	"m": "marginal",
	"f": "full",
	"u": "ultimate",
}

// FormatTrust names a validity letter, passing unknown letters through.
func FormatTrust(letter string) string {
	if label, ok := trustLabels[letter]; ok {
		return label
	}
	return letter
}

// FormatKeyList writes a listing in a form close to gpg's own.
func FormatKeyList(w io.Writer, keys []gpgkit.KeyInfo) error {
	for i, k := range keys {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if err := formatKey(w, k); err != nil {
			return err
		}
	}
	return nil
}

func formatKey(w io.Writer, k gpgkit.KeyInfo) error {
	var b strings.Builder
	created, _ := ParseListingTime(k.Date)
	fmt.Fprintf(&b, "%s   %s%s/%s %s", k.Type, FormatAlgorithm(k.Algorithm), k.Length, k.KeyID, FormatTime(created))
	if k.Expires != "" {
		expires, err := ParseListingTime(k.Expires)
		if err == nil {
			fmt.Fprintf(&b, " [expires: %s]", FormatTime(expires))
		}
	}
	b.WriteString("\n")
	if k.Fingerprint != "" {
		fmt.Fprintf(&b, "      %s\n", k.Fingerprint)
	}
	for _, uid := range k.UIDs {
		fmt.Fprintf(&b, "uid   [%s] %s\n", FormatTrust(k.Trust), uid)
	}
	for _, s := range k.Subkeys {
		fmt.Fprintf(&b, "sub   %s/%s", FormatAlgorithm(s.Algorithm), s.KeyID)
		if s.Capabilities != "" {
			fmt.Fprintf(&b, " [%s]", strings.ToUpper(s.Capabilities))
		}
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// FormatImport writes one line per imported key followed by the summary.
func FormatImport(w io.Writer, r *gpgkit.ImportResult) error {
	var b strings.Builder
	for _, st := range r.Results {
		text := strings.ReplaceAll(strings.TrimSpace(st.Text), "\n", ", ")
		if st.Fingerprint == "" {
			fmt.Fprintf(&b, "%s\n", text)
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", st.Fingerprint, text)
	}
	fmt.Fprintf(&b, "%s\n", r.Summary())
	_, err := io.WriteString(w, b.String())
	return err
}

// FormatVerification writes a human readable signature verdict.
func FormatVerification(w io.Writer, v gpgkit.Verification) error {
	var b strings.Builder
	switch {
	case v.Valid:
		fmt.Fprintf(&b, "Good signature from %q\n", v.Username)
	case v.Status != "":
		fmt.Fprintf(&b, "Signature not valid: %s\n", v.Status)
	default:
		b.WriteString("No signature found\n")
	}
	if v.KeyID != "" {
		fmt.Fprintf(&b, "  key id:      %s\n", v.KeyID)
	}
	if v.Fingerprint != "" {
		fmt.Fprintf(&b, "  fingerprint: %s\n", v.Fingerprint)
	}
	if v.SignatureID != "" {
		fmt.Fprintf(&b, "  signature:   %s\n", v.SignatureID)
	}
	if v.Timestamp != "" {
		ts := v.Timestamp
		if t, err := ParseListingTime(v.Timestamp); err == nil && t != nil {
			ts = t.Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "  created:     %s\n", ts)
	}
	if v.TrustText != "" {
		fmt.Fprintf(&b, "  trust:       %s\n", v.TrustText)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// FormatCount pluralizes a noun for summary lines.
func FormatCount(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
