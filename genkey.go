package gpgkit

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// GenKeyResult is returned by GenKey.
type GenKeyResult struct {
	Output

	// Type is "P" (primary), "S" (subkey) or "B" (both).
	Type        string
	Fingerprint string
}

var genKeyIgnored = map[string]bool{
	"PROGRESS":        true,
	"GOOD_PASSPHRASE": true,
	"NODATA":          true,
	"KEY_NOT_CREATED": true,

	// gpg 2.x
	"KEY_CONSIDERED":    true,
	"PINENTRY_LAUNCHED": true,
	"INQUIRE_MAXLEN":    true,
	"ERROR":             true,
	"FAILURE":           true,
}

// HandleStatus applies one status event to r.
func (r *GenKeyResult) HandleStatus(keyword, value string) error {
	if genKeyIgnored[keyword] {
		return nil
	}
	if keyword != "KEY_CREATED" {
		return unknownStatus(keyword)
	}
	fields := strings.Fields(value)
	if len(fields) < 2 {
		return malformedStatus(keyword, value)
	}
	r.Type, r.Fingerprint = fields[0], fields[1]
	return nil
}

// OK reports whether a key was created.
func (r *GenKeyResult) OK() bool {
	return r.Fingerprint != ""
}

// String returns the new fingerprint, or "" if no key was created.
func (r *GenKeyResult) String() string {
	return r.Fingerprint
}

// GenKeyInput builds an unattended key generation control block. Parameter
// names may be attribute style ("name_email") or gpg style ("Name-Email").
// Empty values are skipped. Key-Type, Key-Length, Name-Real, Name-Comment and
// Name-Email get defaults when absent; the email is synthesized from the login
// name and host name. On gpg 2.1 and later a block without a Passphrase is
// marked %no-protection.
func (g *GPG) GenKeyInput(params map[string]string) string {
	return genKeyInput(params, g.modern)
}

func genKeyInput(params map[string]string, modern bool) string {
	parms := make(map[string]string, len(params)+5)
	for key, val := range params {
		if strings.TrimSpace(val) == "" {
			continue
		}
		parms[titleCase(strings.ReplaceAll(key, "_", "-"))] = val
	}
	setDefault(parms, "Key-Type", "RSA")
	setDefault(parms, "Key-Length", "2048")
	setDefault(parms, "Name-Real", "Autogenerated Key")
	setDefault(parms, "Name-Comment", "Generated by gpgkit")
	setDefault(parms, "Name-Email", defaultEmail())

	var b strings.Builder
	fmt.Fprintf(&b, "Key-Type: %s\n", parms["Key-Type"])
	delete(parms, "Key-Type")

	keys := make([]string, 0, len(parms))
	for k := range parms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, parms[k])
	}
	if _, ok := parms["Passphrase"]; !ok && modern {
		b.WriteString("%no-protection\n")
	}
	b.WriteString("%commit\n")
	return b.String()
}

func setDefault(m map[string]string, key, val string) {
	if _, ok := m[key]; !ok {
		m[key] = val
	}
}

// titleCase upper-cases the first letter of each hyphen-separated word and
// lower-cases the rest: "name-EMAIL" becomes "Name-Email".
func titleCase(s string) string {
	words := strings.Split(s, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, "-")
}

func defaultEmail() string {
	logname := os.Getenv("LOGNAME")
	if logname == "" {
		logname = os.Getenv("USERNAME")
	}
	if logname == "" {
		logname = os.Getenv("USER")
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	return strings.ReplaceAll(logname, " ", "_") + "@" + hostname
}
