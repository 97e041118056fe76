package gpgkit

import (
	"fmt"
	"strconv"
	"strings"
)

// ImportStatus is the outcome gpg reported for one key during an import.
type ImportStatus struct {
	// Fingerprint is empty for events not tied to a key and "<unknown>" when
	// gpg named a problem without a fingerprint.
	Fingerprint string
	// OK holds the IMPORT_OK reason bitmask; empty for problems.
	OK string
	// Problem holds the IMPORT_PROBLEM reason code; empty for successes.
	Problem string
	Text    string
}

// importOKReasons maps IMPORT_OK bits to text, in ascending bit order.
var importOKReasons = []struct {
	code int
	text string
}{
	{0, "Not actually changed"},
	{1, "Entirely new key"},
	{2, "New user IDs"},
	{4, "New signatures"},
	{8, "New subkeys"},
	{16, "Contains private key"},
}

var importProblemReasons = map[string]string{
	"0": "No specific reason given",
	"1": "Invalid Certificate",
	"2": "Issuer Certificate missing",
	"3": "Certificate Chain too long",
	"4": "Error storing certificate",
}

// ImportCounts are the IMPORT_RES counters, in gpg's field order.
type ImportCounts struct {
	Count       int
	NoUserID    int
	Imported    int
	ImportedRSA int
	Unchanged   int
	NUIDs       int
	NSubkeys    int
	NSigs       int
	NRevoked    int
	SecRead     int
	SecImported int
	SecDups     int
	NotImported int
}

// fields returns pointers to the counters in IMPORT_RES order.
func (c *ImportCounts) fields() []*int {
	return []*int{
		&c.Count, &c.NoUserID, &c.Imported, &c.ImportedRSA, &c.Unchanged,
		&c.NUIDs, &c.NSubkeys, &c.NSigs, &c.NRevoked, &c.SecRead,
		&c.SecImported, &c.SecDups, &c.NotImported,
	}
}

// ImportResult is returned by ImportKeys and RecvKeys.
type ImportResult struct {
	Output
	ImportCounts

	Results      []ImportStatus
	Fingerprints []string
}

var importIgnored = map[string]bool{
	// IMPORTED duplicates IMPORT_OK and IMPORT_PROBLEM.
	"IMPORTED": true,

	// gpg 2.x
	"KEY_CONSIDERED":    true,
	"PINENTRY_LAUNCHED": true,
	"INQUIRE_MAXLEN":    true,
	"IMPORT_CHECK":      true,
	"UNEXPECTED":        true,
	"ERROR":             true,
	"FAILURE":           true,
	"PROGRESS":          true,
}

// HandleStatus applies one status event to r.
func (r *ImportResult) HandleStatus(keyword, value string) error {
	if importIgnored[keyword] {
		return nil
	}

	switch keyword {
	case "NODATA":
		r.Results = append(r.Results, ImportStatus{Problem: "0", Text: "No valid data found"})
	case "IMPORT_OK":
		fields := strings.Fields(value)
		if len(fields) < 2 {
			return malformedStatus(keyword, value)
		}
		reason, err := strconv.Atoi(fields[0])
		if err != nil {
			return malformedStatus(keyword, value)
		}
		var reasons []string
		for _, ok := range importOKReasons {
			if reason|ok.code == reason {
				reasons = append(reasons, ok.text)
			}
		}
		r.Results = append(r.Results, ImportStatus{
			Fingerprint: fields[1],
			OK:          fields[0],
			Text:        strings.Join(reasons, "\n") + "\n",
		})
		r.Fingerprints = append(r.Fingerprints, fields[1])
	case "IMPORT_PROBLEM":
		reason, fingerprint := value, "<unknown>"
		if fields := strings.Fields(value); len(fields) == 2 {
			reason, fingerprint = fields[0], fields[1]
		}
		text, ok := importProblemReasons[reason]
		if !ok {
			text = fmt.Sprintf("Unknown problem: %q", reason)
		}
		r.Results = append(r.Results, ImportStatus{Fingerprint: fingerprint, Problem: reason, Text: text})
	case "IMPORT_RES":
		fields := strings.Fields(value)
		counters := r.fields()
		if len(fields) < len(counters) {
			return malformedStatus(keyword, value)
		}
		for i, ptr := range counters {
			n, err := strconv.Atoi(fields[i])
			if err != nil {
				return malformedStatus(keyword, value)
			}
			*ptr = n
		}
	case "KEYEXPIRED":
		r.Results = append(r.Results, ImportStatus{Problem: "0", Text: "Key expired"})
	case "SIGEXPIRED":
		r.Results = append(r.Results, ImportStatus{Problem: "0", Text: "Signature expired"})
	default:
		return unknownStatus(keyword)
	}
	return nil
}

// OK reports whether at least one key was imported and none were rejected.
func (r *ImportResult) OK() bool {
	return r.NotImported == 0 && len(r.Fingerprints) > 0
}

// Summary returns a one-line count of imported and rejected keys.
func (r *ImportResult) Summary() string {
	parts := []string{fmt.Sprintf("%d imported", r.Imported)}
	if r.NotImported > 0 {
		parts = append(parts, fmt.Sprintf("%d not imported", r.NotImported))
	}
	return strings.Join(parts, ", ")
}
