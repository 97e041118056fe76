package gpgkit

import (
	"strconv"
	"strings"
)

// ExportResult is returned by ExportKeys. gpg 2.1 and later report each
// exported key; older versions report nothing and Data is the only signal.
type ExportResult struct {
	Output

	Fingerprints []string
	// Count and Exported come from EXPORT_RES when gpg sends it.
	Count    int
	Exported int
}

var exportIgnored = map[string]bool{
	"KEY_CONSIDERED":    true,
	"PINENTRY_LAUNCHED": true,
	"INQUIRE_MAXLEN":    true,
	"NODATA":            true,
	"ERROR":             true,
	"FAILURE":           true,
}

// HandleStatus applies one status event to r.
func (r *ExportResult) HandleStatus(keyword, value string) error {
	if exportIgnored[keyword] {
		return nil
	}

	switch keyword {
	case "EXPORTED":
		fpr, _ := splitFirst(value)
		r.Fingerprints = append(r.Fingerprints, fpr)
	case "EXPORT_RES":
		fields := strings.Fields(value)
		if len(fields) < 2 {
			return malformedStatus(keyword, value)
		}
		count, err := strconv.Atoi(fields[0])
		if err != nil {
			return malformedStatus(keyword, value)
		}
		// fields[1] is the secret key count; fields[2] the exported count.
		exported := count
		if len(fields) > 2 {
			if exported, err = strconv.Atoi(fields[2]); err != nil {
				return malformedStatus(keyword, value)
			}
		}
		r.Count, r.Exported = count, exported
	default:
		return unknownStatus(keyword)
	}
	return nil
}

// OK reports whether gpg wrote any key material.
func (r *ExportResult) OK() bool {
	return len(r.Data) > 0
}

// String returns the exported key material as text.
func (r *ExportResult) String() string {
	return string(r.Data)
}
