package gpgkit

import "strings"

// SignResult is returned by Sign.
type SignResult struct {
	Output

	Type          string
	Algorithm     string
	HashAlgorithm string
	Class         string
	Timestamp     string
	Fingerprint   string

	// Status names the last passphrase problem, if any.
	Status string
}

var signIgnored = map[string]bool{
	"USERID_HINT":     true,
	"GOOD_PASSPHRASE": true,
	"BEGIN_SIGNING":   true,
	"CARDCTRL":        true,
	"INV_SGNR":        true,
	"NODATA":          true,

	// gpg 2.x
	"KEY_CONSIDERED":    true,
	"PINENTRY_LAUNCHED": true,
	"INQUIRE_MAXLEN":    true,
	"FAILURE":           true,
	"ERROR":             true,
	"PROGRESS":          true,
}

// HandleStatus applies one status event to r.
func (r *SignResult) HandleStatus(keyword, value string) error {
	if signIgnored[keyword] {
		return nil
	}

	switch keyword {
	case "NEED_PASSPHRASE", "BAD_PASSPHRASE", "MISSING_PASSPHRASE":
		r.Status = strings.ToLower(strings.ReplaceAll(keyword, "_", " "))
	case "SIG_CREATED":
		fields := strings.Fields(value)
		if len(fields) < 6 {
			return malformedStatus(keyword, value)
		}
		r.Type = fields[0]
		r.Algorithm = fields[1]
		r.HashAlgorithm = fields[2]
		r.Class = fields[3]
		r.Timestamp = fields[4]
		r.Fingerprint = fields[5]
		r.Status = "signature created"
	default:
		return unknownStatus(keyword)
	}
	return nil
}

// OK reports whether a signature was created.
func (r *SignResult) OK() bool {
	return r.Fingerprint != ""
}

// String returns the signature or signed message as text.
func (r *SignResult) String() string {
	return string(r.Data)
}
