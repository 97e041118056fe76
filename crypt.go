package gpgkit

import "strings"

// CryptResult is returned by Encrypt and Decrypt. Signature facts found while
// decrypting a signed message land in the embedded Verification; Status is
// shared between the two.
type CryptResult struct {
	Verification
	Output

	ok bool
}

var cryptIgnored = map[string]bool{
	// ERROR is preceded by a more specific status.
	"ENC_TO":         true,
	"USERID_HINT":    true,
	"GOODMDC":        true,
	"END_DECRYPTION": true,
	"BEGIN_SIGNING":  true,
	"NO_SECKEY":      true,
	"ERROR":          true,
	"NODATA":         true,
	"CARDCTRL":       true,

	// gpg 2.x
	"KEY_CONSIDERED":             true,
	"PINENTRY_LAUNCHED":          true,
	"INQUIRE_MAXLEN":             true,
	"DECRYPTION_KEY":             true,
	"DECRYPTION_COMPLIANCE_MODE": true,
	"ENCRYPTION_COMPLIANCE_MODE": true,
	"PROGRESS":                   true,
	"WARNING":                    true,
}

// HandleStatus applies one status event to r.
func (r *CryptResult) HandleStatus(keyword, value string) error {
	if cryptIgnored[keyword] {
		return nil
	}

	switch keyword {
	case "NEED_PASSPHRASE", "BAD_PASSPHRASE", "GOOD_PASSPHRASE",
		"MISSING_PASSPHRASE", "DECRYPTION_FAILED", "KEY_NOT_CREATED":
		r.Status = strings.ToLower(strings.ReplaceAll(keyword, "_", " "))
	case "NEED_PASSPHRASE_SYM":
		r.Status = "need symmetric passphrase"
	case "BEGIN_DECRYPTION":
		r.Status = "decryption incomplete"
	case "BEGIN_ENCRYPTION":
		r.Status = "encryption incomplete"
	case "DECRYPTION_OKAY":
		r.Status = "decryption ok"
		r.ok = true
	case "END_ENCRYPTION":
		r.Status = "encryption ok"
		r.ok = true
	case "INV_RECP":
		r.Status = "invalid recipient"
	case "KEYEXPIRED":
		r.Status = "key expired"
	case "SIG_CREATED":
		r.Status = "sig created"
	case "SIGEXPIRED":
		r.Status = "sig expired"
	default:
		return r.Verification.HandleStatus(keyword, value)
	}
	return nil
}

// OK reports whether encryption or decryption completed.
func (r *CryptResult) OK() bool {
	return r.ok
}

// String returns the output payload as text.
func (r *CryptResult) String() string {
	return string(r.Data)
}
