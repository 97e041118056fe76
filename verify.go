package gpgkit

import (
	"strings"
)

// TrustLevel is gpg's confidence in the authenticity of a signing key.
type TrustLevel int

const (
	TrustUndefined TrustLevel = iota
	TrustNever
	TrustMarginal
	TrustFully
	TrustUltimate
)

var trustLevels = map[string]TrustLevel{
	"TRUST_UNDEFINED": TrustUndefined,
	"TRUST_NEVER":     TrustNever,
	"TRUST_MARGINAL":  TrustMarginal,
	"TRUST_FULLY":     TrustFully,
	"TRUST_ULTIMATE":  TrustUltimate,
}

// String returns the lower-case name of the trust level.
func (t TrustLevel) String() string {
	switch t {
	case TrustUndefined:
		return "undefined"
	case TrustNever:
		return "never"
	case TrustMarginal:
		return "marginal"
	case TrustFully:
		return "fully"
	case TrustUltimate:
		return "ultimate"
	default:
		return "unknown"
	}
}

// Verification holds the signature facts gpg reports while verifying or
// decrypting.
type Verification struct {
	Valid  bool
	Status string

	Fingerprint string
	// PubkeyFingerprint is the primary key fingerprint; it differs from
	// Fingerprint when a subkey made the signature.
	PubkeyFingerprint string
	KeyID             string
	Username          string
	SignatureID       string

	CreationDate    string
	Timestamp       string
	SigTimestamp    string
	ExpireTimestamp string

	// TrustText is the raw TRUST_* keyword; empty if gpg reported no trust.
	TrustText  string
	TrustLevel TrustLevel
}

// verifyIgnored are keywords that carry nothing the verification needs.
var verifyIgnored = map[string]bool{
	"RSA_OR_IDEA":      true,
	"NODATA":           true,
	"IMPORT_RES":       true,
	"PLAINTEXT":        true,
	"PLAINTEXT_LENGTH": true,
	"POLICY_URL":       true,
	"DECRYPTION_INFO":  true,
	"DECRYPTION_OKAY":  true,
	"INV_SGNR":         true,

	// gpg 2.x
	"NEWSIG":                       true,
	"KEY_CONSIDERED":               true,
	"VERIFICATION_COMPLIANCE_MODE": true,
	"NOTATION_NAME":                true,
	"NOTATION_DATA":                true,
	"NOTATION_FLAGS":               true,
	"FILE_START":                   true,
	"FILE_DONE":                    true,
	"FAILURE":                      true,
}

// HandleStatus applies one status event to v.
func (v *Verification) HandleStatus(keyword, value string) error {
	if level, ok := trustLevels[keyword]; ok {
		v.TrustText = keyword
		v.TrustLevel = level
		return nil
	}
	if verifyIgnored[keyword] {
		return nil
	}

	switch keyword {
	case "BADSIG":
		v.Valid = false
		v.Status = "signature bad"
		v.KeyID, v.Username = splitFirst(value)
	case "GOODSIG":
		v.Valid = true
		v.Status = "signature good"
		v.KeyID, v.Username = splitFirst(value)
	case "VALIDSIG":
		fields := strings.Fields(value)
		if len(fields) < 4 {
			return malformedStatus(keyword, value)
		}
		v.Fingerprint = fields[0]
		v.CreationDate = fields[1]
		v.SigTimestamp = fields[2]
		v.ExpireTimestamp = fields[3]
		v.PubkeyFingerprint = fields[len(fields)-1]
		v.Status = "signature valid"
	case "SIG_ID":
		fields := strings.Fields(value)
		if len(fields) < 3 {
			return malformedStatus(keyword, value)
		}
		v.SignatureID, v.CreationDate, v.Timestamp = fields[0], fields[1], fields[2]
	case "ERRSIG":
		fields := strings.Fields(value)
		if len(fields) < 5 {
			return malformedStatus(keyword, value)
		}
		v.Valid = false
		v.KeyID = fields[0]
		v.Timestamp = fields[4]
		v.Status = "signature error"
	case "DECRYPTION_FAILED":
		v.Valid = false
		v.KeyID = value
		v.Status = "decryption failed"
	case "NO_PUBKEY":
		v.Valid = false
		v.KeyID = value
		v.Status = "no public key"
	case "KEYEXPIRED", "SIGEXPIRED":
		// Emitted for every expired key on the certificate, not only the
		// signing one. EXPKEYSIG is the signal that matters.
	case "EXPKEYSIG", "REVKEYSIG":
		v.Valid = false
		v.KeyID, _ = splitFirst(value)
		v.Status = strings.ToLower(keyword[:3] + " " + keyword[3:])
	default:
		return unknownStatus(keyword)
	}
	return nil
}

// splitFirst splits s at its first run of whitespace.
func splitFirst(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeft(s[i:], " \t")
}

// VerifyResult is returned by Verify and VerifyDetached.
type VerifyResult struct {
	Verification
	Output
}

// OK reports whether the signature is valid.
func (r *VerifyResult) OK() bool {
	return r.Valid
}
