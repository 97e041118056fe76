package gpgkit

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Subkey is one sub or ssb record of a listed key.
type Subkey struct {
	KeyID        string
	Algorithm    string
	Capabilities string
	Fingerprint  string
}

// KeyInfo is one pub or sec record with the records that follow it.
type KeyInfo struct {
	Type       string
	Trust      string
	Length     string
	Algorithm  string
	KeyID      string
	Date       string
	Expires    string
	OwnerTrust string
	UIDs       []string
	Subkeys    []Subkey
	// Fingerprint is the primary key fingerprint.
	Fingerprint string
}

// ListKeysResult is returned by ListKeys. Keys are in listing order.
type ListKeysResult struct {
	Output

	Keys         []KeyInfo
	Fingerprints []string
	UIDs         []string

	current *KeyInfo
	sub     *Subkey
}

// HandleStatus ignores every keyword: a listing is read from the colon
// records on stdout.
func (r *ListKeysResult) HandleStatus(keyword, value string) error {
	return nil
}

// minRecordFields is the field count every record type must carry.
const minRecordFields = 10

// HandleRecord applies one colon-separated --with-colons record. Record types
// other than pub, sec, fpr, uid, sub and ssb are skipped. A uid, fpr, sub or
// ssb record with no preceding pub or sec record fails with ErrNoCurrentKey.
func (r *ListKeysResult) HandleRecord(fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "pub", "sec", "fpr", "uid", "sub", "ssb":
	default:
		return nil
	}
	if len(fields) < minRecordFields {
		return fmt.Errorf("%w: %s record has %d fields", ErrMalformedStatus, fields[0], len(fields))
	}

	switch fields[0] {
	case "pub", "sec":
		r.Keys = append(r.Keys, KeyInfo{
			Type:       fields[0],
			Trust:      fields[1],
			Length:     fields[2],
			Algorithm:  fields[3],
			KeyID:      fields[4],
			Date:       fields[5],
			Expires:    fields[6],
			OwnerTrust: fields[8],
		})
		r.current = &r.Keys[len(r.Keys)-1]
		r.sub = nil
		if fields[9] != "" {
			r.current.UIDs = append(r.current.UIDs, fields[9])
		}
		return nil
	}

	if r.current == nil {
		return fmt.Errorf("%w: %s record", ErrNoCurrentKey, fields[0])
	}
	switch fields[0] {
	case "fpr":
		if r.sub != nil {
			r.sub.Fingerprint = fields[9]
			return nil
		}
		r.current.Fingerprint = fields[9]
		r.Fingerprints = append(r.Fingerprints, fields[9])
	case "uid":
		uid := decodeUID(fields[9])
		r.current.UIDs = append(r.current.UIDs, uid)
		r.UIDs = append(r.UIDs, uid)
	case "sub", "ssb":
		sub := Subkey{KeyID: fields[4], Algorithm: fields[3]}
		if len(fields) > 11 {
			sub.Capabilities = fields[11]
		}
		r.current.Subkeys = append(r.current.Subkeys, sub)
		r.sub = &r.current.Subkeys[len(r.current.Subkeys)-1]
	}
	return nil
}

// parseRecords feeds each line of a --with-colons listing to HandleRecord,
// stopping at the first blank line.
func (r *ListKeysResult) parseRecords(data string) error {
	for line := range strings.Lines(data) {
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if err := r.HandleRecord(strings.Split(line, ":")); err != nil {
			return err
		}
	}
	return nil
}

var uidEscape = regexp.MustCompile(`\\x([0-9a-fA-F]{2})`)

// decodeUID replaces the \xHH escapes gpg uses in colon listings with the raw
// bytes they stand for.
func decodeUID(s string) string {
	return uidEscape.ReplaceAllStringFunc(s, func(m string) string {
		b, err := strconv.ParseUint(m[2:], 16, 8)
		if err != nil {
			return m
		}
		return string([]byte{byte(b)})
	})
}
