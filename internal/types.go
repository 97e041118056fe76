package internal

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// KeyRecord is one catalogued key, keyed by primary fingerprint.
type KeyRecord struct {
	Fingerprint string         `db:"fingerprint"`
	KeyID       string         `db:"key_id"`
	Algorithm   string         `db:"algorithm"`
	Length      int            `db:"length"`
	Trust       string         `db:"trust"`
	OwnerTrust  string         `db:"owner_trust"`
	Created     *time.Time     `db:"created"`
	Expires     *time.Time     `db:"expires"`
	Secret      bool           `db:"secret"`
	UIDsJSON    types.JSONText `db:"uids"`
	SubkeysJSON types.JSONText `db:"subkeys"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// ImportRecord is one per-key outcome of an import or keyserver fetch.
type ImportRecord struct {
	ID          int64     `db:"id"`
	Fingerprint string    `db:"fingerprint"`
	OKReason    string    `db:"ok_reason"`
	Problem     string    `db:"problem"`
	Text        string    `db:"text"`
	Source      string    `db:"source"`
	ImportedAt  time.Time `db:"imported_at"`
}

// SubkeyRecord is the JSON form of a subkey stored in KeyRecord.SubkeysJSON.
type SubkeyRecord struct {
	KeyID        string `json:"key_id"`
	Algorithm    string `json:"algorithm"`
	Capabilities string `json:"capabilities,omitempty"`
	Fingerprint  string `json:"fingerprint,omitempty"`
}
