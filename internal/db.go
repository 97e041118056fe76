package internal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/sensiblebit/gpgkit"
	_ "modernc.org/sqlite"
)

// DB is the key catalog: a record of listed keys and import outcomes.
type DB struct {
	*sqlx.DB
}

// NewDB creates an in-memory catalog. If path names an existing file its
// contents are loaded; use SaveToDisk to persist changes.
func NewDB(path string) (*DB, error) {
	// Each :memory: connection is a separate database, so the pool is pinned
	// to one connection. PRAGMAs ride on the DSN to survive reconnects.
	dsn := "file::memory:?_pragma=temp_store(2)&_pragma=journal_mode(off)&_pragma=synchronous(off)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	dbObj := &DB{DB: db}
	if err := dbObj.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := dbObj.LoadFromDisk(path); err != nil {
				_ = db.Close()
				return nil, err
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			_ = db.Close()
			return nil, fmt.Errorf("checking catalog %s: %w", path, err)
		}
	}

	slog.Debug("catalog initialized", "path", path)
	return dbObj, nil
}

func (db *DB) initSchema() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS keys (
			fingerprint TEXT PRIMARY KEY,
			key_id      TEXT NOT NULL,
			algorithm   TEXT NOT NULL,
			length      INTEGER NOT NULL,
			trust       TEXT NOT NULL,
			owner_trust TEXT NOT NULL,
			created     timestamp,
			expires     timestamp,
			secret      BOOLEAN NOT NULL,
			uids        TEXT NOT NULL,
			subkeys     TEXT NOT NULL,
			updated_at  timestamp NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating keys table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS imports (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			fingerprint TEXT NOT NULL,
			ok_reason   TEXT NOT NULL,
			problem     TEXT NOT NULL,
			text        TEXT NOT NULL,
			source      TEXT NOT NULL,
			imported_at timestamp NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating imports table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_imports_fingerprint ON imports (fingerprint);`)
	if err != nil {
		return fmt.Errorf("creating fingerprint index on imports table: %w", err)
	}
	return nil
}

// SaveToDisk writes the catalog to path. VACUUM INTO refuses to overwrite, so
// the copy goes to a sibling temp file that then replaces path.
func (db *DB) SaveToDisk(path string) error {
	tmp := path + ".tmp"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale %s: %w", tmp, err)
	}
	if _, err := db.Exec("VACUUM INTO ?", tmp); err != nil {
		return fmt.Errorf("saving database to %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("saving database to %s: %w", path, err)
	}
	slog.Debug("catalog saved to disk", "path", path)
	return nil
}

// LoadFromDisk merges an on-disk catalog into the in-memory one. Keys already
// present are kept.
func (db *DB) LoadFromDisk(path string) error {
	if _, err := db.Exec("ATTACH DATABASE ? AS diskdb", path); err != nil {
		return fmt.Errorf("attaching database %s: %w", path, err)
	}
	defer func() {
		if _, err := db.Exec("DETACH DATABASE diskdb"); err != nil {
			slog.Warn("detaching database", "path", path, "error", err)
		}
	}()

	if _, err := db.Exec("INSERT OR IGNORE INTO keys SELECT * FROM diskdb.keys"); err != nil {
		return fmt.Errorf("loading keys from %s: %w", path, err)
	}
	if _, err := db.Exec(`INSERT INTO imports (fingerprint, ok_reason, problem, text, source, imported_at)
		SELECT fingerprint, ok_reason, problem, text, source, imported_at FROM diskdb.imports ORDER BY id`); err != nil {
		return fmt.Errorf("loading imports from %s: %w", path, err)
	}

	slog.Debug("catalog loaded from disk", "path", path)
	return nil
}

// InsertKey adds or replaces a key record.
func (db *DB) InsertKey(key KeyRecord) error {
	_, err := db.NamedExec(`
		INSERT OR REPLACE INTO keys (fingerprint, key_id, algorithm, length, trust, owner_trust, created, expires, secret, uids, subkeys, updated_at)
		VALUES (:fingerprint, :key_id, :algorithm, :length, :trust, :owner_trust, :created, :expires, :secret, :uids, :subkeys, :updated_at)
	`, key)
	if err != nil {
		return fmt.Errorf("inserting key %s: %w", key.Fingerprint, err)
	}
	return nil
}

// RecordKeys stores every fingerprinted key of a listing in one transaction.
// A key seen in a secret listing stays marked secret when later recorded from
// a public listing.
func (db *DB) RecordKeys(result *gpgkit.ListKeysResult, secret bool) (int, error) {
	tx, err := db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	n := 0
	for _, info := range result.Keys {
		if info.Fingerprint == "" {
			slog.Debug("skipping key without fingerprint", "key_id", info.KeyID)
			continue
		}
		rec, err := keyRecordFromInfo(info, secret, now)
		if err != nil {
			return 0, err
		}
		if !secret {
			var wasSecret bool
			err := tx.Get(&wasSecret, "SELECT secret FROM keys WHERE fingerprint = ?", rec.Fingerprint)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return 0, fmt.Errorf("reading key %s: %w", rec.Fingerprint, err)
			}
			rec.Secret = wasSecret
		}
		_, err = tx.NamedExec(`
			INSERT OR REPLACE INTO keys (fingerprint, key_id, algorithm, length, trust, owner_trust, created, expires, secret, uids, subkeys, updated_at)
			VALUES (:fingerprint, :key_id, :algorithm, :length, :trust, :owner_trust, :created, :expires, :secret, :uids, :subkeys, :updated_at)
		`, rec)
		if err != nil {
			return 0, fmt.Errorf("inserting key %s: %w", rec.Fingerprint, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing keys: %w", err)
	}
	return n, nil
}

func keyRecordFromInfo(info gpgkit.KeyInfo, secret bool, now time.Time) (KeyRecord, error) {
	length, err := strconv.Atoi(info.Length)
	if err != nil && info.Length != "" {
		return KeyRecord{}, fmt.Errorf("key %s: invalid length %q", info.Fingerprint, info.Length)
	}

	uids := info.UIDs
	if uids == nil {
		uids = []string{}
	}
	uidsJSON, err := json.Marshal(uids)
	if err != nil {
		return KeyRecord{}, fmt.Errorf("encoding uids: %w", err)
	}
	subs := make([]SubkeyRecord, 0, len(info.Subkeys))
	for _, s := range info.Subkeys {
		subs = append(subs, SubkeyRecord{
			KeyID:        s.KeyID,
			Algorithm:    s.Algorithm,
			Capabilities: s.Capabilities,
			Fingerprint:  s.Fingerprint,
		})
	}
	subsJSON, err := json.Marshal(subs)
	if err != nil {
		return KeyRecord{}, fmt.Errorf("encoding subkeys: %w", err)
	}

	created, err := ParseListingTime(info.Date)
	if err != nil {
		return KeyRecord{}, fmt.Errorf("key %s: %w", info.Fingerprint, err)
	}
	expires, err := ParseListingTime(info.Expires)
	if err != nil {
		return KeyRecord{}, fmt.Errorf("key %s: %w", info.Fingerprint, err)
	}

	return KeyRecord{
		Fingerprint: info.Fingerprint,
		KeyID:       info.KeyID,
		Algorithm:   info.Algorithm,
		Length:      length,
		Trust:       info.Trust,
		OwnerTrust:  info.OwnerTrust,
		Created:     created,
		Expires:     expires,
		Secret:      secret,
		UIDsJSON:    types.JSONText(uidsJSON),
		SubkeysJSON: types.JSONText(subsJSON),
		UpdatedAt:   now,
	}, nil
}

// ParseListingTime parses a creation or expiry field of a colon listing.
// gpg writes seconds since the epoch, or an ISO date with some options. An
// empty field returns nil.
func ParseListingTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		t := time.Unix(secs, 0).UTC()
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("invalid listing time %q", s)
	}
	return &t, nil
}

// GetKey returns the key with the given fingerprint, or nil if absent.
func (db *DB) GetKey(fingerprint string) (*KeyRecord, error) {
	var key KeyRecord
	err := db.Get(&key, "SELECT * FROM keys WHERE fingerprint = ?", fingerprint)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting key: %w", err)
	}
	return &key, nil
}

// GetAllKeys returns every catalogued key ordered by fingerprint.
func (db *DB) GetAllKeys() ([]KeyRecord, error) {
	var keys []KeyRecord
	if err := db.Select(&keys, "SELECT * FROM keys ORDER BY fingerprint"); err != nil {
		return nil, fmt.Errorf("getting all keys: %w", err)
	}
	return keys, nil
}

// DeleteKey removes a key record. Its import history is kept.
func (db *DB) DeleteKey(fingerprint string) error {
	if _, err := db.Exec("DELETE FROM keys WHERE fingerprint = ?", fingerprint); err != nil {
		return fmt.Errorf("deleting key %s: %w", fingerprint, err)
	}
	return nil
}

// RecordImport stores the per-key outcomes of an import. Entries gpg did not
// tie to a key, such as NODATA, are skipped.
func (db *DB) RecordImport(result *gpgkit.ImportResult, source string) (int, error) {
	tx, err := db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	n := 0
	for _, st := range result.Results {
		if st.Fingerprint == "" {
			continue
		}
		rec := ImportRecord{
			Fingerprint: st.Fingerprint,
			OKReason:    st.OK,
			Problem:     st.Problem,
			Text:        st.Text,
			Source:      source,
			ImportedAt:  now,
		}
		_, err := tx.NamedExec(`
			INSERT INTO imports (fingerprint, ok_reason, problem, text, source, imported_at)
			VALUES (:fingerprint, :ok_reason, :problem, :text, :source, :imported_at)
		`, rec)
		if err != nil {
			return 0, fmt.Errorf("inserting import of %s: %w", st.Fingerprint, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing imports: %w", err)
	}
	return n, nil
}

// GetImports returns the import history of a fingerprint, oldest first. An
// empty fingerprint returns all history.
func (db *DB) GetImports(fingerprint string) ([]ImportRecord, error) {
	var recs []ImportRecord
	var err error
	if fingerprint == "" {
		err = db.Select(&recs, "SELECT * FROM imports ORDER BY id")
	} else {
		err = db.Select(&recs, "SELECT * FROM imports WHERE fingerprint = ? ORDER BY id", fingerprint)
	}
	if err != nil {
		return nil, fmt.Errorf("getting imports: %w", err)
	}
	return recs, nil
}

// CatalogSummary holds aggregate counts over the catalog.
type CatalogSummary struct {
	Keys       int `json:"keys"`
	SecretKeys int `json:"secret_keys"`
	Expired    int `json:"expired"`
	Imports    int `json:"imports"`
	Problems   int `json:"problems"`
}

// GetCatalogSummary counts keys and imports. Expiry is judged against now.
func (db *DB) GetCatalogSummary(now time.Time) (*CatalogSummary, error) {
	s := &CatalogSummary{}

	if err := db.Get(&s.Keys, "SELECT COUNT(*) FROM keys"); err != nil {
		return nil, fmt.Errorf("counting keys: %w", err)
	}
	if err := db.Get(&s.SecretKeys, "SELECT COUNT(*) FROM keys WHERE secret"); err != nil {
		return nil, fmt.Errorf("counting secret keys: %w", err)
	}
	// Compared in Go: the driver's timestamp text form does not order
	// reliably against a bound parameter.
	var expires []time.Time
	if err := db.Select(&expires, "SELECT expires FROM keys WHERE expires IS NOT NULL"); err != nil {
		return nil, fmt.Errorf("counting expired keys: %w", err)
	}
	for _, e := range expires {
		if e.Before(now) {
			s.Expired++
		}
	}
	if err := db.Get(&s.Imports, "SELECT COUNT(*) FROM imports"); err != nil {
		return nil, fmt.Errorf("counting imports: %w", err)
	}
	if err := db.Get(&s.Problems, "SELECT COUNT(*) FROM imports WHERE problem != ''"); err != nil {
		return nil, fmt.Errorf("counting problems: %w", err)
	}
	return s, nil
}

// DumpDB logs every key and import at debug level.
func (db *DB) DumpDB() error {
	keys, err := db.GetAllKeys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		slog.Debug("key record",
			"fingerprint", k.Fingerprint,
			"key_id", k.KeyID,
			"algorithm", FormatAlgorithm(k.Algorithm),
			"length", k.Length,
			"secret", k.Secret,
			"uids", string(k.UIDsJSON),
			"expires", FormatTime(k.Expires))
	}
	slog.Debug("total keys", "count", len(keys))

	imports, err := db.GetImports("")
	if err != nil {
		return err
	}
	for _, i := range imports {
		slog.Debug("import record",
			"fingerprint", i.Fingerprint,
			"source", i.Source,
			"ok_reason", i.OKReason,
			"problem", i.Problem,
			"imported_at", i.ImportedAt)
	}
	slog.Debug("total imports", "count", len(imports))
	return nil
}
