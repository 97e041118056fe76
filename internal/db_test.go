package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sensiblebit/gpgkit"
)

const (
	catalogFpr    = "AAAABBBBCCCCDDDDEEEEFFFF0000111122223333"
	catalogSubFpr = "1111222233334444555566667777888899990000"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB("")
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleListing() *gpgkit.ListKeysResult {
	return &gpgkit.ListKeysResult{
		Keys: []gpgkit.KeyInfo{
			{
				Type:        "pub",
				Trust:       "u",
				Length:      "3072",
				Algorithm:   "1",
				KeyID:       "0123456789ABCDEF",
				Date:        "1700000000",
				Expires:     "1700086400",
				OwnerTrust:  "u",
				Fingerprint: catalogFpr,
				UIDs:        []string{"Alice <alice@example.com>"},
				Subkeys: []gpgkit.Subkey{
					{KeyID: "FEDCBA9876543210", Algorithm: "1", Capabilities: "e", Fingerprint: catalogSubFpr},
				},
			},
			{Type: "pub", KeyID: "NOFPR"},
		},
	}
}

func TestNewDB_InMemory(t *testing.T) {
	// WHY: Both catalog tables must exist on a fresh database or every command that records results fails.
	t.Parallel()
	db := newTestDB(t)
	var count int
	for _, table := range []string{"keys", "imports"} {
		if err := db.Get(&count, "SELECT COUNT(*) FROM "+table); err != nil {
			t.Errorf("%s table should exist: %v", table, err)
		}
	}
}

func TestRecordKeys(t *testing.T) {
	// WHY: A listing must land in the catalog with parsed times and JSON uids/subkeys; keys without a fingerprint cannot be keyed and are skipped.
	t.Parallel()
	db := newTestDB(t)

	n, err := db.RecordKeys(sampleListing(), false)
	if err != nil {
		t.Fatalf("RecordKeys: %v", err)
	}
	if n != 1 {
		t.Errorf("RecordKeys stored %d keys, want 1", n)
	}

	got, err := db.GetKey(catalogFpr)
	if err != nil || got == nil {
		t.Fatalf("GetKey = %v, %v", got, err)
	}
	if got.KeyID != "0123456789ABCDEF" || got.Length != 3072 || got.Algorithm != "1" || got.Secret {
		t.Errorf("GetKey = %+v", got)
	}
	if got.Created == nil || !got.Created.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("Created = %v, want 1700000000", got.Created)
	}
	if got.Expires == nil || !got.Expires.Equal(time.Unix(1700086400, 0)) {
		t.Errorf("Expires = %v, want 1700086400", got.Expires)
	}

	var uids []string
	if err := got.UIDsJSON.Unmarshal(&uids); err != nil {
		t.Fatalf("unmarshal uids: %v", err)
	}
	if diff := cmp.Diff([]string{"Alice <alice@example.com>"}, uids); diff != "" {
		t.Errorf("uids mismatch (-want +got):\n%s", diff)
	}
	var subs []SubkeyRecord
	if err := got.SubkeysJSON.Unmarshal(&subs); err != nil {
		t.Fatalf("unmarshal subkeys: %v", err)
	}
	want := []SubkeyRecord{{KeyID: "FEDCBA9876543210", Algorithm: "1", Capabilities: "e", Fingerprint: catalogSubFpr}}
	if diff := cmp.Diff(want, subs); diff != "" {
		t.Errorf("subkeys mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordKeys_SecretSticks(t *testing.T) {
	// WHY: The public listing runs after the secret one; it must not clear the secret flag learned earlier.
	t.Parallel()
	db := newTestDB(t)
	if _, err := db.RecordKeys(sampleListing(), true); err != nil {
		t.Fatalf("RecordKeys(secret): %v", err)
	}
	if _, err := db.RecordKeys(sampleListing(), false); err != nil {
		t.Fatalf("RecordKeys(public): %v", err)
	}
	got, err := db.GetKey(catalogFpr)
	if err != nil || got == nil || !got.Secret {
		t.Errorf("GetKey = %+v, %v, want secret", got, err)
	}
}

func TestRecordKeys_InvalidTime(t *testing.T) {
	// WHY: A corrupt date field must fail the whole batch rather than store a half-parsed key.
	t.Parallel()
	db := newTestDB(t)
	listing := sampleListing()
	listing.Keys[0].Date = "yesterday"
	if _, err := db.RecordKeys(listing, false); err == nil {
		t.Fatal("RecordKeys succeeded, want error")
	}
	if got, _ := db.GetKey(catalogFpr); got != nil {
		t.Errorf("key stored despite error: %+v", got)
	}
}

func TestGetKey_Missing(t *testing.T) {
	// WHY: Callers distinguish "not catalogued" from a query failure by a nil record with nil error.
	t.Parallel()
	db := newTestDB(t)
	got, err := db.GetKey("nope")
	if err != nil || got != nil {
		t.Errorf("GetKey(missing) = %+v, %v, want nil, nil", got, err)
	}
}

func TestDeleteKey_KeepsHistory(t *testing.T) {
	// WHY: Deleting a key from the keyring removes its catalog entry but its import history stays for auditing.
	t.Parallel()
	db := newTestDB(t)
	if _, err := db.RecordKeys(sampleListing(), false); err != nil {
		t.Fatalf("RecordKeys: %v", err)
	}
	imp := &gpgkit.ImportResult{Results: []gpgkit.ImportStatus{{Fingerprint: catalogFpr, OK: "1", Text: "Entirely new key\n"}}}
	if _, err := db.RecordImport(imp, "alice.asc"); err != nil {
		t.Fatalf("RecordImport: %v", err)
	}

	if err := db.DeleteKey(catalogFpr); err != nil {
		t.Fatalf("DeleteKey: %v", err)
	}
	keys, err := db.GetAllKeys()
	if err != nil || len(keys) != 0 {
		t.Errorf("GetAllKeys = %d keys, %v, want 0", len(keys), err)
	}
	hist, err := db.GetImports(catalogFpr)
	if err != nil || len(hist) != 1 {
		t.Errorf("GetImports = %d records, %v, want 1", len(hist), err)
	}
}

func TestRecordImport(t *testing.T) {
	// WHY: Import outcomes are recorded per key; entries with no fingerprint (NODATA) have nothing to key on.
	t.Parallel()
	db := newTestDB(t)
	imp := &gpgkit.ImportResult{Results: []gpgkit.ImportStatus{
		{Fingerprint: catalogFpr, OK: "1", Text: "Entirely new key\n"},
		{Fingerprint: "<unknown>", Problem: "1", Text: "Invalid Certificate"},
		{Text: "No valid data found"},
	}}

	n, err := db.RecordImport(imp, "keys.asc")
	if err != nil {
		t.Fatalf("RecordImport: %v", err)
	}
	if n != 2 {
		t.Errorf("RecordImport stored %d, want 2", n)
	}

	all, err := db.GetImports("")
	if err != nil {
		t.Fatalf("GetImports: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("GetImports returned %d, want 2", len(all))
	}
	if all[0].Fingerprint != catalogFpr || all[0].OKReason != "1" || all[0].Source != "keys.asc" {
		t.Errorf("first import = %+v", all[0])
	}
	if all[1].Problem != "1" || all[1].OKReason != "" {
		t.Errorf("second import = %+v", all[1])
	}
}

func TestGetCatalogSummary(t *testing.T) {
	// WHY: The summary drives the catalog report; expiry must be judged against the supplied clock.
	t.Parallel()
	db := newTestDB(t)
	if _, err := db.RecordKeys(sampleListing(), true); err != nil {
		t.Fatalf("RecordKeys: %v", err)
	}
	imp := &gpgkit.ImportResult{Results: []gpgkit.ImportStatus{
		{Fingerprint: catalogFpr, OK: "0", Text: "Not actually changed\n"},
		{Fingerprint: "<unknown>", Problem: "2", Text: "Issuer Certificate missing"},
	}}
	if _, err := db.RecordImport(imp, "stdin"); err != nil {
		t.Fatalf("RecordImport: %v", err)
	}

	before, err := db.GetCatalogSummary(time.Unix(1700000001, 0))
	if err != nil {
		t.Fatalf("GetCatalogSummary: %v", err)
	}
	want := CatalogSummary{Keys: 1, SecretKeys: 1, Expired: 0, Imports: 2, Problems: 1}
	if diff := cmp.Diff(want, *before); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}

	after, err := db.GetCatalogSummary(time.Unix(1800000000, 0))
	if err != nil {
		t.Fatalf("GetCatalogSummary: %v", err)
	}
	if after.Expired != 1 {
		t.Errorf("Expired = %d after expiry, want 1", after.Expired)
	}
}

func TestSaveAndLoadFromDisk(t *testing.T) {
	// WHY: The catalog lives in memory; persistence must round-trip both tables and saving twice must overwrite.
	t.Parallel()
	path := filepath.Join(t.TempDir(), "catalog.db")

	db := newTestDB(t)
	if _, err := db.RecordKeys(sampleListing(), false); err != nil {
		t.Fatalf("RecordKeys: %v", err)
	}
	imp := &gpgkit.ImportResult{Results: []gpgkit.ImportStatus{{Fingerprint: catalogFpr, OK: "1"}}}
	if _, err := db.RecordImport(imp, "alice.asc"); err != nil {
		t.Fatalf("RecordImport: %v", err)
	}
	if err := db.SaveToDisk(path); err != nil {
		t.Fatalf("SaveToDisk: %v", err)
	}
	if err := db.SaveToDisk(path); err != nil {
		t.Fatalf("SaveToDisk over existing file: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}

	loaded, err := NewDB(path)
	if err != nil {
		t.Fatalf("NewDB(%s): %v", path, err)
	}
	defer loaded.Close()

	key, err := loaded.GetKey(catalogFpr)
	if err != nil || key == nil {
		t.Fatalf("GetKey after load = %v, %v", key, err)
	}
	hist, err := loaded.GetImports(catalogFpr)
	if err != nil || len(hist) != 1 || hist[0].Source != "alice.asc" {
		t.Errorf("GetImports after load = %+v, %v", hist, err)
	}
}

func TestNewDB_MissingFileStartsEmpty(t *testing.T) {
	// WHY: The first run has no catalog file yet; that is not an error.
	t.Parallel()
	db, err := NewDB(filepath.Join(t.TempDir(), "absent.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()
	keys, err := db.GetAllKeys()
	if err != nil || len(keys) != 0 {
		t.Errorf("GetAllKeys = %d, %v", len(keys), err)
	}
}

func TestParseListingTime(t *testing.T) {
	// WHY: gpg writes epoch seconds by default and ISO dates under some options; both must parse.
	t.Parallel()
	got, err := ParseListingTime("2024-03-09")
	if err != nil || got == nil || !got.Equal(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ParseListingTime(ISO) = %v, %v", got, err)
	}
	got, err = ParseListingTime("")
	if err != nil || got != nil {
		t.Errorf("ParseListingTime(\"\") = %v, %v, want nil", got, err)
	}
	if _, err := ParseListingTime("soon"); err == nil {
		t.Error("ParseListingTime(soon) succeeded, want error")
	}
}
