package gpgkit

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const colonListing = `tru::1:1704153600:0:3:1:5
pub:u:2048:1:89ABCDEF01234567:1704153600:::u:::scESC::::::23::0:
fpr:::::::::` + testFpr + `:
uid:u::::1704153600::HASH1::Alice Example <alice@example.com>::::::::::0:
uid:u::::1704153600::HASH2::J\xc3\xa9r\xc3\xb4me \x3cjerome@example.com\x3e::::::::::0:
sub:u:2048:1:FEDCBA9876543210:1704153600::::::e::::::23:
fpr:::::::::` + testSubFpr + `:
pub:-:4096:1:1111222233334444:1600000000:1700000000::-:Legacy Key <legacy@example.com>::sc::::::::0:

pub:u:1024:17:5555666677778888:1500000000:::u:::sc:
`

func TestListKeysResult_ParsesColonListing(t *testing.T) {
	// WHY: Key listings are parsed from colon records in order; subkey fingerprints must not leak into the primary fingerprint list and parsing stops at the first blank line.
	t.Parallel()
	r := &ListKeysResult{}
	if err := r.parseRecords(colonListing); err != nil {
		t.Fatalf("parseRecords: %v", err)
	}

	want := []KeyInfo{
		{
			Type: "pub", Trust: "u", Length: "2048", Algorithm: "1", KeyID: "89ABCDEF01234567",
			Date: "1704153600", OwnerTrust: "u",
			UIDs: []string{"Alice Example <alice@example.com>", "Jérôme <jerome@example.com>"},
			Subkeys: []Subkey{
				{KeyID: "FEDCBA9876543210", Algorithm: "1", Capabilities: "e", Fingerprint: testSubFpr},
			},
			Fingerprint: testFpr,
		},
		{
			Type: "pub", Trust: "-", Length: "4096", Algorithm: "1", KeyID: "1111222233334444",
			Date: "1600000000", Expires: "1700000000", OwnerTrust: "-",
			UIDs: []string{"Legacy Key <legacy@example.com>"},
		},
	}
	if diff := cmp.Diff(want, r.Keys, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{testFpr}, r.Fingerprints); diff != "" {
		t.Errorf("Fingerprints mismatch (-want +got):\n%s", diff)
	}
	if len(r.UIDs) != 2 {
		t.Errorf("UIDs = %q, want 2 entries", r.UIDs)
	}
}

func TestListKeysResult_StrayRecordsFail(t *testing.T) {
	// WHY: uid, fpr and sub records describe the current key; arriving before any pub or sec record is a protocol error, not something to attach arbitrarily.
	t.Parallel()
	for _, rec := range []string{"uid", "fpr", "sub", "ssb"} {
		r := &ListKeysResult{}
		fields := []string{rec, "u", "", "1", "ABCD", "", "", "", "", "value", "", "e"}
		if err := r.HandleRecord(fields); !errors.Is(err, ErrNoCurrentKey) {
			t.Errorf("HandleRecord(%s) error = %v, want ErrNoCurrentKey", rec, err)
		}
	}
}

func TestListKeysResult_ShortRecord(t *testing.T) {
	// WHY: A truncated record must be reported rather than indexed past its end.
	t.Parallel()
	r := &ListKeysResult{}
	if err := r.HandleRecord([]string{"pub", "u", "2048"}); !errors.Is(err, ErrMalformedStatus) {
		t.Errorf("HandleRecord(short pub) error = %v, want ErrMalformedStatus", err)
	}
	if err := r.HandleRecord([]string{"grp", "x"}); err != nil {
		t.Errorf("HandleRecord(grp) = %v, want nil for skipped record type", err)
	}
}

func TestListKeysResult_IgnoresStatus(t *testing.T) {
	// WHY: Listings carry their data on stdout; whatever status lines gpg emits must not abort the call.
	t.Parallel()
	r := &ListKeysResult{}
	if err := r.HandleStatus("KEY_CONSIDERED", testFpr); err != nil {
		t.Errorf("HandleStatus = %v, want nil", err)
	}
}

func TestDecodeUID(t *testing.T) {
	// WHY: gpg escapes colons and non-ASCII bytes in uids as \xHH; they must be restored byte for byte.
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{`a\x3ab`, "a:b"},
		{`caf\xc3\xa9`, "café"},
		{`bad\xZZ`, `bad\xZZ`},
	}
	for _, tt := range tests {
		if got := decodeUID(tt.in); got != tt.want {
			t.Errorf("decodeUID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
