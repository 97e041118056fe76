package gpgkit

import "errors"

var (
	// ErrConfig is returned by New when the binary, home directory, keyrings,
	// or allow-list cannot be used.
	ErrConfig = errors.New("gpgkit configuration error")

	// ErrProtectedOption marks an option that is not in the allow-list. The
	// option is dropped; the enclosing call continues.
	ErrProtectedOption = errors.New("protected option")

	// ErrUnknownStatus is returned when a status keyword reaches a result that
	// has no case for it, which usually means a gpg version mismatch.
	ErrUnknownStatus = errors.New("unknown status message")

	// ErrMalformedStatus is returned when a known keyword carries a value with
	// too few fields.
	ErrMalformedStatus = errors.New("malformed status message")

	// ErrNoCurrentKey is returned when a uid, fpr, or sub record arrives
	// before any pub or sec record in a key listing.
	ErrNoCurrentKey = errors.New("no current key")

	// ErrInvalidArgument is returned when a key ID, recipient, keyserver or
	// passphrase handed to an operation could be misread by gpg: empty values,
	// values starting with "-", and passphrases spanning more than one line.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrExitStatus is returned when the gpg version check exits non-zero.
	ErrExitStatus = errors.New("gpg exited with non-zero status")
)
