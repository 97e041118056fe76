package gpgkit

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
)

// knownOptions is every long option gpg understands. The allow-list must be a
// subset of it.
const knownOptions = `
--allow-freeform-uid              --multifile
--allow-multiple-messages         --no
--allow-multisig-verification     --no-allow-freeform-uid
--allow-non-selfsigned-uid        --no-allow-multiple-messages
--allow-secret-key-import         --no-allow-non-selfsigned-uid
--always-trust                    --no-armor
--armor                           --no-armour
--armour                          --no-ask-cert-expire
--ask-cert-expire                 --no-ask-cert-level
--ask-cert-level                  --no-ask-sig-expire
--ask-sig-expire                  --no-auto-check-trustdb
--attribute-fd                    --no-auto-key-locate
--attribute-file                  --no-auto-key-retrieve
--auto-check-trustdb              --no-batch
--auto-key-locate                 --no-comments
--auto-key-retrieve               --no-default-keyring
--batch                           --no-default-recipient
--bzip2-compress-level            --no-disable-mdc
--bzip2-decompress-lowmem         --no-emit-version
--card-edit                       --no-encrypt-to
--card-status                     --no-escape-from-lines
--cert-digest-algo                --no-expensive-trust-checks
--cert-notation                   --no-expert
--cert-policy-url                 --no-force-mdc
--change-pin                      --no-force-v3-sigs
--charset                         --no-force-v4-certs
--check-sig                       --no-for-your-eyes-only
--check-sigs                      --no-greeting
--check-trustdb                   --no-groups
--cipher-algo                     --no-literal
--clearsign                       --no-mangle-dos-filenames
--command-fd                      --no-mdc-warning
--command-file                    --no-options
--comment                         --no-permission-warning
--completes-needed                --no-pgp2
--compress-algo                   --no-pgp6
--compression-algo                --no-pgp7
--compress-keys                   --no-pgp8
--compress-level                  --no-random-seed-file
--compress-sigs                   --no-require-backsigs
--ctapi-driver                    --no-require-cross-certification
--dearmor                         --no-require-secmem
--dearmour                        --no-rfc2440-text
--debug                           --no-secmem-warning
--debug-all                       --no-show-notation
--debug-ccid-driver               --no-show-photos
--debug-level                     --no-show-policy-url
--decrypt                         --no-sig-cache
--decrypt-files                   --no-sig-create-check
--default-cert-check-level        --no-sk-comments
--default-cert-expire             --no-strict
--default-cert-level              --notation-data
--default-comment                 --not-dash-escaped
--default-key                     --no-textmode
--default-keyserver-url           --no-throw-keyid
--default-preference-list         --no-throw-keyids
--default-recipient               --no-tty
--default-recipient-self          --no-use-agent
--default-sig-expire              --no-use-embedded-filename
--delete-keys                     --no-utf8-strings
--delete-secret-and-public-keys   --no-verbose
--delete-secret-keys              --no-version
--desig-revoke                    --openpgp
--detach-sign                     --options
--digest-algo                     --output
--disable-ccid                    --override-session-key
--disable-cipher-algo             --passphrase
--disable-dsa2                    --passphrase-fd
--disable-mdc                     --passphrase-file
--disable-pubkey-algo             --passphrase-repeat
--display                         --pcsc-driver
--display-charset                 --personal-cipher-preferences
--dry-run                         --personal-cipher-prefs
--dump-options                    --personal-compress-preferences
--edit-key                        --personal-compress-prefs
--emit-version                    --personal-digest-preferences
--enable-dsa2                     --personal-digest-prefs
--enable-progress-filter          --pgp2
--enable-special-filenames        --pgp6
--enarmor                         --pgp7
--enarmour                        --pgp8
--encrypt                         --photo-viewer
--encrypt-files                   --pipemode
--encrypt-to                      --preserve-permissions
--escape-from-lines               --primary-keyring
--exec-path                       --print-md
--exit-on-status-write-error      --print-mds
--expert                          --quick-random
--export                          --quiet
--export-options                  --reader-port
--export-ownertrust               --rebuild-keydb-caches
--export-secret-keys              --recipient
--export-secret-subkeys           --recv-keys
--fast-import                     --refresh-keys
--fast-list-mode                  --remote-user
--fetch-keys                      --require-backsigs
--fingerprint                     --require-cross-certification
--fixed-list-mode                 --require-secmem
--fix-trustdb                     --rfc1991
--force-mdc                       --rfc2440
--force-ownertrust                --rfc2440-text
--force-v3-sigs                   --rfc4880
--force-v4-certs                  --run-as-shm-coprocess
--for-your-eyes-only              --s2k-cipher-algo
--gen-key                         --s2k-count
--gen-prime                       --s2k-digest-algo
--gen-random                      --s2k-mode
--gen-revoke                      --search-keys
--gnupg                           --secret-keyring
--gpg-agent-info                  --send-keys
--gpgconf-list                    --set-filename
--gpgconf-test                    --set-filesize
--group                           --set-notation
--help                            --set-policy-url
--hidden-encrypt-to               --show-keyring
--hidden-recipient                --show-notation
--homedir                         --show-photos
--honor-http-proxy                --show-policy-url
--ignore-crc-error                --show-session-key
--ignore-mdc-error                --sig-keyserver-url
--ignore-time-conflict            --sign
--ignore-valid-from               --sign-key
--import                          --sig-notation
--import-options                  --sign-with
--import-ownertrust               --sig-policy-url
--interactive                     --simple-sk-checksum
--keyid-format                    --sk-comments
--keyring                         --skip-verify
--keyserver                       --status-fd
--keyserver-options               --status-file
--lc-ctype                        --store
--lc-messages                     --strict
--limit-card-insert-tries         --symmetric
--list-config                     --temp-directory
--list-key                        --textmode
--list-keys                       --throw-keyid
--list-only                       --throw-keyids
--list-options                    --trustdb-name
--list-ownertrust                 --trusted-key
--list-packets                    --trust-model
--list-public-keys                --try-all-secrets
--list-secret-keys                --ttyname
--list-sig                        --ttytype
--list-sigs                       --ungroup
--list-trustdb                    --update-trustdb
--load-extension                  --use-agent
--local-user                      --use-embedded-filename
--lock-multiple                   --user
--lock-never                      --utf8-strings
--lock-once                       --verbose
--logger-fd                       --verify
--logger-file                     --verify-files
--lsign-key                       --verify-options
--mangle-dos-filenames            --version
--marginals-needed                --warranty
--max-cert-depth                  --with-colons
--max-output                      --with-fingerprint
--merge-only                      --with-key-data
--min-cert-level                  --yes
--pinentry-mode
`

var defaultAllowed = []string{
	"--list-packets", "--delete-keys", "--delete-secret-keys",
	"--encrypt", "--print-mds", "--print-md", "--sign",
	"--encrypt-files", "--gen-key", "--decrypt", "--decrypt-files",
	"--list-keys", "--import", "--verify", "--version",
	"--status-fd", "--no-tty", "--homedir", "--no-default-keyring",
	"--keyring", "--passphrase-fd", "--fingerprint", "--with-colons",

	// used by the operation methods on GPG
	"--recipient", "--armor", "--batch", "--yes", "--symmetric",
	"--always-trust", "--default-key", "--clearsign", "--detach-sign",
	"--output", "--export", "--export-secret-keys", "--list-secret-keys",
	"--fixed-list-mode", "--use-agent", "--keyserver", "--recv-keys",
	"--secret-keyring", "--pinentry-mode", "--no-emit-version",
	"--throw-keyids", "--verify-files",
}

// fileFlags take values that must name an existing, non-empty file.
var fileFlags = map[string]bool{
	"--encrypt":        true,
	"--encrypt-files":  true,
	"--decrypt":        true,
	"--decrypt-files":  true,
	"--import":         true,
	"--verify":         true,
	"--verify-files":   true,
	"--keyring":        true,
	"--secret-keyring": true,
	"--homedir":        true,
}

// KnownOptions returns every long option gpg is known to accept.
func KnownOptions() []string {
	return strings.Fields(knownOptions)
}

// DefaultAllowedOptions returns the options forwarded to gpg by default.
// Returns a fresh copy each call.
func DefaultAllowedOptions() []string {
	return slices.Clone(defaultAllowed)
}

// Sanitizer filters argument vectors against an allow-list of gpg options.
// It is immutable after construction and safe for concurrent use.
type Sanitizer struct {
	allowed map[string]bool
	logger  *slog.Logger
}

// NewSanitizer builds a Sanitizer. It fails with ErrConfig if any entry of
// allowed is not a known gpg option. A nil logger uses slog.Default().
func NewSanitizer(allowed []string, logger *slog.Logger) (*Sanitizer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	known := make(map[string]bool)
	for _, opt := range KnownOptions() {
		known[opt] = true
	}

	var unknown []string
	set := make(map[string]bool, len(allowed))
	for _, opt := range allowed {
		if !known[opt] {
			unknown = append(unknown, opt)
			continue
		}
		set[opt] = true
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: allowed options are not a subset of known options, difference: %s",
			ErrConfig, strings.Join(unknown, " "))
	}
	return &Sanitizer{allowed: set, logger: logger}, nil
}

// Allowed normalizes an option name and checks it against the allow-list.
// Attribute-style names ("list_keys") become flags ("--list-keys"). Returns
// the normalized flag, or an error wrapping ErrProtectedOption.
func (s *Sanitizer) Allowed(option string) (string, error) {
	flag := option
	if strings.Contains(flag, "_") {
		flag = Hyphenate(strings.TrimLeft(flag, "-"), true)
	}
	if !s.allowed[flag] {
		return "", fmt.Errorf("%w: option %s not supported", ErrProtectedOption, ShellQuote(flag))
	}
	return flag, nil
}

// Sanitize turns tokens into an argument vector containing only allowed
// options. A token starting with "-" that contains whitespace is split into
// words. Each flag owns the non-flag words that follow it. Disallowed flags
// are dropped together with their values. Values of file-consuming flags
// must be "-" (stdin) or name an existing, non-empty file; others are dropped.
func (s *Sanitizer) Sanitize(tokens ...string) []string {
	var words []string
	for _, tok := range tokens {
		if isFlag(tok) && strings.ContainsAny(tok, " \t\r\n") {
			words = append(words, strings.Fields(tok)...)
			continue
		}
		if tok != "" {
			words = append(words, tok)
		}
	}

	var out []string
	for i := 0; i < len(words); {
		flag := words[i]
		i++
		if !isFlag(flag) && !isAttributeName(flag) {
			s.logger.Debug("dropping non-flag argument", "arg", ShellQuote(flag))
			continue
		}

		var values []string
		if name, value, ok := strings.Cut(flag, "="); ok && isFlag(flag) {
			flag = name
			if value != "" {
				values = append(values, value)
			}
		}
		for i < len(words) && !isFlag(words[i]) {
			values = append(values, words[i])
			i++
		}
		out = append(out, s.checkArgAndValues(flag, values)...)
	}
	return out
}

func (s *Sanitizer) checkArgAndValues(arg string, values []string) []string {
	flag, err := s.Allowed(arg)
	if err != nil {
		s.logger.Warn("dropping option", "option", ShellQuote(arg), "error", err)
		return nil
	}

	safe := []string{flag}
	for _, value := range values {
		if fileFlags[flag] {
			if value != "-" && !isNonEmptyFile(value) {
				s.logger.Debug("got non-filename for option", "option", flag, "value", ShellQuote(value))
				continue
			}
		} else {
			s.logger.Debug("got non-checked value", "option", flag, "value", ShellQuote(value))
		}
		safe = append(safe, value)
	}
	return safe
}

func isFlag(s string) bool {
	return len(s) > 1 && s[0] == '-'
}

var attributeName = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)+$`)

func isAttributeName(s string) bool {
	return attributeName.MatchString(s)
}

// isNonEmptyFile reports whether path exists and has a size greater than
// zero, without following a final symlink.
func isNonEmptyFile(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return info.Size() > 0
}

// Hyphenate changes underscores to hyphens so attribute names map onto gpg
// option names. With addPrefix it also prepends "--".
func Hyphenate(s string, addPrefix bool) string {
	out := strings.ReplaceAll(s, "_", "-")
	if addPrefix {
		return "--" + out
	}
	return out
}

// Underscore is the inverse of Hyphenate. With removePrefix it strips the
// leading hyphens.
func Underscore(s string, removePrefix bool) string {
	if removePrefix {
		s = strings.TrimLeft(s, "-")
	}
	return strings.ReplaceAll(s, "-", "_")
}

// ShellQuote wraps s in single quotes if it contains any character outside
// [A-Za-z0-9@%+=:,./_-]. Embedded single quotes become '"'"'.
func ShellQuote(s string) string {
	for _, r := range s {
		if !isShellSafe(r) {
			return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
		}
	}
	return s
}

func isShellSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("@%+=:,./-_", r)
}
