// Package gpgkit drives the gpg executable as a subprocess and turns its
// status-fd protocol into typed results for encryption, signing, verification
// and keyring management.
package gpgkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Config configures a GPG. The zero value runs "gpg" from PATH against the
// user's default home directory and keyrings.
type Config struct {
	// Binary is the gpg executable, either a name looked up on PATH or a path.
	// Defaults to "gpg".
	Binary string
	// Home is passed as --homedir. It is created with mode 0700 if missing.
	Home string
	// Keyring and SecretKeyring replace the default keyrings. Relative paths
	// are resolved against Home. Missing files are created empty.
	Keyring       string
	SecretKeyring string
	// UseAgent adds --use-agent to every call.
	UseAgent bool
	// Options are extra global options, sanitized once at construction.
	Options []string
	// AllowedOptions overrides DefaultAllowedOptions.
	AllowedOptions []string
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// GPG runs gpg operations. It is immutable after New and safe for concurrent
// use; concurrent calls that modify the same keyring rely on gpg's locking.
type GPG struct {
	binary        string
	home          string
	keyring       string
	secretKeyring string
	useAgent      bool
	options       []string
	sanitizer     *Sanitizer
	logger        *slog.Logger

	version string
	// modern is set for gpg 2.1 and later, which needs loopback pinentry to
	// accept a passphrase on stdin.
	modern bool
}

// New resolves the gpg binary, prepares the home directory and keyrings, and
// runs gpg --version. Every failure wraps ErrConfig.
func New(ctx context.Context, cfg Config) (*GPG, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	allowed := cfg.AllowedOptions
	if allowed == nil {
		allowed = DefaultAllowedOptions()
	}
	sanitizer, err := NewSanitizer(allowed, logger)
	if err != nil {
		return nil, err
	}

	g := &GPG{
		useAgent:  cfg.UseAgent,
		sanitizer: sanitizer,
		logger:    logger,
	}

	binary := cfg.Binary
	if binary == "" {
		binary = "gpg"
	}
	if g.binary, err = resolveBinary(binary); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	if cfg.Home != "" {
		if g.home, err = prepareHome(cfg.Home); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
	}
	if cfg.Keyring != "" {
		if g.keyring, err = prepareKeyring(g.home, cfg.Keyring); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
	}
	if cfg.SecretKeyring != "" {
		if g.secretKeyring, err = prepareKeyring(g.home, cfg.SecretKeyring); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
	}
	g.options = sanitizer.Sanitize(cfg.Options...)

	if err := g.checkVersion(ctx); err != nil {
		return nil, err
	}
	logger.Debug("gpg ready", "binary", g.binary, "version", g.version, "home", g.home)
	return g, nil
}

// resolveBinary returns the absolute, symlink-free path of an executable.
func resolveBinary(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("locating gpg binary %q: %w", name, err)
	}
	if path, err = filepath.Abs(path); err != nil {
		return "", fmt.Errorf("resolving gpg binary %q: %w", name, err)
	}
	if path, err = filepath.EvalSymlinks(path); err != nil {
		return "", fmt.Errorf("resolving gpg binary %q: %w", name, err)
	}
	if err := unix.Access(path, unix.X_OK); err != nil {
		return "", fmt.Errorf("gpg binary %s is not executable: %w", path, err)
	}
	return path, nil
}

func prepareHome(home string) (string, error) {
	abs, err := filepath.Abs(home)
	if err != nil {
		return "", fmt.Errorf("resolving home directory %q: %w", home, err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return "", fmt.Errorf("creating home directory: %w", err)
	}
	if err := unix.Access(abs, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return "", fmt.Errorf("home directory %s is not accessible: %w", abs, err)
	}
	return abs, nil
}

// prepareKeyring creates an empty keyring file if needed and checks that it
// is readable and writable.
func prepareKeyring(home, name string) (string, error) {
	path := name
	if !filepath.IsAbs(path) && home != "" {
		path = filepath.Join(home, path)
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving keyring %q: %w", name, err)
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return "", fmt.Errorf("creating keyring: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("creating keyring: %w", err)
		}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
		return "", fmt.Errorf("keyring %s is not readable and writable: %w", path, err)
	}
	return path, nil
}

// versionResult accepts any status; gpg --version emits none.
type versionResult struct {
	Output
}

func (r *versionResult) HandleStatus(keyword, value string) error {
	return nil
}

var versionLine = regexp.MustCompile(`^gpg \(GnuPG[^)]*\) (\d+(?:\.\d+)*)`)

func (g *GPG) checkVersion(ctx context.Context) error {
	var result versionResult
	if err := g.run(ctx, []string{"--version"}, nil, &result, ""); err != nil {
		return fmt.Errorf("%w: running gpg --version: %w", ErrConfig, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: %w: gpg --version exited with %d: %s",
			ErrConfig, ErrExitStatus, result.ExitCode, strings.TrimSpace(result.Stderr))
	}

	first, _, _ := strings.Cut(string(result.Data), "\n")
	m := versionLine.FindStringSubmatch(strings.TrimSpace(first))
	if m == nil {
		g.logger.Warn("unrecognized gpg version output", "line", first)
		return nil
	}
	g.version = m[1]
	g.modern = versionAtLeast(g.version, 2, 1)
	return nil
}

// versionAtLeast compares the first two components of a dotted version.
func versionAtLeast(version string, major, minor int) bool {
	parts := strings.Split(version, ".")
	maj, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	if maj != major {
		return maj > major
	}
	if len(parts) < 2 {
		return minor == 0
	}
	mnr, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}
	return mnr >= minor
}

// Version returns the gpg version reported at construction, for example
// "2.2.40", or "" if it could not be parsed.
func (g *GPG) Version() string {
	return g.version
}

// Binary returns the resolved path of the gpg executable.
func (g *GPG) Binary() string {
	return g.binary
}

// EncryptOptions controls Encrypt.
type EncryptOptions struct {
	Recipients []string
	// Symmetric encrypts with Passphrase only.
	Symmetric bool
	// Sign names a key to sign with as well.
	Sign string
	// Passphrase unlocks the signing key, or is the symmetric secret.
	Passphrase  string
	AlwaysTrust bool
	// Binary writes binary OpenPGP instead of ASCII armor.
	Binary bool
}

// Encrypt encrypts data to the recipients, or symmetrically.
func (g *GPG) Encrypt(ctx context.Context, data io.Reader, opts EncryptOptions) (*CryptResult, error) {
	if !opts.Symmetric {
		if err := checkOperands("recipient", opts.Recipients...); err != nil {
			return nil, fmt.Errorf("encrypting: %w", err)
		}
	}
	if opts.Sign != "" {
		if err := checkOperands("signing key", opts.Sign); err != nil {
			return nil, fmt.Errorf("encrypting: %w", err)
		}
	}
	var args []string
	if opts.Symmetric {
		args = append(args, "--symmetric")
	} else {
		args = append(args, "--encrypt")
		for _, r := range opts.Recipients {
			args = append(args, "--recipient", r)
		}
	}
	if !opts.Binary {
		args = append(args, "--armor")
	}
	if opts.Sign != "" {
		args = append(args, "--sign", "--default-key", opts.Sign)
	}
	if opts.AlwaysTrust {
		args = append(args, "--always-trust")
	}

	result := &CryptResult{}
	if err := g.run(ctx, args, data, result, opts.Passphrase); err != nil {
		return nil, fmt.Errorf("encrypting: %w", err)
	}
	return result, nil
}

// DecryptOptions controls Decrypt.
type DecryptOptions struct {
	Passphrase  string
	AlwaysTrust bool
}

// Decrypt decrypts data. Signatures on the message are checked and reported
// in the result's Verification.
func (g *GPG) Decrypt(ctx context.Context, data io.Reader, opts DecryptOptions) (*CryptResult, error) {
	args := []string{"--decrypt"}
	if opts.AlwaysTrust {
		args = append(args, "--always-trust")
	}
	result := &CryptResult{}
	if err := g.run(ctx, args, data, result, opts.Passphrase); err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return result, nil
}

// SignMode selects the signature form.
type SignMode int

const (
	// SignClear produces a cleartext-signed message.
	SignClear SignMode = iota
	// SignDetached produces a signature without the message.
	SignDetached
	// SignAttached produces an opaque signed message.
	SignAttached
)

// SignOptions controls Sign.
type SignOptions struct {
	// KeyID selects the signing key; empty uses gpg's default key.
	KeyID      string
	Passphrase string
	Mode       SignMode
	// Binary writes binary OpenPGP instead of ASCII armor. Ignored for
	// SignClear.
	Binary bool
}

// Sign signs data.
func (g *GPG) Sign(ctx context.Context, data io.Reader, opts SignOptions) (*SignResult, error) {
	var args []string
	switch opts.Mode {
	case SignDetached:
		args = append(args, "--detach-sign")
	case SignAttached:
		args = append(args, "--sign")
	default:
		args = append(args, "--clearsign")
	}
	if !opts.Binary && opts.Mode != SignClear {
		args = append(args, "--armor")
	}
	if opts.KeyID != "" {
		if err := checkOperands("signing key", opts.KeyID); err != nil {
			return nil, fmt.Errorf("signing: %w", err)
		}
		args = append(args, "--default-key", opts.KeyID)
	}

	result := &SignResult{}
	if err := g.run(ctx, args, data, result, opts.Passphrase); err != nil {
		return nil, fmt.Errorf("signing: %w", err)
	}
	return result, nil
}

// Verify checks a signed message.
func (g *GPG) Verify(ctx context.Context, data io.Reader) (*VerifyResult, error) {
	result := &VerifyResult{}
	if err := g.run(ctx, []string{"--verify"}, data, result, ""); err != nil {
		return nil, fmt.Errorf("verifying: %w", err)
	}
	return result, nil
}

// VerifyDetached checks a detached signature over data. The signature is
// staged in a temporary file for the duration of the call.
func (g *GPG) VerifyDetached(ctx context.Context, signature []byte, data io.Reader) (*VerifyResult, error) {
	f, err := os.CreateTemp("", "gpgkit-sig-*")
	if err != nil {
		return nil, fmt.Errorf("creating signature file: %w", err)
	}
	defer func() { _ = os.Remove(f.Name()) }()
	if _, err := f.Write(signature); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("writing signature file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("writing signature file: %w", err)
	}

	result := &VerifyResult{}
	if err := g.run(ctx, []string{"--verify", f.Name(), "-"}, data, result, ""); err != nil {
		return nil, fmt.Errorf("verifying detached signature: %w", err)
	}
	return result, nil
}

// ImportKeys imports key material into the keyring.
func (g *GPG) ImportKeys(ctx context.Context, keyData io.Reader) (*ImportResult, error) {
	result := &ImportResult{}
	if err := g.run(ctx, []string{"--import"}, keyData, result, ""); err != nil {
		return nil, fmt.Errorf("importing keys: %w", err)
	}
	return result, nil
}

// RecvKeys fetches keys from a keyserver and imports them.
func (g *GPG) RecvKeys(ctx context.Context, keyserver string, keyIDs ...string) (*ImportResult, error) {
	if len(keyIDs) == 0 {
		return nil, errors.New("receiving keys: no key IDs given")
	}
	if err := checkOperands("keyserver", keyserver); err != nil {
		return nil, fmt.Errorf("receiving keys: %w", err)
	}
	if err := checkOperands("key ID", keyIDs...); err != nil {
		return nil, fmt.Errorf("receiving keys: %w", err)
	}
	args := append([]string{"--keyserver", keyserver, "--recv-keys"}, keyIDs...)
	result := &ImportResult{}
	if err := g.run(ctx, args, nil, result, ""); err != nil {
		return nil, fmt.Errorf("receiving keys: %w", err)
	}
	return result, nil
}

// checkOperands rejects caller values that the sanitizer would read as
// options, or that would leave the preceding option without its value.
func checkOperands(what string, values ...string) error {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: empty %s", ErrInvalidArgument, what)
		}
		if strings.HasPrefix(v, "-") {
			return fmt.Errorf("%w: %s %q starts with \"-\"", ErrInvalidArgument, what, v)
		}
	}
	return nil
}

// ExportOptions controls ExportKeys.
type ExportOptions struct {
	// Secret exports secret keys. gpg 2.1 and later require Passphrase.
	Secret     bool
	Passphrase string
	Binary     bool
}

// ExportKeys exports the named keys, or every key if keyIDs is empty.
func (g *GPG) ExportKeys(ctx context.Context, keyIDs []string, opts ExportOptions) (*ExportResult, error) {
	if err := checkOperands("key ID", keyIDs...); err != nil {
		return nil, fmt.Errorf("exporting keys: %w", err)
	}
	args := []string{"--export"}
	if opts.Secret {
		args = []string{"--export-secret-keys"}
	}
	if !opts.Binary {
		args = append(args, "--armor")
	}
	args = append(args, keyIDs...)

	result := &ExportResult{}
	if err := g.run(ctx, args, nil, result, opts.Passphrase); err != nil {
		return nil, fmt.Errorf("exporting keys: %w", err)
	}
	return result, nil
}

// ListKeys lists public keys, or secret keys when secret is set.
func (g *GPG) ListKeys(ctx context.Context, secret bool) (*ListKeysResult, error) {
	which := "--list-keys"
	if secret {
		which = "--list-secret-keys"
	}
	args := []string{which, "--fixed-list-mode", "--fingerprint", "--with-colons"}

	result := &ListKeysResult{}
	if err := g.run(ctx, args, nil, result, ""); err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	if err := result.parseRecords(string(result.Data)); err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	return result, nil
}

// DeleteKeys deletes keys by fingerprint. Secret keys must be deleted before
// their public keys.
func (g *GPG) DeleteKeys(ctx context.Context, fingerprints []string, secret bool) (*DeleteResult, error) {
	if len(fingerprints) == 0 {
		return nil, fmt.Errorf("deleting keys: %w: no fingerprints given", ErrInvalidArgument)
	}
	if err := checkOperands("fingerprint", fingerprints...); err != nil {
		return nil, fmt.Errorf("deleting keys: %w", err)
	}
	which := "--delete-keys"
	if secret {
		which = "--delete-secret-keys"
	}
	args := append([]string{"--batch", "--yes", which}, fingerprints...)

	result := newDeleteResult()
	if err := g.run(ctx, args, nil, result, ""); err != nil {
		return nil, fmt.Errorf("deleting keys: %w", err)
	}
	return result, nil
}

// GenKey generates a key from a control block built by GenKeyInput.
func (g *GPG) GenKey(ctx context.Context, input string) (*GenKeyResult, error) {
	result := &GenKeyResult{}
	if err := g.run(ctx, []string{"--gen-key", "--batch"}, strings.NewReader(input), result, ""); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return result, nil
}
