package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/sensiblebit/gpgkit"
	"github.com/sensiblebit/gpgkit/internal"
	"github.com/spf13/cobra"
)

var (
	encryptRecipients  []string
	encryptSymmetric   bool
	encryptSign        string
	encryptAlwaysTrust bool
	encryptBinary      bool
	encryptOutput      string
	encryptPassphrase  internal.PassphraseSource

	decryptAlwaysTrust bool
	decryptOutput      string
	decryptPassphrase  internal.PassphraseSource
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt [file]",
	Short: "Encrypt data to recipients or with a passphrase",
	Long:  "Encrypt a file, or stdin, to one or more recipients. With --symmetric the passphrase is the only secret.",
	Example: `  gpgkit encrypt -r alice@example.com report.pdf -o report.pdf.asc
  tar c dir | gpgkit encrypt -r 0x0123456789ABCDEF --binary > dir.tar.gpg
  gpgkit encrypt --symmetric --passphrase-env BACKUP_PASS < db.dump > db.dump.asc`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEncrypt,
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt [file]",
	Short: "Decrypt data",
	Long:  "Decrypt a file, or stdin. Signatures on the message are checked and reported on stderr.",
	Example: `  gpgkit decrypt report.pdf.asc -o report.pdf
  gpgkit decrypt --passphrase-keyring backup < db.dump.asc > db.dump`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecrypt,
}

func init() {
	encryptCmd.Flags().StringSliceVarP(&encryptRecipients, "recipient", "r", nil, "Recipient key ID, fingerprint or email (repeatable)")
	encryptCmd.Flags().BoolVar(&encryptSymmetric, "symmetric", false, "Encrypt with a passphrase only")
	encryptCmd.Flags().StringVar(&encryptSign, "sign", "", "Also sign with this key")
	encryptCmd.Flags().BoolVar(&encryptAlwaysTrust, "always-trust", false, "Skip recipient key validation")
	encryptCmd.Flags().BoolVar(&encryptBinary, "binary", false, "Write binary OpenPGP instead of ASCII armor")
	encryptCmd.Flags().StringVarP(&encryptOutput, "output", "o", "", "Output file (default: stdout)")
	encryptCmd.MarkFlagsMutuallyExclusive("recipient", "symmetric")
	addPassphraseFlags(encryptCmd.Flags(), &encryptPassphrase)
	registerPassphraseCompletion(encryptCmd)
	registerCompletion(encryptCmd, completionInput{"output", fileCompletion})

	decryptCmd.Flags().BoolVar(&decryptAlwaysTrust, "always-trust", false, "Skip signer key validation")
	decryptCmd.Flags().StringVarP(&decryptOutput, "output", "o", "", "Output file (default: stdout)")
	addPassphraseFlags(decryptCmd.Flags(), &decryptPassphrase)
	registerPassphraseCompletion(decryptCmd)
	registerCompletion(decryptCmd, completionInput{"output", fileCompletion})
}

func runEncrypt(cmd *cobra.Command, args []string) error {
	if !encryptSymmetric && len(encryptRecipients) == 0 {
		return errors.New("at least one --recipient or --symmetric is required")
	}
	passphrase, err := encryptPassphrase.Resolve("Passphrase: ")
	if err != nil {
		return err
	}
	if encryptSymmetric && passphrase == "" {
		return errors.New("--symmetric needs a passphrase source")
	}

	g, err := newGPG(cmd)
	if err != nil {
		return err
	}
	in, err := openInput(firstArg(args))
	if err != nil {
		return err
	}
	defer in.Close()

	result, err := g.Encrypt(cmd.Context(), in, gpgkit.EncryptOptions{
		Recipients:  encryptRecipients,
		Symmetric:   encryptSymmetric,
		Sign:        encryptSign,
		Passphrase:  passphrase,
		AlwaysTrust: encryptAlwaysTrust,
		Binary:      encryptBinary,
	})
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("encryption failed: %s", failureText(result.Status, result.Stderr))
	}
	return writeOutput(encryptOutput, result.Data, encryptBinary)
}

func runDecrypt(cmd *cobra.Command, args []string) error {
	passphrase, err := decryptPassphrase.Resolve("Passphrase: ")
	if err != nil {
		return err
	}
	g, err := newGPG(cmd)
	if err != nil {
		return err
	}
	in, err := openInput(firstArg(args))
	if err != nil {
		return err
	}
	defer in.Close()

	result, err := g.Decrypt(cmd.Context(), in, gpgkit.DecryptOptions{
		Passphrase:  passphrase,
		AlwaysTrust: decryptAlwaysTrust,
	})
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("decryption failed: %s", failureText(result.Status, result.Stderr))
	}
	if result.Fingerprint != "" || result.KeyID != "" {
		if err := internal.FormatVerification(os.Stderr, result.Verification); err != nil {
			slog.Warn("writing signature report", "error", err)
		}
	}
	return writeOutput(decryptOutput, result.Data, looksBinary(result.Data))
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// failureText prefers gpg's status text and falls back to its stderr.
func failureText(status, stderr string) string {
	if status != "" {
		return status
	}
	if stderr != "" {
		return stderr
	}
	return "no status reported"
}
