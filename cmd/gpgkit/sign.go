package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sensiblebit/gpgkit"
	"github.com/sensiblebit/gpgkit/internal"
	"github.com/spf13/cobra"
)

var (
	signKeyID      string
	signMode       string
	signBinary     bool
	signOutput     string
	signPassphrase internal.PassphraseSource

	verifySignature string
)

var signModes = map[string]gpgkit.SignMode{
	"clear":    gpgkit.SignClear,
	"detached": gpgkit.SignDetached,
	"attached": gpgkit.SignAttached,
}

var signCmd = &cobra.Command{
	Use:   "sign [file]",
	Short: "Sign data",
	Long: `Sign a file, or stdin. The default produces a cleartext-signed message;
--mode detached writes only the signature and --mode attached an opaque signed message.`,
	Example: `  gpgkit sign --key alice@example.com release.txt > release.txt.asc
  gpgkit sign --mode detached --passphrase-file ~/.sign-pass app.tar.gz -o app.tar.gz.sig`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSign,
}

var verifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Verify a signed message or a detached signature",
	Long: `Verify a signed message read from a file or stdin. With --signature the input is
the signed data and the named file holds the detached signature.`,
	Example: `  gpgkit verify release.txt.asc
  gpgkit verify --signature app.tar.gz.sig app.tar.gz`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	signCmd.Flags().StringVarP(&signKeyID, "key", "k", "", "Signing key (default: gpg's default key)")
	signCmd.Flags().StringVar(&signMode, "mode", "clear", "Signature form: clear, detached, attached")
	signCmd.Flags().BoolVar(&signBinary, "binary", false, "Write binary OpenPGP instead of ASCII armor (detached and attached only)")
	signCmd.Flags().StringVarP(&signOutput, "output", "o", "", "Output file (default: stdout)")
	addPassphraseFlags(signCmd.Flags(), &signPassphrase)
	registerPassphraseCompletion(signCmd)
	registerCompletion(signCmd, completionInput{"mode", fixedCompletion("clear", "detached", "attached")})
	registerCompletion(signCmd, completionInput{"output", fileCompletion})

	verifyCmd.Flags().StringVarP(&verifySignature, "signature", "s", "", "Detached signature file")
	registerCompletion(verifyCmd, completionInput{"signature", fileCompletion})
}

func runSign(cmd *cobra.Command, args []string) error {
	mode, ok := signModes[signMode]
	if !ok {
		return fmt.Errorf("invalid --mode %q (use clear, detached or attached)", signMode)
	}
	passphrase, err := signPassphrase.Resolve("Passphrase: ")
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

	result, err := g.Sign(cmd.Context(), in, gpgkit.SignOptions{
		KeyID:      signKeyID,
		Passphrase: passphrase,
		Mode:       mode,
		Binary:     signBinary,
	})
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("signing failed: %s", failureText(result.Status, result.Stderr))
	}
	slog.Debug("signature created", "fingerprint", result.Fingerprint, "hash_algorithm", result.HashAlgorithm)
	return writeOutput(signOutput, result.Data, signBinary && mode != gpgkit.SignClear)
}

func runVerify(cmd *cobra.Command, args []string) error {
	g, err := newGPG(cmd)
	if err != nil {
		return err
	}
	in, err := openInput(firstArg(args))
	if err != nil {
		return err
	}
	defer in.Close()

	var result *gpgkit.VerifyResult
	if verifySignature != "" {
		sig, err := readSignature(verifySignature)
		if err != nil {
			return err
		}
		result, err = g.VerifyDetached(cmd.Context(), sig, in)
		if err != nil {
			return err
		}
	} else {
		result, err = g.Verify(cmd.Context(), in)
		if err != nil {
			return err
		}
	}

	if err := internal.FormatVerification(os.Stdout, result.Verification); err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("verification failed")
	}
	return nil
}

func readSignature(name string) ([]byte, error) {
	sig, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("reading signature: %w", err)
	}
	return sig, nil
}
