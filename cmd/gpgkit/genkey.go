package main

import (
	"fmt"
	"os"

	"github.com/sensiblebit/gpgkit/internal"
	"github.com/spf13/cobra"
)

var (
	genKeyName       string
	genKeyEmail      string
	genKeyComment    string
	genKeyType       string
	genKeyLength     string
	genKeyExpire     string
	genKeyParams     map[string]string
	genKeyDryRun     bool
	genKeyPassphrase internal.PassphraseSource
)

var genKeyCmd = &cobra.Command{
	Use:   "gen-key",
	Short: "Generate a key pair unattended",
	Long: `Generate a key pair from an unattended control block. Unset names get defaults;
the email defaults to login@hostname. Without a passphrase source the key is left
unprotected.`,
	Example: `  gpgkit gen-key --name "Build Bot" --email build@example.com --passphrase-env BOT_PASS
  gpgkit gen-key --key-type EDDSA --param key_curve=ed25519 --dry-run`,
	Args: cobra.NoArgs,
	RunE: runGenKey,
}

func init() {
	genKeyCmd.Flags().StringVar(&genKeyName, "name", "", "Real name of the user ID")
	genKeyCmd.Flags().StringVar(&genKeyEmail, "email", "", "Email of the user ID")
	genKeyCmd.Flags().StringVar(&genKeyComment, "comment", "", "Comment of the user ID")
	genKeyCmd.Flags().StringVar(&genKeyType, "key-type", "", "Key-Type parameter (default: RSA)")
	genKeyCmd.Flags().StringVar(&genKeyLength, "key-length", "", "Key-Length parameter (default: 2048)")
	genKeyCmd.Flags().StringVar(&genKeyExpire, "expire-date", "", "Expire-Date parameter, e.g. 1y or 0 for never")
	genKeyCmd.Flags().StringToStringVar(&genKeyParams, "param", nil, "Extra control parameters as name=value (repeatable)")
	genKeyCmd.Flags().BoolVar(&genKeyDryRun, "dry-run", false, "Print the control block without generating")
	addPassphraseFlags(genKeyCmd.Flags(), &genKeyPassphrase)
	registerPassphraseCompletion(genKeyCmd)
	registerCompletion(genKeyCmd, completionInput{"key-type", fixedCompletion("RSA", "DSA", "ECDSA", "EDDSA")})
}

func runGenKey(cmd *cobra.Command, _ []string) error {
	params := make(map[string]string, len(genKeyParams)+7)
	for k, v := range genKeyParams {
		params[k] = v
	}
	for name, val := range map[string]string{
		"name_real":    genKeyName,
		"name_email":   genKeyEmail,
		"name_comment": genKeyComment,
		"key_type":     genKeyType,
		"key_length":   genKeyLength,
		"expire_date":  genKeyExpire,
	} {
		if val != "" {
			params[name] = val
		}
	}
	passphrase, err := genKeyPassphrase.Resolve("Passphrase for the new key: ")
	if err != nil {
		return err
	}
	if passphrase != "" {
		params["passphrase"] = passphrase
	}

	g, err := newGPG(cmd)
	if err != nil {
		return err
	}
	input := g.GenKeyInput(params)
	if genKeyDryRun {
		if passphrase != "" {
			fmt.Fprintln(os.Stderr, "note: the control block contains the passphrase")
		}
		fmt.Print(input)
		return nil
	}

	result, err := g.GenKey(cmd.Context(), input)
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("key generation failed: %s", failureText("", result.Stderr))
	}
	fmt.Println(result.Fingerprint)
	return nil
}
