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
	recvKeyserver string

	exportSecret     bool
	exportBinary     bool
	exportOutput     string
	exportPassphrase internal.PassphraseSource

	listSecret bool
	listJSON   bool

	deleteSecret bool
)

var importCmd = &cobra.Command{
	Use:   "import [file...]",
	Short: "Import keys into the keyring",
	Long:  "Import key material from files, or stdin when no file is given. Outcomes are recorded in the catalog when --db is set.",
	Example: `  gpgkit import alice.asc bob.asc
  curl -s https://example.com/key.asc | gpgkit import --db keys.db`,
	RunE: runImport,
}

var recvKeysCmd = &cobra.Command{
	Use:     "recv-keys <key-id>...",
	Short:   "Fetch keys from a keyserver",
	Example: `  gpgkit recv-keys --keyserver hkps://keys.openpgp.org 0123456789ABCDEF`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runRecvKeys,
}

var exportCmd = &cobra.Command{
	Use:   "export [key-id...]",
	Short: "Export keys",
	Long:  "Export the named keys, or every key when none is named. Secret key export on gpg 2.1 and later needs a passphrase source.",
	Example: `  gpgkit export alice@example.com > alice.asc
  gpgkit export --secret --ask-passphrase 0123456789ABCDEF -o alice-secret.asc`,
	RunE: runExport,
}

var listKeysCmd = &cobra.Command{
	Use:   "list-keys",
	Short: "List keys in the keyring",
	Long:  "List public keys, or secret keys with --secret. The listing is recorded in the catalog when --db is set.",
	Example: `  gpgkit list-keys
  gpgkit list-keys --secret --json`,
	Args: cobra.NoArgs,
	RunE: runListKeys,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <fingerprint>...",
	Short: "Delete keys by fingerprint",
	Long:  "Delete public keys. With --secret the secret keys are deleted first, then the public keys.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDelete,
}

func init() {
	recvKeysCmd.Flags().StringVar(&recvKeyserver, "keyserver", "", "Keyserver URL (default: config file keyserver)")

	exportCmd.Flags().BoolVar(&exportSecret, "secret", false, "Export secret keys")
	exportCmd.Flags().BoolVar(&exportBinary, "binary", false, "Write binary OpenPGP instead of ASCII armor")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
	addPassphraseFlags(exportCmd.Flags(), &exportPassphrase)
	registerPassphraseCompletion(exportCmd)
	registerCompletion(exportCmd, completionInput{"output", fileCompletion})

	listKeysCmd.Flags().BoolVar(&listSecret, "secret", false, "List secret keys")
	listKeysCmd.Flags().BoolVar(&listJSON, "json", false, "Print the listing as JSON")

	deleteCmd.Flags().BoolVar(&deleteSecret, "secret", false, "Delete secret keys before public keys")
}

func runImport(cmd *cobra.Command, args []string) error {
	g, err := newGPG(cmd)
	if err != nil {
		return err
	}
	sources := args
	if len(sources) == 0 {
		sources = []string{"-"}
	}

	var failed []string
	for _, source := range sources {
		result, err := importOne(cmd, g, source)
		if err != nil {
			return err
		}
		if err := internal.FormatImport(os.Stdout, result); err != nil {
			return err
		}
		if !result.OK() {
			failed = append(failed, source)
			continue
		}
		if err := withCatalog(cmd, func(db *internal.DB) error {
			_, err := db.RecordImport(result, source)
			return err
		}); err != nil {
			return err
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("import incomplete for %v", failed)
	}
	return nil
}

func importOne(cmd *cobra.Command, g *gpgkit.GPG, source string) (*gpgkit.ImportResult, error) {
	in, err := openInput(source)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	result, err := g.ImportKeys(cmd.Context(), in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	slog.Debug("import finished", "source", source, "imported", result.Imported, "unchanged", result.Unchanged)
	return result, nil
}

func runRecvKeys(cmd *cobra.Command, args []string) error {
	keyserver := recvKeyserver
	if keyserver == "" {
		keyserver = fileConfig.Keyserver
	}
	if keyserver == "" {
		return errors.New("no keyserver: set --keyserver or keyserver in the config file")
	}
	g, err := newGPG(cmd)
	if err != nil {
		return err
	}
	result, err := g.RecvKeys(cmd.Context(), keyserver, args...)
	if err != nil {
		return err
	}
	if err := internal.FormatImport(os.Stdout, result); err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("no keys received from %s", keyserver)
	}
	return withCatalog(cmd, func(db *internal.DB) error {
		_, err := db.RecordImport(result, keyserver)
		return err
	})
}

func runExport(cmd *cobra.Command, args []string) error {
	passphrase, err := exportPassphrase.Resolve("Passphrase: ")
	if err != nil {
		return err
	}
	g, err := newGPG(cmd)
	if err != nil {
		return err
	}
	result, err := g.ExportKeys(cmd.Context(), args, gpgkit.ExportOptions{
		Secret:     exportSecret,
		Passphrase: passphrase,
		Binary:     exportBinary,
	})
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("nothing exported: %s", failureText("", result.Stderr))
	}
	slog.Debug("exported keys", "fingerprints", result.Fingerprints, "exported", result.Exported)
	return writeOutput(exportOutput, result.Data, exportBinary)
}

func runListKeys(cmd *cobra.Command, _ []string) error {
	g, err := newGPG(cmd)
	if err != nil {
		return err
	}
	result, err := g.ListKeys(cmd.Context(), listSecret)
	if err != nil {
		return err
	}

	if err := withCatalog(cmd, func(db *internal.DB) error {
		n, err := db.RecordKeys(result, listSecret)
		if err != nil {
			return err
		}
		slog.Debug("catalogued keys", "count", n)
		return nil
	}); err != nil {
		return err
	}

	if listJSON {
		keys := result.Keys
		if keys == nil {
			keys = []gpgkit.KeyInfo{}
		}
		return printJSON(keys)
	}
	return internal.FormatKeyList(os.Stdout, result.Keys)
}

func runDelete(cmd *cobra.Command, args []string) error {
	g, err := newGPG(cmd)
	if err != nil {
		return err
	}
	if deleteSecret {
		result, err := g.DeleteKeys(cmd.Context(), args, true)
		if err != nil {
			return err
		}
		if !result.OK() {
			return fmt.Errorf("deleting secret keys: %s", result.Status)
		}
	}
	result, err := g.DeleteKeys(cmd.Context(), args, false)
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("deleting keys: %s", result.Status)
	}
	fmt.Printf("Deleted %s\n", internal.FormatCount(len(args), "key"))

	return withCatalog(cmd, func(db *internal.DB) error {
		for _, fpr := range args {
			if err := db.DeleteKey(fpr); err != nil {
				return err
			}
		}
		return nil
	})
}
