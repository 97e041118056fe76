package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/sensiblebit/gpgkit"
	"github.com/sensiblebit/gpgkit/internal"
	"github.com/spf13/cobra"
)

var (
	logLevel      string
	configPath    string
	homedir       string
	gpgBinary     string
	keyringPath   string
	secretKeyring string
	useAgent      bool
	dbPath        string

	fileConfig *internal.FileConfig
)

var rootCmd = &cobra.Command{
	Use:   "gpgkit",
	Short: "GnuPG automation tool",
	Long: `Drive gpg non-interactively: encrypt, decrypt, sign and verify data, and manage keys.

Results are decoded from gpg's status protocol. Key listings and imports can be
recorded in a SQLite catalog with --db.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadRootConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default: $XDG_CONFIG_HOME/gpgkit/config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&homedir, "homedir", "", "GnuPG home directory")
	rootCmd.PersistentFlags().StringVar(&gpgBinary, "gpg-binary", "", "gpg executable name or path (default: gpg)")
	rootCmd.PersistentFlags().StringVar(&keyringPath, "keyring", "", "Public keyring, relative to the home directory")
	rootCmd.PersistentFlags().StringVar(&secretKeyring, "secret-keyring", "", "Secret keyring, relative to the home directory")
	rootCmd.PersistentFlags().BoolVar(&useAgent, "use-agent", false, "Pass --use-agent to gpg")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite key catalog path (default: no catalog)")

	registerCompletion(rootCmd, completionInput{"log-level", fixedCompletion("debug", "info", "warn", "error")})
	registerCompletion(rootCmd, completionInput{"config", fileCompletion})
	registerCompletion(rootCmd, completionInput{"homedir", directoryCompletion})
	registerCompletion(rootCmd, completionInput{"gpg-binary", fileCompletion})
	registerCompletion(rootCmd, completionInput{"keyring", fileCompletion})
	registerCompletion(rootCmd, completionInput{"secret-keyring", fileCompletion})
	registerCompletion(rootCmd, completionInput{"db", fileCompletion})

	rootCmd.AddCommand(encryptCmd)
	rootCmd.AddCommand(decryptCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(recvKeysCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(listKeysCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(genKeyCmd)
	rootCmd.AddCommand(catalogCmd)
}

func loadRootConfig(cmd *cobra.Command, _ []string) error {
	internal.SetupLogger(logLevel)

	path := configPath
	if path == "" {
		path = internal.DefaultConfigPath()
	}
	cfg, err := internal.LoadFileConfig(path)
	if err != nil {
		return err
	}
	fileConfig = cfg
	if path != "" {
		slog.Debug("loaded config", "path", path)
	}
	return nil
}

// gpgConfig merges the config file with flags; flags set on the command line
// win.
func gpgConfig(cmd *cobra.Command) gpgkit.Config {
	cfg := fileConfig.GPGConfig(slog.Default())
	flags := cmd.Flags()
	if flags.Changed("gpg-binary") {
		cfg.Binary = gpgBinary
	}
	if flags.Changed("homedir") {
		cfg.Home = homedir
	}
	if flags.Changed("keyring") {
		cfg.Keyring = keyringPath
	}
	if flags.Changed("secret-keyring") {
		cfg.SecretKeyring = secretKeyring
	}
	if flags.Changed("use-agent") {
		cfg.UseAgent = useAgent
	}
	return cfg
}

func newGPG(cmd *cobra.Command) (*gpgkit.GPG, error) {
	g, err := gpgkit.New(cmd.Context(), gpgConfig(cmd))
	if err != nil {
		return nil, fmt.Errorf("initializing gpg: %w", err)
	}
	slog.Debug("using gpg", "binary", g.Binary(), "version", g.Version())
	return g, nil
}

// catalogPath returns the --db flag, falling back to the config file.
func catalogPath(cmd *cobra.Command) string {
	if cmd.Flags().Changed("db") {
		return dbPath
	}
	return fileConfig.Catalog
}

// withCatalog runs fn against the catalog and saves it afterwards. It does
// nothing when no catalog is configured.
func withCatalog(cmd *cobra.Command, fn func(*internal.DB) error) error {
	path := catalogPath(cmd)
	if path == "" {
		return nil
	}
	db, err := internal.NewDB(path)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer db.Close()

	if err := fn(db); err != nil {
		return err
	}
	return db.SaveToDisk(path)
}

// openInput opens a named file, or stdin for "" and "-".
func openInput(name string) (io.ReadCloser, error) {
	if name == "" || name == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	return f, nil
}

var errBinaryToTerminal = errors.New("refusing to write binary output to a terminal; use --output or redirect stdout")

// writeOutput writes data to a file, or stdout for "" and "-". Binary data is
// never written to a terminal.
func writeOutput(name string, data []byte, binary bool) error {
	if name == "" || name == "-" {
		if binary && internal.IsTerminal(os.Stdout) {
			return errBinaryToTerminal
		}
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(name, data, 0o600); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

// looksBinary reports whether data is unsafe to print on a terminal.
func looksBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data)
}
