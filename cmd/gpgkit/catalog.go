package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sensiblebit/gpgkit/internal"
	"github.com/spf13/cobra"
)

var (
	catalogHistory string
	catalogJSON    bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Summarize the key catalog",
	Long:  "Print counts from the SQLite catalog written by list-keys, import and recv-keys. Use --history to show the imports of one key.",
	Example: `  gpgkit catalog --db keys.db
  gpgkit catalog --db keys.db --history AAAABBBBCCCCDDDDEEEEFFFF0000111122223333`,
	Args: cobra.NoArgs,
	RunE: runCatalog,
}

func init() {
	catalogCmd.Flags().StringVar(&catalogHistory, "history", "", "Show the import history of a fingerprint")
	catalogCmd.Flags().BoolVar(&catalogJSON, "json", false, "Print as JSON")
}

func runCatalog(cmd *cobra.Command, _ []string) error {
	path := catalogPath(cmd)
	if path == "" {
		return errors.New("no catalog: set --db or catalog in the config file")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("catalog %s: %w", path, err)
	}
	db, err := internal.NewDB(path)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer db.Close()

	if err := db.DumpDB(); err != nil {
		return fmt.Errorf("dumping catalog: %w", err)
	}

	if catalogHistory != "" {
		hist, err := db.GetImports(catalogHistory)
		if err != nil {
			return err
		}
		if catalogJSON {
			return printJSON(hist)
		}
		for _, h := range hist {
			what := h.Text
			if what == "" {
				what = "ok " + h.OKReason
			}
			fmt.Printf("%s  %-24s %s\n", h.ImportedAt.Local().Format(time.DateTime), h.Source, what)
		}
		return nil
	}

	summary, err := db.GetCatalogSummary(time.Now())
	if err != nil {
		return fmt.Errorf("generating summary: %w", err)
	}
	if catalogJSON {
		return printJSON(summary)
	}
	fmt.Printf("%s catalogued\n", internal.FormatCount(summary.Keys, "key"))
	fmt.Printf("  Secret:   %d\n", summary.SecretKeys)
	fmt.Printf("  Expired:  %d\n", summary.Expired)
	fmt.Printf("  Imports:  %d\n", summary.Imports)
	fmt.Printf("  Problems: %d\n", summary.Problems)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
