package main

import (
	"fmt"

	"github.com/sensiblebit/gpgkit/internal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// completionInput holds the parameters for registering a shell completion
// function on a command flag.
type completionInput struct {
	flagName     string
	completeFunc func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective)
}

// registerCompletion registers a shell completion function for a flag on a
// command. It panics if the flag does not exist (programmer error).
func registerCompletion(cmd *cobra.Command, in completionInput) {
	if err := cmd.RegisterFlagCompletionFunc(in.flagName, in.completeFunc); err != nil {
		panic(fmt.Sprintf("%s --%s: %v", cmd.Name(), in.flagName, err))
	}
}

// fixedCompletion returns a shell completion function that suggests the given
// values with no file completion fallback.
func fixedCompletion(values ...string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

// directoryCompletion suggests only directories.
func directoryCompletion(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return nil, cobra.ShellCompDirectiveFilterDirs
}

// fileCompletion falls back to the shell's file completion.
func fileCompletion(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return nil, cobra.ShellCompDirectiveDefault
}

// addPassphraseFlags binds the passphrase source flags of a command to src.
func addPassphraseFlags(fs *pflag.FlagSet, src *internal.PassphraseSource) {
	fs.StringVar(&src.File, "passphrase-file", "", "File whose first line is the passphrase")
	fs.StringVar(&src.Env, "passphrase-env", "", "Environment variable holding the passphrase")
	fs.StringVar(&src.Keyring, "passphrase-keyring", "", "Item name in the OS keyring (service \""+internal.KeyringService+"\")")
	fs.BoolVar(&src.Prompt, "ask-passphrase", false, "Prompt for the passphrase on the terminal")
}

// registerPassphraseCompletion adds completions for the flags added by
// addPassphraseFlags.
func registerPassphraseCompletion(cmd *cobra.Command) {
	registerCompletion(cmd, completionInput{"passphrase-file", fileCompletion})
	registerCompletion(cmd, completionInput{"passphrase-env", cobra.NoFileCompletions})
	registerCompletion(cmd, completionInput{"passphrase-keyring", cobra.NoFileCompletions})
}
