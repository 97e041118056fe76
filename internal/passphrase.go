package internal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/99designs/keyring"
	"golang.org/x/term"
)

// KeyringService is the OS secret store service gpgkit reads passphrases from.
const KeyringService = "gpgkit"

// PassphraseSource says where a command should take a passphrase from. The
// first configured source wins, in field order: File, Env, Keyring, Prompt.
type PassphraseSource struct {
	// File holds the passphrase on its first line.
	File string
	// Env names an environment variable holding the passphrase.
	Env string
	// Keyring names an item in the OS secret store under KeyringService.
	Keyring string
	// Prompt asks on the terminal.
	Prompt bool

	// OpenKeyring overrides how the secret store is opened.
	OpenKeyring func(service string) (keyring.Keyring, error)
	// Terminal is the prompt input; defaults to os.Stdin.
	Terminal *os.File
}

// ErrNoTerminal is returned when a prompt is requested without a terminal.
var ErrNoTerminal = errors.New("passphrase prompt requires a terminal")

// Resolve returns the passphrase, or "" if no source is configured.
func (s PassphraseSource) Resolve(prompt string) (string, error) {
	switch {
	case s.File != "":
		pass, err := LoadPassphraseFromFile(s.File)
		if err != nil {
			return "", fmt.Errorf("loading passphrase from file: %w", err)
		}
		return pass, nil
	case s.Env != "":
		pass, ok := os.LookupEnv(s.Env)
		if !ok {
			return "", fmt.Errorf("passphrase variable %s is not set", s.Env)
		}
		return pass, nil
	case s.Keyring != "":
		pass, err := s.fromKeyring()
		if err != nil {
			return "", fmt.Errorf("loading passphrase from keyring: %w", err)
		}
		return pass, nil
	case s.Prompt:
		return s.ask(prompt)
	}
	return "", nil
}

// LoadPassphraseFromFile returns the first line of a file. Only the line
// terminator is removed; surrounding spaces are part of the passphrase.
func LoadPassphraseFromFile(filename string) (string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer file.Close()

	line, err := bufio.NewReader(file).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
	if line == "" {
		return "", fmt.Errorf("%s: first line is empty", filename)
	}
	return line, nil
}

func (s PassphraseSource) fromKeyring() (string, error) {
	open := s.OpenKeyring
	if open == nil {
		open = func(service string) (keyring.Keyring, error) {
			return keyring.Open(keyring.Config{ServiceName: service})
		}
	}
	ring, err := open(KeyringService)
	if err != nil {
		return "", fmt.Errorf("opening keyring: %w", err)
	}
	item, err := ring.Get(s.Keyring)
	if err != nil {
		return "", fmt.Errorf("getting %s: %w", s.Keyring, err)
	}
	return string(item.Data), nil
}

func (s PassphraseSource) ask(prompt string) (string, error) {
	tty := s.Terminal
	if tty == nil {
		tty = os.Stdin
	}
	if !IsTerminal(tty) {
		return "", ErrNoTerminal
	}
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(int(tty.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pass), nil
}
