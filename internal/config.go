package internal

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sensiblebit/gpgkit"
	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML configuration file for the gpgkit CLI.
type FileConfig struct {
	Binary         string   `yaml:"binary,omitempty"`
	Homedir        string   `yaml:"homedir,omitempty"`
	Pubring        string   `yaml:"pubring,omitempty"`
	Secring        string   `yaml:"secring,omitempty"`
	UseAgent       bool     `yaml:"useAgent,omitempty"`
	Options        []string `yaml:"options,omitempty"`
	AllowedOptions []string `yaml:"allowedOptions,omitempty"`
	Keyserver      string   `yaml:"keyserver,omitempty"`
	// Catalog is the SQLite file that records listed keys and imports.
	Catalog string `yaml:"catalog,omitempty"`
}

// LoadFileConfig reads a YAML config file. Unknown keys are rejected so
// typos do not silently fall back to defaults. An empty path returns an empty
// config.
func LoadFileConfig(path string) (*FileConfig, error) {
	if path == "" {
		return &FileConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	for _, p := range []*string{&cfg.Homedir, &cfg.Pubring, &cfg.Secring, &cfg.Catalog} {
		if *p, err = ExpandHome(*p); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	return &cfg, nil
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/gpgkit/config.yaml, or
// ~/.config/gpgkit/config.yaml, if that file exists. Otherwise it returns "".
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, "gpgkit", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// GPGConfig converts the file settings into a gpgkit.Config.
func (c *FileConfig) GPGConfig(logger *slog.Logger) gpgkit.Config {
	return gpgkit.Config{
		Binary:         c.Binary,
		Home:           c.Homedir,
		Keyring:        c.Pubring,
		SecretKeyring:  c.Secring,
		UseAgent:       c.UseAgent,
		Options:        c.Options,
		AllowedOptions: c.AllowedOptions,
		Logger:         logger,
	}
}

// ExpandHome replaces a leading "~/" with the current user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
