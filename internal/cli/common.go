package cli

import (
	"log/slog"
	"os"

	"github.com/jx-codes/lootbox/internal/config"
	"github.com/jx-codes/lootbox/internal/logging"
)

// resolveConfigPath returns the --config flag value, or ./lootbox.yaml in
// the current directory if unset.
func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return config.DefaultConfigPath(dir), nil
}

// loadConfig resolves and loads the active config file, falling back to
// defaults when it doesn't exist.
func loadConfig() (*config.Config, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

// newLogger builds the process logger per the --verbose flag.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return logging.New(os.Stderr, level, false)
}
