// Package config loads ledger settings from viper and resolves file paths.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands ~ and environment variables in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return os.ExpandEnv(path)
}

// DefaultConfigDir is where the config file is searched for.
func DefaultConfigDir() string {
	return ExpandPath("~/.config/ledger")
}

// DefaultDatabasePath is used when database.path is unset.
func DefaultDatabasePath() string {
	return ExpandPath("~/.local/share/ledger/ledger.db")
}

// CheckpointDir holds database checkpoints next to the database file.
func CheckpointDir(databasePath string) string {
	return filepath.Join(filepath.Dir(databasePath), "checkpoints")
}
