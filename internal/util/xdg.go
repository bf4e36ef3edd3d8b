package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetXDGDataDir returns the XDG data directory for mvariant.
// It respects XDG_DATA_HOME if set, otherwise falls back to ~/.local/share/mvariant
func GetXDGDataDir() (string, error) {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "mvariant"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(homeDir, ".local", "share", "mvariant"), nil
}

// LocalDatabaseURL returns a libsql file URL under the data directory,
// creating the directory when missing.
func LocalDatabaseURL() (string, error) {
	dir, err := GetXDGDataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return "file:" + filepath.Join(dir, "mvariant.db"), nil
}
