package util

import (
	"os"
	"path/filepath"
)

// GetDataDir returns the data directory path
func GetDataDir() string {
	if envDir := os.Getenv("ESTC_BLUE_DIR"); envDir != "" {
		return envDir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "estc-blue-data")
	}
	return filepath.Join(home, ".estc-blue-data")
}

// GetTraceDir returns the directory where link traces are written, creating it
// if needed.
func GetTraceDir() (string, error) {
	dir := filepath.Join(GetDataDir(), "traces")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// DefaultTracePath returns the trace file path for a named session
func DefaultTracePath(session string) (string, error) {
	dir, err := GetTraceDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, session+".cbor"), nil
}
