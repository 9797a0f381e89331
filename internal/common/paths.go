package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CleanPath sanitizes a file path to prevent directory traversal attacks
func CleanPath(path string) (string, error) {
	// Clean the path to remove any ../ or ./ sequences
	cleaned := filepath.Clean(ExpandHome(path))

	// Check for suspicious patterns
	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid path: contains directory traversal")
	}

	// Convert to absolute path if needed
	if !filepath.IsAbs(cleaned) {
		abs, err := filepath.Abs(cleaned)
		if err != nil {
			return "", fmt.Errorf("failed to resolve absolute path: %w", err)
		}
		cleaned = abs
	}

	return cleaned, nil
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// StateDir returns the directory starload keeps its own files in
func StateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".starload"
	}
	return filepath.Join(home, ".starload")
}
