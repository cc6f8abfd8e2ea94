package common

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// File permission constants used across the application
const (
	FilePermissionSecure = 0600
	FilePermissionNormal = 0644
	DirPermissionSecure  = 0700
	DirPermissionNormal  = 0755
)

// CleanPath sanitizes a file path to prevent directory traversal
func CleanPath(path string) (string, error) {
	cleaned := filepath.Clean(path)

	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid path: contains directory traversal")
	}

	if !filepath.IsAbs(cleaned) {
		abs, err := filepath.Abs(cleaned)
		if err != nil {
			return "", fmt.Errorf("failed to resolve absolute path: %w", err)
		}
		cleaned = abs
	}

	return cleaned, nil
}

// ValidatePath ensures a path is within an allowed directory
func ValidatePath(path, baseDir string) (string, error) {
	cleanedPath, err := CleanPath(path)
	if err != nil {
		return "", err
	}

	cleanedBase, err := CleanPath(baseDir)
	if err != nil {
		return "", err
	}

	if !strings.HasPrefix(cleanedPath, cleanedBase) {
		return "", fmt.Errorf("path is outside allowed directory")
	}

	return cleanedPath, nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFileName converts a database object name into a safe file name
// component. Quoted identifiers may contain nearly anything; everything
// outside [A-Za-z0-9._-] collapses to a single underscore.
func SanitizeFileName(name string) string {
	sanitized := unsafeFileChars.ReplaceAllString(name, "_")
	return strings.Trim(sanitized, "_")
}
