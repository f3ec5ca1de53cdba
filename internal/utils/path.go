package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

func ResolvePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("path cannot be empty")
	}

	// Expand `~` to the user's home directory
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", errors.New("failed to retrieve home directory")
		}
		path = strings.Replace(path, "~", homeDir, 1)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	return filepath.Clean(absPath), nil
}

// NormPath turns a manifest path written with either separator style into a
// clean forward-slash relative path. Leading separators are dropped, so
// callers that must refuse absolute paths check before normalizing.
func NormPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = filepath.ToSlash(filepath.Clean(filepath.FromSlash(path)))
	path = strings.TrimLeft(path, "/")
	if path == "." {
		return ""
	}
	return path
}

// IsLocalPath reports whether a path produced by NormPath stays inside its root.
func IsLocalPath(path string) bool {
	if path == "" || path == ".." || strings.HasPrefix(path, "../") {
		return false
	}
	// drive letters survive NormPath on every OS
	if len(path) >= 2 && path[1] == ':' {
		return false
	}
	return true
}

func EnsureParent(path string) error {
	dir := filepath.Dir(path)
	return EnsureDir(dir)
}

func EnsureDir(path string) error {
	// already exists
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	return os.MkdirAll(path, 0o755)
}

func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
