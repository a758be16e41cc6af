package util

import (
	"errors"
	"path/filepath"
	"strings"
)

// SanitizeFileName strips directories and path separators and rejects traversal patterns.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errors.New("invalid file name")
	}
	s := strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	s = strings.ReplaceAll(s, "/", "_")
	if s == "" || s == "." {
		return "", errors.New("invalid file name")
	}
	return s, nil
}
