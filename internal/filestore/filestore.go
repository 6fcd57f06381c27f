// Package filestore holds the small file primitives the state store builds on.
package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// EnsureParentDir creates the parent directory of filePath.
func EnsureParentDir(filePath string) error {
	return os.MkdirAll(filepath.Dir(filePath), 0o755)
}

// AtomicWrite replaces filePath with data via a synced temporary file and a
// rename, so readers see either the old or the new content.
func AtomicWrite(filePath string, data []byte, perm os.FileMode) error {
	if err := EnsureParentDir(filePath); err != nil {
		return err
	}
	tmp := filePath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, filePath); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// ReadFileOrEmpty reads a file, returning (nil, nil) if the file doesn't exist.
func ReadFileOrEmpty(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

// ResolvePath expands a leading ~ and environment variables. If configured
// is empty, defaultPath is used.
func ResolvePath(configured, defaultPath string) string {
	path := configured
	if path == "" {
		path = defaultPath
	}
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

// Quarantine moves a corrupt file aside as <name>.<timestamp>.corrupt in the
// same directory and returns the new path.
func Quarantine(filePath string, now time.Time) (string, error) {
	target := fmt.Sprintf("%s.%s.corrupt", filePath, now.UTC().Format("20060102T150405"))
	if err := os.Rename(filePath, target); err != nil {
		return "", fmt.Errorf("move to quarantine: %w", err)
	}
	return target, nil
}
