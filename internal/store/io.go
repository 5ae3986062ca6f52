package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	dirMode  os.FileMode = 0o700
	fileMode os.FileMode = 0o600

	// maxNameBytes is the common filesystem limit for one path element.
	maxNameBytes = 255
	fallbackName = "file"
	maxSuffix    = 10000
)

// ensureDir creates dir if absent.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	return nil
}

// safeName reduces name to a single harmless path element.
func safeName(name string) string {
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator || r == 0 {
			return '_'
		}
		return r
	}, name)
	if strings.Trim(name, ".") == "" {
		return fallbackName
	}
	if len(name) > maxNameBytes {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = name[:maxNameBytes-len(ext)] + ext
	}
	return name
}

// createTemp opens a hidden temp file in dir.
func createTemp(dir string) (*os.File, error) {
	f, err := os.CreateTemp(dir, ".incoming-*.part")
	if err != nil {
		return nil, err
	}
	if err := f.Chmod(fileMode); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, err
	}
	return f, nil
}

// uniquePath returns the first of dir/base, dir/stem-1.ext, ... that does
// not exist yet. The caller holds the store lock.
func uniquePath(dir, base string) (string, error) {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem, ext = base, ""
	}
	for i := 0; i < maxSuffix; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}
		p := filepath.Join(dir, candidate)
		_, err := os.Lstat(p)
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free name for %q", base)
}
