package audioscrobbler

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Store writes tracks to path, replacing the file atomically.
func Store(path string, tracks []Track) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create track list directory: %w", err)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, tracks); err != nil {
		return fmt.Errorf("failed to encode track list: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write track list: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename track list: %w", err)
	}
	return nil
}

// Load reads the tracks stored at path. A missing file yields no tracks.
func Load(path string) ([]Track, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open track list: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Decode(f)
}
