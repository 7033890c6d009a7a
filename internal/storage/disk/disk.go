// Package disk keeps screenshots as files in one directory. Refs are bare file names
// of the form <userID>_<unix>_<suffix><ext>.
package disk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sensus/peek/internal/storage"
)

type Screenshots struct {
	dir string
}

// New creates the upload directory if it does not exist.
func New(dir string) (*Screenshots, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage/disk/New: %w", err)
	}
	return &Screenshots{dir: dir}, nil
}

var _ storage.Screenshots = (*Screenshots)(nil)

// Put writes to a temp file first and renames it into place, so readers never see a
// partially written screenshot.
func (s *Screenshots) Put(_ context.Context, userID string, data []byte, contentType string) (string, error) {
	name := fmt.Sprintf("%s_%d_%s%s",
		safeName(userID),
		time.Now().Unix(),
		uuid.NewString()[:8],
		storage.ExtensionFor(contentType),
	)
	path := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return name, nil
}

func (s *Screenshots) Open(_ context.Context, ref string) (io.ReadCloser, string, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", storage.ErrNotFound
		}
		return nil, "", err
	}
	return f, storage.ContentTypeFor(filepath.Ext(ref)), nil
}

func (s *Screenshots) Remove(_ context.Context, ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// resolve rejects refs that would escape the upload directory.
func (s *Screenshots) resolve(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return "", storage.ErrNotFound
	}
	return filepath.Join(s.dir, ref), nil
}

func safeName(userID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, userID)
}
