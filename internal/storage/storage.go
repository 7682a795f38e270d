// Package storage is the object store for downloaded ad media.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var ErrInvalidPath = errors.New("invalid object path")

// Local stores objects under Root and serves them from BaseURL + "/files/".
// Uploading to an existing path overwrites it.
type Local struct {
	Root    string
	BaseURL string
}

func (s *Local) Upload(ctx context.Context, objectPath string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}

	// write-then-rename so readers never see a partial file
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit object: %w", err)
	}
	return nil
}

func (s *Local) PublicURL(objectPath string) string {
	return strings.TrimRight(s.BaseURL, "/") + "/files/" + strings.TrimLeft(path.Clean("/"+objectPath), "/")
}

func (s *Local) resolve(objectPath string) (string, error) {
	clean := path.Clean("/" + objectPath)
	if clean == "/" || strings.Contains(objectPath, "..") {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.Root, filepath.FromSlash(clean)), nil
}
