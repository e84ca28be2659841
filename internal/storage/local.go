// Package storage keeps drafts as files on the local filesystem, one JSON
// document per key. It serves deployments that run without a database.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// LocalStorage stores values under basePath.
type LocalStorage struct {
	basePath string
}

func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// path maps a key to a file name. Keys hold ':' separators and record ids
// chosen by the backend, so they are escaped.
func (s *LocalStorage) path(key string) string {
	return filepath.Join(s.basePath, url.QueryEscape(key)+".json")
}

func (s *LocalStorage) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read file: %w", err)
	}
	return data, true, nil
}

// Put writes through a temporary file so a crash never leaves a torn draft.
func (s *LocalStorage) Put(_ context.Context, key string, value []byte) error {
	f, err := os.CreateTemp(s.basePath, ".draft-*")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	tmp := f.Name()

	if _, err := f.Write(value); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

func (s *LocalStorage) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}
