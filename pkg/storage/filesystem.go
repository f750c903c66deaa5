package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStorage persists artifacts on disk under a base directory: the bytes
// in <id> and the metadata in <id>.json.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./storage"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Put writes the artifact bytes and its metadata. The data file is written
// last through a rename so readers never observe a partial artifact.
func (s *LocalStorage) Put(ctx context.Context, id string, data []byte, contentType string) error {
	if !validKey(id) {
		return ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	meta, err := json.Marshal(newMetadata(data, contentType))
	if err != nil {
		return fmt.Errorf("marshal artifact metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(id), meta, 0o644); err != nil {
		return fmt.Errorf("write artifact metadata: %w", err)
	}
	tmp := s.dataPath(id) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(s.metaPath(id))
		return fmt.Errorf("write artifact file: %w", err)
	}
	if err := os.Rename(tmp, s.dataPath(id)); err != nil {
		_ = os.Remove(tmp)
		_ = os.Remove(s.metaPath(id))
		return fmt.Errorf("commit artifact file: %w", err)
	}
	return nil
}

// Get returns the stored bytes.
func (s *LocalStorage) Get(ctx context.Context, id string) ([]byte, error) {
	if !validKey(id) {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(s.dataPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read artifact file: %w", err)
	}
	return data, nil
}

// ContentTypeOf returns the recorded media type, sniffing the bytes when the
// metadata file is missing or unreadable.
func (s *LocalStorage) ContentTypeOf(ctx context.Context, id string) (string, error) {
	if !validKey(id) {
		return "", ErrNotFound
	}
	raw, err := os.ReadFile(s.metaPath(id))
	if err == nil {
		var meta Metadata
		if json.Unmarshal(raw, &meta) == nil && meta.ContentType != "" {
			if _, statErr := os.Stat(s.dataPath(id)); statErr != nil {
				if errors.Is(statErr, os.ErrNotExist) {
					return "", ErrNotFound
				}
				return "", fmt.Errorf("stat artifact file: %w", statErr)
			}
			return meta.ContentType, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read artifact metadata: %w", err)
	}
	data, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return SniffContentType(data), nil
}

// Delete removes a stored artifact if present.
func (s *LocalStorage) Delete(ctx context.Context, id string) error {
	if !validKey(id) {
		return nil
	}
	if err := os.Remove(s.dataPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete artifact file: %w", err)
	}
	if err := os.Remove(s.metaPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete artifact metadata: %w", err)
	}
	return nil
}

func (s *LocalStorage) dataPath(id string) string {
	return filepath.Join(s.baseDir, id)
}

func (s *LocalStorage) metaPath(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}
