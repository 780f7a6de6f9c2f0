package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mmrzaf/logship/internal/domain"
)

// FileStore persists the checkpoint document as a JSON file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Read(ctx context.Context) (*domain.StorageDocument, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc domain.StorageDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("corrupt checkpoint document %s: %w", s.path, err)
	}
	return &doc, nil
}

func (s *FileStore) Write(ctx context.Context, doc *domain.StorageDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) Close() error { return nil }
