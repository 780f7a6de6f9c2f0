package docstore

import (
	"context"
	"sync"

	"github.com/mmrzaf/logship/internal/domain"
)

// Store reads and writes the single checkpoint document for one log stream.
// Read returns nil when no document has been written yet. Write replaces the
// whole document; there is no merge and no isolation beyond what the backend
// provides, so at most one run should write per stream at a time.
type Store interface {
	Read(ctx context.Context) (*domain.StorageDocument, error)
	Write(ctx context.Context, doc *domain.StorageDocument) error
	Close() error
}

// MemoryStore keeps the document in memory. Used by tests and dry runs.
type MemoryStore struct {
	mu  sync.Mutex
	doc *domain.StorageDocument
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Read(ctx context.Context) (*domain.StorageDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil, nil
	}
	copied := *s.doc
	copied.Logs = append([]domain.RunStatus(nil), s.doc.Logs...)
	return &copied, nil
}

func (s *MemoryStore) Write(ctx context.Context, doc *domain.StorageDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *doc
	copied.Logs = append([]domain.RunStatus(nil), doc.Logs...)
	s.doc = &copied
	return nil
}

func (s *MemoryStore) Close() error { return nil }
