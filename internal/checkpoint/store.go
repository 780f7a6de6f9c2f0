package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mmrzaf/logship/internal/domain"
	"github.com/mmrzaf/logship/internal/infra/docstore"
)

const (
	// DefaultSizeLimit bounds the serialized checkpoint document. Once the
	// document reaches it, the oldest history entries are evicted.
	DefaultSizeLimit = 400 * 1024

	// evictCount is how many of the oldest run statuses go at once when the
	// document is over the size limit. Coarse on purpose: the history is a
	// diagnostic tail, not an archive.
	evictCount = 5
)

// Store persists the resumption checkpoint and a bounded tail of run statuses
// inside a single document. It does read-modify-write with no concurrency
// control; callers must ensure at most one run writes per stream at a time.
type Store struct {
	docs      docstore.Store
	sizeLimit int
}

func NewStore(docs docstore.Store, sizeLimit int) *Store {
	if sizeLimit <= 0 {
		sizeLimit = DefaultSizeLimit
	}
	return &Store{docs: docs, sizeLimit: sizeLimit}
}

// GetCheckpoint returns the persisted checkpoint, or fallback when no document
// (or no checkpoint) exists yet. A missing document is not an error.
func (s *Store) GetCheckpoint(ctx context.Context, fallback string) (string, error) {
	doc, err := s.docs.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("read checkpoint document: %w", err)
	}
	if doc == nil || doc.CheckpointID == "" {
		return fallback, nil
	}
	return doc.CheckpointID, nil
}

// Done finalizes a run: it stamps the checkpoint onto the status, appends the
// status to the run history, advances the document checkpoint and writes the
// document back, evicting the oldest entries first if the document is at or
// over the size limit.
func (s *Store) Done(ctx context.Context, status domain.RunStatus, checkpoint string) error {
	doc, err := s.docs.Read(ctx)
	if err != nil {
		return fmt.Errorf("read checkpoint document: %w", err)
	}
	if doc == nil {
		doc = &domain.StorageDocument{}
	}
	if doc.Logs == nil {
		doc.Logs = []domain.RunStatus{}
	}

	size, err := serializedSize(doc)
	if err != nil {
		return fmt.Errorf("measure checkpoint document: %w", err)
	}
	if size >= s.sizeLimit && len(doc.Logs) > 0 {
		n := evictCount
		if n > len(doc.Logs) {
			n = len(doc.Logs)
		}
		doc.Logs = doc.Logs[n:]
	}

	status.Checkpoint = checkpoint
	doc.Logs = append(doc.Logs, status)
	doc.CheckpointID = checkpoint

	if err := s.docs.Write(ctx, doc); err != nil {
		return fmt.Errorf("write checkpoint document: %w", err)
	}
	return nil
}

// History returns the persisted run status tail, newest last.
func (s *Store) History(ctx context.Context) ([]domain.RunStatus, error) {
	doc, err := s.docs.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint document: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	return doc.Logs, nil
}

// Reset overwrites the persisted checkpoint without touching run history.
func (s *Store) Reset(ctx context.Context, checkpoint string) error {
	doc, err := s.docs.Read(ctx)
	if err != nil {
		return fmt.Errorf("read checkpoint document: %w", err)
	}
	if doc == nil {
		doc = &domain.StorageDocument{}
	}
	doc.CheckpointID = checkpoint
	if err := s.docs.Write(ctx, doc); err != nil {
		return fmt.Errorf("write checkpoint document: %w", err)
	}
	return nil
}

func serializedSize(doc *domain.StorageDocument) (int, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}
