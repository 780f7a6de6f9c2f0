package checkpoint

import (
	"context"
	"strings"
	"testing"

	"github.com/mmrzaf/logship/internal/domain"
	"github.com/mmrzaf/logship/internal/infra/docstore"
)

func TestGetCheckpointPriority(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// no document: fallback wins
	store := NewStore(docstore.NewMemoryStore(), 0)
	cp, err := store.GetCheckpoint(ctx, "fallback")
	if err != nil {
		t.Fatal(err)
	}
	if cp != "fallback" {
		t.Fatalf("expected fallback, got %q", cp)
	}

	// no document, no fallback: empty
	cp, err = store.GetCheckpoint(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if cp != "" {
		t.Fatalf("expected empty checkpoint, got %q", cp)
	}

	// persisted checkpoint wins over fallback
	docs := docstore.NewMemoryStore()
	if err := docs.Write(ctx, &domain.StorageDocument{CheckpointID: "persisted"}); err != nil {
		t.Fatal(err)
	}
	store = NewStore(docs, 0)
	cp, err = store.GetCheckpoint(ctx, "fallback")
	if err != nil {
		t.Fatal(err)
	}
	if cp != "persisted" {
		t.Fatalf("expected persisted checkpoint, got %q", cp)
	}
}

func TestDoneAppendsAndAdvances(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	docs := docstore.NewMemoryStore()
	store := NewStore(docs, 0)

	if err := store.Done(ctx, domain.RunStatus{ID: "run-1", LogsProcessed: 7}, "cp-1"); err != nil {
		t.Fatal(err)
	}

	doc, err := docs.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if doc.CheckpointID != "cp-1" {
		t.Fatalf("expected checkpoint cp-1, got %q", doc.CheckpointID)
	}
	if len(doc.Logs) != 1 {
		t.Fatalf("expected one status, got %d", len(doc.Logs))
	}
	if doc.Logs[0].Checkpoint != "cp-1" {
		t.Fatalf("status should carry the checkpoint, got %q", doc.Logs[0].Checkpoint)
	}
}

func TestDoneEvictsOldestFiveAtSizeLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	docs := docstore.NewMemoryStore()
	// Tiny limit so any non-empty history is over it.
	store := NewStore(docs, 10)

	for i := 0; i < 7; i++ {
		status := domain.RunStatus{ID: string(rune('a' + i)), Error: strings.Repeat("x", 50)}
		if err := store.Done(ctx, status, "cp"); err != nil {
			t.Fatal(err)
		}
	}

	doc, err := docs.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// Every write over the limit evicts up to five oldest entries before
	// appending, so only the newest status survives.
	if len(doc.Logs) != 1 {
		t.Fatalf("expected 1 surviving status, got %d", len(doc.Logs))
	}
	if doc.Logs[0].ID != "g" {
		t.Fatalf("expected newest status to survive, got %q", doc.Logs[0].ID)
	}
}

func TestDoneEvictsExactlyFive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	docs := docstore.NewMemoryStore()
	seed := &domain.StorageDocument{CheckpointID: "cp-7"}
	for i := 0; i < 7; i++ {
		seed.Logs = append(seed.Logs, domain.RunStatus{ID: string(rune('a' + i))})
	}
	if err := docs.Write(ctx, seed); err != nil {
		t.Fatal(err)
	}

	store := NewStore(docs, 10)
	if err := store.Done(ctx, domain.RunStatus{ID: "h"}, "cp-8"); err != nil {
		t.Fatal(err)
	}

	doc, err := docs.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Logs) != 3 {
		t.Fatalf("expected 7 - 5 + 1 = 3 statuses, got %d", len(doc.Logs))
	}
	if doc.Logs[0].ID != "f" || doc.Logs[2].ID != "h" {
		t.Fatalf("unexpected survivors: %+v", doc.Logs)
	}
}

func TestDoneBelowLimitDoesNotTrim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	docs := docstore.NewMemoryStore()
	store := NewStore(docs, 0) // default 400 KiB

	for i := 0; i < 10; i++ {
		if err := store.Done(ctx, domain.RunStatus{LogsProcessed: i}, "cp"); err != nil {
			t.Fatal(err)
		}
	}

	doc, err := docs.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Logs) != 10 {
		t.Fatalf("expected all 10 statuses, got %d", len(doc.Logs))
	}
}

func TestResetKeepsHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	docs := docstore.NewMemoryStore()
	store := NewStore(docs, 0)
	if err := store.Done(ctx, domain.RunStatus{ID: "run-1"}, "cp-1"); err != nil {
		t.Fatal(err)
	}
	if err := store.Reset(ctx, "cp-0"); err != nil {
		t.Fatal(err)
	}

	cp, err := store.GetCheckpoint(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if cp != "cp-0" {
		t.Fatalf("expected cp-0, got %q", cp)
	}
	hist, err := store.History(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 {
		t.Fatalf("reset should keep history, got %d entries", len(hist))
	}
}
