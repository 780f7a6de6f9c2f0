package source

import (
	"context"

	"github.com/mmrzaf/logship/internal/domain"
)

// Status exposes read-only stream counters.
type Status struct {
	Requests int `json:"requests"`
	Records  int `json:"records"`
}

// Stream yields ordered pages of log records from a checkpointed source.
// Next returns the next page, up to limit records; an empty page means the
// stream has ended. The stream tracks two checkpoints: LastCheckpoint is the
// position after the most recently fetched page, PreviousCheckpoint is the
// last position acknowledged with BatchSaved and therefore safe to resume
// from.
type Stream interface {
	Next(ctx context.Context, limit int) ([]domain.LogRecord, error)
	BatchSaved()
	Close()
	PreviousCheckpoint() string
	LastCheckpoint() string
	Status() Status
}

// Config seeds a stream at a checkpoint with an optional type filter.
type Config struct {
	Checkpoint string
	Types      []string
	Domain     string
	Token      string
}

// Factory opens a stream for one run.
type Factory func(cfg Config) (Stream, error)

// cursor is the checkpoint bookkeeping shared by stream implementations.
type cursor struct {
	previous string
	last     string
	status   Status
}

func newCursor(checkpoint string) cursor {
	return cursor{previous: checkpoint, last: checkpoint}
}

func (c *cursor) advance(records []domain.LogRecord) {
	c.status.Requests++
	c.status.Records += len(records)
	if len(records) > 0 {
		if id := records[len(records)-1].ID(); id != "" {
			c.last = id
		}
	}
}

func (c *cursor) BatchSaved()                { c.previous = c.last }
func (c *cursor) PreviousCheckpoint() string { return c.previous }
func (c *cursor) LastCheckpoint() string     { return c.last }
func (c *cursor) Status() Status             { return c.status }
