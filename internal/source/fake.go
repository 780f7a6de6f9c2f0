package source

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/go-faker/faker/v4"
	"github.com/mmrzaf/logship/internal/domain"
	"github.com/mmrzaf/logship/internal/logtypes"
)

// FakeSource generates a finite stream of synthetic log records for demos and
// smoke runs against real sinks. Record ids are zero-padded sequence numbers
// so they order like real cursors; resuming from a checkpoint skips everything
// at or before it.
type FakeSource struct {
	cursor
	total  int
	seq    int
	start  time.Time
	step   time.Duration
	types  []string
	rng    *rand.Rand
	closed bool
}

func NewFakeSource(cfg Config, total int, start time.Time, seed int64) *FakeSource {
	types := cfg.Types
	if len(types) == 0 {
		for _, lt := range logtypes.All() {
			types = append(types, lt.Name)
		}
	}
	s := &FakeSource{
		cursor: newCursor(cfg.Checkpoint),
		total:  total,
		start:  start,
		step:   time.Second,
		types:  types,
		rng:    rand.New(rand.NewSource(seed)),
	}
	if n, err := strconv.Atoi(cfg.Checkpoint); err == nil && n > 0 {
		s.seq = n
	}
	return s
}

func (s *FakeSource) Next(ctx context.Context, limit int) ([]domain.LogRecord, error) {
	if s.closed || s.seq >= s.total {
		return nil, nil
	}
	if limit <= 0 {
		return nil, fmt.Errorf("page limit must be positive, got %d", limit)
	}

	n := s.total - s.seq
	if n > limit {
		n = limit
	}
	records := make([]domain.LogRecord, 0, n)
	for i := 0; i < n; i++ {
		s.seq++
		records = append(records, domain.LogRecord{
			"log_id": fmt.Sprintf("%012d", s.seq),
			"date":   s.start.Add(time.Duration(s.seq) * s.step).UTC().Format(time.RFC3339),
			"type":   s.types[s.rng.Intn(len(s.types))],
			"user":   faker.Name(),
			"client": faker.Username(),
			"detail": faker.Word(),
		})
	}

	s.advance(records)
	return records, nil
}

func (s *FakeSource) Close() {
	s.closed = true
}
