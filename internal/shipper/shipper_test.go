package shipper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mmrzaf/logship/internal/checkpoint"
	"github.com/mmrzaf/logship/internal/domain"
	"github.com/mmrzaf/logship/internal/infra/docstore"
	"github.com/mmrzaf/logship/internal/logging"
	"github.com/mmrzaf/logship/internal/source"
)

// scriptedStream replays a fixed sequence of pages and tracks checkpoints
// the way a real source does.
type scriptedStream struct {
	pages    [][]domain.LogRecord
	pageIdx  int
	previous string
	last     string
	limits   []int
	fetchErr error // returned once all pages are consumed, instead of end
	closed   bool
	saved    int
}

func (s *scriptedStream) Next(ctx context.Context, limit int) ([]domain.LogRecord, error) {
	s.limits = append(s.limits, limit)
	if s.closed || s.pageIdx >= len(s.pages) {
		if s.fetchErr != nil {
			return nil, s.fetchErr
		}
		return nil, nil
	}
	page := s.pages[s.pageIdx]
	s.pageIdx++
	if len(page) > limit {
		page = page[:limit]
	}
	if len(page) > 0 {
		s.last = page[len(page)-1].ID()
	}
	return page, nil
}

func (s *scriptedStream) BatchSaved()                { s.saved++; s.previous = s.last }
func (s *scriptedStream) Close()                     { s.closed = true }
func (s *scriptedStream) PreviousCheckpoint() string { return s.previous }
func (s *scriptedStream) LastCheckpoint() string     { return s.last }
func (s *scriptedStream) Status() source.Status      { return source.Status{} }

// recordingHandler records batches and fails the first failures invocations.
type recordingHandler struct {
	batches  [][]domain.LogRecord
	failures int
	err      error
}

func (h *recordingHandler) OnLogsReceived(ctx context.Context, batch []domain.LogRecord) error {
	copied := append([]domain.LogRecord(nil), batch...)
	h.batches = append(h.batches, copied)
	if h.failures != 0 {
		if h.failures > 0 {
			h.failures--
		}
		if h.err != nil {
			return h.err
		}
		return errors.New("sink unavailable")
	}
	return nil
}

func rec(id string, ts time.Time) domain.LogRecord {
	return domain.LogRecord{"log_id": id, "date": ts.Format(time.RFC3339), "type": "login_success"}
}

func testLogger() *logging.Logger {
	return logging.NewLoggerWithWriter("error", &bytes.Buffer{})
}

func newTestShipper(t *testing.T, docs *docstore.MemoryStore, stream source.Stream, opts Options) *Shipper {
	t.Helper()
	factory := func(cfg source.Config) (source.Stream, error) {
		if s, ok := stream.(*scriptedStream); ok {
			s.previous = cfg.Checkpoint
			if s.last == "" {
				s.last = cfg.Checkpoint
			}
		}
		return stream, nil
	}
	return New(checkpoint.NewStore(docs, 0), factory, opts, testLogger())
}

func TestNextLimitBounds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		batchSize int
		batchLen  int
		want      int
	}{
		{100, 0, 100},
		{100, 30, 70},
		{250, 0, 100},
		{250, 200, 50},
		{10, 9, 1},
	}
	for _, tc := range cases {
		s := New(checkpoint.NewStore(docstore.NewMemoryStore(), 0), nil, Options{BatchSize: tc.batchSize}, testLogger())
		if got := s.nextLimit(tc.batchLen); got != tc.want {
			t.Fatalf("nextLimit(batchSize=%d, len=%d) = %d, want %d", tc.batchSize, tc.batchLen, got, tc.want)
		}
	}
}

func TestRunTwoPagesOneBatch(t *testing.T) {
	t.Parallel()

	now := time.Now()
	stream := &scriptedStream{pages: [][]domain.LogRecord{
		{rec("001", now)},
		{rec("002", now)},
	}}
	handler := &recordingHandler{}
	docs := docstore.NewMemoryStore()

	s := newTestShipper(t, docs, stream, Options{BatchSize: 2})
	res, err := s.Run(context.Background(), handler)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// one full batch of [r1 r2], then the empty end-of-stream delivery
	if len(handler.batches) != 2 {
		t.Fatalf("expected 2 handler invocations, got %d", len(handler.batches))
	}
	if len(handler.batches[0]) != 2 || handler.batches[0][0].ID() != "001" || handler.batches[0][1].ID() != "002" {
		t.Fatalf("unexpected first batch: %+v", handler.batches[0])
	}
	if len(handler.batches[1]) != 0 {
		t.Fatalf("expected empty final delivery, got %d records", len(handler.batches[1]))
	}

	if res.Status.LogsProcessed != 2 {
		t.Fatalf("expected 2 logs processed, got %d", res.Status.LogsProcessed)
	}
	if res.Checkpoint != "002" {
		t.Fatalf("expected final checkpoint 002, got %q", res.Checkpoint)
	}

	doc, err := docs.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if doc == nil || doc.CheckpointID != "002" {
		t.Fatalf("expected persisted checkpoint 002, got %+v", doc)
	}
	if len(doc.Logs) != 1 || doc.Logs[0].LogsProcessed != 2 {
		t.Fatalf("unexpected persisted history: %+v", doc.Logs)
	}
}

func TestRunRequestsLimitedPages(t *testing.T) {
	t.Parallel()

	now := time.Now()
	stream := &scriptedStream{pages: [][]domain.LogRecord{
		{rec("001", now)},
		{rec("002", now), rec("003", now)},
	}}
	docs := docstore.NewMemoryStore()

	s := newTestShipper(t, docs, stream, Options{BatchSize: 3})
	if _, err := s.Run(context.Background(), &recordingHandler{}); err != nil {
		t.Fatal(err)
	}

	// 3, then 3-1=2, then batch full -> delivered -> 3 again for the end probe
	want := []int{3, 2, 3}
	if len(stream.limits) != len(want) {
		t.Fatalf("expected %d page requests, got %v", len(want), stream.limits)
	}
	for i, w := range want {
		if stream.limits[i] != w {
			t.Fatalf("request %d: limit %d, want %d (all: %v)", i, stream.limits[i], w, stream.limits)
		}
	}
	for _, l := range stream.limits {
		if l > 100 {
			t.Fatalf("page limit %d exceeds 100", l)
		}
	}
}

func TestRunZeroRecordsDoesNotPersist(t *testing.T) {
	t.Parallel()

	stream := &scriptedStream{}
	handler := &recordingHandler{}
	docs := docstore.NewMemoryStore()

	s := newTestShipper(t, docs, stream, Options{})
	res, err := s.Run(context.Background(), handler)
	if err != nil {
		t.Fatalf("empty run should succeed: %v", err)
	}
	if res.Status.LogsProcessed != 0 {
		t.Fatalf("expected zero processed, got %d", res.Status.LogsProcessed)
	}

	// empty final delivery still happens
	if len(handler.batches) != 1 || len(handler.batches[0]) != 0 {
		t.Fatalf("expected one empty delivery, got %+v", handler.batches)
	}

	doc, err := docs.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if doc != nil {
		t.Fatalf("no-op run must not persist, got %+v", doc)
	}
}

func TestRunRetriesExhaustedSkipRange(t *testing.T) {
	t.Parallel()

	now := time.Now()
	stream := &scriptedStream{pages: [][]domain.LogRecord{
		{rec("001", now), rec("002", now)},
	}}
	handler := &recordingHandler{failures: -1} // always fails
	docs := docstore.NewMemoryStore()

	s := newTestShipper(t, docs, stream, Options{BatchSize: 2, MaxRetries: 3})
	_, err := s.Run(context.Background(), handler)
	if err == nil {
		t.Fatal("expected run to fail")
	}

	// first attempt + exactly MaxRetries redeliveries
	if len(handler.batches) != 4 {
		t.Fatalf("expected 4 handler invocations, got %d", len(handler.batches))
	}
	// identical batch redelivered every time
	for i, b := range handler.batches {
		if len(b) != 2 || b[0].ID() != "001" {
			t.Fatalf("attempt %d: batch mutated: %+v", i, b)
		}
	}

	var skip *SkipRangeError
	if !errors.As(err, &skip) {
		t.Fatalf("expected SkipRangeError, got %T: %v", err, err)
	}
	if skip.From != "" || skip.To != "002" {
		t.Fatalf("unexpected skip range %q..%q", skip.From, skip.To)
	}

	// the failed span is skipped: run persisted at the last checkpoint
	doc, derr := docs.Read(context.Background())
	if derr != nil {
		t.Fatal(derr)
	}
	if doc == nil || doc.CheckpointID != "002" {
		t.Fatalf("expected persisted checkpoint 002, got %+v", doc)
	}
	if len(doc.Logs) != 1 || doc.Logs[0].Error == "" {
		t.Fatalf("failed run should persist its error: %+v", doc.Logs)
	}
}

func TestRunBudgetExpiryMidRetryFailsAtPreviousCheckpoint(t *testing.T) {
	t.Parallel()

	now := time.Now()
	stream := &scriptedStream{pages: [][]domain.LogRecord{
		{rec("001", now), rec("002", now)},
		{rec("003", now), rec("004", now)},
	}}
	docs := docstore.NewMemoryStore()

	handlerErr := errors.New("sink down")
	calls := 0
	s := newTestShipper(t, docs, stream, Options{BatchSize: 2, MaxRetries: 5})

	clock := now
	s.now = func() time.Time { return clock }

	h := HandlerFunc(func(ctx context.Context, batch []domain.LogRecord) error {
		calls++
		if calls == 1 {
			return nil // first batch accepted, checkpoint advances to 002
		}
		// second batch fails; burn the budget before the retry decision
		clock = clock.Add(DefaultMaxRunTime + time.Second)
		return handlerErr
	})

	_, err := s.Run(context.Background(), h)
	if !errors.Is(err, handlerErr) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expired budget must not consume retries, got %d calls", calls)
	}

	doc, derr := docs.Read(context.Background())
	if derr != nil {
		t.Fatal(derr)
	}
	if doc == nil || doc.CheckpointID != "002" {
		t.Fatalf("expected last-known-good checkpoint 002, got %+v", doc)
	}
}

func TestRunBudgetExpiryAfterSuccessEndsCleanly(t *testing.T) {
	t.Parallel()

	now := time.Now()
	stream := &scriptedStream{pages: [][]domain.LogRecord{
		{rec("001", now), rec("002", now)},
		{rec("003", now), rec("004", now)},
	}}
	docs := docstore.NewMemoryStore()

	s := newTestShipper(t, docs, stream, Options{BatchSize: 2})
	clock := now
	s.now = func() time.Time { return clock }

	calls := 0
	h := HandlerFunc(func(ctx context.Context, batch []domain.LogRecord) error {
		calls++
		clock = clock.Add(DefaultMaxRunTime + time.Second)
		return nil
	})

	res, err := s.Run(context.Background(), h)
	if err != nil {
		t.Fatalf("run should succeed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single delivery before the budget ended the run, got %d", calls)
	}
	if !stream.closed {
		t.Fatal("stream should be closed when the budget expires")
	}
	if res.Status.LogsProcessed != 2 {
		t.Fatalf("expected 2 processed, got %d", res.Status.LogsProcessed)
	}
	if res.Checkpoint != "002" {
		t.Fatalf("expected checkpoint 002, got %q", res.Checkpoint)
	}
}

func TestRunSourceErrorFailsAtPreviousCheckpoint(t *testing.T) {
	t.Parallel()

	now := time.Now()
	sourceErr := errors.New("upstream 503")
	stream := &scriptedStream{
		pages: [][]domain.LogRecord{
			{rec("001", now), rec("002", now)},
		},
		fetchErr: sourceErr,
	}
	docs := docstore.NewMemoryStore()

	s := newTestShipper(t, docs, stream, Options{BatchSize: 2})
	_, err := s.Run(context.Background(), &recordingHandler{})
	if !errors.Is(err, sourceErr) {
		t.Fatalf("expected source error, got %v", err)
	}

	doc, derr := docs.Read(context.Background())
	if derr != nil {
		t.Fatal(derr)
	}
	// first batch was accepted and saved, so previous checkpoint is 002
	if doc == nil || doc.CheckpointID != "002" {
		t.Fatalf("expected previous checkpoint 002, got %+v", doc)
	}
}

func TestRunStalenessWarning(t *testing.T) {
	t.Parallel()

	old := time.Now().Add(-10 * 24 * time.Hour)
	stream := &scriptedStream{pages: [][]domain.LogRecord{
		{rec("001", old)},
	}}
	docs := docstore.NewMemoryStore()

	s := newTestShipper(t, docs, stream, Options{BatchSize: 1})
	res, err := s.Run(context.Background(), &recordingHandler{})
	if err != nil {
		t.Fatalf("stale logs must not fail the run: %v", err)
	}
	if res.Status.Warning == "" {
		t.Fatal("expected a staleness warning")
	}
	if res.Status.LogsProcessed != 1 {
		t.Fatalf("expected 1 processed, got %d", res.Status.LogsProcessed)
	}
}

func TestRunNoWarningForFreshLogs(t *testing.T) {
	t.Parallel()

	stream := &scriptedStream{pages: [][]domain.LogRecord{
		{rec("001", time.Now())},
	}}
	s := newTestShipper(t, docstore.NewMemoryStore(), stream, Options{BatchSize: 1})
	res, err := s.Run(context.Background(), &recordingHandler{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status.Warning != "" {
		t.Fatalf("unexpected warning: %q", res.Status.Warning)
	}
}

func TestRunResumesFromPersistedCheckpoint(t *testing.T) {
	t.Parallel()

	docs := docstore.NewMemoryStore()
	if err := docs.Write(context.Background(), &domain.StorageDocument{CheckpointID: "cp-9"}); err != nil {
		t.Fatal(err)
	}

	var opened source.Config
	factory := func(cfg source.Config) (source.Stream, error) {
		opened = cfg
		return &scriptedStream{previous: cfg.Checkpoint, last: cfg.Checkpoint}, nil
	}
	s := New(checkpoint.NewStore(docs, 0), factory, Options{StartFrom: "fallback"}, testLogger())
	if _, err := s.Run(context.Background(), &recordingHandler{}); err != nil {
		t.Fatal(err)
	}
	if opened.Checkpoint != "cp-9" {
		t.Fatalf("expected stream seeded at cp-9, got %q", opened.Checkpoint)
	}
}

func TestRunExpandsTypeFilter(t *testing.T) {
	t.Parallel()

	var opened source.Config
	factory := func(cfg source.Config) (source.Stream, error) {
		opened = cfg
		return &scriptedStream{}, nil
	}
	s := New(checkpoint.NewStore(docstore.NewMemoryStore(), 0), factory, Options{
		LogTypes: []string{"login_success"},
		LogLevel: 4,
	}, testLogger())
	if _, err := s.Run(context.Background(), &recordingHandler{}); err != nil {
		t.Fatal(err)
	}
	if len(opened.Types) < 2 {
		t.Fatalf("expected explicit type plus level expansion, got %v", opened.Types)
	}
	found := false
	for _, name := range opened.Types {
		if name == "login_success" {
			found = true
		}
	}
	if !found {
		t.Fatalf("explicit type missing from filter: %v", opened.Types)
	}
}

func TestRunRetrySucceedsAfterTransientFailure(t *testing.T) {
	t.Parallel()

	now := time.Now()
	stream := &scriptedStream{pages: [][]domain.LogRecord{
		{rec("001", now), rec("002", now)},
	}}
	handler := &recordingHandler{failures: 2}
	docs := docstore.NewMemoryStore()

	s := newTestShipper(t, docs, stream, Options{BatchSize: 2, MaxRetries: 5})
	res, err := s.Run(context.Background(), handler)
	if err != nil {
		t.Fatalf("run should recover: %v", err)
	}
	if res.Status.LogsProcessed != 2 {
		t.Fatalf("expected 2 processed, got %d", res.Status.LogsProcessed)
	}
	// 2 failed attempts + 1 success + empty end delivery
	if len(handler.batches) != 4 {
		t.Fatalf("expected 4 invocations, got %d", len(handler.batches))
	}
}

func TestRunPersistenceErrorSurfaces(t *testing.T) {
	t.Parallel()

	now := time.Now()
	stream := &scriptedStream{pages: [][]domain.LogRecord{
		{rec("001", now)},
	}}
	docs := &failingDocStore{}

	factory := func(cfg source.Config) (source.Stream, error) { return stream, nil }
	s := New(checkpoint.NewStore(docs, 0), factory, Options{BatchSize: 1, MaxRetries: 0}, testLogger())

	_, err := s.Run(context.Background(), &recordingHandler{failures: -1})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, errWriteFailed) {
		t.Fatalf("persistence failure should surface, got %v", err)
	}
}

var errWriteFailed = errors.New("document store write failed")

type failingDocStore struct{}

func (f *failingDocStore) Read(ctx context.Context) (*domain.StorageDocument, error) {
	return nil, nil
}

func (f *failingDocStore) Write(ctx context.Context, doc *domain.StorageDocument) error {
	return errWriteFailed
}

func (f *failingDocStore) Close() error { return nil }

func TestSkipRangeErrorMessage(t *testing.T) {
	t.Parallel()

	err := &SkipRangeError{From: "a", To: "b", Err: fmt.Errorf("boom")}
	msg := err.Error()
	for _, want := range []string{`"a"`, `"b"`, "boom"} {
		if !bytes.Contains([]byte(msg), []byte(want)) {
			t.Fatalf("error message %q missing %q", msg, want)
		}
	}
	if !errors.Is(err, err.Err) {
		t.Fatal("expected Unwrap to expose the handler error")
	}
}
