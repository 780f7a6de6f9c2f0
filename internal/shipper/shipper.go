package shipper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmrzaf/logship/internal/checkpoint"
	"github.com/mmrzaf/logship/internal/domain"
	"github.com/mmrzaf/logship/internal/logging"
	"github.com/mmrzaf/logship/internal/logtypes"
	"github.com/mmrzaf/logship/internal/source"
)

const (
	DefaultBatchSize  = 100
	DefaultMaxRetries = 5
	DefaultMaxRunTime = 20 * time.Second

	// maxPageSize caps a single page request regardless of batch size.
	maxPageSize = 100

	// stalenessThreshold triggers a non-fatal warning when the newest shipped
	// record is older than this.
	stalenessThreshold = 7 * 24 * time.Hour
)

// Handler consumes one batch of records. Returning nil accepts the batch.
// Delivery is at least once: a handler may see the same batch again if an
// earlier attempt had side effects before failing, so handlers must be
// idempotent or tolerate redelivery.
type Handler interface {
	OnLogsReceived(ctx context.Context, batch []domain.LogRecord) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, batch []domain.LogRecord) error

func (f HandlerFunc) OnLogsReceived(ctx context.Context, batch []domain.LogRecord) error {
	return f(ctx, batch)
}

// Options configures one run.
type Options struct {
	BatchSize  int
	MaxRetries int
	MaxRunTime time.Duration
	StartFrom  string
	LogTypes   []string
	LogLevel   int
	ConfigHash string
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.MaxRunTime <= 0 {
		o.MaxRunTime = DefaultMaxRunTime
	}
	return o
}

// SkipRangeError terminates a run after retries are exhausted. It names the
// checkpoint span that will not be redelivered: the run resumed at From, the
// abandoned batch ends at To, and the next run continues after To.
type SkipRangeError struct {
	From string
	To   string
	Err  error
}

func (e *SkipRangeError) Error() string {
	return fmt.Sprintf("retries exhausted, skipping logs from checkpoint %q to %q: %v", e.From, e.To, e.Err)
}

func (e *SkipRangeError) Unwrap() error { return e.Err }

// Shipper drives one complete run: it opens a stream at the last checkpoint,
// accumulates pages into batches, delivers them to a handler with a bounded
// per-run retry budget and a wall-clock time budget, and records the outcome
// through the checkpoint store. One batch is in flight at a time; pages are
// delivered in source order.
type Shipper struct {
	checkpoints *checkpoint.Store
	newStream   source.Factory
	opts        Options
	logger      *logging.Logger

	now func() time.Time
}

func New(checkpoints *checkpoint.Store, newStream source.Factory, opts Options, logger *logging.Logger) *Shipper {
	if logger == nil {
		logger = logging.NewLogger("info")
	}
	return &Shipper{
		checkpoints: checkpoints,
		newStream:   newStream,
		opts:        opts.withDefaults(),
		logger:      logger.WithComponent("shipper"),
		now:         time.Now,
	}
}

// runState is the single mutable value owned by one Run call.
type runState struct {
	start       time.Time
	retries     int
	batch       []domain.LogRecord
	lastLogDate time.Time
	processed   int
}

// nextLimit is the page size for the next request: never more than the space
// left in the current batch, never more than maxPageSize.
func (s *Shipper) nextLimit(batchLen int) int {
	limit := s.opts.BatchSize - batchLen
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return limit
}

func (s *Shipper) hasTimeLeft(start time.Time) bool {
	return s.now().Sub(start) <= s.opts.MaxRunTime
}

// Run executes one complete run and resolves with the final status and
// checkpoint. The returned error is the terminating error for failed runs;
// even then the reached checkpoint has been persisted (unless persisting
// itself failed, in which case the persistence error surfaces instead).
func (s *Shipper) Run(ctx context.Context, h Handler) (*domain.RunResult, error) {
	types := logtypes.Expand(s.opts.LogTypes, s.opts.LogLevel)

	cp, err := s.checkpoints.GetCheckpoint(ctx, s.opts.StartFrom)
	if err != nil {
		return nil, fmt.Errorf("resolve starting checkpoint: %w", err)
	}

	stream, err := s.newStream(source.Config{Checkpoint: cp, Types: types})
	if err != nil {
		return nil, fmt.Errorf("open log stream: %w", err)
	}
	defer stream.Close()

	st := &runState{start: s.now()}
	status := domain.RunStatus{
		ID:         uuid.NewString(),
		StartedAt:  st.start,
		ConfigHash: s.opts.ConfigHash,
	}

	s.logger.Infow("run.started", map[string]interface{}{
		"run_id":     status.ID,
		"checkpoint": cp,
		"batch_size": s.opts.BatchSize,
		"types":      len(types),
	})

	for {
		records, err := stream.Next(ctx, s.nextLimit(len(st.batch)))
		if err != nil {
			// The in-flight batch's effect is unknown; resume before it.
			return s.concludeFailure(ctx, status, st, stream.PreviousCheckpoint(), fmt.Errorf("log source: %w", err))
		}

		if len(records) == 0 {
			// Stream end: deliver the remainder, possibly empty, one final time.
			failCp, derr := s.deliver(ctx, h, stream, st)
			if derr != nil {
				return s.concludeFailure(ctx, status, st, failCp, derr)
			}
			return s.concludeSuccess(ctx, status, st, stream.LastCheckpoint())
		}

		st.batch = append(st.batch, records...)
		if d, ok := records[len(records)-1].Date(); ok {
			st.lastLogDate = d
		}

		if len(st.batch) < s.opts.BatchSize {
			continue
		}

		failCp, derr := s.deliver(ctx, h, stream, st)
		if derr != nil {
			return s.concludeFailure(ctx, status, st, failCp, derr)
		}
		if !s.hasTimeLeft(st.start) {
			// Budget spent: end the stream cleanly instead of requesting
			// further pages. What was accepted so far counts as success.
			stream.Close()
			return s.concludeSuccess(ctx, status, st, stream.LastCheckpoint())
		}
		stream.BatchSaved()
	}
}

// deliver hands the current batch to the handler, applying the retry policy:
// redeliver the identical batch while the per-run retry budget and the time
// budget both hold. On acceptance the batch is cleared and deliver returns
// nil. Otherwise it returns the terminating error and the checkpoint to
// persist the failed run at.
func (s *Shipper) deliver(ctx context.Context, h Handler, stream source.Stream, st *runState) (string, error) {
	for {
		err := h.OnLogsReceived(ctx, st.batch)
		if err == nil {
			st.processed += len(st.batch)
			st.batch = nil
			return "", nil
		}

		if !s.hasTimeLeft(st.start) {
			// No retry once the budget is gone, whatever the retry count.
			s.logger.Warnw("run.budget_expired", map[string]interface{}{
				"retries": st.retries,
				"batch":   len(st.batch),
			})
			return stream.PreviousCheckpoint(), err
		}

		if st.retries < s.opts.MaxRetries {
			// The retry budget is per run, not per batch: a later batch
			// inherits whatever this one leaves behind.
			st.retries++
			s.logger.Warnw("batch.retry", map[string]interface{}{
				"attempt": st.retries,
				"batch":   len(st.batch),
			})
			continue
		}

		return stream.LastCheckpoint(), &SkipRangeError{
			From: stream.PreviousCheckpoint(),
			To:   stream.LastCheckpoint(),
			Err:  err,
		}
	}
}

func (s *Shipper) concludeSuccess(ctx context.Context, status domain.RunStatus, st *runState, cp string) (*domain.RunResult, error) {
	status.LogsProcessed = st.processed
	status.Checkpoint = cp
	ended := s.now()
	status.EndedAt = &ended

	if st.processed == 0 {
		// No-op run: nothing shipped, checkpoint unchanged, nothing persisted.
		s.logger.Infow("run.empty", map[string]interface{}{"run_id": status.ID})
		return &domain.RunResult{Status: status, Checkpoint: cp}, nil
	}

	if !st.lastLogDate.IsZero() {
		if age := s.now().Sub(st.lastLogDate); age > stalenessThreshold {
			status.Warning = fmt.Sprintf("most recent shipped log is %d days old; export is falling behind", int(age.Hours()/24))
		}
	}

	if err := s.checkpoints.Done(ctx, status, cp); err != nil {
		return nil, fmt.Errorf("persist run status: %w", err)
	}

	s.logger.Infow("run.succeeded", map[string]interface{}{
		"run_id":     status.ID,
		"processed":  st.processed,
		"checkpoint": cp,
		"warning":    status.Warning != "",
	})
	return &domain.RunResult{Status: status, Checkpoint: cp}, nil
}

func (s *Shipper) concludeFailure(ctx context.Context, status domain.RunStatus, st *runState, cp string, runErr error) (*domain.RunResult, error) {
	status.LogsProcessed = st.processed
	status.Checkpoint = cp
	status.Error = runErr.Error()
	ended := s.now()
	status.EndedAt = &ended

	if perr := s.checkpoints.Done(ctx, status, cp); perr != nil {
		// The persistence failure masks the run error; partial progress may
		// be reprocessed on the next run.
		return nil, fmt.Errorf("persist failed run (original error: %v): %w", runErr, perr)
	}

	s.logger.Errorw("run.failed", map[string]interface{}{
		"run_id":     status.ID,
		"processed":  st.processed,
		"checkpoint": cp,
		"error":      runErr.Error(),
	})
	return nil, runErr
}
