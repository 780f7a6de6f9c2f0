package writer

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/mmrzaf/logship/internal/domain"
)

// WriterSink streams records as NDJSON to an io.Writer, one record per line.
type WriterSink struct {
	w io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Connect() error { return nil }
func (s *WriterSink) Close() error   { return nil }

func (s *WriterSink) OnLogsReceived(ctx context.Context, batch []domain.LogRecord) error {
	enc := json.NewEncoder(s.w)
	for _, rec := range batch {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

// FileSink is a WriterSink that appends to a file opened on Connect.
type FileSink struct {
	path string
	f    *os.File
	sink *WriterSink
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Connect() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	s.f = f
	s.sink = NewWriterSink(f)
	return nil
}

func (s *FileSink) Close() error {
	if s.f != nil {
		return s.f.Close()
	}
	return nil
}

func (s *FileSink) OnLogsReceived(ctx context.Context, batch []domain.LogRecord) error {
	return s.sink.OnLogsReceived(ctx, batch)
}
