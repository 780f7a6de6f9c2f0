package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/mmrzaf/logship/internal/domain"
	"github.com/mmrzaf/logship/internal/validation"
)

// PostgresSink appends shipped records to a postgres table, one row per
// record with the raw payload as JSONB. Rows are keyed by log id so
// redelivered batches upsert instead of duplicating.
type PostgresSink struct {
	dsn   string
	table string
	db    *sql.DB
}

func NewPostgresSink(dsn, table string) (*PostgresSink, error) {
	if table == "" {
		table = "shipped_logs"
	}
	if !validation.IsValidIdentifier(table) {
		return nil, fmt.Errorf("invalid table name: %s", table)
	}
	return &PostgresSink{dsn: dsn, table: table}, nil
}

func (s *PostgresSink) Connect() error {
	db, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		return err
	}
	s.db = db

	createSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		log_id TEXT PRIMARY KEY,
		log_type TEXT,
		log_date TIMESTAMPTZ,
		payload JSONB NOT NULL,
		shipped_at TIMESTAMPTZ NOT NULL
	)`, s.table)

	_, err = s.db.Exec(createSQL)
	return err
}

func (s *PostgresSink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *PostgresSink) OnLogsReceived(ctx context.Context, batch []domain.LogRecord) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (log_id, log_type, log_date, payload, shipped_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (log_id) DO UPDATE SET payload = EXCLUDED.payload, shipped_at = EXCLUDED.shipped_at
	`, s.table)

	now := time.Now().UTC()
	for i, rec := range batch {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record %d: %w", i, err)
		}
		id := rec.ID()
		if id == "" {
			// no natural key: synthesize one from batch position
			id = fmt.Sprintf("anon-%d-%d", now.UnixNano(), i)
		}
		var date interface{}
		if d, ok := rec.Date(); ok {
			date = d
		}
		if _, err := tx.ExecContext(ctx, query, id, rec.Type(), date, payload, now); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}

	return tx.Commit()
}
