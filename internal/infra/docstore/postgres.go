package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/lib/pq"
	"github.com/mmrzaf/logship/internal/domain"
)

// PostgresStore keeps one checkpoint document per stream in postgres, for
// deployments where runs execute on different hosts.
type PostgresStore struct {
	dsn    string
	stream string
	db     *sql.DB
}

func NewPostgresStore(dsn, stream string) *PostgresStore {
	return &PostgresStore{dsn: dsn, stream: stream}
}

func (s *PostgresStore) Init() error {
	db, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		return err
	}
	s.db = db

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS checkpoint_documents (
		stream TEXT PRIMARY KEY,
		document JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`

	_, err = s.db.Exec(createTableSQL)
	return err
}

func (s *PostgresStore) Read(ctx context.Context) (*domain.StorageDocument, error) {
	var raw []byte
	query := `SELECT document FROM checkpoint_documents WHERE stream = $1`
	err := s.db.QueryRowContext(ctx, query, s.stream).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc domain.StorageDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *PostgresStore) Write(ctx context.Context, doc *domain.StorageDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO checkpoint_documents (stream, document, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (stream) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at
	`
	_, err = s.db.ExecContext(ctx, query, s.stream, data, time.Now().UTC())
	return err
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
