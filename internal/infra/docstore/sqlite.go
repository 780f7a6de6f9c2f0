package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mmrzaf/logship/internal/domain"
)

// SQLiteStore keeps one checkpoint document per stream in a local sqlite
// database. This is the default backend for the CLI.
type SQLiteStore struct {
	dbPath string
	stream string
	db     *sql.DB
}

func NewSQLiteStore(dbPath, stream string) *SQLiteStore {
	return &SQLiteStore{dbPath: dbPath, stream: stream}
}

func (s *SQLiteStore) Init() error {
	if dir := filepath.Dir(s.dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	db, err := sql.Open("sqlite3", s.dbPath)
	if err != nil {
		return err
	}
	s.db = db

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS checkpoint_documents (
		stream TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`

	_, err = s.db.Exec(createTableSQL)
	return err
}

func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Read(ctx context.Context) (*domain.StorageDocument, error) {
	var raw string
	query := `SELECT document FROM checkpoint_documents WHERE stream = ?`
	err := s.db.QueryRowContext(ctx, query, s.stream).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc domain.StorageDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *SQLiteStore) Write(ctx context.Context, doc *domain.StorageDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO checkpoint_documents (stream, document, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(stream) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query, s.stream, string(data), time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
