package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/zhouzirui/med-chat/backend/internal/model/chat"
)

// SQLiteStore keeps one row per transcript key in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and migrates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite store: empty path")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite db")
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS transcripts (
			key TEXT PRIMARY KEY,
			body TEXT NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context, key string) ([]chat.Message, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM transcripts WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select transcript")
	}
	return Decode([]byte(body))
}

func (s *SQLiteStore) Save(ctx context.Context, key string, messages []chat.Message) error {
	data, err := Encode(messages)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transcripts(key, body, updated_at_ms) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET body = excluded.body, updated_at_ms = excluded.updated_at_ms`,
		key, string(data), time.Now().UnixMilli())
	return errors.Wrap(err, "upsert transcript")
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE key = ?`, key)
	return errors.Wrap(err, "delete transcript")
}
