package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a document key does not exist.
var ErrNotFound = errors.New("document not found")

// Store is a key-value store with whole-document writes and append-only record logs.
// Every operation is atomic for its key; nothing spans keys.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Document is a stored document with its timestamps.
type Document struct {
	Key       string
	Body      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Record is one entry of an append-only log.
type Record struct {
	Key  string
	Seq  int64
	TS   time.Time
	Body []byte
}

// Read returns the document stored under key.
func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE key=?`, key)
	var body string
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("read %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return []byte(body), nil
}

// Write replaces the document stored under key, keeping its original creation time.
func (s *Store) Write(ctx context.Context, key string, doc []byte) error {
	now := formatTS(time.Now())
	if _, err := s.db.ExecContext(ctx, `INSERT INTO documents(key, body, created_at, updated_at) VALUES(?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET body=excluded.body, updated_at=excluded.updated_at`,
		key, string(doc), now, now); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Append adds a record to the log under key and returns its sequence number.
// Sequence numbers start at 1 and increase by one per key.
func (s *Store) Append(ctx context.Context, key string, record []byte) (int64, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin append %s: %w", key, err)
	}
	seq, err := nextSeq(ctx, tx, key)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO records(key, seq, ts, body) VALUES(?, ?, ?, ?)`,
		key, seq, formatTS(time.Now()), string(record)); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("append %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append %s: %w", key, err)
	}
	return seq, nil
}

func nextSeq(ctx context.Context, tx *sql.Tx, key string) (int64, error) {
	var seq int64
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM records WHERE key=?`, key)
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("read record seq: %w", err)
	}
	return seq + 1, nil
}

// Records returns the records under key with a sequence number greater than afterSeq, in order.
func (s *Store) Records(ctx context.Context, key string, afterSeq int64) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seq, ts, body FROM records WHERE key=? AND seq>? ORDER BY seq`, key, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("list records %s: %w", key, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var (
			seq      int64
			ts, body string
		)
		if err := rows.Scan(&seq, &ts, &body); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, Record{Key: key, Seq: seq, TS: parseTS(ts), Body: []byte(body)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// List returns the documents whose key starts with prefix, newest first.
func (s *Store) List(ctx context.Context, prefix string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, body, created_at, updated_at FROM documents
		WHERE substr(key, 1, ?)=? ORDER BY created_at DESC, key DESC`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Document
	for rows.Next() {
		var key, body, createdAt, updatedAt string
		if err := rows.Scan(&key, &body, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, Document{
			Key:       key,
			Body:      []byte(body),
			CreatedAt: parseTS(createdAt),
			UpdatedAt: parseTS(updatedAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

// Delete removes the document and the record log stored under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin delete %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE key=?`, key); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete document %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE key=?`, key); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete records %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete %s: %w", key, err)
	}
	return nil
}

// tsLayout keeps a fixed width so timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(value string) time.Time {
	t, err := time.Parse(tsLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
