// Package sqlite implements the document database on an embedded SQLite
// file. It is the default backend for a single instance.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven"
)

//go:embed schema.sql
var schemaSQL string

// Verify interface compliance
var (
	_ driven.DocumentDatabase = (*Database)(nil)
	_ driven.DocumentStore    = (*DocumentStore)(nil)
)

// Database is a SQLite file holding every named store in one table.
type Database struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
//
// The connection runs in WAL mode with a 5 second busy timeout and a single
// open connection, since SQLite allows one writer at a time.
func Open(path string) (*Database, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Database{db: db}, nil
}

func (d *Database) Store(ctx context.Context, name string) (driven.DocumentStore, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty store name", domain.ErrInvalidInput)
	}
	return &DocumentStore{db: d.db, name: name}, nil
}

func (d *Database) Names(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT DISTINCT store FROM documents ORDER BY store`)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the database file.
func (d *Database) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// DocumentStore is one named store.
type DocumentStore struct {
	db   *sql.DB
	name string
}

func (s *DocumentStore) Name() string { return s.name }

func (s *DocumentStore) Get(ctx context.Context, key string) (*domain.Document, error) {
	doc := &domain.Document{Key: key}
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT rev, body FROM documents WHERE store = ? AND key = ?`,
		s.name, key,
	).Scan(&doc.Rev, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", s.name, key, err)
	}
	doc.Body = body
	return doc, nil
}

func (s *DocumentStore) Put(ctx context.Context, key string, body []byte, rev string) (string, error) {
	next := domain.NextRevision(rev)
	now := time.Now().UnixMilli()

	var res sql.Result
	var err error
	if rev == "" {
		res, err = s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO documents (store, key, rev, body, updated_at) VALUES (?, ?, ?, ?, ?)`,
			s.name, key, next, body, now,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE documents SET rev = ?, body = ?, updated_at = ? WHERE store = ? AND key = ? AND rev = ?`,
			next, body, now, s.name, key, rev,
		)
	}
	if err != nil {
		return "", fmt.Errorf("put %s/%s: %w", s.name, key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", domain.ErrConflict
	}
	return next, nil
}

func (s *DocumentStore) Remove(ctx context.Context, key, rev string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE store = ? AND key = ? AND rev = ?`,
		s.name, key, rev,
	)
	if err != nil {
		return fmt.Errorf("remove %s/%s: %w", s.name, key, err)
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	if _, err := s.Get(ctx, key); err != nil {
		return err
	}
	return domain.ErrConflict
}

func (s *DocumentStore) List(ctx context.Context, includeBody bool) ([]*domain.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, rev, body FROM documents WHERE store = ? ORDER BY key`,
		s.name,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.name, err)
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc := &domain.Document{}
		var body []byte
		if err := rows.Scan(&doc.Key, &doc.Rev, &body); err != nil {
			return nil, err
		}
		if includeBody {
			doc.Body = body
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *DocumentStore) Clear(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE store = ?`, s.name)
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", s.name, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
