package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.DocumentDatabase = (*Database)(nil)
	_ driven.DocumentStore    = (*DocumentStore)(nil)
)

// Database implements driven.DocumentDatabase on the documents table.
type Database struct {
	db *DB
}

// NewDatabase creates a PostgreSQL document database.
func NewDatabase(db *DB) *Database {
	return &Database{db: db}
}

// Store returns the named store. Stores are rows keyed by name, so nothing
// is created up front.
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

func (d *Database) Ping(ctx context.Context) error { return d.db.Ping(ctx) }

func (d *Database) Close() error { return d.db.Close() }

// DocumentStore is one named store inside the documents table.
type DocumentStore struct {
	db   *DB
	name string
}

func (s *DocumentStore) Name() string { return s.name }

func (s *DocumentStore) Get(ctx context.Context, key string) (*domain.Document, error) {
	doc := &domain.Document{Key: key}
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT rev, body FROM documents WHERE store = $1 AND key = $2`,
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

// Put inserts when rev is empty and otherwise updates only the row still at
// rev. Zero affected rows means the revision did not match.
func (s *DocumentStore) Put(ctx context.Context, key string, body []byte, rev string) (string, error) {
	next := domain.NextRevision(rev)

	var res sql.Result
	var err error
	if rev == "" {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO documents (store, key, rev, body)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (store, key) DO NOTHING
		`, s.name, key, next, string(body))
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE documents SET rev = $4, body = $5, updated_at = NOW()
			WHERE store = $1 AND key = $2 AND rev = $3
		`, s.name, key, rev, next, string(body))
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

// Remove deletes key at rev. A stale revision and a missing document are
// told apart inside the same transaction.
func (s *DocumentStore) Remove(ctx context.Context, key, rev string) error {
	return s.db.inTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx,
			`SELECT rev FROM documents WHERE store = $1 AND key = $2 FOR UPDATE`,
			s.name, key,
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("remove %s/%s: %w", s.name, key, err)
		}
		if current != rev {
			return domain.ErrConflict
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE store = $1 AND key = $2`, s.name, key,
		); err != nil {
			return fmt.Errorf("remove %s/%s: %w", s.name, key, err)
		}
		return nil
	})
}

func (s *DocumentStore) List(ctx context.Context, includeBody bool) ([]*domain.Document, error) {
	query := `SELECT key, rev, NULL FROM documents WHERE store = $1 ORDER BY key`
	if includeBody {
		query = `SELECT key, rev, body FROM documents WHERE store = $1 ORDER BY key`
	}

	rows, err := s.db.QueryContext(ctx, query, s.name)
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE store = $1`, s.name)
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", s.name, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
