// Package document provides PostgreSQL-backed storage for shared documents.
// The realtime coordinator never reads from this store: it propagates
// whole-content snapshots between clients and hands the final content to the
// persistence path (NATS -> docwriter -> Put) asynchronously.
package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// ErrNotFound is returned by Get when no document exists for the given ID.
var ErrNotFound = errors.New("document: not found")

// Document is one shared document row.
type Document struct {
	ID           string
	Name         string
	ProjectID    string
	OwnerID      string
	Content      string
	Version      int
	LastEditedBy string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store manages documents in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL using the given DSN and verifies the
// connection with a ping.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("document: open: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("document: ping: %w", err)
	}

	return &Store{db: db}, nil
}

// Get retrieves a document by ID.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	const query = `
		SELECT id, name, project_id, owner_id, content, version, last_edited_by, created_at, updated_at
		FROM documents
		WHERE id = $1`

	var d Document
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.Name, &d.ProjectID, &d.OwnerID,
		&d.Content, &d.Version, &d.LastEditedBy,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("document: get %s: %w", id, err)
	}
	return &d, nil
}

// Create inserts a new document row with version 1.
func (s *Store) Create(ctx context.Context, d *Document) error {
	const query = `
		INSERT INTO documents (id, name, project_id, owner_id, content, version, last_edited_by)
		VALUES ($1, $2, $3, $4, $5, 1, $6)`

	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.Name, d.ProjectID, d.OwnerID, d.Content, d.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("document: insert %s: %w", d.ID, err)
	}
	return nil
}

// Put replaces a document's content, bumping the version counter. If the
// document does not exist yet it is created, so snapshots arriving before
// the CRUD layer's explicit create are not lost.
func (s *Store) Put(ctx context.Context, id, content, editedBy string) error {
	const query = `
		INSERT INTO documents (id, content, version, last_edited_by)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (id) DO UPDATE SET
			content        = EXCLUDED.content,
			version        = documents.version + 1,
			last_edited_by = EXCLUDED.last_edited_by,
			updated_at     = NOW()`

	_, err := s.db.ExecContext(ctx, query, id, content, editedBy)
	if err != nil {
		return fmt.Errorf("document: put %s: %w", id, err)
	}
	return nil
}

// Delete removes a document row. Deleting an unknown document is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("document: delete %s: %w", id, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
