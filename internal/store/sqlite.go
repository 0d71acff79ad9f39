package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/matthewbaird/canvas/internal/types"
)

const (
	documentsTable = "documents"
	// Fixed-width UTC timestamps sort lexicographically.
	timeLayout = "2006-01-02T15:04:05.000Z"
)

const createDocuments = `
CREATE TABLE IF NOT EXISTS documents (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	components      TEXT NOT NULL,
	component_count INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents (updated_at DESC);
`

// SQLiteStore implements Store on a single SQLite table. The caller owns
// the *sql.DB; it is expected to be opened with the "sqlite" driver.
type SQLiteStore struct {
	db  *sql.DB
	sb  *entsql.DialectBuilder
	now func() time.Time
}

// NewSQLiteStore creates the documents table if needed and returns a store
// backed by db.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, createDocuments); err != nil {
		return nil, fmt.Errorf("store: creating documents table: %w", err)
	}
	return &SQLiteStore{db: db, sb: entsql.Dialect(dialect.SQLite), now: time.Now}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, doc types.Document) (types.Document, error) {
	if err := stamp(&doc, time.Time{}, s.now()); err != nil {
		return types.Document{}, err
	}
	components, err := json.Marshal(doc.Components)
	if err != nil {
		return types.Document{}, fmt.Errorf("store: encode document %s: %w", doc.ID, err)
	}

	// created_at is left out of the conflict update so the first insert wins.
	query, args := s.sb.Insert(documentsTable).
		Columns("id", "name", "components", "component_count", "created_at", "updated_at").
		Values(doc.ID, doc.Name, string(components), doc.Summary().ComponentCount,
			doc.CreatedAt.Format(timeLayout), doc.UpdatedAt.Format(timeLayout)).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("name")
				u.SetExcluded("components")
				u.SetExcluded("component_count")
				u.SetExcluded("updated_at")
			}),
		).
		Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return types.Document{}, fmt.Errorf("store: saving document %s: %w", doc.ID, err)
	}
	return s.Get(ctx, doc.ID)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (types.Document, error) {
	query, args := s.sb.Select("id", "name", "components", "created_at", "updated_at").
		From(entsql.Table(documentsTable)).
		Where(entsql.EQ("id", id)).
		Query()

	var (
		d                types.Document
		components       string
		created, updated string
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&d.ID, &d.Name, &components, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Document{}, ErrNotFound
	}
	if err != nil {
		return types.Document{}, fmt.Errorf("store: loading document %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(components), &d.Components); err != nil {
		return types.Document{}, fmt.Errorf("store: decode document %s: %w", id, err)
	}
	if d.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return types.Document{}, fmt.Errorf("store: document %s created_at: %w", id, err)
	}
	if d.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return types.Document{}, fmt.Errorf("store: document %s updated_at: %w", id, err)
	}
	return d, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]types.DocumentSummary, error) {
	query, args := s.sb.Select("id", "name", "component_count", "updated_at").
		From(entsql.Table(documentsTable)).
		OrderBy(entsql.Desc("updated_at"), entsql.Asc("id")).
		Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: listing documents: %w", err)
	}
	defer rows.Close()

	out := []types.DocumentSummary{}
	for rows.Next() {
		var (
			sum     types.DocumentSummary
			updated string
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.ComponentCount, &updated); err != nil {
			return nil, fmt.Errorf("store: scanning document: %w", err)
		}
		if sum.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
			return nil, fmt.Errorf("store: document %s updated_at: %w", sum.ID, err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	query, args := s.sb.Delete(documentsTable).Where(entsql.EQ("id", id)).Query()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: deleting document %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: deleting document %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
