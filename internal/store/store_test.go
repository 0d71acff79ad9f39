package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/matthewbaird/canvas/internal/types"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type storeCase struct {
	name string
	open func(t *testing.T, c *clock) Store
}

func storeCases() []storeCase {
	return []storeCase{
		{"memory", func(t *testing.T, c *clock) Store {
			s := NewMemoryStore()
			s.now = c.now
			return s
		}},
		{"sqlite", func(t *testing.T, c *clock) Store {
			db, err := sql.Open("sqlite", ":memory:")
			require.NoError(t, err)
			db.SetMaxOpenConns(1)
			t.Cleanup(func() { db.Close() })
			s, err := NewSQLiteStore(context.Background(), db)
			require.NoError(t, err)
			s.now = c.now
			return s
		}},
		{"file", func(t *testing.T, c *clock) Store {
			s, err := NewFileStore(t.TempDir())
			require.NoError(t, err)
			s.now = c.now
			return s
		}},
	}
}

func sampleDocument() types.Document {
	return types.Document{
		Name: "dashboard",
		Components: []types.NodeRecord{
			{
				ID:   "chart-1",
				Kind: "bar-chart",
				Name: "Sales",
				PropertyValues: map[string]any{
					"axis": map[string]any{"title": "Revenue"},
				},
				Style: map[string]any{"left": float64(10), "top": float64(20)},
				Data:  &types.DataRecord{Type: "static", RequestOptions: map[string]any{"data": []any{float64(1)}}},
			},
			{
				ID:   "group-1",
				Kind: "group",
				Children: []types.NodeRecord{
					{ID: "text-1", Kind: "text"},
					{ID: "text-2", Kind: "text"},
				},
			},
		},
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	for _, tc := range storeCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
			s := tc.open(t, c)

			saved, err := s.Save(ctx, sampleDocument())
			require.NoError(t, err)
			require.NotEmpty(t, saved.ID)
			assert.True(t, ValidID(saved.ID))
			assert.Equal(t, c.t, saved.CreatedAt)
			assert.Equal(t, c.t, saved.UpdatedAt)

			got, err := s.Get(ctx, saved.ID)
			require.NoError(t, err)
			assert.Equal(t, saved, got)
			require.Len(t, got.Components, 2)
			assert.Equal(t, "Revenue", got.Components[0].PropertyValues["axis"].(map[string]any)["title"])
			assert.Len(t, got.Components[1].Children, 2)
			assert.Equal(t, 4, got.Summary().ComponentCount)
		})
	}
}

func TestStore_SavePreservesCreatedAt(t *testing.T) {
	for _, tc := range storeCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
			s := tc.open(t, c)

			first, err := s.Save(ctx, sampleDocument())
			require.NoError(t, err)

			c.advance(time.Hour)
			first.Name = "renamed"
			first.CreatedAt = time.Time{}
			second, err := s.Save(ctx, first)
			require.NoError(t, err)

			assert.Equal(t, first.ID, second.ID)
			assert.Equal(t, "renamed", second.Name)
			assert.Equal(t, c.t.Add(-time.Hour), second.CreatedAt)
			assert.Equal(t, c.t, second.UpdatedAt)
		})
	}
}

func TestStore_ListOrder(t *testing.T) {
	for _, tc := range storeCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
			s := tc.open(t, c)

			empty, err := s.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, empty)

			for _, id := range []string{"alpha", "beta", "gamma"} {
				doc := sampleDocument()
				doc.ID = id
				_, err := s.Save(ctx, doc)
				require.NoError(t, err)
				c.advance(time.Minute)
			}
			// Touch alpha so it becomes most recent.
			alpha, err := s.Get(ctx, "alpha")
			require.NoError(t, err)
			_, err = s.Save(ctx, alpha)
			require.NoError(t, err)

			list, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 3)
			ids := []string{list[0].ID, list[1].ID, list[2].ID}
			assert.Equal(t, []string{"alpha", "gamma", "beta"}, ids)
			assert.Equal(t, 4, list[0].ComponentCount)
			assert.Equal(t, "dashboard", list[0].Name)
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for _, tc := range storeCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := tc.open(t, &clock{t: time.Now().UTC()})

			saved, err := s.Save(ctx, sampleDocument())
			require.NoError(t, err)

			require.NoError(t, s.Delete(ctx, saved.ID))
			assert.ErrorIs(t, s.Delete(ctx, saved.ID), ErrNotFound)

			_, err = s.Get(ctx, saved.ID)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_InvalidID(t *testing.T) {
	for _, tc := range storeCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := tc.open(t, &clock{t: time.Now().UTC()})

			doc := sampleDocument()
			doc.ID = "../escape"
			_, err := s.Save(ctx, doc)
			assert.ErrorIs(t, err, ErrInvalidID)

			_, err = s.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_ReturnedDocumentIsIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	saved, err := s.Save(ctx, sampleDocument())
	require.NoError(t, err)
	saved.Components[0].PropertyValues["axis"].(map[string]any)["title"] = "mutated"

	got, err := s.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Revenue", got.Components[0].PropertyValues["axis"].(map[string]any)["title"])
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("doc-1"))
	assert.True(t, ValidID("6f1c5d0e-8a7b-4c1e-9d55-2b8d2f0e3c11"))
	assert.False(t, ValidID(""))
	assert.False(t, ValidID(".hidden"))
	assert.False(t, ValidID("a/b"))
	assert.False(t, ValidID(".."))
}
