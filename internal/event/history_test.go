package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_RecentNewestFirst(t *testing.T) {
	h := NewHistory(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, h.HandleEvent(ctx, NewChildrenChanged("doc", "root", i)))
	}
	require.NoError(t, h.HandleEvent(ctx, NewDocumentSaved("other", 1)))

	got := h.Recent("doc", 0)
	require.Len(t, got, 3)
	assert.Equal(t, 4, got[0].Value)
	assert.Equal(t, 2, got[2].Value)

	assert.Len(t, h.Recent("doc", 2), 2)
	assert.Len(t, h.Recent("other", 10), 1)
	assert.Empty(t, h.Recent("missing", 0))
}

func TestHistory_DeleteDropsDocument(t *testing.T) {
	h := NewHistory(0)
	ctx := context.Background()

	require.NoError(t, h.HandleEvent(ctx, NewStyleChanged("doc", "n", []string{"position", "left"}, 4)))
	require.NoError(t, h.HandleEvent(ctx, NewDocumentDeleted("doc")))

	assert.Empty(t, h.Recent("doc", 0))
}

func TestChange_PathIsCopied(t *testing.T) {
	path := []string{"axis", "title"}
	c := NewPropertyChanged("doc", "n", path, "x")
	path[0] = "mutated"

	assert.Equal(t, []string{"axis", "title"}, c.Path)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "s", c.WithSession("s").Session)
	assert.Empty(t, c.Session)
}
