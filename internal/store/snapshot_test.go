package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quip/internal/facts"
)

func testSnapshot(name string) Snapshot {
	return Snapshot{
		Name:        name,
		CatalogHash: "abc123",
		Seq:         7,
		Records: []facts.Record{
			{Name: "health", Kind: facts.KindValue, Value: 42.5},
			{Name: "mood", Kind: facts.KindString, Value: 3, Text: "angry"},
			{Name: "alert", Kind: facts.KindValue, Value: -1},
		},
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	want := testSnapshot("checkpoint")
	require.NoError(t, s.SaveSnapshot(ctx, want))

	got, err := s.LoadSnapshot(ctx, "checkpoint")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSnapshot_Replace(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, testSnapshot("a")))

	replacement := Snapshot{
		Name:        "a",
		CatalogHash: "def456",
		Seq:         9,
		Records:     []facts.Record{{Name: "health", Kind: facts.KindValue, Value: 1}},
	}
	require.NoError(t, s.SaveSnapshot(ctx, replacement))

	got, err := s.LoadSnapshot(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, replacement, got)
}

func TestSnapshot_Empty(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, Snapshot{Name: "empty", CatalogHash: "h"}))
	got, err := s.LoadSnapshot(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, got.Records)
	assert.NotNil(t, got.Records)
}

func TestSnapshot_NotFound(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.LoadSnapshot(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.DeleteSnapshot(ctx, "nope"), ErrNotFound)
}

func TestSnapshot_ListAndDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"b", "a", "c"} {
		require.NoError(t, s.SaveSnapshot(ctx, testSnapshot(name)))
	}

	names, err := s.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)

	require.NoError(t, s.DeleteSnapshot(ctx, "b"))
	names, err = s.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, names)

	var orphans int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM snapshot_facts WHERE snapshot = 'b'`).Scan(&orphans))
	assert.Zero(t, orphans, "facts cascade with their snapshot")
}
