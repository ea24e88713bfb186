package biz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/qabot/internal/qabot/manifest"
)

func doc(id, hash string) *Document {
	return &Document{ID: id, Content: "content of " + id, ContentHash: hash}
}

func TestDiff_Partition(t *testing.T) {
	docs := []*Document{
		doc("row-2", "h2"),
		doc("row-3", "h3-new"),
		doc("row-5", "h5"),
	}
	prev := manifest.Manifest{
		"row-2": {Hash: "h2", Chunks: 1},
		"row-3": {Hash: "h3-old", Chunks: 1},
		"row-4": {Hash: "h4", Chunks: 2},
	}

	c := Diff(docs, prev, false)

	assert.Equal(t, []string{"row-5"}, c.Added)
	assert.Equal(t, []string{"row-3"}, c.Changed)
	assert.Equal(t, []string{"row-4"}, c.Removed)
	assert.Equal(t, []string{"row-2"}, c.Unchanged)

	// The four sets cover the union of old and new ids without overlap.
	seen := map[string]int{}
	for _, set := range [][]string{c.Added, c.Changed, c.Removed, c.Unchanged} {
		for _, id := range set {
			seen[id]++
		}
	}
	union := map[string]bool{}
	for _, d := range docs {
		union[d.ID] = true
	}
	for id := range prev {
		union[id] = true
	}
	require.Len(t, seen, len(union))
	for id, n := range seen {
		assert.Equal(t, 1, n, "id %s appears in more than one set", id)
	}
}

func TestDiff_EmptyManifestMeansAllAdded(t *testing.T) {
	docs := []*Document{doc("row-2", "a"), doc("row-3", "b")}

	c := Diff(docs, manifest.Manifest{}, false)

	assert.Equal(t, []string{"row-2", "row-3"}, c.Added)
	assert.Empty(t, c.Changed)
	assert.Empty(t, c.Removed)
}

// A deleted row whose replacement derives the same id must be Changed, never
// Removed plus Added, so the stale vector is overwritten in place.
func TestDiff_SameIDReplaceIsChanged(t *testing.T) {
	prev := manifest.Manifest{"row-3": {Hash: "old-row-hash", Chunks: 1}}
	docs := []*Document{doc("row-3", "brand-new-row-hash")}

	c := Diff(docs, prev, false)

	assert.Equal(t, []string{"row-3"}, c.Changed)
	assert.Empty(t, c.Added)
	assert.Empty(t, c.Removed)
}

func TestDiff_Force(t *testing.T) {
	prev := manifest.Manifest{
		"row-2": {Hash: "h2", Chunks: 1},
		"row-3": {Hash: "h3", Chunks: 1},
	}
	docs := []*Document{doc("row-2", "h2"), doc("row-3", "h3")}

	c := Diff(docs, prev, true)

	assert.Equal(t, []string{"row-2", "row-3"}, c.Changed)
	assert.Empty(t, c.Unchanged)
}

func TestDiff_Pure(t *testing.T) {
	docs := []*Document{doc("row-2", "h2")}
	prev := manifest.Manifest{"row-2": {Hash: "other", Chunks: 1}}

	_ = Diff(docs, prev, false)

	assert.Equal(t, manifest.Entry{Hash: "other", Chunks: 1}, prev["row-2"])
}
