package biz

import (
	"sort"

	"github.com/kart-io/qabot/internal/qabot/manifest"
)

// Changes partitions document ids by how they differ from the previous sync.
// The four sets are pairwise disjoint and cover the union of old and new ids.
type Changes struct {
	Added     []string
	Changed   []string
	Removed   []string
	Unchanged []string

	// Docs indexes the current documents by id for the ids in
	// Added/Changed/Unchanged. Removed ids have no current document.
	Docs map[string]*Document
}

// Empty reports whether the diff requires no index writes.
func (c *Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Changed) == 0 && len(c.Removed) == 0
}

// Diff compares freshly normalized documents against the persisted manifest.
// Pure: it never touches the vector store. A deleted row whose successor lands
// on the same derived id shows up as Changed (id present on both sides, hash
// differs), so the indexer overwrites in place instead of deleting and leaving
// a stale-vector window.
//
// When force is set, every current document is classified Changed regardless
// of its hash, which is how a full reindex is expressed.
func Diff(docs []*Document, m manifest.Manifest, force bool) *Changes {
	c := &Changes{Docs: make(map[string]*Document, len(docs))}

	for _, doc := range docs {
		c.Docs[doc.ID] = doc

		prev, ok := m[doc.ID]
		switch {
		case !ok:
			c.Added = append(c.Added, doc.ID)
		case force || prev.Hash != doc.ContentHash:
			c.Changed = append(c.Changed, doc.ID)
		default:
			c.Unchanged = append(c.Unchanged, doc.ID)
		}
	}

	for id := range m {
		if _, ok := c.Docs[id]; !ok {
			c.Removed = append(c.Removed, id)
		}
	}

	sort.Strings(c.Added)
	sort.Strings(c.Changed)
	sort.Strings(c.Removed)
	sort.Strings(c.Unchanged)
	return c
}
