package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mootikins/crucible/internal/crucible/errno"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func noteEntity(key string) *Entity {
	now := time.Now().UTC().Truncate(time.Second)
	return &Entity{
		ID:          NewEntityID("note", key),
		Type:        EntityNote,
		ContentHash: "hash-" + key,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestEntityRoundTrip(t *testing.T) {
	st := newTestStore(t)

	e := noteEntity("a.md")
	require.NoError(t, st.UpsertEntity(e))

	got, err := st.GetEntity(e.ID)
	require.NoError(t, err)
	assert.Equal(t, EntityNote, got.Type)
	assert.Equal(t, "hash-a.md", got.ContentHash)

	// Upsert updates in place.
	e.ContentHash = "hash2"
	require.NoError(t, st.UpsertEntity(e))
	got, err = st.GetEntity(e.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash2", got.ContentHash)

	_, err = st.GetEntity(NewEntityID("note", "missing.md"))
	assert.True(t, errors.Is(err, errno.ErrEntityNotFound))
}

func TestDeleteEntityCascades(t *testing.T) {
	st := newTestStore(t)
	e := noteEntity("d.md")
	require.NoError(t, st.UpsertEntity(e))
	require.NoError(t, st.UpsertProperty(Property{EntityID: e.ID, Namespace: "core", Key: "title", Value: TextValue("D")}))
	require.NoError(t, st.ReplaceBlocks(e.ID, []BlockNode{{ID: "blocks:d.md:p0", Index: 0, Type: "paragraph", Content: "x"}}))
	require.NoError(t, st.StoreRelation(Relation{From: e.ID, Type: RelationWikilink, Metadata: map[string]interface{}{"target": "x"}}))
	require.NoError(t, st.SetNotePath(e.ID, "d.md"))

	require.NoError(t, st.DeleteEntity(e.ID))

	_, err := st.GetEntity(e.ID)
	assert.Error(t, err)
	props, err := st.GetProperties(e.ID, "")
	require.NoError(t, err)
	assert.Empty(t, props)
	blocks, err := st.GetBlocks(e.ID)
	require.NoError(t, err)
	assert.Empty(t, blocks)
	rels, err := st.GetRelations(e.ID, "")
	require.NoError(t, err)
	assert.Empty(t, rels)
	matches, err := st.FindNotesByPathSuffix("d.md")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestReplaceBlocksAtomic(t *testing.T) {
	st := newTestStore(t)
	e := noteEntity("b.md")
	require.NoError(t, st.UpsertEntity(e))

	first := []BlockNode{
		{ID: "blocks:b.md:h0", Index: 0, Type: "heading", Content: "T"},
		{ID: "blocks:b.md:p1", Index: 1, Type: "paragraph", Content: "one"},
	}
	require.NoError(t, st.ReplaceBlocks(e.ID, first))

	second := []BlockNode{
		{ID: "blocks:b.md:p0", Index: 0, Type: "paragraph", Content: "only"},
	}
	require.NoError(t, st.ReplaceBlocks(e.ID, second))

	got, err := st.GetBlocks(e.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "only", got[0].Content)
}

func TestStoreRelationIdempotent(t *testing.T) {
	st := newTestStore(t)
	e := noteEntity("r.md")
	require.NoError(t, st.UpsertEntity(e))

	rel := Relation{
		From:     e.ID,
		Type:     RelationWikilink,
		Metadata: map[string]interface{}{"target": "Other", "offset": 12},
	}
	require.NoError(t, st.StoreRelation(rel))
	require.NoError(t, st.StoreRelation(rel))

	rels, err := st.GetRelations(e.ID, RelationWikilink)
	require.NoError(t, err)
	assert.Len(t, rels, 1)

	// A different offset is a different logical relation.
	rel.Metadata = map[string]interface{}{"target": "Other", "offset": 40}
	require.NoError(t, st.StoreRelation(rel))
	rels, err = st.GetRelations(e.ID, RelationWikilink)
	require.NoError(t, err)
	assert.Len(t, rels, 2)
}

func TestGetBacklinks(t *testing.T) {
	st := newTestStore(t)
	a := noteEntity("a.md")
	b := noteEntity("b.md")
	require.NoError(t, st.UpsertEntity(a))
	require.NoError(t, st.UpsertEntity(b))

	to := b.ID
	require.NoError(t, st.StoreRelation(Relation{
		From: a.ID, To: &to, Type: RelationWikilink,
		Metadata: map[string]interface{}{"target": "b"},
	}))
	require.NoError(t, st.StoreRelation(Relation{
		From: a.ID, To: &to, Type: RelationEmbed,
		Metadata: map[string]interface{}{"target": "b.png"},
	}))

	all, err := st.GetBacklinks(b.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyLinks, err := st.GetBacklinks(b.ID, RelationWikilink)
	require.NoError(t, err)
	require.Len(t, onlyLinks, 1)
	assert.Equal(t, a.ID, onlyLinks[0].From)
}

func TestFindNotesByPathSuffix(t *testing.T) {
	st := newTestStore(t)
	paths := []string{"Project A/Note.md", "Project B/Note.md", "Other/Footnote.md", "Plain.md"}
	for i, p := range paths {
		e := noteEntity(fmt.Sprintf("e%d", i))
		require.NoError(t, st.UpsertEntity(e))
		require.NoError(t, st.SetNotePath(e.ID, p))
	}

	// Whole-segment suffix match: "Note" must not match "Footnote.md".
	matches, err := st.FindNotesByPathSuffix("Note")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "project a/note.md", matches[0].RelPath)
	assert.Equal(t, "project b/note.md", matches[1].RelPath)

	// Case-insensitive.
	matches, err = st.FindNotesByPathSuffix("PLAIN.MD")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	// Containment fallback for partial directory targets.
	matches, err = st.FindNotesByPathSuffix("project a/")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	matches, err = st.FindNotesByPathSuffix("nothing-here")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestPropertiesTypedValues(t *testing.T) {
	st := newTestStore(t)
	e := noteEntity("p.md")
	require.NoError(t, st.UpsertEntity(e))

	props := []Property{
		{EntityID: e.ID, Namespace: "core", Key: "title", Value: TextValue("Hello")},
		{EntityID: e.ID, Namespace: "enrichment", Key: "reading_time", Value: NumberValue(3)},
		{EntityID: e.ID, Namespace: "core", Key: "pinned", Value: BoolValue(true)},
		{EntityID: e.ID, Namespace: "core", Key: "tags", Value: JSONValue([]string{"a", "b"})},
	}
	for _, p := range props {
		require.NoError(t, st.UpsertProperty(p))
	}

	got, err := st.GetProperties(e.ID, "core")
	require.NoError(t, err)
	byKey := map[string]AttributeValue{}
	for _, p := range got {
		byKey[p.Key] = p.Value
	}
	assert.Equal(t, "Hello", byKey["title"].Text)
	assert.Equal(t, true, byKey["pinned"].Bool)

	enrich, err := st.GetProperties(e.ID, "enrichment")
	require.NoError(t, err)
	require.Len(t, enrich, 1)
	assert.Equal(t, 3.0, enrich[0].Value.Number)
}

func TestQueryRecords(t *testing.T) {
	st := newTestStore(t)
	e := noteEntity("q.md")
	e.Data = map[string]interface{}{"kind": "test"}
	require.NoError(t, st.UpsertEntity(e))

	records, err := st.Query(`SELECT id, data FROM entities WHERE id = ?`, string(e.ID))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, string(e.ID), records[0].ID)
	data, ok := records[0].Data["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "test", data["kind"])
}

func TestTagsAndEntityTags(t *testing.T) {
	st := newTestStore(t)
	e := noteEntity("t.md")
	require.NoError(t, st.UpsertEntity(e))

	parent := Tag{ID: NewEntityID("tag", "project"), Path: "project", Depth: 1}
	require.NoError(t, st.UpsertTag(parent))
	pid := parent.ID
	child := Tag{ID: NewEntityID("tag", "project/go"), ParentID: &pid, Path: "project/go", Depth: 2}
	require.NoError(t, st.UpsertTag(child))

	got, err := st.GetTagByPath("project/go")
	require.NoError(t, err)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, parent.ID, *got.ParentID)

	require.NoError(t, st.UpsertEntityTag(EntityTag{EntityID: e.ID, TagID: child.ID, Source: "parser", Confidence: 1.0}))
	joins, err := st.GetEntityTags(e.ID)
	require.NoError(t, err)
	require.Len(t, joins, 1)

	require.NoError(t, st.DeleteEntityTags(e.ID))
	joins, err = st.GetEntityTags(e.ID)
	require.NoError(t, err)
	assert.Empty(t, joins)
}
