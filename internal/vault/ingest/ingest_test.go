package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mootikins/crucible/internal/session/event"
	"github.com/Mootikins/crucible/internal/vault/merkle"
	"github.com/Mootikins/crucible/internal/vault/note"
	"github.com/Mootikins/crucible/internal/vault/store"
)

type recordSink struct {
	events []event.Event
}

func (r *recordSink) Publish(e event.Event) {
	r.events = append(r.events, e)
}

func (r *recordSink) ofType(typ string) []event.Event {
	var out []event.Event
	for _, e := range r.events {
		if e.EventType() == typ {
			out = append(out, e)
		}
	}
	return out
}

func newTestIngestor(t *testing.T) (*Ingestor, *store.Store, *recordSink) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ms, err := merkle.OpenStore(filepath.Join(t.TempDir(), "merkle.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ms.Close() })

	sink := &recordSink{}
	return New(st, WithMerkleStore(ms), WithEventSink(sink)), st, sink
}

func simpleNote(path, hash, body string) *note.ParsedNote {
	return &note.ParsedNote{
		Path:        "/vault/" + path,
		ContentHash: hash,
		Headings:    []note.Heading{{Text: "Title", Level: 1, Offset: 0}},
		Paragraphs:  []note.Paragraph{{Text: body, Offset: 10}},
	}
}

func TestIngestCreatesEntityAndBlocks(t *testing.T) {
	ing, st, sink := newTestIngestor(t)

	n := simpleNote("notes/First.md", "hash1", "some body text")
	n.Tags = []string{"inbox"}
	res, err := ing.Ingest(context.Background(), n, "notes/First.md")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, store.EntityID("note:notes/First.md"), res.EntityID)

	entity, err := st.GetEntity(res.EntityID)
	require.NoError(t, err)
	assert.Equal(t, store.EntityNote, entity.Type)
	assert.Equal(t, "hash1", entity.ContentHash)

	blocks, err := st.GetBlocks(res.EntityID)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "blocks:notes/First.md:h0", blocks[0].ID)
	assert.Equal(t, "blocks:notes/First.md:p1", blocks[1].ID)

	props, err := st.GetProperties(res.EntityID, "core")
	require.NoError(t, err)
	byKey := map[string]store.Property{}
	for _, p := range props {
		byKey[p.Key] = p
	}
	assert.Equal(t, "notes/First.md", byKey["relative_path"].Value.Text)
	assert.Equal(t, "First", byKey["title"].Value.Text)

	require.Len(t, sink.ofType("note_ingested"), 1)
}

func TestPathNormalization(t *testing.T) {
	assert.Equal(t, "a/b/c.md", NormalizePath(`\a\b\c.md`))
	assert.Equal(t, "a/b.md", NormalizePath("/a/b.md"))
	assert.Equal(t, "time 12-30.md", NormalizePath("time 12:30.md"))
	// Equivalent paths map to the same entity id.
	assert.Equal(t, EntityIDForPath("/x/y.md"), EntityIDForPath(`\x\y.md`))
}

func TestIngestIdempotent(t *testing.T) {
	ing, st, _ := newTestIngestor(t)
	ctx := context.Background()

	n := simpleNote("n.md", "samehash", "body")
	first, err := ing.Ingest(ctx, n, "n.md")
	require.NoError(t, err)
	assert.False(t, first.Unchanged)

	second, err := ing.Ingest(ctx, n, "n.md")
	require.NoError(t, err)
	assert.True(t, second.Unchanged)

	blocks, err := st.GetBlocks(first.EntityID)
	require.NoError(t, err)
	assert.Len(t, blocks, 2)
}

func TestAmbiguousWikilink(t *testing.T) {
	ing, st, _ := newTestIngestor(t)
	ctx := context.Background()

	_, err := ing.Ingest(ctx, simpleNote("Project A/Note.md", "h1", "a"), "Project A/Note.md")
	require.NoError(t, err)
	_, err = ing.Ingest(ctx, simpleNote("Project B/Note.md", "h2", "b"), "Project B/Note.md")
	require.NoError(t, err)

	index := simpleNote("Index.md", "h3", "index body")
	index.WikiLinks = []note.WikiLink{{Target: "Note", Offset: 5}}
	res, err := ing.Ingest(ctx, index, "Index.md")
	require.NoError(t, err)

	rels, err := st.GetRelations(res.EntityID, store.RelationWikilink)
	require.NoError(t, err)
	require.Len(t, rels, 1)

	rel := rels[0]
	assert.Nil(t, rel.To)
	assert.Equal(t, true, rel.Metadata["ambiguous"])

	candidates, ok := rel.Metadata["candidates"].([]interface{})
	require.True(t, ok)
	assert.ElementsMatch(t, []interface{}{"project a/note.md", "project b/note.md"}, candidates)
}

func TestUnresolvedWikilinkHasNoCandidates(t *testing.T) {
	ing, st, _ := newTestIngestor(t)

	n := simpleNote("solo.md", "h", "body")
	n.WikiLinks = []note.WikiLink{{Target: "Missing"}}
	res, err := ing.Ingest(context.Background(), n, "solo.md")
	require.NoError(t, err)

	rels, err := st.GetRelations(res.EntityID, store.RelationWikilink)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Nil(t, rels[0].To)
	_, hasCandidates := rels[0].Metadata["candidates"]
	assert.False(t, hasCandidates)
}

func TestResolvedWikilink(t *testing.T) {
	ing, st, _ := newTestIngestor(t)
	ctx := context.Background()

	target, err := ing.Ingest(ctx, simpleNote("docs/Target.md", "h1", "t"), "docs/Target.md")
	require.NoError(t, err)

	n := simpleNote("linker.md", "h2", "body")
	n.WikiLinks = []note.WikiLink{{Target: "Target"}}
	res, err := ing.Ingest(ctx, n, "linker.md")
	require.NoError(t, err)

	rels, err := st.GetRelations(res.EntityID, store.RelationWikilink)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	require.NotNil(t, rels[0].To)
	assert.Equal(t, target.EntityID, *rels[0].To)

	// And the backlink is visible from the target.
	back, err := st.GetBacklinks(target.EntityID, store.RelationWikilink)
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.Equal(t, res.EntityID, back[0].From)
}

func TestEmbedClassificationScenario(t *testing.T) {
	ing, st, _ := newTestIngestor(t)

	n := simpleNote("media.md", "h", "body")
	n.WikiLinks = []note.WikiLink{
		{Target: "test.png", IsEmbed: true, Offset: 1},
		{Target: "note.pdf", IsEmbed: true, Offset: 2},
		{Target: "https://youtube.com/watch?v=abc", IsEmbed: true, Offset: 3},
		{Target: "https://example.com/page", IsEmbed: true, Offset: 4},
		{Target: "other-note", Offset: 5},
	}
	res, err := ing.Ingest(context.Background(), n, "media.md")
	require.NoError(t, err)

	embeds, err := st.GetRelations(res.EntityID, store.RelationEmbed)
	require.NoError(t, err)
	require.Len(t, embeds, 4)

	byTarget := map[string]store.Relation{}
	for _, r := range embeds {
		assert.Equal(t, true, r.Metadata["is_embed"])
		byTarget[r.Metadata["target"].(string)] = r
	}
	assert.Equal(t, "image", byTarget["test.png"].Metadata["embed_type"])
	assert.Equal(t, "pdf", byTarget["note.pdf"].Metadata["embed_type"])

	yt := byTarget["https://youtube.com/watch?v=abc"]
	assert.Equal(t, "youtube", yt.Metadata["embed_type"])
	assert.Equal(t, true, yt.Metadata["is_external"])
	assert.Equal(t, "youtube", yt.Metadata["content_category"])

	assert.Equal(t, "external", byTarget["https://example.com/page"].Metadata["embed_type"])

	links, err := st.GetRelations(res.EntityID, store.RelationWikilink)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Nil(t, links[0].To)
	_, hasEmbed := links[0].Metadata["is_embed"]
	assert.False(t, hasEmbed)
}

func TestEmptyTargetValidationFailure(t *testing.T) {
	ing, st, _ := newTestIngestor(t)

	n := simpleNote("broken.md", "h", "body")
	n.WikiLinks = []note.WikiLink{{Target: "   "}}
	res, err := ing.Ingest(context.Background(), n, "broken.md")
	require.NoError(t, err)

	rels, err := st.GetRelations(res.EntityID, store.RelationWikilink)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Nil(t, rels[0].To)
	assert.Equal(t, true, rels[0].Metadata["validation_failed"])
	assert.Equal(t, "validation_empty_target", rels[0].Metadata["error_category"])
}

func TestDangerousSchemeValidationFailure(t *testing.T) {
	ing, st, _ := newTestIngestor(t)

	n := simpleNote("evil.md", "h", "body")
	n.WikiLinks = []note.WikiLink{{Target: "javascript:alert(1)", IsEmbed: true}}
	res, err := ing.Ingest(context.Background(), n, "evil.md")
	require.NoError(t, err)

	rels, err := st.GetRelations(res.EntityID, store.RelationEmbed)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "security_risk", rels[0].Metadata["error_category"])
	assert.Equal(t, "critical", rels[0].Metadata["error_severity"])
	assert.NotEmpty(t, rels[0].Metadata["recovery_suggestions"])
}

func TestHierarchicalTags(t *testing.T) {
	ing, st, _ := newTestIngestor(t)

	n := simpleNote("tagged.md", "h", "body")
	n.Tags = []string{"project/crucible/go", "project/crucible"}
	res, err := ing.Ingest(context.Background(), n, "tagged.md")
	require.NoError(t, err)

	// The full chain exists with parents.
	root, err := st.GetTagByPath("project")
	require.NoError(t, err)
	assert.Nil(t, root.ParentID)
	assert.Equal(t, 1, root.Depth)

	mid, err := st.GetTagByPath("project/crucible")
	require.NoError(t, err)
	require.NotNil(t, mid.ParentID)
	assert.Equal(t, root.ID, *mid.ParentID)

	leaf, err := st.GetTagByPath("project/crucible/go")
	require.NoError(t, err)
	require.NotNil(t, leaf.ParentID)
	assert.Equal(t, mid.ID, *leaf.ParentID)
	assert.Equal(t, 3, leaf.Depth)

	// One join per unique level, duplicates collapsed.
	joins, err := st.GetEntityTags(res.EntityID)
	require.NoError(t, err)
	assert.Len(t, joins, 3)
	for _, j := range joins {
		assert.Equal(t, "parser", j.Source)
		assert.Equal(t, 1.0, j.Confidence)
	}
}

func TestTagsReplacedOnReingest(t *testing.T) {
	ing, st, _ := newTestIngestor(t)
	ctx := context.Background()

	n := simpleNote("t.md", "h1", "body")
	n.Tags = []string{"old"}
	res, err := ing.Ingest(ctx, n, "t.md")
	require.NoError(t, err)

	n2 := simpleNote("t.md", "h2", "body changed")
	n2.Tags = []string{"new"}
	_, err = ing.Ingest(ctx, n2, "t.md")
	require.NoError(t, err)

	joins, err := st.GetEntityTags(res.EntityID)
	require.NoError(t, err)
	require.Len(t, joins, 1)
	assert.Equal(t, store.EntityID("tag:new"), joins[0].TagID)
}

func threeSectionParsed(hash, middle string) *note.ParsedNote {
	return &note.ParsedNote{
		Path:        "/vault/multi.md",
		ContentHash: hash,
		Headings: []note.Heading{
			{Text: "One", Level: 2, Offset: 0},
			{Text: "Two", Level: 2, Offset: 100},
			{Text: "Three", Level: 2, Offset: 200},
		},
		Paragraphs: []note.Paragraph{
			{Text: "first body", Offset: 10},
			{Text: middle, Offset: 110},
			{Text: "third body", Offset: 210},
		},
	}
}

func TestIncrementalReingest(t *testing.T) {
	ing, st, sink := newTestIngestor(t)
	ctx := context.Background()

	_, err := ing.Ingest(ctx, threeSectionParsed("v1", "second body"), "multi.md")
	require.NoError(t, err)
	sink.events = nil

	res, err := ing.Ingest(ctx, threeSectionParsed("v2", "second body CHANGED"), "multi.md")
	require.NoError(t, err)

	// Exactly section index 1 changed.
	require.Len(t, res.ChangedSections, 1)
	assert.Equal(t, 1, res.ChangedSections[0].SectionIndex)

	// Only the changed paragraph block was rewritten.
	require.Len(t, res.ChangedBlocks, 1)
	assert.Equal(t, "blocks:multi.md:p4", res.ChangedBlocks[0].ID)
	assert.Equal(t, "second body CHANGED", res.ChangedBlocks[0].Content)

	// Embedding requests only cover blocks of the changed section.
	requested := sink.ofType("embedding_requested")
	require.Len(t, requested, 1)
	assert.Equal(t, "blocks:multi.md:p4", requested[0].(event.EmbeddingRequested).BlockID)

	// The store reflects the new content; unchanged rows survive.
	blocks, err := st.GetBlocks(res.EntityID)
	require.NoError(t, err)
	require.Len(t, blocks, 6)
	contents := map[string]string{}
	for _, b := range blocks {
		contents[b.ID] = b.Content
	}
	assert.Equal(t, "first body", contents["blocks:multi.md:p3"])
	assert.Equal(t, "second body CHANGED", contents["blocks:multi.md:p4"])
}

func TestIngestWritesStructuralEnrichment(t *testing.T) {
	ing, st, _ := newTestIngestor(t)

	n := simpleNote("enriched.md", "h", "a body long enough to count some words")
	n.Frontmatter = map[string]interface{}{"language": "en"}
	res, err := ing.Ingest(context.Background(), n, "enriched.md")
	require.NoError(t, err)

	// Structural enrichment lands on the plain ingest path — no
	// embedding provider involved.
	props, err := st.GetProperties(res.EntityID, "enrichment")
	require.NoError(t, err)
	byKey := map[string]store.AttributeValue{}
	for _, p := range props {
		byKey[p.Key] = p.Value
	}
	assert.Equal(t, 1.0, byKey["reading_time"].Number)
	assert.GreaterOrEqual(t, byKey["complexity_score"].Number, 1.0)
	assert.Equal(t, "en", byKey["language"].Text)
}

func TestRemoveEmitsEntityDeleted(t *testing.T) {
	ing, st, sink := newTestIngestor(t)
	ctx := context.Background()

	res, err := ing.Ingest(ctx, simpleNote("gone.md", "h", "body"), "gone.md")
	require.NoError(t, err)

	require.NoError(t, ing.Remove(ctx, "gone.md"))
	_, err = st.GetEntity(res.EntityID)
	assert.Error(t, err)
	require.Len(t, sink.ofType("entity_deleted"), 1)
}
