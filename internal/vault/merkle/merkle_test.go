package merkle

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mootikins/crucible/internal/vault/note"
)

func threeSectionNote(middle string) *note.ParsedNote {
	return &note.ParsedNote{
		Path: "/vault/n.md",
		Headings: []note.Heading{
			{Text: "One", Level: 2, Offset: 0},
			{Text: "Two", Level: 2, Offset: 100},
			{Text: "Three", Level: 2, Offset: 200},
		},
		Paragraphs: []note.Paragraph{
			{Text: "first section body", Offset: 10},
			{Text: middle, Offset: 110},
			{Text: "third section body", Offset: 210},
		},
	}
}

func TestFromDocumentDeterministic(t *testing.T) {
	a := FromDocument(threeSectionNote("middle body"))
	b := FromDocument(threeSectionNote("middle body"))

	require.Equal(t, a.RootHash, b.RootHash)
	require.Equal(t, len(a.Sections), len(b.Sections))
	for i := range a.Sections {
		assert.Equal(t, a.Sections[i].Tree.RootHash, b.Sections[i].Tree.RootHash)
		assert.Equal(t, a.Sections[i].Tree.Leaves, b.Sections[i].Tree.Leaves)
	}
}

func TestFromDocumentSectionGrouping(t *testing.T) {
	n := &note.ParsedNote{
		Paragraphs: []note.Paragraph{
			{Text: "intro before any heading", Offset: 0},
		},
		Headings: []note.Heading{
			{Text: "Chapter", Level: 1, Offset: 50},
		},
	}
	n.Paragraphs = append(n.Paragraphs, note.Paragraph{Text: "chapter body", Offset: 60})

	tree := FromDocument(n)
	require.Len(t, tree.Sections, 2)

	// Implicit root section carries no heading.
	assert.Nil(t, tree.Sections[0].Heading)
	assert.Equal(t, 1, tree.Sections[0].BlockCount)

	require.NotNil(t, tree.Sections[1].Heading)
	assert.Equal(t, "Chapter", tree.Sections[1].Heading.Text)
	assert.Equal(t, 1, tree.Sections[1].Depth)
	// Heading block + body paragraph.
	assert.Equal(t, 2, tree.Sections[1].BlockCount)
}

func TestContentChangesRoot(t *testing.T) {
	a := FromDocument(threeSectionNote("before"))
	b := FromDocument(threeSectionNote("after"))
	assert.NotEqual(t, a.RootHash, b.RootHash)
}

func TestDiffUnchanged(t *testing.T) {
	a := FromDocument(threeSectionNote("same"))
	b := FromDocument(threeSectionNote("same"))
	assert.Nil(t, b.Diff(a))
}

func TestDiffSingleSection(t *testing.T) {
	old := FromDocument(threeSectionNote("version one"))
	cur := FromDocument(threeSectionNote("version two"))

	changed := cur.Diff(old)
	require.Len(t, changed, 1)
	assert.Equal(t, 1, changed[0].SectionIndex)
	// Heading leaf unchanged, body paragraph leaf changed.
	assert.Equal(t, []int{1}, changed[0].ChangedBlocks)
}

func TestDiffAgainstNil(t *testing.T) {
	cur := FromDocument(threeSectionNote("anything"))
	changed := cur.Diff(nil)
	require.Len(t, changed, 3)
	for i, cs := range changed {
		assert.Equal(t, i, cs.SectionIndex)
		assert.Len(t, cs.ChangedBlocks, cur.Sections[i].BlockCount)
	}
}

func TestDiffNewTrailingSection(t *testing.T) {
	headingsOnly := func(texts ...string) *note.ParsedNote {
		n := &note.ParsedNote{}
		for i, text := range texts {
			n.Headings = append(n.Headings, note.Heading{Text: text, Level: 2, Offset: i * 100})
		}
		return n
	}
	old := FromDocument(headingsOnly("One", "Two", "Three"))
	cur := FromDocument(headingsOnly("One", "Two", "Three", "Four"))

	changed := cur.Diff(old)
	require.Len(t, changed, 1)
	assert.Equal(t, 3, changed[0].SectionIndex)
}

func TestOddLeafCountDuplication(t *testing.T) {
	// Three paragraphs in one implicit section exercises the
	// odd-count duplication path.
	n := &note.ParsedNote{
		Paragraphs: []note.Paragraph{
			{Text: "a", Offset: 0},
			{Text: "b", Offset: 10},
			{Text: "c", Offset: 20},
		},
	}
	tree := FromDocument(n)
	require.Len(t, tree.Sections, 1)
	assert.Equal(t, 3, tree.Sections[0].BlockCount)
	assert.NotEmpty(t, tree.Sections[0].Tree.RootHash)
}

func TestMetadataAffectsLeaf(t *testing.T) {
	a := note.ContentBlock{Index: 0, Type: note.BlockCode, Content: "x", Metadata: map[string]string{"language": "go"}}
	b := note.ContentBlock{Index: 0, Type: note.BlockCode, Content: "x", Metadata: map[string]string{"language": "rust"}}
	assert.NotEqual(t, leafHash(a), leafHash(b))
}

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "merkle.db"))
	require.NoError(t, err)
	defer store.Close()

	tree := FromDocument(threeSectionNote("body"))

	wrote, err := store.Put("notes/n.md", tree)
	require.NoError(t, err)
	assert.True(t, wrote)

	// Same root: idempotent, no rewrite.
	wrote, err = store.Put("notes/n.md", tree)
	require.NoError(t, err)
	assert.False(t, wrote)

	stored, err := store.Get("notes/n.md")
	require.NoError(t, err)
	assert.Equal(t, tree.RootHash, stored.RootHash)
	assert.Equal(t, len(tree.Sections), len(stored.Tree.Sections))

	require.NoError(t, store.Delete("notes/n.md"))
	_, err = store.Get("notes/n.md")
	assert.Error(t, err)
}
