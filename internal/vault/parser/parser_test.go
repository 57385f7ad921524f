package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `---
title: Sample Note
created: 2024-03-01
tags: [reference]
---
Intro paragraph with a [[Linked Note|alias]] and a [site](https://example.com).

# First Section

Body with an embed ![[diagram.png]] and a #project/crucible tag.

` + "```go\nfmt.Println(\"hi\")\n```" + `

- item one
- item two

> [!note] Remember
> callout body here

$$e = mc^2$$

[^1]: a footnote definition
`

func TestParseFrontmatter(t *testing.T) {
	n, err := Parse("/vault/sample.md", []byte(sample))
	require.NoError(t, err)

	require.NotNil(t, n.Frontmatter)
	assert.Equal(t, "Sample Note", n.Frontmatter["title"])
	assert.Equal(t, "Sample Note", n.Title("fallback"))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), n.CreatedAt)
}

func TestParseBlocks(t *testing.T) {
	n, err := Parse("/vault/sample.md", []byte(sample))
	require.NoError(t, err)

	require.Len(t, n.Headings, 1)
	assert.Equal(t, "First Section", n.Headings[0].Text)
	assert.Equal(t, 1, n.Headings[0].Level)

	require.NotEmpty(t, n.Paragraphs)
	assert.Contains(t, n.Paragraphs[0].Text, "Intro paragraph")

	require.Len(t, n.CodeBlocks, 1)
	assert.Equal(t, "go", n.CodeBlocks[0].Language)
	assert.Contains(t, n.CodeBlocks[0].Code, "fmt.Println")

	require.Len(t, n.Lists, 1)
	assert.Equal(t, []string{"item one", "item two"}, n.Lists[0].Items)
	assert.False(t, n.Lists[0].Ordered)

	require.Len(t, n.Callouts, 1)
	assert.Equal(t, "note", n.Callouts[0].Kind)
	assert.Equal(t, "Remember", n.Callouts[0].Title)

	require.Len(t, n.Latex, 1)
	assert.Equal(t, "e = mc^2", n.Latex[0].Source)
}

func TestParseLinks(t *testing.T) {
	n, err := Parse("/vault/sample.md", []byte(sample))
	require.NoError(t, err)

	require.Len(t, n.WikiLinks, 2)
	assert.Equal(t, "Linked Note", n.WikiLinks[0].Target)
	assert.Equal(t, "alias", n.WikiLinks[0].Alias)
	assert.False(t, n.WikiLinks[0].IsEmbed)

	assert.Equal(t, "diagram.png", n.WikiLinks[1].Target)
	assert.True(t, n.WikiLinks[1].IsEmbed)

	require.NotEmpty(t, n.InlineLinks)
	assert.Equal(t, "https://example.com", n.InlineLinks[0].URL)

	require.Len(t, n.Footnotes, 1)
	assert.Equal(t, "1", n.Footnotes[0].Ref)

	assert.Contains(t, n.Tags, "project/crucible")
}

func TestParseWikiTargetForms(t *testing.T) {
	tests := []struct {
		inner   string
		target  string
		alias   string
		heading string
		block   string
	}{
		{"Note", "Note", "", "", ""},
		{"Note|display", "Note", "display", "", ""},
		{"Note#Section", "Note", "", "Section", ""},
		{"Note#^abc123", "Note", "", "", "abc123"},
		{"Note#Section|display", "Note", "display", "Section", ""},
	}
	for _, tt := range tests {
		t.Run(tt.inner, func(t *testing.T) {
			link := parseWikiTarget(tt.inner)
			assert.Equal(t, tt.target, link.Target)
			assert.Equal(t, tt.alias, link.Alias)
			assert.Equal(t, tt.heading, link.HeadingRef)
			assert.Equal(t, tt.block, link.BlockRef)
		})
	}
}

func TestParseDeterministic(t *testing.T) {
	a, err := Parse("/vault/s.md", []byte(sample))
	require.NoError(t, err)
	b, err := Parse("/vault/s.md", []byte(sample))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, a.ContentHash, b.ContentHash)
}

func TestParseNoFrontmatter(t *testing.T) {
	n, err := Parse("/vault/plain.md", []byte("just a paragraph"))
	require.NoError(t, err)
	assert.Nil(t, n.Frontmatter)
	assert.True(t, n.CreatedAt.IsZero())
	require.Len(t, n.Paragraphs, 1)
}
