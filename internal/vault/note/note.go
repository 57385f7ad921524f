// Package note defines the parsed-note surface produced by the markdown
// parser and consumed by the ingestion pipeline. The parser owns the
// ordering guarantees; everything downstream treats a ParsedNote as
// immutable input.
package note

import (
	"time"
)

// ParsedNote is the parser's output for a single markdown file.
//
// Block slices are in document order and each slice preserves the order
// the elements appear in the source. Two byte-identical files produce
// byte-identical ParsedNotes (timestamps aside).
type ParsedNote struct {
	// Path is the absolute path of the source file.
	Path string `json:"path"`

	// ContentHash is the sha256 hex digest of the raw file bytes.
	ContentHash string `json:"content_hash"`

	// Frontmatter holds the decoded YAML frontmatter, if any.
	Frontmatter map[string]interface{} `json:"frontmatter,omitempty"`

	Headings   []Heading   `json:"headings,omitempty"`
	Paragraphs []Paragraph `json:"paragraphs,omitempty"`
	CodeBlocks []CodeBlock `json:"code_blocks,omitempty"`
	Lists      []List      `json:"lists,omitempty"`
	Callouts   []Callout   `json:"callouts,omitempty"`
	Latex      []Latex     `json:"latex,omitempty"`

	WikiLinks   []WikiLink   `json:"wikilinks,omitempty"`
	InlineLinks []InlineLink `json:"inline_links,omitempty"`
	Footnotes   []Footnote   `json:"footnotes,omitempty"`

	// Tags are #tag occurrences, hierarchical levels separated by '/'.
	Tags []string `json:"tags,omitempty"`

	// CreatedAt/ModifiedAt prefer frontmatter dates and fall back to
	// filesystem times.
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Heading is an ATX heading with its level (1-6) and position.
type Heading struct {
	Text   string `json:"text"`
	Level  int    `json:"level"`
	Offset int    `json:"offset"`
}

// Paragraph is a run of prose text.
type Paragraph struct {
	Text   string `json:"text"`
	Offset int    `json:"offset"`
}

// CodeBlock is a fenced code block.
type CodeBlock struct {
	Language string `json:"language,omitempty"`
	Code     string `json:"code"`
	Offset   int    `json:"offset"`
}

// List is a bullet or ordered list, items flattened in order.
type List struct {
	Items   []string `json:"items"`
	Ordered bool     `json:"ordered"`
	Offset  int      `json:"offset"`
}

// Callout is an Obsidian-style callout block (> [!type] ...).
type Callout struct {
	Kind   string `json:"kind"`
	Title  string `json:"title,omitempty"`
	Body   string `json:"body"`
	Offset int    `json:"offset"`
}

// Latex is a display math block ($$...$$).
type Latex struct {
	Source string `json:"source"`
	Offset int    `json:"offset"`
}

// WikiLink is a [[target]] or ![[target]] reference.
//
// The optional parts follow Obsidian syntax:
// [[target#heading|alias]] and [[target#^blockref]].
type WikiLink struct {
	Target     string `json:"target"`
	Alias      string `json:"alias,omitempty"`
	HeadingRef string `json:"heading_ref,omitempty"`
	BlockRef   string `json:"block_ref,omitempty"`
	IsEmbed    bool   `json:"is_embed"`
	Offset     int    `json:"offset"`
}

// InlineLink is a standard markdown [text](url) link.
type InlineLink struct {
	Text   string `json:"text"`
	URL    string `json:"url"`
	Offset int    `json:"offset"`
}

// Footnote is a [^ref] definition within the note.
type Footnote struct {
	Ref    string `json:"ref"`
	Text   string `json:"text"`
	Offset int    `json:"offset"`
}

// Title returns the display title: frontmatter "title" if present,
// otherwise the file name without extension.
func (n *ParsedNote) Title(fallback string) string {
	if n.Frontmatter != nil {
		if t, ok := n.Frontmatter["title"].(string); ok && t != "" {
			return t
		}
	}
	return fallback
}
