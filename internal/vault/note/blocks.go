package note

import (
	"sort"
	"strconv"
	"strings"
)

// BlockType identifies the kind of a content block.
type BlockType string

const (
	BlockHeading   BlockType = "heading"
	BlockParagraph BlockType = "paragraph"
	BlockCode      BlockType = "code"
	BlockList      BlockType = "list"
	BlockCallout   BlockType = "callout"
	BlockLatex     BlockType = "latex"
)

// TypePrefix returns the single-letter id prefix for the block type,
// used when deriving stable block record keys.
func (t BlockType) TypePrefix() string {
	switch t {
	case BlockHeading:
		return "h"
	case BlockParagraph:
		return "p"
	case BlockCode:
		return "c"
	case BlockList:
		return "l"
	case BlockCallout:
		return "o"
	case BlockLatex:
		return "x"
	}
	return "b"
}

// ContentBlock is a leaf unit of note content with its stable index.
//
// Indexes are assigned across type groups in a fixed order (headings,
// non-empty paragraphs, code blocks, lists, callouts, latex) from one
// running counter, so a block's index shifts when a group ahead of its
// own gains or loses blocks.
type ContentBlock struct {
	Index    int
	Type     BlockType
	Content  string
	Metadata map[string]string
	Offset   int
}

// Blocks derives the ordered content blocks of the note. Empty
// paragraphs are skipped. The result is deterministic for equal input.
func (n *ParsedNote) Blocks() []ContentBlock {
	var blocks []ContentBlock
	idx := 0

	for _, h := range n.Headings {
		blocks = append(blocks, ContentBlock{
			Index:   idx,
			Type:    BlockHeading,
			Content: h.Text,
			Metadata: map[string]string{
				"level": strconv.Itoa(h.Level),
			},
			Offset: h.Offset,
		})
		idx++
	}
	for _, p := range n.Paragraphs {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		blocks = append(blocks, ContentBlock{
			Index:   idx,
			Type:    BlockParagraph,
			Content: p.Text,
			Offset:  p.Offset,
		})
		idx++
	}
	for _, c := range n.CodeBlocks {
		md := map[string]string{}
		if c.Language != "" {
			md["language"] = c.Language
		}
		blocks = append(blocks, ContentBlock{
			Index:    idx,
			Type:     BlockCode,
			Content:  c.Code,
			Metadata: md,
			Offset:   c.Offset,
		})
		idx++
	}
	for _, l := range n.Lists {
		blocks = append(blocks, ContentBlock{
			Index:   idx,
			Type:    BlockList,
			Content: strings.Join(l.Items, "\n"),
			Metadata: map[string]string{
				"ordered":    strconv.FormatBool(l.Ordered),
				"item_count": strconv.Itoa(len(l.Items)),
			},
			Offset: l.Offset,
		})
		idx++
	}
	for _, c := range n.Callouts {
		md := map[string]string{"kind": c.Kind}
		if c.Title != "" {
			md["title"] = c.Title
		}
		blocks = append(blocks, ContentBlock{
			Index:    idx,
			Type:     BlockCallout,
			Content:  c.Body,
			Metadata: md,
			Offset:   c.Offset,
		})
		idx++
	}
	for _, l := range n.Latex {
		blocks = append(blocks, ContentBlock{
			Index:   idx,
			Type:    BlockLatex,
			Content: l.Source,
			Offset:  l.Offset,
		})
		idx++
	}
	return blocks
}

// DocumentOrder returns the blocks sorted by source offset. The sort is
// stable so blocks sharing an offset keep their index order.
func DocumentOrder(blocks []ContentBlock) []ContentBlock {
	out := make([]ContentBlock, len(blocks))
	copy(out, blocks)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Offset != out[j].Offset {
			return out[i].Offset < out[j].Offset
		}
		return out[i].Index < out[j].Index
	})
	return out
}
