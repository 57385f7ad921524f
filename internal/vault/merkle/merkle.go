// Package merkle computes the hybrid section/block Merkle tree over a
// note's content and diffs trees to drive incremental re-ingestion.
//
// The tree has two levels of granularity: sections (a heading and the
// run of blocks under it) let an unchanged chapter be skipped wholesale,
// while block leaves inside a changed section identify exactly which
// blocks need re-embedding.
package merkle

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/Mootikins/crucible/internal/vault/note"
)

// HeadingInfo records the heading that opens a section.
type HeadingInfo struct {
	Text  string `json:"text"`
	Level int    `json:"level"`
}

// BinaryTree is the per-section Merkle over block leaves.
type BinaryTree struct {
	RootHash string   `json:"root_hash"`
	Leaves   []string `json:"leaves"`
}

// Section is a run of consecutive blocks under one heading (or the
// implicit leading run before the first heading).
type Section struct {
	Heading    *HeadingInfo `json:"heading,omitempty"`
	Depth      int          `json:"depth"`
	BlockCount int          `json:"block_count"`
	Tree       BinaryTree   `json:"binary_tree"`
}

// Tree is the hybrid Merkle tree for one note.
//
// RootHash = H(concat(section root bytes in order)).
type Tree struct {
	RootHash string    `json:"root_hash"`
	Sections []Section `json:"sections"`
}

// ChangedSection identifies a section whose content changed between two
// trees, with the leaf positions that differ.
type ChangedSection struct {
	SectionIndex  int
	ChangedBlocks []int
}

type digest = [sha256.Size]byte

const (
	tagHeading   byte = 1
	tagParagraph byte = 2
	tagCode      byte = 3
	tagList      byte = 4
	tagCallout   byte = 5
	tagLatex     byte = 6
)

func typeTag(t note.BlockType) byte {
	switch t {
	case note.BlockHeading:
		return tagHeading
	case note.BlockParagraph:
		return tagParagraph
	case note.BlockCode:
		return tagCode
	case note.BlockList:
		return tagList
	case note.BlockCallout:
		return tagCallout
	case note.BlockLatex:
		return tagLatex
	}
	return 0
}

// leafHash serializes one block as
// block_index_le || type_tag || content || sorted_metadata_kv
// and hashes it. Metadata keys are sorted so map iteration order never
// leaks into the digest.
func leafHash(b note.ContentBlock) digest {
	h := sha256.New()

	var idx [8]byte
	binary.LittleEndian.PutUint64(idx[:], uint64(b.Index))
	h.Write(idx[:])
	h.Write([]byte{typeTag(b.Type)})
	h.Write([]byte(b.Content))

	if len(b.Metadata) > 0 {
		keys := make([]string, 0, len(b.Metadata))
		for k := range b.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Write([]byte(k))
			h.Write([]byte{0})
			h.Write([]byte(b.Metadata[k]))
			h.Write([]byte{0})
		}
	}

	var d digest
	h.Sum(d[:0])
	return d
}

func pairHash(a, b digest) digest {
	h := sha256.New()
	h.Write(a[:])
	h.Write(b[:])
	var d digest
	h.Sum(d[:0])
	return d
}

// binaryRoot folds leaves pairwise, duplicating the last leaf on odd
// counts. An empty leaf set hashes to H("").
func binaryRoot(leaves []digest) digest {
	if len(leaves) == 0 {
		return sha256.Sum256(nil)
	}
	level := make([]digest, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := level[:0:0]
		for i := 0; i < len(level); i += 2 {
			next = append(next, pairHash(level[i], level[i+1]))
		}
		level = next
	}
	return level[0]
}

// SectionBlocks groups the note's blocks into sections in document
// order: an implicit leading run before the first heading, then one
// section per heading. The grouping is the unit of Merkle
// incrementality, shared by the tree builder and the ingestor.
func SectionBlocks(n *note.ParsedNote) [][]note.ContentBlock {
	ordered := note.DocumentOrder(n.Blocks())

	var sections [][]note.ContentBlock
	var current []note.ContentBlock
	opened := false

	flush := func() {
		if opened || len(current) > 0 {
			sections = append(sections, current)
		}
	}
	for _, b := range ordered {
		if b.Type == note.BlockHeading {
			flush()
			current = nil
			opened = true
		}
		current = append(current, b)
	}
	flush()
	return sections
}

func headingOf(section []note.ContentBlock) (*HeadingInfo, int) {
	if len(section) == 0 || section[0].Type != note.BlockHeading {
		return nil, 0
	}
	level := 1
	if v, ok := section[0].Metadata["level"]; ok {
		for _, c := range v {
			if c >= '1' && c <= '6' {
				level = int(c - '0')
			}
		}
	}
	return &HeadingInfo{Text: section[0].Content, Level: level}, level
}

// FromDocument builds the hybrid tree for a parsed note. The result
// depends only on the note's content blocks, never on timestamps, so
// byte-identical notes produce byte-identical trees.
func FromDocument(n *note.ParsedNote) *Tree {
	sections := SectionBlocks(n)

	t := &Tree{Sections: make([]Section, 0, len(sections))}
	rootHasher := sha256.New()
	for _, blocks := range sections {
		heading, depth := headingOf(blocks)
		leaves := make([]digest, len(blocks))
		for i, b := range blocks {
			leaves[i] = leafHash(b)
		}
		root := binaryRoot(leaves)
		rootHasher.Write(root[:])

		encoded := make([]string, len(leaves))
		for i, l := range leaves {
			encoded[i] = hex.EncodeToString(l[:])
		}
		t.Sections = append(t.Sections, Section{
			Heading:    heading,
			Depth:      depth,
			BlockCount: len(blocks),
			Tree: BinaryTree{
				RootHash: hex.EncodeToString(root[:]),
				Leaves:   encoded,
			},
		})
	}
	var root digest
	rootHasher.Sum(root[:0])
	t.RootHash = hex.EncodeToString(root[:])
	return t
}

// Diff compares t against an older tree and returns the sections whose
// content changed, each with the differing leaf positions. Runs in
// O(S + B): section roots are compared first and leaves only inside
// sections whose roots differ.
//
// A nil old tree marks every section changed. Sections present only in
// t are changed with all their leaves listed; sections present only in
// old are not reported.
func (t *Tree) Diff(old *Tree) []ChangedSection {
	if old != nil && t.RootHash == old.RootHash {
		return nil
	}

	var changed []ChangedSection
	for i, sec := range t.Sections {
		if old == nil || i >= len(old.Sections) {
			changed = append(changed, ChangedSection{
				SectionIndex:  i,
				ChangedBlocks: allLeafIndexes(sec),
			})
			continue
		}
		oldSec := old.Sections[i]
		if sec.Tree.RootHash == oldSec.Tree.RootHash {
			continue
		}
		cs := ChangedSection{SectionIndex: i}
		for j, leaf := range sec.Tree.Leaves {
			if j >= len(oldSec.Tree.Leaves) || leaf != oldSec.Tree.Leaves[j] {
				cs.ChangedBlocks = append(cs.ChangedBlocks, j)
			}
		}
		if len(cs.ChangedBlocks) == 0 {
			// Root differs but current leaves all match: the old
			// section had extra trailing leaves. The section still
			// changed, with no surviving block to re-embed.
			cs.ChangedBlocks = []int{}
		}
		changed = append(changed, cs)
	}
	return changed
}

func allLeafIndexes(s Section) []int {
	out := make([]int, len(s.Tree.Leaves))
	for i := range out {
		out[i] = i
	}
	return out
}
