// Package ingest maps parsed notes into the EAV+Graph store: entity,
// properties, blocks, relations, tags, and merkle section metadata,
// with hash-diff-driven incremental re-ingestion.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Mootikins/crucible/internal/crucible/errno"
	"github.com/Mootikins/crucible/internal/session/event"
	"github.com/Mootikins/crucible/internal/vault/merkle"
	"github.com/Mootikins/crucible/internal/vault/note"
	"github.com/Mootikins/crucible/internal/vault/store"
	"github.com/Mootikins/crucible/pkg/logger"
)

// EventSink receives the session events an ingestion run emits. The
// event bus satisfies it; a nil sink disables emission.
type EventSink interface {
	Publish(e event.Event)
}

// Ingestor owns the write path for notes. One ingestion run exclusively
// owns one note's transaction; concurrent runs are serialized per path.
type Ingestor struct {
	store  *store.Store
	merkle *merkle.Store
	sink   EventSink

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures the ingestor.
type Option func(*Ingestor)

// WithMerkleStore enables persisted trees and incremental re-ingest.
func WithMerkleStore(ms *merkle.Store) Option {
	return func(ing *Ingestor) { ing.merkle = ms }
}

// WithEventSink routes ingestion events to the session bus.
func WithEventSink(sink EventSink) Option {
	return func(ing *Ingestor) { ing.sink = sink }
}

// New creates an ingestor over the store.
func New(st *store.Store, opts ...Option) *Ingestor {
	ing := &Ingestor{
		store: st,
		locks: map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// NormalizePath maps a vault-relative path to its canonical form:
// forward slashes, no leading separator, ':' replaced. Two paths equal
// after normalization map to the same entity.
func NormalizePath(relPath string) string {
	p := strings.ReplaceAll(relPath, "\\", "/")
	p = strings.TrimPrefix(p, "/")
	p = strings.ReplaceAll(p, ":", "-")
	return p
}

// EntityIDForPath derives the note entity id for a vault-relative path.
func EntityIDForPath(relPath string) store.EntityID {
	return store.NewEntityID("note", NormalizePath(relPath))
}

func (ing *Ingestor) pathLock(norm string) *sync.Mutex {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	l, ok := ing.locks[norm]
	if !ok {
		l = &sync.Mutex{}
		ing.locks[norm] = l
	}
	return l
}

func (ing *Ingestor) publish(e event.Event) {
	if ing.sink != nil {
		ing.sink.Publish(e)
	}
}

// Result reports what one ingestion run did.
type Result struct {
	EntityID        store.EntityID
	Created         bool
	Unchanged       bool
	Tree            *merkle.Tree
	ChangedSections []merkle.ChangedSection
	// ChangedBlocks are the blocks (re)written this run, the unit of
	// embedding invalidation.
	ChangedBlocks []store.BlockNode
}

// Ingest writes one parsed note. Idempotent: re-ingesting unchanged
// input is observably equivalent to a single run.
func (ing *Ingestor) Ingest(ctx context.Context, n *note.ParsedNote, relPath string) (*Result, error) {
	norm := NormalizePath(relPath)
	lock := ing.pathLock(norm)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, errno.ErrAborted
	}

	entityID := store.NewEntityID("note", norm)
	res := &Result{EntityID: entityID}

	existing, err := ing.store.GetEntity(entityID)
	switch {
	case err == nil:
		if existing.ContentHash == n.ContentHash && n.ContentHash != "" {
			res.Unchanged = true
			res.Tree = merkle.FromDocument(n)
			return res, nil
		}
	case errors.Is(err, errno.ErrEntityNotFound):
		res.Created = true
	default:
		return nil, fmt.Errorf("ingest %q: %w", norm, err)
	}

	tree := merkle.FromDocument(n)
	res.Tree = tree

	var prior *merkle.StoredTree
	if ing.merkle != nil {
		if stored, err := ing.merkle.Get(norm); err == nil {
			prior = stored
		}
	}

	// Entity record with frontmatter-preferred timestamps.
	created, modified := noteTimes(n)
	if err := ing.store.UpsertEntity(&store.Entity{
		ID:          entityID,
		Type:        store.EntityNote,
		ContentHash: n.ContentHash,
		CreatedAt:   created,
		UpdatedAt:   modified,
	}); err != nil {
		return nil, ing.storeErr(entityID, "upsert_entity", err)
	}

	if err := ing.writeCoreProperties(entityID, n, norm); err != nil {
		return nil, err
	}
	if err := ing.store.SetNotePath(entityID, norm); err != nil {
		return nil, ing.storeErr(entityID, "set_note_path", err)
	}

	// Blocks: full atomic replacement, or per-section upserts when the
	// prior tree shows the structure is intact.
	changed, err := ing.writeBlocks(entityID, n, tree, prior)
	if err != nil {
		return nil, err
	}
	res.ChangedBlocks = changed
	if prior != nil {
		res.ChangedSections = tree.Diff(prior.Tree)
	}

	if err := ing.writeRelations(ctx, entityID, n, norm); err != nil {
		return nil, err
	}
	if err := ing.writeSectionProperties(entityID, tree, prior); err != nil {
		return nil, err
	}
	if err := ing.writeTags(entityID, n); err != nil {
		return nil, err
	}
	if err := ing.writeEnrichmentProperties(entityID, n); err != nil {
		return nil, err
	}

	if ing.merkle != nil {
		if _, err := ing.merkle.Put(norm, tree); err != nil {
			return nil, ing.storeErr(entityID, "persist_tree", err)
		}
	}

	ing.publish(event.StorageWrite{EntityID: string(entityID), Kind: "note"})
	if res.Created {
		ing.publish(event.NoteIngested{EntityID: string(entityID), Path: norm, RootHash: tree.RootHash})
	} else {
		var sections []int
		for _, cs := range res.ChangedSections {
			sections = append(sections, cs.SectionIndex)
		}
		ing.publish(event.NoteUpdated{EntityID: string(entityID), Path: norm, RootHash: tree.RootHash, ChangedSections: sections})
	}
	for _, b := range changed {
		ing.publish(event.EmbeddingRequested{EntityID: string(entityID), BlockID: b.ID, Content: b.Content})
	}
	return res, nil
}

// Remove deletes the note's entity, its merkle tree, and emits
// EntityDeleted.
func (ing *Ingestor) Remove(ctx context.Context, relPath string) error {
	norm := NormalizePath(relPath)
	lock := ing.pathLock(norm)
	lock.Lock()
	defer lock.Unlock()

	entityID := store.NewEntityID("note", norm)
	if err := ing.store.DeleteEntity(entityID); err != nil {
		return ing.storeErr(entityID, "delete_entity", err)
	}
	if ing.merkle != nil {
		if err := ing.merkle.Delete(norm); err != nil {
			logger.Warn("[Ingestor] failed to delete tree for %q: %v", norm, err)
		}
	}
	ing.publish(event.StorageDelete{EntityID: string(entityID)})
	ing.publish(event.EntityDeleted{EntityID: string(entityID), Path: norm})
	return nil
}

func (ing *Ingestor) storeErr(id store.EntityID, op string, err error) error {
	ing.publish(event.StorageError{EntityID: string(id), Op: op, Error: err.Error()})
	return fmt.Errorf("%s for %q: %w", op, id, err)
}

// noteTimes prefers frontmatter created/modified, falling back to the
// parser's filesystem times.
func noteTimes(n *note.ParsedNote) (created, modified time.Time) {
	created, modified = n.CreatedAt, n.ModifiedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	if modified.IsZero() {
		modified = created
	}
	return created, modified
}

// writeCoreProperties writes the core namespace: path, relative_path,
// title, tags, frontmatter.
func (ing *Ingestor) writeCoreProperties(id store.EntityID, n *note.ParsedNote, norm string) error {
	base := strings.TrimSuffix(filepath.Base(norm), filepath.Ext(norm))
	props := []store.Property{
		{EntityID: id, Namespace: "core", Key: "path", Value: store.TextValue(n.Path)},
		{EntityID: id, Namespace: "core", Key: "relative_path", Value: store.TextValue(norm)},
		{EntityID: id, Namespace: "core", Key: "title", Value: store.TextValue(n.Title(base))},
		{EntityID: id, Namespace: "core", Key: "tags", Value: store.JSONValue(n.Tags)},
	}
	if len(n.Frontmatter) > 0 {
		props = append(props, store.Property{
			EntityID: id, Namespace: "core", Key: "frontmatter", Value: store.JSONValue(n.Frontmatter),
		})
	}
	for _, p := range props {
		if err := ing.store.UpsertProperty(p); err != nil {
			return ing.storeErr(id, "upsert_property", err)
		}
	}
	return nil
}

// blockNode materializes one content block as a store row. Block ids
// are stable: blocks:<key>:<typeprefix><index>.
func blockNode(entityKey string, b note.ContentBlock) store.BlockNode {
	sum := sha256.Sum256([]byte(b.Content))
	return store.BlockNode{
		ID:          fmt.Sprintf("blocks:%s:%s%d", entityKey, b.Type.TypePrefix(), b.Index),
		Index:       b.Index,
		Type:        string(b.Type),
		Content:     b.Content,
		ContentHash: hex.EncodeToString(sum[:]),
		Metadata:    b.Metadata,
	}
}

// writeBlocks replaces or incrementally updates the note's blocks and
// returns the blocks written.
func (ing *Ingestor) writeBlocks(id store.EntityID, n *note.ParsedNote, tree *merkle.Tree, prior *merkle.StoredTree) ([]store.BlockNode, error) {
	_, key := id.Parts()
	sections := merkle.SectionBlocks(n)

	// Incremental path: same section layout, only some leaves changed.
	if prior != nil && prior.Tree != nil && sameShape(tree, prior.Tree) {
		diff := tree.Diff(prior.Tree)
		if len(diff) == 0 {
			return nil, nil
		}
		var changed []store.BlockNode
		for _, cs := range diff {
			blocks := sections[cs.SectionIndex]
			for _, leaf := range cs.ChangedBlocks {
				if leaf < len(blocks) {
					changed = append(changed, blockNode(key, blocks[leaf]))
				}
			}
		}
		if err := ing.store.UpsertBlocks(id, changed); err != nil {
			return nil, ing.storeErr(id, "upsert_blocks", err)
		}
		return changed, nil
	}

	// Full path: atomic replacement so a retried ingest converges.
	var all []store.BlockNode
	for _, section := range sections {
		for _, b := range section {
			all = append(all, blockNode(key, b))
		}
	}
	if err := ing.store.ReplaceBlocks(id, all); err != nil {
		return nil, ing.storeErr(id, "replace_blocks", err)
	}
	return all, nil
}

// sameShape reports whether two trees agree on section count and
// per-section block counts, the precondition for in-place block
// updates.
func sameShape(a, b *merkle.Tree) bool {
	if len(a.Sections) != len(b.Sections) {
		return false
	}
	for i := range a.Sections {
		if a.Sections[i].BlockCount != b.Sections[i].BlockCount {
			return false
		}
	}
	return true
}

// writeSectionProperties stores the root hash and per-section metadata
// under the section namespace. Unchanged trees skip persistence;
// changed trees with the same shape update only the changed sections.
func (ing *Ingestor) writeSectionProperties(id store.EntityID, tree *merkle.Tree, prior *merkle.StoredTree) error {
	if prior != nil && prior.RootHash == tree.RootHash {
		return nil
	}

	writeSection := func(i int) error {
		sec := tree.Sections[i]
		meta := map[string]interface{}{
			"block_count": sec.BlockCount,
			"depth":       sec.Depth,
		}
		if sec.Heading != nil {
			meta["heading"] = sec.Heading.Text
		}
		return ing.store.UpsertProperty(store.Property{
			EntityID:  id,
			Namespace: "section",
			Key:       fmt.Sprintf("section_%d", i),
			Value: store.JSONValue(map[string]interface{}{
				"hash":     sec.Tree.RootHash,
				"metadata": meta,
			}),
		})
	}

	if prior != nil && prior.Tree != nil && len(prior.Tree.Sections) == len(tree.Sections) {
		for _, cs := range tree.Diff(prior.Tree) {
			if err := writeSection(cs.SectionIndex); err != nil {
				return ing.storeErr(id, "upsert_property", err)
			}
		}
	} else {
		// Shape changed: rewrite the namespace so stale section rows
		// never survive.
		if err := ing.store.DeleteProperties(id, "section"); err != nil {
			return ing.storeErr(id, "delete_properties", err)
		}
		for i := range tree.Sections {
			if err := writeSection(i); err != nil {
				return ing.storeErr(id, "upsert_property", err)
			}
		}
	}

	if err := ing.store.UpsertProperty(store.Property{
		EntityID:  id,
		Namespace: "section",
		Key:       "root_hash",
		Value:     store.TextValue(tree.RootHash),
	}); err != nil {
		return ing.storeErr(id, "upsert_property", err)
	}
	return nil
}
