package ingest

import (
	"context"

	"github.com/Mootikins/crucible/internal/vault/classify"
	"github.com/Mootikins/crucible/internal/vault/note"
	"github.com/Mootikins/crucible/internal/vault/store"
	"github.com/Mootikins/crucible/pkg/logger"
)

// writeRelations extracts wikilink/embed, inline link, and footnote
// relations. Per-relation validation failures are recoverable: the
// relation is stored with its error metadata and the batch continues.
func (ing *Ingestor) writeRelations(ctx context.Context, id store.EntityID, n *note.ParsedNote, norm string) error {
	// Replace the note's outgoing edges wholesale so a re-ingest
	// converges on exactly the current link set.
	if err := ing.store.DeleteRelationsFrom(id, ""); err != nil {
		return ing.storeErr(id, "delete_relations", err)
	}

	for _, link := range n.WikiLinks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := ing.writeWikiLink(id, link, norm); err != nil {
			return err
		}
	}

	for _, link := range n.InlineLinks {
		result := classify.ClassifyInline(link)
		md := result.Metadata
		md["target"] = link.URL
		md["offset"] = link.Offset
		if err := ing.store.StoreRelation(store.Relation{
			From:     id,
			Type:     store.RelationLink,
			Metadata: md,
		}); err != nil {
			return ing.storeErr(id, "store_relation", err)
		}
	}

	// Footnotes are internal: the edge loops back to the note itself.
	for _, fn := range n.Footnotes {
		self := id
		if err := ing.store.StoreRelation(store.Relation{
			From: id,
			To:   &self,
			Type: store.RelationFootnote,
			Metadata: map[string]interface{}{
				"target": fn.Ref,
				"text":   fn.Text,
				"offset": fn.Offset,
			},
		}); err != nil {
			return ing.storeErr(id, "store_relation", err)
		}
	}
	return nil
}

// writeWikiLink classifies, resolves, and stores one wikilink or embed.
func (ing *Ingestor) writeWikiLink(id store.EntityID, link note.WikiLink, norm string) error {
	result := classify.Classify(link)
	md := result.Metadata
	md["target"] = link.Target
	md["offset"] = link.Offset
	if link.Alias != "" {
		md["alias"] = link.Alias
	}

	relType := store.RelationWikilink
	if link.IsEmbed {
		relType = store.RelationEmbed
	}

	rel := store.Relation{From: id, Type: relType, Metadata: md}

	// Invalid or external targets are never resolved against the
	// vault; local note targets are.
	if result.Valid() && !result.IsExternal && result.EmbedType == classify.EmbedNote {
		matches, err := ing.store.FindNotesByPathSuffix(link.Target)
		if err != nil {
			return ing.storeErr(id, "resolve_target", err)
		}
		// A self-match is not a resolution candidate.
		matches = dropSelf(matches, id)

		switch len(matches) {
		case 0:
			logger.Warn("[Ingestor] unresolved wikilink %q in %s", link.Target, norm)
		case 1:
			to := matches[0].EntityID
			rel.To = &to
		default:
			paths := make([]string, len(matches))
			for i, m := range matches {
				paths[i] = m.RelPath
			}
			md["ambiguous"] = true
			md["candidates"] = paths
			logger.Warn("[Ingestor] ambiguous wikilink %q in %s (%d candidates)",
				link.Target, norm, len(matches))
		}
	}

	if err := ing.store.StoreRelation(rel); err != nil {
		return ing.storeErr(id, "store_relation", err)
	}
	return nil
}

func dropSelf(matches []store.PathMatch, self store.EntityID) []store.PathMatch {
	out := matches[:0:0]
	for _, m := range matches {
		if m.EntityID != self {
			out = append(out, m)
		}
	}
	return out
}
