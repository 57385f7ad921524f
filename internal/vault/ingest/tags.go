package ingest

import (
	"strings"

	"github.com/Mootikins/crucible/internal/vault/note"
	"github.com/Mootikins/crucible/internal/vault/store"
)

// writeTags replaces the note's tag joins: the existing entity_tags are
// deleted, every level of each hierarchical tag is ensured, and one
// join per unique level is inserted.
func (ing *Ingestor) writeTags(id store.EntityID, n *note.ParsedNote) error {
	if err := ing.store.DeleteEntityTags(id); err != nil {
		return ing.storeErr(id, "delete_entity_tags", err)
	}

	joined := map[store.EntityID]bool{}
	for _, raw := range n.Tags {
		tag := strings.Trim(strings.TrimPrefix(raw, "#"), "/")
		if tag == "" {
			continue
		}
		levels := strings.Split(tag, "/")

		var parent *store.EntityID
		path := ""
		for depth, level := range levels {
			if level == "" {
				continue
			}
			if path == "" {
				path = level
			} else {
				path = path + "/" + level
			}
			tagID := store.NewEntityID("tag", path)
			if err := ing.store.UpsertTag(store.Tag{
				ID:       tagID,
				ParentID: parent,
				Path:     path,
				Depth:    depth + 1,
			}); err != nil {
				return ing.storeErr(id, "upsert_tag", err)
			}

			if !joined[tagID] {
				joined[tagID] = true
				if err := ing.store.UpsertEntityTag(store.EntityTag{
					EntityID:   id,
					TagID:      tagID,
					Source:     "parser",
					Confidence: 1.0,
				}); err != nil {
					return ing.storeErr(id, "upsert_entity_tag", err)
				}
			}
			p := tagID
			parent = &p
		}
	}
	return nil
}
