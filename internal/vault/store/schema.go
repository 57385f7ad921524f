package store

import (
	"database/sql"
	"fmt"
)

const (
	TableEntities   = "entities"
	TableProperties = "properties"
	TableBlocks     = "blocks"
	TableRelations  = "relations"
	TableTags       = "tags"
	TableEntityTags = "entity_tags"
	TableNotePaths  = "note_paths"
)

// ensureSchema creates all tables and indexes.
// No foreign keys: referential integrity is managed at the application
// level so entity deletion can cascade in one transaction.
func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + TableEntities + ` (
			id TEXT PRIMARY KEY,
			tbl TEXT NOT NULL,
			key TEXT NOT NULL,
			type TEXT NOT NULL,
			content_hash TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			data TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_type ON ` + TableEntities + `(type)`,

		`CREATE TABLE IF NOT EXISTS ` + TableProperties + ` (
			entity_id TEXT NOT NULL,
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value_kind TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (entity_id, namespace, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_properties_ns_key ON ` + TableProperties + `(namespace, key)`,

		`CREATE TABLE IF NOT EXISTS ` + TableBlocks + ` (
			id TEXT PRIMARY KEY,
			entity_id TEXT NOT NULL,
			block_index INTEGER NOT NULL,
			block_type TEXT NOT NULL,
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_entity ON ` + TableBlocks + `(entity_id, block_index)`,

		`CREATE TABLE IF NOT EXISTS ` + TableRelations + ` (
			id TEXT PRIMARY KEY,
			from_entity TEXT NOT NULL,
			to_entity TEXT,
			relation_type TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relations_from ON ` + TableRelations + `(from_entity, relation_type)`,
		`CREATE INDEX IF NOT EXISTS idx_relations_to ON ` + TableRelations + `(to_entity, relation_type)`,

		`CREATE TABLE IF NOT EXISTS ` + TableTags + ` (
			id TEXT PRIMARY KEY,
			parent_id TEXT,
			path TEXT NOT NULL UNIQUE,
			depth INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS ` + TableEntityTags + ` (
			entity_id TEXT NOT NULL,
			tag_id TEXT NOT NULL,
			source TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 1.0,
			PRIMARY KEY (entity_id, tag_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_tags_tag ON ` + TableEntityTags + `(tag_id)`,

		// note_paths indexes the reversed relative path so wikilink
		// resolution by path suffix is a prefix scan on revpath.
		`CREATE TABLE IF NOT EXISTS ` + TableNotePaths + ` (
			entity_id TEXT PRIMARY KEY,
			relpath TEXT NOT NULL,
			revpath TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_note_paths_rev ON ` + TableNotePaths + `(revpath)`,
		`CREATE INDEX IF NOT EXISTS idx_note_paths_rel ON ` + TableNotePaths + `(relpath)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema: %w", err)
		}
	}
	return nil
}
