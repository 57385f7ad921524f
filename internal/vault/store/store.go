// Package store is the EAV+Graph persistence facade: typed upserts and
// deletes over entities, properties, blocks, relations, and tags, backed
// by SQLite.
//
// All writes are serialized through one connection and are durable when
// the call returns. ReplaceBlocks is atomic per entity: readers never
// observe a partial block set.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Mootikins/crucible/internal/crucible/errno"
	"github.com/Mootikins/crucible/pkg/utils/json"
)

// Store is the SQLite-backed data store.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if needed) the store at path. ":memory:" opens an
// in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	// One connection: sqlite serializes writers anyway and a single
	// conn keeps in-memory databases coherent.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA synchronous=NORMAL`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertEntity inserts or updates an entity record.
func (s *Store) UpsertEntity(e *Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, key := e.ID.Parts()
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal entity data: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO `+TableEntities+` (id, tbl, key, type, content_hash, created_at, updated_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at,
			data = excluded.data`,
		string(e.ID), table, key, string(e.Type), e.ContentHash,
		e.CreatedAt.Unix(), e.UpdatedAt.Unix(), string(data))
	if err != nil {
		return fmt.Errorf("failed to upsert entity %q: %w", e.ID, err)
	}
	return nil
}

// GetEntity returns the entity or errno.ErrEntityNotFound.
func (s *Store) GetEntity(id EntityID) (*Entity, error) {
	row := s.db.QueryRow(`
		SELECT type, content_hash, created_at, updated_at, data
		FROM `+TableEntities+` WHERE id = ?`, string(id))

	var (
		typ, hash, data      string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&typ, &hash, &createdAt, &updatedAt, &data); err != nil {
		if err == sql.ErrNoRows {
			return nil, errno.ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to get entity %q: %w", id, err)
	}
	e := &Entity{
		ID:          id,
		Type:        EntityType(typ),
		ContentHash: hash,
		CreatedAt:   time.Unix(createdAt, 0).UTC(),
		UpdatedAt:   time.Unix(updatedAt, 0).UTC(),
	}
	if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
		return nil, fmt.Errorf("failed to decode entity data: %w", err)
	}
	return e, nil
}

// DeleteEntity removes the entity and everything hanging off it:
// properties, blocks, outgoing relations, tag joins, and its path index
// row. One transaction.
func (s *Store) DeleteEntity(id EntityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []struct {
		query string
		arg   string
	}{
		{`DELETE FROM ` + TableProperties + ` WHERE entity_id = ?`, string(id)},
		{`DELETE FROM ` + TableBlocks + ` WHERE entity_id = ?`, string(id)},
		{`DELETE FROM ` + TableRelations + ` WHERE from_entity = ?`, string(id)},
		{`DELETE FROM ` + TableEntityTags + ` WHERE entity_id = ?`, string(id)},
		{`DELETE FROM ` + TableNotePaths + ` WHERE entity_id = ?`, string(id)},
		{`DELETE FROM ` + TableEntities + ` WHERE id = ?`, string(id)},
	} {
		if _, err := tx.Exec(stmt.query, stmt.arg); err != nil {
			return fmt.Errorf("failed to delete entity %q: %w", id, err)
		}
	}
	return tx.Commit()
}

// UpsertProperty writes one property triple.
func (s *Store) UpsertProperty(p Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, err := p.Value.encode()
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO `+TableProperties+` (entity_id, namespace, key, value_kind, value)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_id, namespace, key) DO UPDATE SET
			value_kind = excluded.value_kind,
			value = excluded.value`,
		string(p.EntityID), p.Namespace, p.Key, string(p.Value.Kind), value)
	if err != nil {
		return fmt.Errorf("failed to upsert property %s/%s: %w", p.Namespace, p.Key, err)
	}
	return nil
}

// GetProperties returns the entity's properties, optionally filtered by
// namespace ("" for all), ordered by namespace then key.
func (s *Store) GetProperties(id EntityID, namespace string) ([]Property, error) {
	query := `SELECT namespace, key, value_kind, value FROM ` + TableProperties + ` WHERE entity_id = ?`
	args := []interface{}{string(id)}
	if namespace != "" {
		query += ` AND namespace = ?`
		args = append(args, namespace)
	}
	query += ` ORDER BY namespace, key`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query properties: %w", err)
	}
	defer rows.Close()

	var props []Property
	for rows.Next() {
		var ns, key, kind, raw string
		if err := rows.Scan(&ns, &key, &kind, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		props = append(props, Property{
			EntityID:  id,
			Namespace: ns,
			Key:       key,
			Value:     decodeValue(ValueKind(kind), raw),
		})
	}
	return props, rows.Err()
}

// DeleteProperties removes all properties of the entity in the given
// namespace.
func (s *Store) DeleteProperties(id EntityID, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM `+TableProperties+` WHERE entity_id = ? AND namespace = ?`,
		string(id), namespace)
	if err != nil {
		return fmt.Errorf("failed to delete %q properties: %w", namespace, err)
	}
	return nil
}

// ReplaceBlocks atomically swaps the entity's block set.
func (s *Store) ReplaceBlocks(id EntityID, blocks []BlockNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin block replacement: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM `+TableBlocks+` WHERE entity_id = ?`, string(id)); err != nil {
		return fmt.Errorf("failed to clear blocks: %w", err)
	}
	for _, b := range blocks {
		md, err := json.Marshal(b.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal block metadata: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT INTO `+TableBlocks+` (id, entity_id, block_index, block_type, content, content_hash, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			b.ID, string(id), b.Index, b.Type, b.Content, b.ContentHash, string(md)); err != nil {
			return fmt.Errorf("failed to insert block %q: %w", b.ID, err)
		}
	}
	return tx.Commit()
}

// UpsertBlocks writes the given blocks by id without touching the
// entity's other rows. Used by incremental re-ingest when only some
// sections changed; one transaction.
func (s *Store) UpsertBlocks(id EntityID, blocks []BlockNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin block upsert: %w", err)
	}
	defer tx.Rollback()

	for _, b := range blocks {
		md, err := json.Marshal(b.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal block metadata: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT INTO `+TableBlocks+` (id, entity_id, block_index, block_type, content, content_hash, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				block_index = excluded.block_index,
				block_type = excluded.block_type,
				content = excluded.content,
				content_hash = excluded.content_hash,
				metadata = excluded.metadata`,
			b.ID, string(id), b.Index, b.Type, b.Content, b.ContentHash, string(md)); err != nil {
			return fmt.Errorf("failed to upsert block %q: %w", b.ID, err)
		}
	}
	return tx.Commit()
}

// GetBlocks returns the entity's blocks in index order.
func (s *Store) GetBlocks(id EntityID) ([]BlockNode, error) {
	rows, err := s.db.Query(`
		SELECT id, block_index, block_type, content, content_hash, metadata
		FROM `+TableBlocks+` WHERE entity_id = ? ORDER BY block_index`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	defer rows.Close()

	var blocks []BlockNode
	for rows.Next() {
		var b BlockNode
		var md string
		if err := rows.Scan(&b.ID, &b.Index, &b.Type, &b.Content, &b.ContentHash, &md); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		b.EntityID = id
		if err := json.Unmarshal([]byte(md), &b.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode block metadata: %w", err)
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// StoreRelation writes one relation. The row id is derived from the
// logical key (from, to, type, target and offset metadata), so storing
// the same relation twice is idempotent.
func (s *Store) StoreRelation(r Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	md, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal relation metadata: %w", err)
	}
	var to interface{}
	if r.To != nil {
		to = string(*r.To)
	}
	_, err = s.db.Exec(`
		INSERT INTO `+TableRelations+` (id, from_entity, to_entity, relation_type, metadata)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			to_entity = excluded.to_entity,
			metadata = excluded.metadata`,
		relationID(r), string(r.From), to, string(r.Type), string(md))
	if err != nil {
		return fmt.Errorf("failed to store relation: %w", err)
	}
	return nil
}

// relationID hashes the relation's logical key.
func relationID(r Relation) string {
	h := sha256.New()
	h.Write([]byte(r.From))
	h.Write([]byte{0})
	if r.To != nil {
		h.Write([]byte(*r.To))
	}
	h.Write([]byte{0})
	h.Write([]byte(r.Type))
	h.Write([]byte{0})
	if target, ok := r.Metadata["target"].(string); ok {
		h.Write([]byte(target))
	}
	h.Write([]byte{0})
	if offset, ok := r.Metadata["offset"].(int); ok {
		h.Write([]byte(strconv.Itoa(offset)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DeleteRelationsFrom removes all outgoing relations of the entity,
// optionally restricted to one type.
func (s *Store) DeleteRelationsFrom(id EntityID, relType RelationType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `DELETE FROM ` + TableRelations + ` WHERE from_entity = ?`
	args := []interface{}{string(id)}
	if relType != "" {
		query += ` AND relation_type = ?`
		args = append(args, string(relType))
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to delete relations: %w", err)
	}
	return nil
}

// GetRelations returns the entity's outgoing relations, optionally
// filtered by type ("" for all).
func (s *Store) GetRelations(id EntityID, relType RelationType) ([]Relation, error) {
	return s.queryRelations(`from_entity`, id, relType)
}

// GetBacklinks returns all relations pointing at the entity.
func (s *Store) GetBacklinks(id EntityID, relType RelationType) ([]Relation, error) {
	return s.queryRelations(`to_entity`, id, relType)
}

func (s *Store) queryRelations(column string, id EntityID, relType RelationType) ([]Relation, error) {
	query := `SELECT from_entity, to_entity, relation_type, metadata FROM ` +
		TableRelations + ` WHERE ` + column + ` = ?`
	args := []interface{}{string(id)}
	if relType != "" {
		query += ` AND relation_type = ?`
		args = append(args, string(relType))
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query relations: %w", err)
	}
	defer rows.Close()

	var relations []Relation
	for rows.Next() {
		var (
			from, typ, md string
			to            sql.NullString
		)
		if err := rows.Scan(&from, &to, &typ, &md); err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		r := Relation{From: EntityID(from), Type: RelationType(typ)}
		if to.Valid {
			toID := EntityID(to.String)
			r.To = &toID
		}
		if err := json.Unmarshal([]byte(md), &r.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode relation metadata: %w", err)
		}
		relations = append(relations, r)
	}
	return relations, rows.Err()
}

// UpsertTag writes one tag level.
func (s *Store) UpsertTag(t Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var parent interface{}
	if t.ParentID != nil {
		parent = string(*t.ParentID)
	}
	_, err := s.db.Exec(`
		INSERT INTO `+TableTags+` (id, parent_id, path, depth)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id = excluded.parent_id,
			path = excluded.path,
			depth = excluded.depth`,
		string(t.ID), parent, t.Path, t.Depth)
	if err != nil {
		return fmt.Errorf("failed to upsert tag %q: %w", t.Path, err)
	}
	return nil
}

// GetTagByPath returns the tag with the exact path, or errno.ErrTagNotFound.
func (s *Store) GetTagByPath(path string) (*Tag, error) {
	row := s.db.QueryRow(`SELECT id, parent_id, depth FROM `+TableTags+` WHERE path = ?`, path)
	var (
		id     string
		parent sql.NullString
		depth  int
	)
	if err := row.Scan(&id, &parent, &depth); err != nil {
		if err == sql.ErrNoRows {
			return nil, errno.ErrTagNotFound
		}
		return nil, fmt.Errorf("failed to get tag %q: %w", path, err)
	}
	t := &Tag{ID: EntityID(id), Path: path, Depth: depth}
	if parent.Valid {
		pid := EntityID(parent.String)
		t.ParentID = &pid
	}
	return t, nil
}

// DeleteEntityTags removes all tag joins for the entity. Called before
// re-inserting a note's tag set.
func (s *Store) DeleteEntityTags(id EntityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM `+TableEntityTags+` WHERE entity_id = ?`, string(id)); err != nil {
		return fmt.Errorf("failed to delete entity tags: %w", err)
	}
	return nil
}

// UpsertEntityTag joins an entity to a tag.
func (s *Store) UpsertEntityTag(et EntityTag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO `+TableEntityTags+` (entity_id, tag_id, source, confidence)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_id, tag_id) DO UPDATE SET
			source = excluded.source,
			confidence = excluded.confidence`,
		string(et.EntityID), string(et.TagID), et.Source, et.Confidence)
	if err != nil {
		return fmt.Errorf("failed to upsert entity tag: %w", err)
	}
	return nil
}

// GetEntityTags returns the entity's tag joins.
func (s *Store) GetEntityTags(id EntityID) ([]EntityTag, error) {
	rows, err := s.db.Query(`
		SELECT tag_id, source, confidence FROM `+TableEntityTags+`
		WHERE entity_id = ? ORDER BY tag_id`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query entity tags: %w", err)
	}
	defer rows.Close()

	var tags []EntityTag
	for rows.Next() {
		var et EntityTag
		var tagID string
		if err := rows.Scan(&tagID, &et.Source, &et.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan entity tag: %w", err)
		}
		et.EntityID = id
		et.TagID = EntityID(tagID)
		tags = append(tags, et)
	}
	return tags, rows.Err()
}

// SetNotePath records the entity's relative path in the resolution
// index. The reversed form makes suffix lookups a prefix scan.
func (s *Store) SetNotePath(id EntityID, relPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lower := strings.ToLower(relPath)
	_, err := s.db.Exec(`
		INSERT INTO `+TableNotePaths+` (entity_id, relpath, revpath)
		VALUES (?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			relpath = excluded.relpath,
			revpath = excluded.revpath`,
		string(id), lower, reverse(lower))
	if err != nil {
		return fmt.Errorf("failed to set note path: %w", err)
	}
	return nil
}

// PathMatch is one resolution candidate.
type PathMatch struct {
	EntityID EntityID
	RelPath  string
}

// FindNotesByPathSuffix resolves a wikilink target against the path
// index. Suffix matches (via the reversed-path index) are tried for the
// target itself and, when the target has no ".", the target with ".md";
// a suffix match counts only when it starts at a path separator or at
// the start of the path. If none match, a containment scan runs as a
// fallback.
func (s *Store) FindNotesByPathSuffix(target string) ([]PathMatch, error) {
	lower := strings.ToLower(strings.TrimSpace(target))
	if lower == "" {
		return nil, nil
	}

	variants := []string{lower}
	if !strings.Contains(lower, ".") {
		variants = append(variants, lower+".md")
	}

	seen := map[EntityID]bool{}
	var matches []PathMatch
	for _, v := range variants {
		prefix := reverse(v)
		rows, err := s.db.Query(`
			SELECT entity_id, relpath FROM `+TableNotePaths+`
			WHERE revpath >= ? AND revpath < ? ORDER BY relpath`,
			prefix, prefix+"\uffff")
		if err != nil {
			return nil, fmt.Errorf("failed to query path index: %w", err)
		}
		for rows.Next() {
			var id, rel string
			if err := rows.Scan(&id, &rel); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan path match: %w", err)
			}
			// A suffix match must cover a whole path segment:
			// "note.md" matches "a/note.md" but not "a/othernote.md".
			if len(rel) > len(v) {
				prev := rel[len(rel)-len(v)-1]
				if prev != '/' {
					continue
				}
			}
			eid := EntityID(id)
			if !seen[eid] {
				seen[eid] = true
				matches = append(matches, PathMatch{EntityID: eid, RelPath: rel})
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	if len(matches) > 0 {
		return matches, nil
	}

	// Containment fallback for partial-path targets.
	rows, err := s.db.Query(`
		SELECT entity_id, relpath FROM `+TableNotePaths+`
		WHERE relpath LIKE ? ESCAPE '\' ORDER BY relpath`,
		"%"+escapeLike(lower)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to scan path index: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, rel string
		if err := rows.Scan(&id, &rel); err != nil {
			return nil, fmt.Errorf("failed to scan path match: %w", err)
		}
		matches = append(matches, PathMatch{EntityID: EntityID(id), RelPath: rel})
	}
	return matches, rows.Err()
}

// Query runs a parameterized query and returns id-bearing records. A
// "data" column is decoded as JSON; every other column lands in Data
// under its name.
func (s *Store) Query(query string, args ...interface{}) ([]Record, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var records []Record
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec := Record{Data: map[string]interface{}{}}
		for i, col := range cols {
			val := values[i]
			if b, ok := val.([]byte); ok {
				val = string(b)
			}
			switch col {
			case "id":
				if s, ok := val.(string); ok {
					rec.ID = s
				}
			case "data":
				if raw, ok := val.(string); ok {
					var decoded map[string]interface{}
					if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
						rec.Data[col] = decoded
						continue
					}
				}
				rec.Data[col] = val
			default:
				rec.Data[col] = val
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func decodeValue(kind ValueKind, raw string) AttributeValue {
	switch kind {
	case ValueNumber:
		n, _ := strconv.ParseFloat(raw, 64)
		return NumberValue(n)
	case ValueBool:
		return BoolValue(raw == "true")
	case ValueJSON:
		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return JSONValue(v)
		}
		return TextValue(raw)
	}
	return TextValue(raw)
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
