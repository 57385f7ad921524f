package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/Mootikins/crucible/pkg/utils/json"
)

// EntityType classifies an entity record.
type EntityType string

const (
	EntityNote     EntityType = "note"
	EntityBlock    EntityType = "block"
	EntityTagType  EntityType = "tag"
	EntityTask     EntityType = "task"
	EntityTaskFile EntityType = "task_file"
)

// EntityID is "<table>:<key>", e.g. "note:projects/plan.md".
type EntityID string

// NewEntityID joins a table and key.
func NewEntityID(table, key string) EntityID {
	return EntityID(table + ":" + key)
}

// Parts splits the id into its table and key.
func (id EntityID) Parts() (table, key string) {
	s := string(id)
	if i := strings.Index(s, ":"); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// Entity is the root record of the EAV+Graph model.
type Entity struct {
	ID          EntityID               `json:"id"`
	Type        EntityType             `json:"type"`
	ContentHash string                 `json:"content_hash"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// ValueKind discriminates AttributeValue variants.
type ValueKind string

const (
	ValueText   ValueKind = "text"
	ValueNumber ValueKind = "number"
	ValueBool   ValueKind = "bool"
	ValueJSON   ValueKind = "json"
)

// AttributeValue is a typed property value.
type AttributeValue struct {
	Kind   ValueKind
	Text   string
	Number float64
	Bool   bool
	JSON   interface{}
}

// Text creates a text-valued attribute.
func TextValue(s string) AttributeValue {
	return AttributeValue{Kind: ValueText, Text: s}
}

// NumberValue creates a numeric attribute.
func NumberValue(n float64) AttributeValue {
	return AttributeValue{Kind: ValueNumber, Number: n}
}

// BoolValue creates a boolean attribute.
func BoolValue(b bool) AttributeValue {
	return AttributeValue{Kind: ValueBool, Bool: b}
}

// JSONValue creates an attribute holding an arbitrary JSON document.
func JSONValue(v interface{}) AttributeValue {
	return AttributeValue{Kind: ValueJSON, JSON: v}
}

// encode returns the storable text form of the value.
func (v AttributeValue) encode() (string, error) {
	switch v.Kind {
	case ValueText:
		return v.Text, nil
	case ValueNumber:
		return fmt.Sprintf("%g", v.Number), nil
	case ValueBool:
		if v.Bool {
			return "true", nil
		}
		return "false", nil
	case ValueJSON:
		data, err := json.Marshal(v.JSON)
		if err != nil {
			return "", fmt.Errorf("failed to encode json value: %w", err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("unknown value kind %q", v.Kind)
}

// Property is one (entity, namespace, key) → value triple. Namespaces
// used by the ingestion core: core, section, enrichment.
type Property struct {
	EntityID  EntityID       `json:"entity_id"`
	Namespace string         `json:"namespace"`
	Key       string         `json:"key"`
	Value     AttributeValue `json:"value"`
}

// BlockNode is a content block row belonging to one entity.
type BlockNode struct {
	ID          string            `json:"id"`
	EntityID    EntityID          `json:"entity_id"`
	Index       int               `json:"block_index"`
	Type        string            `json:"block_type"`
	Content     string            `json:"content"`
	ContentHash string            `json:"content_hash"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// RelationType classifies edges.
type RelationType string

const (
	RelationWikilink RelationType = "wikilink"
	RelationEmbed    RelationType = "embed"
	RelationLink     RelationType = "link"
	RelationFootnote RelationType = "footnote"
)

// Relation is a directed edge. To is nil for unresolved, ambiguous, or
// external targets; the metadata carries what is known about the target.
type Relation struct {
	From     EntityID               `json:"from_entity"`
	To       *EntityID              `json:"to_entity,omitempty"`
	Type     RelationType           `json:"relation_type"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Tag is one level of a hierarchical tag ("project/crucible/go" yields
// three tag entities chained by ParentID).
type Tag struct {
	ID       EntityID  `json:"id"`
	ParentID *EntityID `json:"parent_id,omitempty"`
	Path     string    `json:"path"`
	Depth    int       `json:"depth"`
}

// EntityTag joins an entity to a tag with provenance.
type EntityTag struct {
	EntityID   EntityID `json:"entity_id"`
	TagID      EntityID `json:"tag_id"`
	Source     string   `json:"source"`
	Confidence float64  `json:"confidence"`
}

// Record is one row returned by Query: an id plus the decoded data
// payload.
type Record struct {
	ID   string                 `json:"id"`
	Data map[string]interface{} `json:"data"`
}
