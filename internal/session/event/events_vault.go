package event

// --- file events ---

// FileCreated records a new file appearing in the vault.
type FileCreated struct {
	Path string `json:"path"`
}

func (e FileCreated) EventType() string   { return "file_created" }
func (e FileCreated) Identifier() string  { return e.Path }
func (e FileCreated) Priority() Priority  { return PriorityNormal }
func (e FileCreated) EstimateTokens() int { return estimateStrings(e.Path) }
func (e FileCreated) IsPreEvent() bool    { return false }

// FileModified records a vault file changing on disk.
type FileModified struct {
	Path string `json:"path"`
}

func (e FileModified) EventType() string   { return "file_modified" }
func (e FileModified) Identifier() string  { return e.Path }
func (e FileModified) Priority() Priority  { return PriorityNormal }
func (e FileModified) EstimateTokens() int { return estimateStrings(e.Path) }
func (e FileModified) IsPreEvent() bool    { return false }

// FileDeleted records a vault file being removed.
type FileDeleted struct {
	Path string `json:"path"`
}

func (e FileDeleted) EventType() string   { return "file_deleted" }
func (e FileDeleted) Identifier() string  { return e.Path }
func (e FileDeleted) Priority() Priority  { return PriorityNormal }
func (e FileDeleted) EstimateTokens() int { return estimateStrings(e.Path) }
func (e FileDeleted) IsPreEvent() bool    { return false }

// --- note events ---

// NoteIngested records a note entering the store for the first time.
type NoteIngested struct {
	EntityID string `json:"entity_id"`
	Path     string `json:"path"`
	RootHash string `json:"root_hash,omitempty"`
}

func (e NoteIngested) EventType() string   { return "note_ingested" }
func (e NoteIngested) Identifier() string  { return e.Path }
func (e NoteIngested) Priority() Priority  { return PriorityNormal }
func (e NoteIngested) EstimateTokens() int { return estimateStrings(e.Path) }
func (e NoteIngested) IsPreEvent() bool    { return false }

// NoteUpdated records an existing note being re-ingested with changes.
type NoteUpdated struct {
	EntityID        string `json:"entity_id"`
	Path            string `json:"path"`
	RootHash        string `json:"root_hash,omitempty"`
	ChangedSections []int  `json:"changed_sections,omitempty"`
}

func (e NoteUpdated) EventType() string   { return "note_updated" }
func (e NoteUpdated) Identifier() string  { return e.Path }
func (e NoteUpdated) Priority() Priority  { return PriorityNormal }
func (e NoteUpdated) EstimateTokens() int { return estimateStrings(e.Path) }
func (e NoteUpdated) IsPreEvent() bool    { return false }

// EntityDeleted records an entity leaving the store.
type EntityDeleted struct {
	EntityID string `json:"entity_id"`
	Path     string `json:"path,omitempty"`
}

func (e EntityDeleted) EventType() string   { return "entity_deleted" }
func (e EntityDeleted) Identifier() string  { return e.EntityID }
func (e EntityDeleted) Priority() Priority  { return PriorityNormal }
func (e EntityDeleted) EstimateTokens() int { return estimateStrings(e.EntityID) }
func (e EntityDeleted) IsPreEvent() bool    { return false }

// --- storage events ---

// StorageWrite records a completed store write batch.
type StorageWrite struct {
	EntityID string `json:"entity_id"`
	Kind     string `json:"kind"`
}

func (e StorageWrite) EventType() string   { return "storage_write" }
func (e StorageWrite) Identifier() string  { return e.EntityID }
func (e StorageWrite) Priority() Priority  { return PriorityLow }
func (e StorageWrite) EstimateTokens() int { return estimateStrings(e.EntityID, e.Kind) }
func (e StorageWrite) IsPreEvent() bool    { return false }

// StorageDelete records a completed store delete.
type StorageDelete struct {
	EntityID string `json:"entity_id"`
}

func (e StorageDelete) EventType() string   { return "storage_delete" }
func (e StorageDelete) Identifier() string  { return e.EntityID }
func (e StorageDelete) Priority() Priority  { return PriorityLow }
func (e StorageDelete) EstimateTokens() int { return estimateStrings(e.EntityID) }
func (e StorageDelete) IsPreEvent() bool    { return false }

// StorageError records a store operation failing.
type StorageError struct {
	EntityID string `json:"entity_id,omitempty"`
	Op       string `json:"op"`
	Error    string `json:"error"`
}

func (e StorageError) EventType() string   { return "storage_error" }
func (e StorageError) Identifier() string  { return e.EntityID }
func (e StorageError) Priority() Priority  { return PriorityHigh }
func (e StorageError) EstimateTokens() int { return estimateStrings(e.Op, e.Error) }
func (e StorageError) IsPreEvent() bool    { return false }

// --- embedding events (also storage events) ---

// EmbeddingRequested asks the embedding pipeline to (re)embed a block.
type EmbeddingRequested struct {
	EntityID string `json:"entity_id"`
	BlockID  string `json:"block_id"`
	Content  string `json:"content,omitempty"`
}

func (e EmbeddingRequested) EventType() string   { return "embedding_requested" }
func (e EmbeddingRequested) Identifier() string  { return e.BlockID }
func (e EmbeddingRequested) Priority() Priority  { return PriorityLow }
func (e EmbeddingRequested) EstimateTokens() int { return estimateStrings(e.Content) }
func (e EmbeddingRequested) IsPreEvent() bool    { return false }

// EmbeddingStored records a block's vector landing in the store.
type EmbeddingStored struct {
	EntityID   string `json:"entity_id"`
	BlockID    string `json:"block_id"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

func (e EmbeddingStored) EventType() string   { return "embedding_stored" }
func (e EmbeddingStored) Identifier() string  { return e.BlockID }
func (e EmbeddingStored) Priority() Priority  { return PriorityLow }
func (e EmbeddingStored) EstimateTokens() int { return estimateStrings(e.BlockID, e.Model) }
func (e EmbeddingStored) IsPreEvent() bool    { return false }

// EmbeddingFailed records a per-item embedding failure.
type EmbeddingFailed struct {
	EntityID string `json:"entity_id"`
	BlockID  string `json:"block_id"`
	Error    string `json:"error"`
}

func (e EmbeddingFailed) EventType() string   { return "embedding_failed" }
func (e EmbeddingFailed) Identifier() string  { return e.BlockID }
func (e EmbeddingFailed) Priority() Priority  { return PriorityNormal }
func (e EmbeddingFailed) EstimateTokens() int { return estimateStrings(e.BlockID, e.Error) }
func (e EmbeddingFailed) IsPreEvent() bool    { return false }

// --- MCP events ---

// MCPServerConnected records an MCP server coming online.
type MCPServerConnected struct {
	Server string `json:"server"`
}

func (e MCPServerConnected) EventType() string   { return "mcp_server_connected" }
func (e MCPServerConnected) Identifier() string  { return e.Server }
func (e MCPServerConnected) Priority() Priority  { return PriorityNormal }
func (e MCPServerConnected) EstimateTokens() int { return estimateStrings(e.Server) }
func (e MCPServerConnected) IsPreEvent() bool    { return false }

// MCPServerDisconnected records an MCP server going away.
type MCPServerDisconnected struct {
	Server string `json:"server"`
	Reason string `json:"reason,omitempty"`
}

func (e MCPServerDisconnected) EventType() string   { return "mcp_server_disconnected" }
func (e MCPServerDisconnected) Identifier() string  { return e.Server }
func (e MCPServerDisconnected) Priority() Priority  { return PriorityNormal }
func (e MCPServerDisconnected) EstimateTokens() int { return estimateStrings(e.Server, e.Reason) }
func (e MCPServerDisconnected) IsPreEvent() bool    { return false }

// MCPToolDiscovered records a tool surfacing from an MCP server.
type MCPToolDiscovered struct {
	Server string `json:"server"`
	Tool   string `json:"tool"`
}

func (e MCPToolDiscovered) EventType() string   { return "mcp_tool_discovered" }
func (e MCPToolDiscovered) Identifier() string  { return e.Tool }
func (e MCPToolDiscovered) Priority() Priority  { return PriorityLow }
func (e MCPToolDiscovered) EstimateTokens() int { return estimateStrings(e.Server, e.Tool) }
func (e MCPToolDiscovered) IsPreEvent() bool    { return false }
