// Package chat implements the terminal chat front end: the scroll-back
// viewport cache, the message-driven controller, and its modals.
package chat

import (
	"strings"

	"github.com/Mootikins/crucible/internal/crucible/errno"
)

// DefaultCacheCapacity bounds the live scroll-back.
const DefaultCacheCapacity = 512

// DefaultSpillThreshold is the per-tool-call output size beyond which
// the controller spills the output to disk.
const DefaultSpillThreshold = 64 * 1024

// ItemKind discriminates cache items.
type ItemKind int

const (
	ItemMessage ItemKind = iota
	ItemToolCall
	ItemShellExecution
	ItemSubagent
)

// CachedMessage is one completed chat message.
type CachedMessage struct {
	ID      string
	Role    string
	Content string
	// Thinking preserves the reasoning text that preceded the message.
	Thinking string
}

// ShellStatus tracks a shell execution's lifecycle.
type ShellStatus string

const (
	ShellRunning   ShellStatus = "running"
	ShellDone      ShellStatus = "done"
	ShellCancelled ShellStatus = "cancelled"
)

// CachedToolCall is one tool invocation with its streamed output.
type CachedToolCall struct {
	ID     string
	Name   string
	Args   string
	Output strings.Builder
	Bytes  int
	// Complete/Err finalize the call; OutputPath is set when the
	// output spilled to disk.
	Complete   bool
	Err        string
	OutputPath string
}

// CachedShellExecution is one shell command run from the modal.
type CachedShellExecution struct {
	ID         string
	Command    string
	Lines      []string
	Status     ShellStatus
	ExitCode   int
	OutputPath string
}

// CachedSubagent is one subagent run.
type CachedSubagent struct {
	ID     string
	Prompt string
	Result string
	Done   bool
}

// Item is one entry in the viewport cache.
type Item struct {
	Kind      ItemKind
	Message   *CachedMessage
	Tool      *CachedToolCall
	Shell     *CachedShellExecution
	Subagent  *CachedSubagent
	Graduated bool
}

// ID returns the item's stable id.
func (it *Item) ID() string {
	switch it.Kind {
	case ItemMessage:
		return it.Message.ID
	case ItemToolCall:
		return it.Tool.ID
	case ItemShellExecution:
		return it.Shell.ID
	case ItemSubagent:
		return it.Subagent.ID
	}
	return ""
}

// SegmentKind discriminates streaming segments.
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentThinking
	SegmentToolCall
	SegmentSubagent
)

// Segment is one ordered element of the current streaming turn: a
// completed text block, a thinking block, or a reference to a tool call
// or subagent item pushed mid-turn.
type Segment struct {
	Kind  SegmentKind
	Text  string
	RefID string
}

// streamState is the in-flight assistant turn. The in-progress buffer
// holds text not yet graduated into a block; segments log the turn's
// structure in order.
type streamState struct {
	active          bool
	graduatedBlocks []string
	currentThinking strings.Builder
	inProgress      strings.Builder
	segments        []Segment
	// turnItemIDs are items pushed during this turn; they are never
	// evicted while the turn is live and are offered for graduation on
	// completion.
	turnItemIDs []string
}

// Cache is the bounded scroll-back of chat items plus the streaming
// turn state. It is owned exclusively by the session loop; renderers
// receive it as a read-only view for the duration of one frame.
type Cache struct {
	capacity       int
	spillThreshold int
	items          []*Item
	stream         streamState

	// evictedUngraduated collects ids dropped before graduation; the
	// report is consumed once.
	evictedUngraduated []string
}

// NewCache creates a cache with the given capacity (0 for the default).
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{capacity: capacity, spillThreshold: DefaultSpillThreshold}
}

// SetSpillThreshold overrides the per-tool-call spill threshold.
func (c *Cache) SetSpillThreshold(n int) {
	if n > 0 {
		c.spillThreshold = n
	}
}

// Items returns the live items, oldest first.
func (c *Cache) Items() []*Item {
	return c.items
}

// Len returns the number of live items.
func (c *Cache) Len() int {
	return len(c.items)
}

// push appends an item and evicts past capacity. Items belonging to the
// active streaming turn are never evicted.
func (c *Cache) push(it *Item) {
	c.items = append(c.items, it)
	for len(c.items) > c.capacity {
		victim := -1
		for i, cand := range c.items {
			if c.stream.active && c.inTurn(cand.ID()) {
				continue
			}
			victim = i
			break
		}
		if victim < 0 {
			return
		}
		evicted := c.items[victim]
		c.items = append(c.items[:victim], c.items[victim+1:]...)
		if !evicted.Graduated {
			c.evictedUngraduated = append(c.evictedUngraduated, evicted.ID())
		}
	}
}

func (c *Cache) inTurn(id string) bool {
	for _, t := range c.stream.turnItemIDs {
		if t == id {
			return true
		}
	}
	return false
}

// PushMessage appends a completed message.
func (c *Cache) PushMessage(m CachedMessage) {
	c.push(&Item{Kind: ItemMessage, Message: &m})
}

// PushToolCall appends a new tool invocation.
func (c *Cache) PushToolCall(id, name, args string) {
	c.push(&Item{Kind: ItemToolCall, Tool: &CachedToolCall{ID: id, Name: name, Args: args}})
}

// PushShellExecution appends a shell run.
func (c *Cache) PushShellExecution(id, command string) *CachedShellExecution {
	sh := &CachedShellExecution{ID: id, Command: command, Status: ShellRunning}
	c.push(&Item{Kind: ItemShellExecution, Shell: sh})
	return sh
}

// PushSubagent appends a subagent run.
func (c *Cache) PushSubagent(id, prompt string) {
	c.push(&Item{Kind: ItemSubagent, Subagent: &CachedSubagent{ID: id, Prompt: prompt}})
}

// latestTool finds the most recent tool call with the name.
func (c *Cache) latestTool(name string) *CachedToolCall {
	for i := len(c.items) - 1; i >= 0; i-- {
		if c.items[i].Kind == ItemToolCall && c.items[i].Tool.Name == name {
			return c.items[i].Tool
		}
	}
	return nil
}

// AppendToolOutput appends a delta to the most recent tool call with
// the name. Appends are monotonic concatenations.
func (c *Cache) AppendToolOutput(name, delta string) {
	if tc := c.latestTool(name); tc != nil {
		tc.Output.WriteString(delta)
		tc.Bytes += len(delta)
	}
}

// CompleteTool finalizes the most recent tool call with the name.
func (c *Cache) CompleteTool(name string) {
	if tc := c.latestTool(name); tc != nil {
		tc.Complete = true
	}
}

// SetToolError finalizes the most recent tool call with a failure.
func (c *Cache) SetToolError(name, errMsg string) {
	if tc := c.latestTool(name); tc != nil {
		tc.Complete = true
		tc.Err = errMsg
	}
}

// ToolShouldSpill reports whether the tool call's output crossed the
// in-memory threshold; the controller then spills to disk and records
// the path via SetToolOutputPath.
func (c *Cache) ToolShouldSpill(name string) bool {
	tc := c.latestTool(name)
	return tc != nil && tc.OutputPath == "" && tc.Bytes > c.spillThreshold
}

// SetToolOutputPath records where the tool's output spilled.
func (c *Cache) SetToolOutputPath(name, path string) {
	if tc := c.latestTool(name); tc != nil {
		tc.OutputPath = path
	}
}

// IsStreaming reports whether a streaming turn is open.
func (c *Cache) IsStreaming() bool {
	return c.stream.active
}

// StartStreaming opens an assistant turn. Starting while one is active
// is an error; the controller must complete or cancel first.
func (c *Cache) StartStreaming() error {
	if c.stream.active {
		return errno.ErrStreamActive
	}
	c.stream = streamState{active: true}
	return nil
}

// AppendStreaming appends delta text to the in-progress buffer. Pending
// thinking flushes into its own segment first so segment order mirrors
// arrival order.
func (c *Cache) AppendStreaming(text string) {
	if !c.stream.active {
		return
	}
	c.flushThinking()
	c.stream.inProgress.WriteString(text)
}

// AppendStreamingThinking appends to the current thinking buffer.
func (c *Cache) AppendStreamingThinking(text string) {
	if !c.stream.active {
		return
	}
	c.stream.currentThinking.WriteString(text)
}

func (c *Cache) flushThinking() {
	if c.stream.currentThinking.Len() == 0 {
		return
	}
	c.stream.segments = append(c.stream.segments, Segment{
		Kind: SegmentThinking,
		Text: c.stream.currentThinking.String(),
	})
	c.stream.currentThinking.Reset()
}

// flushText graduates the in-progress buffer into a completed block.
func (c *Cache) flushText() {
	if c.stream.inProgress.Len() == 0 {
		return
	}
	text := c.stream.inProgress.String()
	c.stream.graduatedBlocks = append(c.stream.graduatedBlocks, text)
	c.stream.segments = append(c.stream.segments, Segment{Kind: SegmentText, Text: text})
	c.stream.inProgress.Reset()
}

// PushStreamingToolCall records a tool call opening mid-turn. The
// pending text block graduates so the segment log keeps arrival order.
func (c *Cache) PushStreamingToolCall(id, name, args string) {
	if !c.stream.active {
		c.PushToolCall(id, name, args)
		return
	}
	c.flushThinking()
	c.flushText()
	c.PushToolCall(id, name, args)
	c.stream.segments = append(c.stream.segments, Segment{Kind: SegmentToolCall, RefID: id})
	c.stream.turnItemIDs = append(c.stream.turnItemIDs, id)
}

// PushStreamingSubagent records a subagent spawning mid-turn.
func (c *Cache) PushStreamingSubagent(id, prompt string) {
	if !c.stream.active {
		c.PushSubagent(id, prompt)
		return
	}
	c.flushThinking()
	c.flushText()
	c.PushSubagent(id, prompt)
	c.stream.segments = append(c.stream.segments, Segment{Kind: SegmentSubagent, RefID: id})
	c.stream.turnItemIDs = append(c.stream.turnItemIDs, id)
}

// StreamingText returns the turn's text so far: graduated blocks plus
// the in-progress buffer, in order.
func (c *Cache) StreamingText() string {
	var sb strings.Builder
	for _, block := range c.stream.graduatedBlocks {
		sb.WriteString(block)
	}
	sb.WriteString(c.stream.inProgress.String())
	return sb.String()
}

// StreamingThinking returns the unflushed thinking buffer.
func (c *Cache) StreamingThinking() string {
	return c.stream.currentThinking.String()
}

// Segments returns the ordered segment log of the current turn.
func (c *Cache) Segments() []Segment {
	return c.stream.segments
}

// CompleteStreaming closes the turn: the concatenated text becomes a
// Message item, and the ids that can be graduated (the message plus the
// turn's tool calls and subagents) are returned for the caller to flush
// into persistent history.
func (c *Cache) CompleteStreaming(messageID, role string) ([]string, error) {
	if !c.stream.active {
		return nil, errno.ErrNoStream
	}
	c.flushThinking()

	var thinking strings.Builder
	for _, seg := range c.stream.segments {
		if seg.Kind == SegmentThinking {
			thinking.WriteString(seg.Text)
		}
	}

	content := c.StreamingText()
	graduable := append([]string{}, c.stream.turnItemIDs...)
	c.stream = streamState{}

	c.PushMessage(CachedMessage{
		ID:       messageID,
		Role:     role,
		Content:  content,
		Thinking: thinking.String(),
	})
	return append(graduable, messageID), nil
}

// CancelStreaming discards the in-progress buffers. Tool calls and
// subagents already pushed remain in the cache.
func (c *Cache) CancelStreaming() {
	c.stream = streamState{}
}

// MarkGraduated flags items as persisted out of the live viewport.
func (c *Cache) MarkGraduated(ids []string) {
	set := map[string]bool{}
	for _, id := range ids {
		set[id] = true
	}
	for _, it := range c.items {
		if set[it.ID()] {
			it.Graduated = true
		}
	}
}

// TakeEvictionReport returns ids evicted before graduation. Each id is
// reported exactly once.
func (c *Cache) TakeEvictionReport() []string {
	report := c.evictedUngraduated
	c.evictedUngraduated = nil
	return report
}
