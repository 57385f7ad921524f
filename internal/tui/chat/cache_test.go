package chat

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamingRoundTrip(t *testing.T) {
	c := NewCache(0)
	c.PushMessage(CachedMessage{ID: "u1", Role: "user", Content: "Hello"})

	require.NoError(t, c.StartStreaming())
	c.AppendStreaming("Hi ")
	c.AppendStreaming("there")
	ids, err := c.CompleteStreaming("a1", "assistant")
	require.NoError(t, err)

	require.Len(t, c.Items(), 2)
	assert.Equal(t, "Hello", c.Items()[0].Message.Content)
	assert.Equal(t, "Hi there", c.Items()[1].Message.Content)
	assert.False(t, c.IsStreaming())
	assert.Contains(t, ids, "a1")
}

func TestStreamingTextInvariant(t *testing.T) {
	c := NewCache(0)
	require.NoError(t, c.StartStreaming())

	deltas := []string{"alpha ", "beta ", "gamma"}
	var want string
	for i, d := range deltas {
		c.AppendStreaming(d)
		want += d
		if i == 1 {
			// A tool call mid-turn graduates the pending text block;
			// the concatenation must be unaffected.
			c.PushStreamingToolCall("t1", "Read", "{}")
		}
	}
	assert.Equal(t, want, c.StreamingText())

	// Ordered Text segments plus in-progress equals the delta sum.
	var segText string
	for _, seg := range c.Segments() {
		if seg.Kind == SegmentText {
			segText += seg.Text
		}
	}
	assert.Equal(t, want, segText+c.stream.inProgress.String())
}

func TestStreamingSegmentsOrder(t *testing.T) {
	c := NewCache(0)
	require.NoError(t, c.StartStreaming())

	c.AppendStreamingThinking("pondering")
	c.AppendStreaming("first")
	c.PushStreamingToolCall("t1", "Bash", "{}")
	c.AppendStreaming("second")
	c.PushStreamingSubagent("s1", "explore")
	_, err := c.CompleteStreaming("m1", "assistant")
	require.NoError(t, err)

	// Segment log preserved arrival order.
	msgItem := c.Items()[len(c.Items())-1]
	assert.Equal(t, "pondering", msgItem.Message.Thinking)
	assert.Equal(t, "firstsecond", msgItem.Message.Content)
}

func TestToolCallLifecycle(t *testing.T) {
	c := NewCache(0)
	c.PushToolCall("t1", "Read", `{"path":"f.md"}`)
	c.AppendToolOutput("Read", "line1\n")
	c.AppendToolOutput("Read", "line2\n")
	c.CompleteTool("Read")

	require.Len(t, c.Items(), 1)
	tc := c.Items()[0].Tool
	assert.Equal(t, "line1\nline2\n", tc.Output.String())
	assert.True(t, tc.Complete)
	assert.Empty(t, tc.Err)
}

func TestToolErrorMarksFailed(t *testing.T) {
	c := NewCache(0)
	c.PushToolCall("t1", "Write", "{}")
	c.SetToolError("Write", "permission denied")

	tc := c.Items()[0].Tool
	assert.True(t, tc.Complete)
	assert.Equal(t, "permission denied", tc.Err)
}

func TestAppendTargetsMostRecentTool(t *testing.T) {
	c := NewCache(0)
	c.PushToolCall("t1", "Read", "{}")
	c.CompleteTool("Read")
	c.PushToolCall("t2", "Read", "{}")
	c.AppendToolOutput("Read", "new output")

	assert.Equal(t, "", c.Items()[0].Tool.Output.String())
	assert.Equal(t, "new output", c.Items()[1].Tool.Output.String())
}

func TestToolShouldSpill(t *testing.T) {
	c := NewCache(0)
	c.SetSpillThreshold(10)
	c.PushToolCall("t1", "Read", "{}")
	c.AppendToolOutput("Read", "short")
	assert.False(t, c.ToolShouldSpill("Read"))

	c.AppendToolOutput("Read", "now past the threshold")
	assert.True(t, c.ToolShouldSpill("Read"))

	c.SetToolOutputPath("Read", "/tmp/spill.txt")
	assert.False(t, c.ToolShouldSpill("Read"))
}

func TestCancelStreamingKeepsToolCalls(t *testing.T) {
	c := NewCache(0)
	require.NoError(t, c.StartStreaming())
	c.AppendStreaming("partial")
	c.PushStreamingToolCall("t1", "Read", "{}")
	c.CancelStreaming()

	assert.False(t, c.IsStreaming())
	require.Len(t, c.Items(), 1)
	assert.Equal(t, ItemToolCall, c.Items()[0].Kind)
	// The in-progress text was discarded.
	assert.Equal(t, "", c.StreamingText())
}

func TestDoubleStartStreamingFails(t *testing.T) {
	c := NewCache(0)
	require.NoError(t, c.StartStreaming())
	assert.Error(t, c.StartStreaming())
}

func TestEvictionOldestFirst(t *testing.T) {
	c := NewCache(3)
	for i := 0; i < 5; i++ {
		c.PushMessage(CachedMessage{ID: fmt.Sprintf("m%d", i), Role: "user", Content: "x"})
	}
	require.Len(t, c.Items(), 3)
	assert.Equal(t, "m2", c.Items()[0].ID())

	// Both evicted ids were never graduated; reported exactly once.
	report := c.TakeEvictionReport()
	assert.Equal(t, []string{"m0", "m1"}, report)
	assert.Empty(t, c.TakeEvictionReport())
}

func TestEvictionSkipsGraduated(t *testing.T) {
	c := NewCache(2)
	c.PushMessage(CachedMessage{ID: "m0", Role: "user", Content: "x"})
	c.MarkGraduated([]string{"m0"})
	c.PushMessage(CachedMessage{ID: "m1", Role: "user", Content: "x"})
	c.PushMessage(CachedMessage{ID: "m2", Role: "user", Content: "x"})

	// m0 evicted but graduated: no report.
	assert.Empty(t, c.TakeEvictionReport())
}

func TestEvictionNeverDropsStreamingTurn(t *testing.T) {
	c := NewCache(2)
	require.NoError(t, c.StartStreaming())
	c.PushStreamingToolCall("t1", "Read", "{}")
	c.PushStreamingToolCall("t2", "Bash", "{}")
	// Pushing more items must evict around the live turn's items.
	c.PushMessage(CachedMessage{ID: "m1", Role: "user", Content: "x"})

	ids := map[string]bool{}
	for _, it := range c.Items() {
		ids[it.ID()] = true
	}
	assert.True(t, ids["t1"])
	assert.True(t, ids["t2"])
}

func TestCompleteStreamingReturnsGraduableIDs(t *testing.T) {
	c := NewCache(0)
	require.NoError(t, c.StartStreaming())
	c.AppendStreaming("text")
	c.PushStreamingToolCall("t1", "Read", "{}")
	ids, err := c.CompleteStreaming("m1", "assistant")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"t1", "m1"}, ids)
}
