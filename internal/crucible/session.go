package crucible

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/Mootikins/crucible/internal/crucible/errno"
	"github.com/Mootikins/crucible/internal/llm"
	"github.com/Mootikins/crucible/internal/session/event"
	"github.com/Mootikins/crucible/internal/session/interaction"
	"github.com/Mootikins/crucible/internal/tui/chat"
	"github.com/Mootikins/crucible/internal/vault/store"
	"github.com/Mootikins/crucible/pkg/logger"
)

// RunChat starts the interactive session: the event bus, the MCP
// manager, and the bubbletea program around the chat controller.
func (a *App) RunChat(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.bus.Run(ctx)
	if err := a.mcpMgr.Initialize(ctx); err != nil {
		logger.Warn("[Session] %v", err)
	}

	if a.cfg.Vault.Watch {
		go func() {
			if err := a.RunWatch(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("[Session] watcher stopped: %v", err)
			}
		}()
	}

	var program *tea.Program

	app := chat.New(chat.Config{
		SessionID:      a.sessionID,
		SessionDir:     filepath.Join(a.cfg.TUI.SessionDir, a.sessionID),
		Model:          a.cfg.LLM.Model,
		ShellPath:      a.cfg.TUI.Shell,
		CacheCapacity:  a.cfg.TUI.CacheCapacity,
		SpillThreshold: a.cfg.TUI.SpillThreshold,

		CancelStream: a.cancelTurn,
		OnGraduate: func(ids []string) {
			logger.Debug("[Session] graduated %d items", len(ids))
		},
		FetchModels: func() []string {
			return []string{a.cfg.LLM.Model}
		},
		ListMCPServers: func() []string {
			return a.mcpMgr.Describe()
		},
		ListFiles: a.listVaultFiles,
		ListNotes: a.listNoteTitles,
		OnUserMessage: func(content string) {
			a.bus.Publish(event.UserMessage{
				SessionID: a.sessionID,
				MessageID: uuid.NewString(),
				Content:   content,
			})
			// The gated provider call runs through the pre-event chain
			// before any stream starts.
			pre := event.PreLlmCall{SessionID: a.sessionID, Model: a.cfg.LLM.Model, Prompt: content}
			if _, allowed := a.bus.DispatchPre(ctx, pre); !allowed {
				program.Send(chat.StreamCancelledMsg{Reason: "blocked"})
				return
			}
			if a.streamer == nil {
				program.Send(chat.ErrorToastMsg{Message: "no chat model configured"})
				return
			}
			a.startTurn(ctx, program, content)
		},
		OnInteractionClosed: func(resp interaction.Response) {
			a.bus.Publish(event.InteractionCompleted{
				SessionID: a.sessionID,
				RequestID: resp.RequestID,
				Response:  resp,
			})
		},
	})

	program = tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))

	// Interaction requests raised anywhere in the session surface as
	// modals.
	handle, err := a.bus.Subscribe("interaction_requested", func(_ context.Context, e event.Event) error {
		if req, ok := e.(event.InteractionRequested); ok {
			if r, ok := req.Request.(interaction.Request); ok {
				program.Send(chat.InteractionRequestMsg{Request: r})
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer handle.Close()

	a.bus.Publish(event.SessionStarted{SessionID: a.sessionID, Model: a.cfg.LLM.Model})
	_, err = program.Run()
	a.bus.Publish(event.SessionEnded{SessionID: a.sessionID})
	return err
}

// startTurn runs one provider turn on its own goroutine, translating
// stream events into controller messages and session bus events. The
// abort controller is the cancellation seam Esc/Ctrl-C reaches through
// CancelStream.
func (a *App) startTurn(ctx context.Context, program *tea.Program, content string) {
	a.turnMu.Lock()
	if a.turn != nil {
		a.turn.Abort()
	}
	messageID := uuid.NewString()
	ac := llm.NewAbortController(ctx, messageID, 0)
	a.turn = ac
	a.history = append(a.history, llm.UserMessage(content))
	messages := make([]*schema.Message, len(a.history))
	copy(messages, a.history)
	a.turnMu.Unlock()

	go func() {
		program.Send(chat.StreamStartMsg{MessageID: messageID})

		var reply strings.Builder
		err := a.streamer.Stream(ctx, ac, messages, func(ev llm.StreamEvent) {
			switch ev.Kind {
			case llm.EventTextDelta:
				reply.WriteString(ev.Delta)
				program.Send(chat.TextDeltaMsg{Seq: ev.Seq, Delta: ev.Delta})
				a.bus.Publish(event.TextDelta{SessionID: a.sessionID, Seq: ev.Seq, Delta: ev.Delta})

			case llm.EventThinkingDelta:
				program.Send(chat.ThinkingDeltaMsg{Seq: ev.Seq, Delta: ev.Delta})

			case llm.EventToolCall:
				program.Send(chat.ToolCallMsg{ID: ev.ToolID, Name: ev.ToolName, Args: ev.ToolArgs})
				preTool := event.PreToolCall{
					SessionID: a.sessionID,
					CallID:    ev.ToolID,
					Name:      ev.ToolName,
					Arguments: ev.ToolArgs,
				}
				if _, allowed := a.bus.DispatchPre(ctx, preTool); !allowed {
					program.Send(chat.ToolResultErrorMsg{Name: ev.ToolName, Err: "blocked by policy"})
					return
				}
				a.bus.Publish(event.ToolCallStarted{
					SessionID: a.sessionID,
					CallID:    ev.ToolID,
					Name:      ev.ToolName,
					Arguments: ev.ToolArgs,
				})

			case llm.EventStreamError:
				program.Send(chat.StreamErrorMsg{Err: ev.Err})
				a.bus.Publish(event.AgentError{SessionID: a.sessionID, Message: ev.Err})
			}
		})

		a.turnMu.Lock()
		if a.turn == ac {
			a.turn = nil
		}
		a.turnMu.Unlock()

		switch {
		case errors.Is(err, errno.ErrAborted):
			// Cancellation finalizes from whatever arrived; the
			// controller already set its status on the cancel path.
			a.bus.Publish(event.StreamCancelled{SessionID: a.sessionID, MessageID: messageID})

		case err != nil:
			// The StreamError event already reached the controller.

		default:
			a.turnMu.Lock()
			a.history = append(a.history, llm.AssistantMessage(reply.String()))
			a.turnMu.Unlock()
			program.Send(chat.StreamCompleteMsg{})
			a.bus.Publish(event.StreamCompleted{SessionID: a.sessionID, MessageID: messageID})
		}
	}()
}

// cancelTurn aborts the in-flight provider stream, if any.
func (a *App) cancelTurn() {
	a.turnMu.Lock()
	defer a.turnMu.Unlock()
	if a.turn != nil {
		a.turn.Abort()
		a.turn = nil
	}
}

func (a *App) listVaultFiles() []string {
	records, err := a.store.Query(`SELECT relpath FROM note_paths ORDER BY relpath LIMIT 200`)
	if err != nil {
		logger.Warn("[Session] list files: %v", err)
		return nil
	}
	var out []string
	for _, r := range records {
		if p, ok := r.Data["relpath"].(string); ok {
			out = append(out, p)
		}
	}
	return out
}

func (a *App) listNoteTitles() []string {
	records, err := a.store.Query(`
		SELECT value FROM `+store.TableProperties+`
		WHERE namespace = 'core' AND key = 'title'
		ORDER BY value LIMIT 200`)
	if err != nil {
		logger.Warn("[Session] list notes: %v", err)
		return nil
	}
	var out []string
	for _, r := range records {
		if t, ok := r.Data["value"].(string); ok {
			out = append(out, t)
		}
	}
	return out
}
