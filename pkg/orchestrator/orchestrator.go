// Package orchestrator composes the session store, loop detector, context
// manager, chat compressor, and shell executor around a Provider into a
// single turn, the boundary component described by the runtime's
// orchestration contract.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jg-phare/ollm/pkg/chattypes"
	"github.com/jg-phare/ollm/pkg/compression"
	"github.com/jg-phare/ollm/pkg/contextmgr"
	"github.com/jg-phare/ollm/pkg/environ"
	"github.com/jg-phare/ollm/pkg/loopdetect"
	"github.com/jg-phare/ollm/pkg/provider"
	"github.com/jg-phare/ollm/pkg/session"
	"github.com/jg-phare/ollm/pkg/shell"
)

// ShellTool is the tool name the orchestrator routes through the shell
// executor rather than an external dispatcher.
const ShellTool = "bash"

// ToolDispatcher resolves every tool call that is not the built-in shell
// tool. It is the seam where an external tool registry plugs in.
type ToolDispatcher func(ctx context.Context, name string, args map[string]any) (chattypes.ToolResult, error)

// Config wires the components an Orchestrator composes. All fields are
// required except Sanitizer, which defaults to environ.New(), and
// Dispatcher, which defaults to a dispatcher that errors on every call.
type Config struct {
	Store      *session.Store
	Detector   *loopdetect.Detector
	Context    *contextmgr.Manager
	Provider   provider.Provider
	Sanitizer  *environ.Sanitizer
	Dispatcher ToolDispatcher

	Model string

	CompressionOptions compression.Options
	TokenLimit         int
	CompressThreshold  float64

	ShellTimeout     time.Duration
	ShellIdleTimeout time.Duration
}

// Orchestrator runs turns against a single session.
type Orchestrator struct {
	cfg Config
}

// New constructs an Orchestrator from cfg, filling in defaults for
// Sanitizer and Dispatcher when left nil.
func New(cfg Config) *Orchestrator {
	if cfg.Sanitizer == nil {
		cfg.Sanitizer = environ.New()
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = func(ctx context.Context, name string, args map[string]any) (chattypes.ToolResult, error) {
			return chattypes.ToolResult{}, fmt.Errorf("orchestrator: no dispatcher configured for tool %q", name)
		}
	}
	return &Orchestrator{cfg: cfg}
}

// TurnResult summarizes what happened during RunTurn.
type TurnResult struct {
	AssistantText string
	ToolCalls     []chattypes.ToolCall
	Compressed    bool
	LoopDetected  *chattypes.LoopPattern
}

// RunTurn appends userText to the session, compresses if needed, streams
// the provider's response, dispatches any tool calls (routing shell
// commands through the shell executor), and records every tool call and
// output chunk with the loop detector. It stops early and returns the
// detected pattern the first time the detector fires.
func (o *Orchestrator) RunTurn(ctx context.Context, sessionID, userText string) (TurnResult, error) {
	if err := o.cfg.Store.RecordMessage(sessionID, chattypes.NewTextMessage(chattypes.RoleUser, userText)); err != nil {
		return TurnResult{}, fmt.Errorf("orchestrator: record user message: %w", err)
	}

	sess, err := o.cfg.Store.GetSession(sessionID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("orchestrator: load session: %w", err)
	}
	if sess == nil {
		return TurnResult{}, session.ErrSessionNotFound
	}

	messages := sess.Messages
	result := TurnResult{}

	if o.cfg.TokenLimit > 0 && compression.ShouldCompress(messages, o.cfg.TokenLimit, o.cfg.CompressThreshold) {
		opts := o.cfg.CompressionOptions
		opts.Provider = o.cfg.Provider
		if opts.Model == "" {
			opts.Model = o.cfg.Model
		}
		compressed, err := compression.Compress(ctx, messages, opts, &sess.Metadata)
		if err == nil {
			messages = compressed.CompressedMessages
			if compressed.Metadata != nil {
				sess.Metadata = *compressed.Metadata
			}
			result.Compressed = true
		}
	}

	if additions := o.cfg.Context.GetSystemPromptAdditions(); additions != "" {
		messages = append([]chattypes.Message{chattypes.NewTextMessage(chattypes.RoleSystem, additions)}, messages...)
	}

	o.cfg.Detector.RecordTurn()
	if pattern := o.cfg.Detector.CheckForLoop(); pattern != nil {
		result.LoopDetected = pattern
		return result, nil
	}

	events, err := o.cfg.Provider.ChatStream(ctx, provider.Request{Model: o.cfg.Model, Messages: messages})
	if err != nil {
		return TurnResult{}, fmt.Errorf("orchestrator: provider stream: %w", err)
	}

	var assistantText string
	for ev := range events {
		switch ev.Type {
		case provider.EventText:
			assistantText += ev.Text
			o.cfg.Detector.RecordOutput(ev.Text)
			if pattern := o.cfg.Detector.CheckForLoop(); pattern != nil {
				result.LoopDetected = pattern
				return result, nil
			}
		case provider.EventToolCall:
			toolResult, err := o.dispatchTool(ctx, sessionID, ev.ToolCall.Name, ev.ToolCall.Args)
			if err != nil {
				return TurnResult{}, fmt.Errorf("orchestrator: record tool call %s: %w", ev.ToolCall.Name, err)
			}
			result.ToolCalls = append(result.ToolCalls, chattypes.ToolCall{
				ID:        ev.ToolCall.ID,
				Name:      ev.ToolCall.Name,
				Args:      ev.ToolCall.Args,
				Result:    toolResult,
				Timestamp: time.Now(),
			})
			if pattern := o.cfg.Detector.CheckForLoop(); pattern != nil {
				result.LoopDetected = pattern
				return result, nil
			}

		case provider.EventError:
			return TurnResult{}, fmt.Errorf("orchestrator: provider error: %w", ev.Err)
		case provider.EventFinish:
		}
	}

	if assistantText != "" {
		if err := o.cfg.Store.RecordMessage(sessionID, chattypes.NewTextMessage(chattypes.RoleAssistant, assistantText)); err != nil {
			return TurnResult{}, fmt.Errorf("orchestrator: record assistant message: %w", err)
		}
	}
	result.AssistantText = assistantText

	return result, nil
}

// dispatchTool resolves a single tool call, routing ShellTool through the
// shell executor and everything else through the configured Dispatcher.
// It records the call with the session store and the loop detector.
//
// A tool itself failing (a non-zero shell exit, a dispatcher error) is
// folded into the returned ToolResult, not reported as an error here —
// the model sees it and can react. The error return is reserved for
// recording/persistence failures: per the core's error-handling contract,
// those surface to the caller instead of being swallowed (a lost tool-call
// record is data loss, not a tool failure).
func (o *Orchestrator) dispatchTool(ctx context.Context, sessionID, name string, args map[string]any) (chattypes.ToolResult, error) {
	var result chattypes.ToolResult

	if name == ShellTool {
		command, _ := args["command"].(string)
		out, err := shell.Execute(ctx, o.cfg.Sanitizer, shell.Input{
			Command:     command,
			Timeout:     o.cfg.ShellTimeout,
			IdleTimeout: o.cfg.ShellIdleTimeout,
		})
		if err != nil {
			result = chattypes.ToolResult{LLMContent: fmt.Sprintf("error: %v", err)}
		} else {
			result = chattypes.ToolResult{LLMContent: out.Output, ReturnDisplay: fmt.Sprintf("exit %d", out.ExitCode)}
		}
	} else {
		var err error
		result, err = o.cfg.Dispatcher(ctx, name, args)
		if err != nil {
			result = chattypes.ToolResult{LLMContent: fmt.Sprintf("error: %v", err)}
		}
	}

	toolCall := chattypes.ToolCall{
		ID:        uuid.New().String(),
		Name:      name,
		Args:      args,
		Result:    result,
		Timestamp: time.Now(),
	}
	o.cfg.Detector.RecordToolCall(name, args)
	if err := o.cfg.Store.RecordToolCall(sessionID, toolCall); err != nil {
		return result, fmt.Errorf("persist tool call: %w", err)
	}

	return result, nil
}
