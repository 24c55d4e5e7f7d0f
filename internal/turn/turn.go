// Package turn orchestrates one conversation turn end to end: it drives
// the Session Controller's state machine, streams from a Provider
// adapter, routes tool calls through the Tool Dispatcher, and emits
// frames to the client — the "data flow of a typical turn" spec.md §2
// describes.
package turn

import (
	"context"
	"fmt"

	"github.com/agentgateway/gateway/internal/dispatch"
	"github.com/agentgateway/gateway/internal/observability"
	"github.com/agentgateway/gateway/internal/policy"
	"github.com/agentgateway/gateway/internal/protocol"
	"github.com/agentgateway/gateway/internal/provider"
	"github.com/agentgateway/gateway/internal/session"
)

// Emitter sends a frame to the connected client.
type Emitter interface {
	Emit(frame any) error
}

// Orchestrator drives turns for one session, one provider, and one
// dispatcher. One Orchestrator is constructed per connection.
type Orchestrator struct {
	Session    *session.Session
	Provider   provider.Provider
	Dispatcher *dispatch.Dispatcher
	Emit       Emitter
	Tools      []provider.Tool
	Tracer     *observability.Tracer

	// AccessContext is reused across calls within a turn; Authenticated
	// is consumed (reset) after any sensitive call per spec.md's single-
	// use TOTP freshness decision.
	AccessContext func() policy.AccessContext
}

// Run drives one full turn: BeginChat, stream until the model stops
// asking for tools, then End. It returns only after a ResponseDoneFrame
// has been emitted (or the turn was cancelled).
func (o *Orchestrator) Run(ctx context.Context, userMessage string) error {
	ctx, span := o.Tracer.TraceTurn(ctx, o.Session.ID)
	defer span.End()

	err := o.run(ctx, userMessage)
	o.Tracer.RecordError(span, err)
	return err
}

func (o *Orchestrator) run(ctx context.Context, userMessage string) error {
	if err := o.Session.BeginChat(userMessage); err != nil {
		return err
	}
	_ = o.Emit.Emit(protocol.StreamStartFrame{Type: protocol.TypeStreamStart})

	for {
		events, err := o.Provider.Stream(ctx, o.Session.History(), o.Tools)
		if err != nil {
			_ = o.Session.End(false)
			_ = o.Emit.Emit(protocol.ResponseDoneFrame{Type: protocol.TypeResponseDone, OK: false})
			return fmt.Errorf("turn: start stream: %w", err)
		}

		sawToolCall, endReason, err := o.consume(ctx, events)
		if err != nil {
			_ = o.Session.End(false)
			_ = o.Emit.Emit(protocol.ResponseDoneFrame{Type: protocol.TypeResponseDone, OK: false})
			return err
		}
		if ctx.Err() != nil {
			_ = o.Session.End(false)
			_ = o.Emit.Emit(protocol.ResponseDoneFrame{Type: protocol.TypeResponseDone, OK: false})
			return ctx.Err()
		}
		if !sawToolCall {
			ok := endReason == "stop" || endReason == ""
			if err := o.Session.End(ok); err != nil {
				return err
			}
			_ = o.Emit.Emit(protocol.ResponseDoneFrame{Type: protocol.TypeResponseDone, OK: ok})
			return nil
		}
		// A tool call was resolved and appended to history; loop back into
		// the provider with the updated conversation so it can continue
		// reasoning or produce its final answer.
	}
}

// consume drains one stream, dispatching tool calls as they arrive and
// appending text to the session's in-flight assistant buffer. It
// reports whether at least one tool call was handled this pass.
func (o *Orchestrator) consume(ctx context.Context, events <-chan provider.Event) (sawToolCall bool, endReason string, err error) {
	for ev := range events {
		switch ev.Kind {
		case provider.TextDelta:
			if err := o.Session.AppendTextDelta(ev.Text); err != nil {
				return sawToolCall, endReason, err
			}
			_ = o.Emit.Emit(protocol.ChunkFrame{Type: protocol.TypeChunk, Delta: ev.Text})

		case provider.ThinkingDelta:
			_ = o.Emit.Emit(protocol.ThinkingDeltaFrame{Type: protocol.TypeThinkingDelta, Delta: ev.Text})

		case provider.ToolCall:
			sawToolCall = true
			if err := o.handleToolCall(ctx, ev); err != nil {
				return sawToolCall, endReason, err
			}

		case provider.End:
			endReason = ev.EndReason
		}

		if ctx.Err() != nil {
			return sawToolCall, endReason, ctx.Err()
		}
	}
	return sawToolCall, endReason, nil
}

func (o *Orchestrator) handleToolCall(ctx context.Context, ev provider.Event) error {
	call := protocol.ToolCallFrame{Type: protocol.TypeToolCall, ID: ev.CallID, Name: ev.Name, Args: ev.Args}
	if err := o.Session.BeginToolCall(call.ID); err != nil {
		return err
	}
	_ = o.Emit.Emit(call)

	accessCtx := policy.AccessContext{}
	if o.AccessContext != nil {
		accessCtx = o.AccessContext()
	}
	accessCtx.Authenticated = o.Session.ConsumeAuthentication() || accessCtx.Authenticated

	result := o.Dispatcher.Handle(ctx, call, accessCtx, o.Session.AgentAccessEnabled)
	if err := o.Provider.FeedToolResult(ctx, call.ID, result.Result, result.IsError); err != nil {
		return fmt.Errorf("turn: feed tool result: %w", err)
	}
	return o.Session.EndToolCall(call, result)
}
