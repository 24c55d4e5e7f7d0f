package turn

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/agentgateway/gateway/internal/dispatch"
	"github.com/agentgateway/gateway/internal/policy"
	"github.com/agentgateway/gateway/internal/protocol"
	"github.com/agentgateway/gateway/internal/provider"
	"github.com/agentgateway/gateway/internal/session"
	"github.com/agentgateway/gateway/internal/tools"
)

// fakeProvider replays one canned event sequence per call to Stream, in
// order, so a test can script a multi-round tool-call conversation.
type fakeProvider struct {
	rounds [][]provider.Event
	calls  int
}

func (f *fakeProvider) Stream(ctx context.Context, history []protocol.Message, toolList []provider.Tool) (<-chan provider.Event, error) {
	round := f.rounds[f.calls]
	f.calls++
	ch := make(chan provider.Event, len(round))
	for _, ev := range round {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) FeedToolResult(ctx context.Context, callID, result string, isError bool) error {
	return nil
}
func (f *fakeProvider) Name() string                { return "fake" }
func (f *fakeProvider) Models() []provider.Model     { return nil }
func (f *fakeProvider) SupportsTools() bool          { return true }

// fakeEmitter records every frame emitted, in order.
type fakeEmitter struct {
	mu     sync.Mutex
	frames []any
}

func (e *fakeEmitter) Emit(frame any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames = append(e.frames, frame)
	return nil
}

func (e *fakeEmitter) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.frames))
	for i, f := range e.frames {
		switch v := f.(type) {
		case protocol.StreamStartFrame:
			out[i] = v.Type
		case protocol.ChunkFrame:
			out[i] = v.Type
		case protocol.ThinkingDeltaFrame:
			out[i] = v.Type
		case protocol.ToolCallFrame:
			out[i] = v.Type
		case protocol.ToolResultFrame:
			out[i] = v.Type
		case protocol.ResponseDoneFrame:
			out[i] = v.Type
		default:
			out[i] = "unknown"
		}
	}
	return out
}

func newOrchestrator(p *fakeProvider, emit *fakeEmitter, reg *tools.Registry) (*Orchestrator, *session.Session) {
	s := session.New("sess-1", "you are a helpful agent", nil)
	d := dispatch.New(reg, nil, nil, emit, dispatch.Config{})
	return &Orchestrator{
		Session:    s,
		Provider:   p,
		Dispatcher: d,
		Emit:       emit,
	}, s
}

func TestRunTextOnlyTurnEndsOK(t *testing.T) {
	p := &fakeProvider{rounds: [][]provider.Event{
		{
			{Kind: provider.TextDelta, Text: "hello "},
			{Kind: provider.TextDelta, Text: "world"},
			{Kind: provider.End, EndReason: "stop"},
		},
	}}
	emit := &fakeEmitter{}
	o, s := newOrchestrator(p, emit, tools.New())

	if err := o.Run(context.Background(), "hi"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.State() != session.Idle {
		t.Fatalf("expected session back to idle, got %s", s.State())
	}

	types := emit.types()
	want := []string{protocol.TypeStreamStart, protocol.TypeChunk, protocol.TypeChunk, protocol.TypeResponseDone}
	if len(types) != len(want) {
		t.Fatalf("frame sequence = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("frame %d = %s, want %s", i, types[i], want[i])
		}
	}
	done := emit.frames[len(emit.frames)-1].(protocol.ResponseDoneFrame)
	if !done.OK {
		t.Error("expected ResponseDoneFrame.OK = true")
	}
}

func TestRunDispatchesToolCallThenContinues(t *testing.T) {
	reg := tools.New()
	_ = reg.Register(tools.Tool{
		Name:       "echo",
		Permission: policy.AllowPermission(),
		Mode:       tools.Direct,
		Exec: func(ctx context.Context, args json.RawMessage, workspaceDir string) tools.Result {
			return tools.Result{Content: "echoed"}
		},
	})

	p := &fakeProvider{rounds: [][]provider.Event{
		{
			{Kind: provider.ToolCall, CallID: "c1", Name: "echo", Args: json.RawMessage(`{}`)},
			{Kind: provider.End, EndReason: "tool_calls"},
		},
		{
			{Kind: provider.TextDelta, Text: "done"},
			{Kind: provider.End, EndReason: "stop"},
		},
	}}
	emit := &fakeEmitter{}
	o, s := newOrchestrator(p, emit, reg)

	if err := o.Run(context.Background(), "run echo"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.State() != session.Idle {
		t.Fatalf("expected session back to idle, got %s", s.State())
	}
	if p.calls != 2 {
		t.Fatalf("expected provider.Stream called twice (tool round + continuation), got %d", p.calls)
	}

	types := emit.types()
	want := []string{
		protocol.TypeStreamStart,
		protocol.TypeToolCall,
		protocol.TypeToolResult,
		protocol.TypeChunk,
		protocol.TypeResponseDone,
	}
	if len(types) != len(want) {
		t.Fatalf("frame sequence = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("frame %d = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestRunPropagatesProviderStartError(t *testing.T) {
	// A provider whose Stream always errors should end the turn with
	// ResponseDone{OK:false} rather than hang or panic.
	p := &erroringProvider{}
	emit := &fakeEmitter{}
	o, s := newOrchestrator(nil, emit, tools.New())
	o.Provider = p

	if err := o.Run(context.Background(), "hi"); err == nil {
		t.Fatal("expected Run to return the stream-start error")
	}
	if s.State() != session.Idle {
		t.Fatalf("expected session reset to idle after failure, got %s", s.State())
	}
	types := emit.types()
	if len(types) == 0 || types[len(types)-1] != protocol.TypeResponseDone {
		t.Fatalf("expected a final ResponseDone frame, got %v", types)
	}
	done := emit.frames[len(emit.frames)-1].(protocol.ResponseDoneFrame)
	if done.OK {
		t.Error("expected ResponseDoneFrame.OK = false on stream-start failure")
	}
}

type erroringProvider struct{ fakeProvider }

func (e *erroringProvider) Stream(ctx context.Context, history []protocol.Message, toolList []provider.Tool) (<-chan provider.Event, error) {
	return nil, errStreamUnavailable
}

var errStreamUnavailable = &streamError{"provider unavailable"}

type streamError struct{ msg string }

func (e *streamError) Error() string { return e.msg }
