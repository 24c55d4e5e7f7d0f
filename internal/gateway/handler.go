package gateway

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/agentgateway/gateway/internal/dispatch"
	"github.com/agentgateway/gateway/internal/policy"
	"github.com/agentgateway/gateway/internal/protocol"
	"github.com/agentgateway/gateway/internal/provider"
	"github.com/agentgateway/gateway/internal/session"
	"github.com/agentgateway/gateway/internal/tools"
	"github.com/agentgateway/gateway/internal/transport"
	"github.com/agentgateway/gateway/internal/turn"
	"github.com/agentgateway/gateway/internal/vault"
)

const protocolVersion = 1

// Handler drives one connection's handshake and frame dispatch. It is
// constructed fresh per accepted connection; the Gateway it belongs to
// supplies the daemon-wide registry, vault slot, and provider factory.
type Handler struct {
	gw   *Gateway
	conn *transport.Conn

	emit    *connEmitter
	session *session.Session
	dsp     *dispatch.Dispatcher
	orch    *turn.Orchestrator

	ready           bool
	handshakeAuthed bool

	turnCancel context.CancelFunc
}

func newHandler(gw *Gateway, conn *transport.Conn, id string) *Handler {
	emit := newConnEmitter(conn)
	prov := gw.defaultProvider

	h := &Handler{gw: gw, conn: conn, emit: emit}

	h.session = session.New(id, systemPrompt(), gw.History)
	h.session.AgentAccessEnabled = gw.Config.Tools.AgentAccessDefault

	h.dsp = dispatch.New(gw.Registry, gw.vault, nil, emit, dispatch.Config{
		Concurrency:     gw.Config.Tools.Concurrency,
		DefaultTimeout:  gw.Config.Tools.DefaultTimeout,
		ApprovalTimeout: gw.Config.Tools.ApprovalTimeout,
		WorkspaceDir:    gw.Config.Tools.WorkspaceDir,
	})
	h.dsp.SetTracer(gw.Tracer)

	h.orch = &turn.Orchestrator{
		Session:    h.session,
		Provider:   prov,
		Dispatcher: h.dsp,
		Emit:       emit,
		Tools:      llmTools(gw.Registry),
		Tracer:     gw.Tracer,
		AccessContext: func() policy.AccessContext {
			return policy.AccessContext{ActiveSkill: h.session.ActiveSkill}
		},
	}
	return h
}

func systemPrompt() string {
	return "You are the assistant behind a terminal-attached agent gateway. " +
		"Use the available tools to read, edit, and run things in the workspace on the user's behalf."
}

// llmTools projects the tool catalog into the provider-neutral shape
// turn.Orchestrator hands to whichever provider adapter is active; each
// adapter converts this into its own wire format inside Stream.
func llmTools(reg *tools.Registry) []provider.Tool {
	all := reg.All()
	out := make([]provider.Tool, 0, len(all))
	for _, t := range all {
		out = append(out, provider.Tool{Name: t.Name, Description: t.Description, Schema: t.Schema})
	}
	return out
}

func (h *Handler) start() {
	h.conn.SetState(transport.Handshaking)
	_ = h.conn.Emit(protocol.HelloFrame{Type: protocol.TypeHello, ProtocolVersion: protocolVersion})
	h.advanceHandshake()
}

// advanceHandshake emits a fresh StatusFrame and moves the connection
// forward one step: locked vault waits for unlock_vault, a configured
// TOTP seed waits for one fresh auth_response, otherwise the connection
// is Ready (hello -> status -> optional auth_challenge -> optional
// vault_locked -> Ready).
func (h *Handler) advanceHandshake() {
	v := h.gw.vault.get()
	locked := v == nil

	next := transport.Ready
	switch {
	case locked:
		next = transport.VaultLocked
	case v.HasTOTP() && !h.handshakeAuthed:
		next = transport.Authenticating
	}
	h.conn.SetState(next)

	_ = h.conn.Emit(protocol.StatusFrame{
		Type:        protocol.TypeStatus,
		State:       next.String(),
		TOTPEnabled: v != nil && v.HasTOTP(),
		VaultLocked: locked,
	})

	switch next {
	case transport.Authenticating:
		_ = h.conn.Emit(protocol.AuthChallengeFrame{Type: protocol.TypeAuthChallenge, Method: "totp"})
	case transport.Ready:
		h.ready = true
	}
}

// onFrame is the transport.FrameHandler attached to the connection.
func (h *Handler) onFrame(ctx context.Context, frameType string, raw []byte) {
	if !h.ready {
		h.handleHandshakeFrame(frameType, raw)
		return
	}
	h.handleReadyFrame(ctx, frameType, raw)
}

func (h *Handler) handleHandshakeFrame(frameType string, raw []byte) {
	switch frameType {
	case protocol.TypeUnlockVault:
		h.handleUnlockVault(raw)
	case protocol.TypeAuthResponse:
		h.handleHandshakeAuth(raw)
	default:
		_ = h.conn.Emit(protocol.ErrorFrame{Type: protocol.TypeError, Message: "connection is not ready yet"})
	}
}

func (h *Handler) handleReadyFrame(ctx context.Context, frameType string, raw []byte) {
	switch frameType {
	case protocol.TypeChat:
		h.handleChat(ctx, raw)
	case protocol.TypeCancel:
		h.handleCancel()
	case protocol.TypeReload:
		h.handleReload(raw)
	case protocol.TypeAuthResponse:
		h.handleAuthResponse(raw)
	case protocol.TypeToolApprovalResponse:
		h.handleToolApprovalResponse(raw)
	case protocol.TypeUserPromptResponse:
		h.handleUserPromptResponse(raw)
	case protocol.TypeUnlockVault:
		_ = h.conn.Emit(protocol.VaultUnlockedFrame{Type: protocol.TypeVaultUnlocked, OK: true})
	default:
		if _, ok := secretsResultType[frameType]; ok {
			h.handleSecrets(ctx, frameType, raw)
			return
		}
		_ = h.conn.Emit(protocol.ErrorFrame{Type: protocol.TypeError, Message: "unknown frame"})
	}
}

func (h *Handler) handleUnlockVault(raw []byte) {
	var frame protocol.UnlockVaultFrame
	if _, err := protocol.Decode(raw, &frame); err != nil {
		_ = h.conn.Emit(protocol.ErrorFrame{Type: protocol.TypeError, Message: err.Error()})
		return
	}
	if h.gw.disableSecrets {
		_ = h.conn.Emit(protocol.VaultUnlockedFrame{Type: protocol.TypeVaultUnlocked, OK: false})
		return
	}
	v, err := vault.Open(h.gw.vaultDir, frame.Password)
	if err != nil {
		if h.gw.Log != nil {
			h.gw.Log.Warn(h.conn.Context(), "vault unlock failed", "error", err)
		}
		_ = h.conn.Emit(protocol.VaultUnlockedFrame{Type: protocol.TypeVaultUnlocked, OK: false})
		return
	}
	h.gw.SetVault(v)
	_ = h.conn.Emit(protocol.VaultUnlockedFrame{Type: protocol.TypeVaultUnlocked, OK: true})
	h.advanceHandshake()
}

func (h *Handler) handleHandshakeAuth(raw []byte) {
	var frame protocol.AuthResponseFrame
	if _, err := protocol.Decode(raw, &frame); err != nil {
		_ = h.conn.Emit(protocol.ErrorFrame{Type: protocol.TypeError, Message: err.Error()})
		return
	}
	v := h.gw.vault.get()
	if v == nil {
		_ = h.conn.Emit(protocol.AuthResultFrame{Type: protocol.TypeAuthResult, OK: false})
		return
	}
	ok, err := v.VerifyTOTP(frame.Code)
	if err != nil {
		if err == vault.ErrTOTPLocked {
			_ = h.conn.Emit(protocol.AuthLockedFrame{Type: protocol.TypeAuthLocked})
			h.conn.Close("totp locked out")
			return
		}
		ok = false
	}
	if !ok && h.gw.Metrics != nil {
		h.gw.Metrics.AuthFailuresTotal.Inc()
	}
	_ = h.conn.Emit(protocol.AuthResultFrame{Type: protocol.TypeAuthResult, OK: ok})
	if ok {
		h.handshakeAuthed = true
		h.advanceHandshake()
	}
}

func (h *Handler) handleChat(ctx context.Context, raw []byte) {
	var frame protocol.ChatFrame
	if _, err := protocol.Decode(raw, &frame); err != nil {
		_ = h.conn.Emit(protocol.ErrorFrame{Type: protocol.TypeError, Message: err.Error()})
		return
	}
	userMessage := lastUserMessage(frame.Messages)
	if strings.TrimSpace(userMessage) == "" {
		_ = h.conn.Emit(protocol.ErrorFrame{Type: protocol.TypeError, Message: "chat requires at least one user message"})
		return
	}

	turnCtx, cancel := context.WithCancel(ctx)
	h.turnCancel = cancel
	go func() {
		defer cancel()
		if err := h.orch.Run(turnCtx, userMessage); err != nil && h.gw.Log != nil {
			h.gw.Log.Warn(h.conn.Context(), "turn ended with error", "error", err)
		}
	}()
}

func lastUserMessage(messages []protocol.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func (h *Handler) handleCancel() {
	if h.turnCancel != nil {
		h.turnCancel()
	}
	h.session.Cancel()
}

func (h *Handler) handleReload(raw []byte) {
	var frame protocol.ReloadFrame
	if _, err := protocol.Decode(raw, &frame); err != nil {
		_ = h.conn.Emit(protocol.ErrorFrame{Type: protocol.TypeError, Message: err.Error()})
		return
	}
	if h.gw.buildProvider == nil {
		_ = h.conn.Emit(protocol.ReloadResultFrame{Type: protocol.TypeReloadResult, OK: false})
		return
	}
	p, err := h.gw.buildProvider(h.gw.Config.LLM, frame.Provider, frame.Model, frame.BaseURL)
	if err != nil {
		if h.gw.Log != nil {
			h.gw.Log.Warn(h.conn.Context(), "provider reload failed", "error", err)
		}
		_ = h.conn.Emit(protocol.ReloadResultFrame{Type: protocol.TypeReloadResult, OK: false})
		return
	}
	h.orch.Provider = p
	_ = h.conn.Emit(protocol.ReloadResultFrame{Type: protocol.TypeReloadResult, OK: true})
}

func (h *Handler) handleAuthResponse(raw []byte) {
	var frame protocol.AuthResponseFrame
	if _, err := protocol.Decode(raw, &frame); err != nil {
		_ = h.conn.Emit(protocol.ErrorFrame{Type: protocol.TypeError, Message: err.Error()})
		return
	}
	v := h.gw.vault.get()
	if v == nil {
		h.dsp.ResolveAuth(false)
		return
	}
	ok, err := v.VerifyTOTP(frame.Code)
	if err != nil {
		if err == vault.ErrTOTPLocked {
			_ = h.conn.Emit(protocol.AuthLockedFrame{Type: protocol.TypeAuthLocked})
			h.conn.Close("totp locked out")
			return
		}
		ok = false
	}
	if !ok && h.gw.Metrics != nil {
		h.gw.Metrics.AuthFailuresTotal.Inc()
	}
	_ = h.session.ResolveAuth(ok)
	h.dsp.ResolveAuth(ok)
}

func (h *Handler) handleToolApprovalResponse(raw []byte) {
	var frame protocol.ToolApprovalResponseFrame
	if _, err := protocol.Decode(raw, &frame); err != nil {
		_ = h.conn.Emit(protocol.ErrorFrame{Type: protocol.TypeError, Message: err.Error()})
		return
	}
	h.dsp.ResolveApproval(frame.ID, frame.Approved)
}

func (h *Handler) handleUserPromptResponse(raw []byte) {
	var frame protocol.UserPromptResponseFrame
	if _, err := protocol.Decode(raw, &frame); err != nil {
		_ = h.conn.Emit(protocol.ErrorFrame{Type: protocol.TypeError, Message: err.Error()})
		return
	}
	h.dsp.ResolveUserPrompt(frame.ID, frame.Value)
}

// handleSecrets drives a client-initiated secrets_* control-plane
// request through the same Dispatcher pipeline a model-issued tool call
// uses, so policy, re-auth, and the cross-turn secret sanitiser all stay
// unified. UserApproved is true because the user's own connected client
// issued the request directly rather than the model on its behalf.
func (h *Handler) handleSecrets(ctx context.Context, frameType string, raw []byte) {
	var frame map[string]any
	if _, err := protocol.Decode(raw, &frame); err != nil {
		_ = h.conn.Emit(protocol.ErrorFrame{Type: protocol.TypeError, Message: err.Error()})
		return
	}

	callID := uuid.NewString()
	h.emit.trackControlCall(callID, frameType)

	call := protocol.ToolCallFrame{Type: protocol.TypeToolCall, ID: callID, Name: frameType, Args: raw}
	accessCtx := policy.AccessContext{UserApproved: true, ActiveSkill: h.session.ActiveSkill}
	h.dsp.Handle(ctx, call, accessCtx, h.session.AgentAccessEnabled)
}
