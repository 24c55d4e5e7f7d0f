// Package transport implements the one-connection-at-a-time WebSocket
// stream between client and gateway: one reader goroutine, one writer
// goroutine, bounded-channel backpressure, and native ping/pong
// liveness (spec.md §4.8).
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentgateway/gateway/internal/gatewayauth"
	"github.com/agentgateway/gateway/internal/protocol"
)

// State is one of the five connection-lifecycle states (spec.md §3).
type State int32

const (
	Handshaking State = iota
	Authenticating
	VaultLocked
	Ready
	Closing
)

func (s State) String() string {
	switch s {
	case Handshaking:
		return "handshaking"
	case Authenticating:
		return "authenticating"
	case VaultLocked:
		return "vault_locked"
	case Ready:
		return "ready"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

const (
	sendBufferSize  = 64
	maxPayloadBytes = 1 << 20
	pongWait        = 45 * time.Second
	pingInterval    = 20 * time.Second
	writeWait       = 10 * time.Second
)

// FrameHandler processes one decoded inbound frame. frameType is the
// "type" discriminator; raw is the undecoded JSON object, so the
// handler can unmarshal into the concrete frame struct itself.
type FrameHandler func(ctx context.Context, frameType string, raw []byte)

// Conn is one client connection: reader, writer, and the session it
// drives. Exactly one Conn is active per Server at a time.
type Conn struct {
	ws      *websocket.Conn
	send    chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
	state   atomic.Int32
	log     *slog.Logger
	onFrame FrameHandler
	onClose func()

	closeOnce sync.Once
}

// AttachCloseHandler registers a callback run exactly once when the
// connection tears down, in either direction (client disconnect, server
// supersession, or an explicit Close call). Used by the Session
// Controller to release per-connection resources (spec.md §5: "every...
// transport connection... is released on all exit paths").
func (c *Conn) AttachCloseHandler(h func()) { c.onClose = h }

// Emit encodes frame and enqueues it for the writer goroutine. Per
// spec.md §4.8, the writer applies cooperative backpressure: Emit
// blocks when the send buffer is full rather than dropping the frame,
// until the connection's context is cancelled.
func (c *Conn) Emit(frame any) error {
	raw, err := protocol.Encode(frame)
	if err != nil {
		return fmt.Errorf("transport: encode: %w", err)
	}
	select {
	case c.send <- raw:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// State returns the connection's current lifecycle state.
func (c *Conn) State() State { return State(c.state.Load()) }

// Context returns the connection's lifetime context, cancelled on Close.
func (c *Conn) Context() context.Context { return c.ctx }

// SetState advances the connection's lifecycle state.
func (c *Conn) SetState(s State) { c.state.Store(int32(s)) }

// Close tears down the connection exactly once, in either direction.
func (c *Conn) Close(reason string) {
	c.closeOnce.Do(func() {
		c.SetState(Closing)
		deadline := time.Now().Add(writeWait)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
		c.cancel()
		_ = c.ws.Close()
		if c.onClose != nil {
			c.onClose()
		}
	})
}

func (c *Conn) readLoop() {
	defer c.Close("reader exited")
	c.ws.SetReadLimit(maxPayloadBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			_ = c.Emit(protocol.ErrorFrame{Type: protocol.TypeError, Message: "binary frames are not supported"})
			continue
		}

		frameType, err := protocol.PeekType(data)
		if err != nil {
			_ = c.Emit(protocol.ErrorFrame{Type: protocol.TypeError, Message: "unknown frame"})
			continue
		}
		if c.onFrame != nil {
			c.onFrame(c.ctx, frameType, data)
		}
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.Close("writer exited")

	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Server upgrades HTTP connections to WebSocket and enforces the
// single-client contract: a new connection supersedes and closes the
// prior one (spec.md §3, §4.9).
type Server struct {
	upgrader    websocket.Upgrader
	onAccept    func(*Conn)
	log         *slog.Logger
	verifyToken func(token string) error // nil when running loopback-only

	mu      sync.Mutex
	current *Conn
}

// NewServer constructs a Server. onAccept is called once per accepted
// connection, after the prior connection (if any) has been closed; it
// should register the FrameHandler and drive the handshake. verifyToken
// gates the upgrade behind a bearer token when non-nil (spec.md §4.9:
// required for "--bind lan", absent for loopback).
func NewServer(onAccept func(*Conn), verifyToken func(string) error, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		onAccept:    onAccept,
		verifyToken: verifyToken,
		log:         log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.verifyToken != nil {
		token, ok := gatewayauth.BearerFromHeader(r.Header.Get("Authorization"))
		if !ok || s.verifyToken(token) != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn := &Conn{ws: ws, send: make(chan []byte, sendBufferSize), ctx: ctx, cancel: cancel, log: s.log}
	conn.SetState(Handshaking)

	s.mu.Lock()
	prior := s.current
	s.current = conn
	s.mu.Unlock()

	if prior != nil {
		_ = prior.Emit(protocol.InfoFrame{Type: protocol.TypeInfo, Message: "superseded by a new connection"})
		prior.Close("superseded")
	}

	if s.onAccept != nil {
		s.onAccept(conn)
	}

	go conn.writeLoop()
	conn.readLoop()

	s.mu.Lock()
	if s.current == conn {
		s.current = nil
	}
	s.mu.Unlock()
}

// AttachFrameHandler registers the decoder callback after construction,
// so the Session Controller (constructed per-connection, after the
// handshake resolves) can wire itself in.
func (c *Conn) AttachFrameHandler(h FrameHandler) { c.onFrame = h }
