// Package web implements the browser-facing WebSocket chat channel (C10):
// an end-user chat surface (e.g. an embeddable widget) distinct from the
// gateway's own control-plane "/ws" (internal/gateway.Server). Every
// connection owns one reader and one writer goroutine sharing a bounded
// mailbox, mirroring the scheduling model internal/gateway.Client uses for
// the control plane (§5).
//
// prime/integrations/web.py notes the original widget's WebSocket handling
// lives directly in prime/gateway/server.py's /ws/{session_id} endpoint,
// exchanging {"type": "message"|"status", "content": ...} frames; this
// adapter reproduces that wire shape behind the teacher's Channel interface.
package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/prime-gateway/internal/bus"
	"github.com/nextlevelbuilder/prime-gateway/internal/channels"
	"github.com/nextlevelbuilder/prime-gateway/internal/config"
	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

const (
	defaultPath         = "/chat/ws"
	defaultMailboxDepth = 1024
	writeTimeout        = 10 * time.Second
	idleTimeout         = 60 * time.Second
)

// frame is the wire shape exchanged with the browser widget: inbound
// {"message": "..."}, outbound {"type": "message"|"status", "content": ...}.
type frame struct {
	Type    string `json:"type,omitempty"`
	Content string `json:"content,omitempty"`
	Message string `json:"message,omitempty"`
}

// Channel implements the web chat adapter as a WebSocket upgrade handler.
// Each connection is one session; Send routes by ChatID (the session ID)
// to the matching live connection, returning an error if the session isn't
// currently connected (nothing is queued for replay: the widget reconnects
// and sees nothing missed, same as a refreshed browser tab).
type Channel struct {
	*channels.BaseChannel
	config   config.WebConfig
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

// New creates a web chat channel from config. pairingSvc is accepted for
// interface symmetry but unused — browser sessions are gated only by the
// channel's own token (cfg.Token, sent as the "token" query parameter),
// not by an allowlist or pairing codes.
func New(cfg config.WebConfig, msgBus *bus.MessageBus, _ store.PairingStore) (*Channel, error) {
	if cfg.Path == "" {
		cfg.Path = defaultPath
	}
	if cfg.MailboxDepth <= 0 {
		cfg.MailboxDepth = defaultMailboxDepth
	}
	if cfg.BackpressureOp == "" {
		cfg.BackpressureOp = "drop-oldest"
	}

	base := channels.NewBaseChannel("web", msgBus, nil)
	return &Channel{
		BaseChannel: base,
		config:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}, nil
}

// Path returns the mount path configured for this channel's ServeHTTP.
func (c *Channel) Path() string { return c.config.Path }

// Start marks the channel running; connections are driven entirely by
// ServeHTTP, mounted externally by cmd/ wiring.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting web chat channel", "path", c.config.Path)
	c.SetRunning(true)
	return nil
}

// Stop closes every live connection and marks the channel stopped.
func (c *Channel) Stop(_ context.Context) error {
	c.mu.Lock()
	for _, cl := range c.clients {
		cl.Close()
	}
	c.clients = make(map[string]*client)
	c.mu.Unlock()

	c.SetRunning(false)
	slog.Info("stopping web chat channel")
	return nil
}

// ServeHTTP upgrades the request to a WebSocket and runs the connection
// until it closes. Session ID comes from the "session_id" query param, or
// is generated fresh for a new browser tab.
func (c *Channel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if c.config.Token != "" && r.URL.Query().Get("token") != c.config.Token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = newSessionID()
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("web chat websocket upgrade failed", "error", err)
		return
	}

	cl := newClient(sessionID, conn, c.config.MailboxDepth, c.config.BackpressureOp)
	c.register(cl)
	defer c.unregister(cl)

	cl.sendStatus("connected")
	cl.run(r.Context(), c.handleInbound)
}

func (c *Channel) register(cl *client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[cl.sessionID] = cl
}

func (c *Channel) unregister(cl *client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clients[cl.sessionID] == cl {
		delete(c.clients, cl.sessionID)
	}
	cl.Close()
}

func (c *Channel) handleInbound(sessionID, content string) {
	c.HandleMessage(sessionID, sessionID, content, nil, nil, "direct")
}

// Send delivers an outbound reply to the live connection for msg.ChatID
// (the session ID), if any is currently connected.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.mu.RLock()
	cl, ok := c.clients[msg.ChatID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("web chat session %q not connected", msg.ChatID)
	}
	cl.sendMessage(msg.Content)
	return nil
}

func newSessionID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// client is one browser connection: a reader loop and a writer pump
// sharing a bounded mailbox, per §5's per-connection scheduling model.
type client struct {
	sessionID     string
	conn          *websocket.Conn
	outbox        chan []byte
	backpressure  string
	closed        chan struct{}
	once          sync.Once
}

func newClient(sessionID string, conn *websocket.Conn, depth int, backpressure string) *client {
	return &client{
		sessionID:    sessionID,
		conn:         conn,
		outbox:       make(chan []byte, depth),
		backpressure: backpressure,
		closed:       make(chan struct{}),
	}
}

func (cl *client) run(ctx context.Context, onMessage func(sessionID, content string)) {
	go cl.pump()

	for {
		cl.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		_, raw, err := cl.conn.ReadMessage()
		if err != nil {
			cl.Close()
			return
		}

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		if f.Message == "" {
			continue
		}
		onMessage(cl.sessionID, f.Message)

		select {
		case <-ctx.Done():
			cl.Close()
			return
		default:
		}
	}
}

func (cl *client) pump() {
	for {
		select {
		case <-cl.closed:
			return
		case msg, ok := <-cl.outbox:
			if !ok {
				return
			}
			cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				cl.Close()
				return
			}
		}
	}
}

func (cl *client) sendMessage(content string) {
	cl.enqueue(frame{Type: "message", Content: content})
}

func (cl *client) sendStatus(content string) {
	cl.enqueue(frame{Type: "status", Content: content})
}

// enqueue applies the channel's configured backpressure policy when the
// mailbox is full: "disconnect" drops the connection, "drop-oldest"
// (default) evicts the oldest queued frame to make room for the new one.
func (cl *client) enqueue(f frame) {
	b, err := json.Marshal(f)
	if err != nil {
		return
	}

	select {
	case cl.outbox <- b:
		return
	default:
	}

	if cl.backpressure == "disconnect" {
		slog.Warn("web chat mailbox full, disconnecting", "session_id", cl.sessionID)
		cl.Close()
		return
	}

	select {
	case <-cl.outbox:
	default:
	}
	select {
	case cl.outbox <- b:
	default:
	}
}

// Close shuts the connection down; safe to call multiple times.
func (cl *client) Close() {
	cl.once.Do(func() {
		close(cl.closed)
		cl.conn.Close()
	})
}
