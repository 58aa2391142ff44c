package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/prime-gateway/internal/apperr"
	"github.com/nextlevelbuilder/prime-gateway/internal/commandbus"
	"github.com/nextlevelbuilder/prime-gateway/pkg/protocol"
)

const (
	// handshakeTimeout bounds how long a client has to answer the
	// connect challenge before the connection is dropped (§4.12).
	handshakeTimeout = 10 * time.Second

	// heartbeatInterval is how often the server pushes a heartbeat event.
	heartbeatInterval = 20 * time.Second

	// idleTimeout closes a connection that has sent no frame for this long;
	// outbound heartbeats do not count as activity.
	idleTimeout = 45 * time.Second

	outboundMailboxDepth = 1024
)

// Client is one authenticated WebSocket connection: an inbound request
// reader and an outbound event/response pump sharing a bounded mailbox
// (§5 — "every WebSocket connection owns two tasks... plus one bounded
// mailbox queue").
type Client struct {
	id     string
	conn   *websocket.Conn
	server *Server

	claims commandbus.Claims

	outbox chan []byte
	closed chan struct{}
	once   sync.Once

	lastActivity atomic.Int64 // unix nano
}

func (c *Client) touch() { c.lastActivity.Store(time.Now().UnixNano()) }

func (c *Client) idleFor() time.Duration {
	return time.Since(time.Unix(0, c.lastActivity.Load()))
}

// NewClient wraps an upgraded connection. The caller must call Run to
// drive the handshake and request loop.
func NewClient(conn *websocket.Conn, s *Server) *Client {
	c := &Client{
		id:     newConnID(),
		conn:   conn,
		server: s,
		outbox: make(chan []byte, outboundMailboxDepth),
		closed: make(chan struct{}),
	}
	c.touch()
	return c
}

// Run drives the challenge/response handshake, then the request-read and
// outbound-pump loops until the connection closes or ctx is canceled.
func (c *Client) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.pump()

	if !c.handshake() {
		return
	}

	go c.heartbeatLoop(ctx)
	c.readLoop(ctx)
}

// handshake implements §4.12 steps 1-4: send a challenge, wait for the
// client's "connect" request, authenticate, and respond.
func (c *Client) handshake() bool {
	nonce := make([]byte, 24) // 192 bits
	if _, err := rand.Read(nonce); err != nil {
		c.sendError("", "internal", "failed to generate challenge")
		c.closeWithCode(websocket.CloseInternalServerErr)
		return false
	}
	nonceHex := hex.EncodeToString(nonce)
	c.sendEventFrame(protocol.NewEvent(protocol.EventConnectChallenge, map[string]string{"nonce": nonceHex}))

	c.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, raw, err := c.conn.ReadMessage()
	c.conn.SetReadDeadline(time.Time{})
	if err != nil {
		return false
	}

	var req protocol.ReqFrame
	if err := json.Unmarshal(raw, &req); err != nil || req.Method != protocol.MethodConnect {
		c.sendError("", "auth", "expected connect request")
		c.closeWithCode(websocket.CloseProtocolError)
		return false
	}

	var params struct {
		Nonce       string `json:"nonce"`
		Token       string `json:"token"`
		MinProtocol int    `json:"minProtocol"`
		MaxProtocol int    `json:"maxProtocol"`
	}
	_ = json.Unmarshal(req.Params, &params)

	if params.Nonce != nonceHex {
		c.sendError(req.ID, "auth", "nonce mismatch")
		c.closeWithCode(websocket.CloseProtocolError)
		return false
	}
	if !c.authenticate(params.Token) {
		c.sendError(req.ID, "auth", "invalid credentials")
		c.closeWithCode(websocket.CloseProtocolError)
		return false
	}
	if params.MaxProtocol != 0 && params.MaxProtocol < protocol.ProtocolVersion {
		c.sendError(req.ID, "auth", "unsupported protocol version")
		c.closeWithCode(websocket.CloseProtocolError)
		return false
	}

	c.claims = commandbus.Claims{ActorID: c.id, Scopes: []string{"*"}}
	c.sendResponse(req.ID, map[string]interface{}{
		"connection_id": c.id,
		"protocol":      protocol.ProtocolVersion,
	})
	c.sendEventFrame(protocol.NewEvent(protocol.EventPresenceConnect, map[string]string{"connection_id": c.id}))
	return true
}

// authenticate checks token against the configured bearer token. An
// empty configured token means auth is disabled (dev/standalone mode).
func (c *Client) authenticate(token string) bool {
	want := c.server.cfg.Gateway.Token
	if want == "" {
		return true
	}
	return token == want
}

// readLoop processes request frames until the connection errs out or
// goes idle past idleTimeout.
func (c *Client) readLoop(ctx context.Context) {
	defer c.Close()

	for {
		if c.idleFor() > idleTimeout {
			slog.Info("client idle timeout", "id", c.id)
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.touch()

		var req protocol.ReqFrame
		if err := json.Unmarshal(raw, &req); err != nil {
			c.sendError("", "input", "invalid frame")
			continue
		}

		if c.server.rateLimiter.Enabled() && !c.server.rateLimiter.Allow(c.id) {
			c.sendError(req.ID, "policy", "rate limit exceeded")
			continue
		}

		go c.handleRequest(ctx, req)
	}
}

func (c *Client) handleRequest(ctx context.Context, req protocol.ReqFrame) {
	router := c.server.Router()
	if router == nil || router.Bus() == nil {
		c.sendError(req.ID, "internal", "command bus not configured")
		return
	}
	result, err := router.Dispatch(ctx, req.Method, req.Params, req.IdempotencyKey, c.claims)
	if err != nil {
		code, msg := apperrToWire(err)
		c.sendError(req.ID, code, msg)
		return
	}
	c.sendResponse(req.ID, result)
}

// heartbeatLoop emits periodic heartbeat events per §4.12.
func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case <-ticker.C:
			c.sendEventFrame(protocol.NewEvent(protocol.EventHeartbeat, nil))
		}
	}
}

// pump drains the outbox to the socket; it is the connection's sole
// writer goroutine, since gorilla/websocket forbids concurrent writes.
func (c *Client) pump() {
	for {
		select {
		case <-c.closed:
			return
		case msg, ok := <-c.outbox:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (c *Client) enqueue(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.outbox <- b:
	default:
		slog.Warn("client outbound mailbox full, dropping frame", "id", c.id)
	}
}

func (c *Client) sendResponse(id string, payload interface{}) {
	c.enqueue(protocol.NewResponse(id, payload))
}

func (c *Client) sendError(id, code, message string) {
	c.enqueue(protocol.NewError(id, code, message))
}

func (c *Client) sendEventFrame(e *protocol.EventFrame) {
	c.enqueue(e)
}

// SendEvent pushes an Event Bus event to this connection, matching the
// server's per-client subscription fan-out.
func (c *Client) SendEvent(e protocol.EventFrame) {
	c.enqueue(&e)
}

func (c *Client) closeWithCode(code int) {
	msg := websocket.FormatCloseMessage(code, "")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.Close()
}

// Close shuts the connection down; safe to call multiple times.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

// apperrToWire maps an apperr-classified error to a wire code/message.
func apperrToWire(err error) (string, string) {
	return apperr.WireCodeForErr(err), err.Error()
}

func newConnID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
