// Package slack implements the Slack channel adapter (C10): inbound events
// via either Socket Mode (a persistent WSS connection, used when an
// app-level token is configured) or the HTTP Events API webhook, and
// outbound replies via chat.postMessage.
//
// Grounded on original_source/backend/app/gateway/slack.py's SlackGateway:
// the signature verification scheme, the Socket Mode connect/ack loop, the
// bot-self-echo and subtype filtering, and the mention-prefix stripping all
// carry over, translated into the teacher's channel abstraction
// (BaseChannel/CheckPolicy/pairing) instead of the original's ad hoc
// session-ID scheme.
package slack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/prime-gateway/internal/bus"
	"github.com/nextlevelbuilder/prime-gateway/internal/channels"
	"github.com/nextlevelbuilder/prime-gateway/internal/config"
	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

const (
	slackAPIBase = "https://slack.com/api"

	// DefaultEventsPath is where cmd/ wiring mounts the HTTP Events API
	// webhook by default when config doesn't override it.
	DefaultEventsPath = "/slack/events"

	// maxSignatureSkew rejects any request whose timestamp is further
	// than this from now, guarding against signed-request replay.
	maxSignatureSkew = 5 * time.Minute

	socketReconnectDelay = 10 * time.Second
	socketURLRetryDelay  = 30 * time.Second
)

// Channel implements the Slack adapter. Inbound delivery is either the
// ServeHTTP webhook (Events API) or the socketLoop goroutine (Socket Mode);
// outbound replies always go through Send → chat.postMessage.
type Channel struct {
	*channels.BaseChannel
	config config.SlackConfig
	client *http.Client

	mu     sync.Mutex
	botID  string
	cancel context.CancelFunc
}

// New creates a Slack channel from config. pairingSvc is accepted for
// interface symmetry with the other channels but unused — Slack's
// workspace-level OAuth already gates membership, so DM/group policy here
// is allowlist/open/disabled only, same as the teacher's WhatsApp channel
// minus pairing.
func New(cfg config.SlackConfig, msgBus *bus.MessageBus, _ store.PairingStore) (*Channel, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("slack bot_token is required")
	}

	base := channels.NewBaseChannel("slack", msgBus, cfg.AllowFrom)
	base.ValidatePolicy(cfg.DMPolicy, cfg.GroupPolicy)

	return &Channel{
		BaseChannel: base,
		config:      cfg,
		client:      &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Start resolves the bot's own user ID (to filter self-echo) and, when an
// app-level token is configured, opens the Socket Mode connection.
// Otherwise inbound delivery relies entirely on ServeHTTP being mounted.
func (c *Channel) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	if botID, err := c.resolveBotID(ctx); err != nil {
		slog.Warn("slack auth.test failed", "error", err)
	} else {
		c.mu.Lock()
		c.botID = botID
		c.mu.Unlock()
	}

	if c.config.AppToken != "" {
		go c.socketLoop(ctx)
		slog.Info("starting slack channel (socket mode)")
	} else {
		slog.Info("starting slack channel (http events api)", "path", DefaultEventsPath)
	}

	c.SetRunning(true)
	return nil
}

// Stop cancels the Socket Mode loop, if running.
func (c *Channel) Stop(_ context.Context) error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.SetRunning(false)
	slog.Info("stopping slack channel")
	return nil
}

func (c *Channel) resolveBotID(ctx context.Context) (string, error) {
	var result struct {
		OK    bool   `json:"ok"`
		BotID string `json:"bot_id"`
		User  string `json:"user"`
	}
	if err := c.apiGet(ctx, "/auth.test", &result); err != nil {
		return "", err
	}
	if !result.OK {
		return "", fmt.Errorf("auth.test not ok")
	}
	slog.Info("slack channel authenticated", "user", result.User)
	return result.BotID, nil
}

// ── Socket Mode ──────────────────────────────────────────────────────────

func (c *Channel) socketLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		url, err := c.openSocketURL(ctx)
		if err != nil || url == "" {
			slog.Warn("slack apps.connections.open failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(socketURLRetryDelay):
				continue
			}
		}

		if err := c.runSocket(ctx, url); err != nil && ctx.Err() == nil {
			slog.Warn("slack socket disconnected, reconnecting", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(socketReconnectDelay):
			}
		}
	}
}

func (c *Channel) openSocketURL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, slackAPIBase+"/apps.connections.open", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.config.AppToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		OK    bool   `json:"ok"`
		URL   string `json:"url"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if !result.OK {
		return "", fmt.Errorf("%s", result.Error)
	}
	return result.URL, nil
}

func (c *Channel) runSocket(ctx context.Context, url string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	slog.Info("slack socket mode connected")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var envelope socketEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			continue
		}

		if envelope.EnvelopeID != "" {
			ack, _ := json.Marshal(map[string]string{"envelope_id": envelope.EnvelopeID})
			_ = conn.WriteMessage(websocket.TextMessage, ack)
		}

		if envelope.Type == "events_api" {
			go c.dispatchEvent(envelope.Payload.Event)
		}
	}
}

type socketEnvelope struct {
	Type       string `json:"type"`
	EnvelopeID string `json:"envelope_id"`
	Payload    struct {
		Event slackEvent `json:"event"`
	} `json:"payload"`
}

// ── HTTP Events API ──────────────────────────────────────────────────────

// ServeHTTP handles inbound Events API callbacks: signature verification,
// the url_verification handshake, and event dispatch.
func (c *Channel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ts := r.Header.Get("X-Slack-Request-Timestamp")
	sig := r.Header.Get("X-Slack-Signature")
	if !c.verifySignature(body, ts, sig) {
		slog.Warn("slack webhook signature verification failed")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var payload struct {
		Type      string     `json:"type"`
		Challenge string     `json:"challenge"`
		Event     slackEvent `json:"event"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if payload.Type == "url_verification" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"challenge": payload.Challenge})
		return
	}

	go c.dispatchEvent(payload.Event)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"ok":true}`))
}

// verifySignature checks Slack's HMAC-SHA256 request signature: "v0=" +
// hex(hmac(signing_secret, "v0:{timestamp}:{body}")), rejecting requests
// whose timestamp has drifted more than maxSignatureSkew from now (replay
// protection).
func (c *Channel) verifySignature(body []byte, timestamp, signature string) bool {
	if c.config.SigningSecret == "" {
		slog.Warn("slack signing_secret not configured, rejecting webhook")
		return false
	}
	if timestamp == "" {
		return false
	}

	var tsSeconds int64
	if _, err := fmt.Sscanf(timestamp, "%d", &tsSeconds); err != nil {
		return false
	}
	skew := time.Since(time.Unix(tsSeconds, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > maxSignatureSkew {
		return false
	}

	baseString := "v0:" + timestamp + ":" + string(body)
	mac := hmac.New(sha256.New, []byte(c.config.SigningSecret))
	mac.Write([]byte(baseString))
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ── Event Dispatch ───────────────────────────────────────────────────────

type slackEvent struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype"`
	BotID    string `json:"bot_id"`
	Text     string `json:"text"`
	Channel  string `json:"channel"`
	User     string `json:"user"`
	ThreadTS string `json:"thread_ts"`
	TS       string `json:"ts"`
}

// dispatchEvent filters and forwards one Slack event to the bus. Only
// "message" and "app_mention" are handled; bot self-echo and edited/deleted
// message subtypes are dropped, matching the teacher's WhatsApp filtering
// style applied to Slack's event shape.
func (c *Channel) dispatchEvent(event slackEvent) {
	if event.Type != "message" && event.Type != "app_mention" {
		return
	}

	c.mu.Lock()
	botID := c.botID
	c.mu.Unlock()
	if botID != "" && event.BotID == botID {
		return
	}
	if event.Subtype != "" {
		return
	}

	text := strings.TrimSpace(event.Text)
	if text == "" || event.Channel == "" {
		return
	}

	// Strip a leading "<@BOTID>" mention prefix.
	if strings.HasPrefix(text, "<@") {
		if idx := strings.Index(text, ">"); idx >= 0 {
			text = strings.TrimSpace(text[idx+1:])
		}
	}
	if text == "" {
		return
	}

	user := event.User
	if user == "" {
		user = "slack_user"
	}

	peerKind := "direct"
	if !strings.HasPrefix(event.Channel, "D") {
		peerKind = "group"
	}
	if !c.CheckPolicy(peerKind, c.config.DMPolicy, c.config.GroupPolicy, user) {
		return
	}

	threadTS := event.ThreadTS
	if threadTS == "" {
		threadTS = event.TS
	}

	slog.Debug("slack message received",
		"user", user,
		"channel", event.Channel,
		"preview", channels.Truncate(text, 80),
	)

	c.HandleMessage(user, event.Channel, text, nil, map[string]string{"thread_ts": threadTS}, peerKind)
}

// ── Slack API ────────────────────────────────────────────────────────────

// Send posts an outbound reply via chat.postMessage. Thread replies are
// supported via msg.Metadata["thread_ts"].
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	payload := map[string]interface{}{
		"channel": msg.ChatID,
		"text":    msg.Content,
	}
	if ts := msg.Metadata["thread_ts"]; ts != "" {
		payload["thread_ts"] = ts
	}
	return c.apiPost(ctx, "/chat.postMessage", payload)
}

func (c *Channel) apiGet(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, slackAPIBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.config.BotToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Channel) apiPost(ctx context.Context, path string, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, slackAPIBase+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.config.BotToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack api request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode slack response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("slack api %s returned error: %s", path, result.Error)
	}
	return nil
}
