// Package whatsapp implements the WhatsApp Business Cloud API channel (C10):
// Meta's official webhook-based API, not a third-party bridge process.
// Inbound messages arrive as HTTP POSTs to the channel's own webhook
// handler (mounted by cmd/ wiring alongside the REST surface); outbound
// replies go out via Graph API calls.
//
// Grounded on original_source/backend/app/gateway/whatsapp.py's
// WhatsAppGateway: the hub.challenge GET handshake, the X-Hub-Signature-256
// HMAC verification, and the Graph API send/mark-read calls all carry over
// from that implementation, translated into the teacher's channel
// abstraction (BaseChannel/CheckPolicy/pairing) instead of the original's
// ad hoc session-ID scheme.
package whatsapp

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

	"github.com/nextlevelbuilder/prime-gateway/internal/bus"
	"github.com/nextlevelbuilder/prime-gateway/internal/channels"
	"github.com/nextlevelbuilder/prime-gateway/internal/config"
	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

const (
	graphAPIBase        = "https://graph.facebook.com/v19.0"
	pairingDebounceTime = 60 * time.Second

	// DefaultWebhookPath is where cmd/ wiring mounts this channel's
	// ServeHTTP by default when config doesn't override it.
	DefaultWebhookPath = "/whatsapp/webhook"
)

// Channel implements the WhatsApp Business Cloud API as an HTTP webhook
// receiver rather than a long-lived connection. Start/Stop just toggle the
// running flag; the actual inbound path is ServeHTTP, mounted externally.
type Channel struct {
	*channels.BaseChannel
	config          config.WhatsAppConfig
	pairingService  store.PairingStore
	client          *http.Client
	pairingDebounce sync.Map // senderID → time.Time
}

// New creates a WhatsApp channel from config. pairingSvc is optional (nil =
// fall back to allowlist only).
func New(cfg config.WhatsAppConfig, msgBus *bus.MessageBus, pairingSvc store.PairingStore) (*Channel, error) {
	if cfg.Token == "" || cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("whatsapp token and phone_number_id are required")
	}

	base := channels.NewBaseChannel("whatsapp", msgBus, cfg.AllowFrom)
	base.ValidatePolicy(cfg.DMPolicy, "")

	return &Channel{
		BaseChannel:    base,
		config:         cfg,
		pairingService: pairingSvc,
		client:         &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Start marks the channel running. The webhook handler (ServeHTTP) is
// mounted independently by cmd/ wiring — there is no socket for this
// channel to open itself.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting whatsapp channel", "phone_number_id", c.config.PhoneNumberID)
	c.SetRunning(true)
	return nil
}

// Stop marks the channel stopped.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping whatsapp channel")
	c.SetRunning(false)
	return nil
}

// ServeHTTP handles both the Meta webhook subscription handshake (GET) and
// inbound message delivery (POST). Mount this at the channel's configured
// webhook path.
func (c *Channel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		c.serveVerify(w, r)
	case http.MethodPost:
		c.serveWebhook(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// serveVerify answers Meta's hub.challenge subscription handshake.
func (c *Channel) serveVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == c.config.VerifyToken {
		w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	w.WriteHeader(http.StatusForbidden)
}

// serveWebhook verifies the request signature and dispatches each inbound
// message. Responds 200 immediately per Meta's retry semantics; each message
// is processed in its own goroutine.
func (c *Channel) serveWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !c.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
		slog.Warn("whatsapp webhook signature verification failed")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				go c.processMessage(msg)
			}
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"ok":true}`))
}

// verifySignature checks the X-Hub-Signature-256 HMAC header Meta attaches
// to every webhook POST. An unconfigured app secret rejects everything
// rather than silently accepting unauthenticated callbacks.
func (c *Channel) verifySignature(body []byte, header string) bool {
	if c.config.AppSecret == "" {
		slog.Warn("whatsapp app_secret not configured, rejecting webhook")
		return false
	}
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.config.AppSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimPrefix(header, prefix)))
}

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []waMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type waMessage struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive struct {
		Type        string `json:"type"`
		ButtonReply struct {
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply struct {
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

// processMessage extracts text content from one inbound message and runs
// it through the channel's policy/pairing gate before forwarding to the bus.
func (c *Channel) processMessage(msg waMessage) {
	go c.markRead(msg.ID)

	var content string
	switch msg.Type {
	case "text":
		content = msg.Text.Body
	case "interactive":
		switch msg.Interactive.Type {
		case "button_reply":
			content = msg.Interactive.ButtonReply.Title
		case "list_reply":
			content = msg.Interactive.ListReply.Title
		}
	default:
		slog.Debug("whatsapp unsupported message type", "type", msg.Type)
		return
	}

	if content == "" || msg.From == "" {
		return
	}

	if !c.checkDMPolicy(msg.From) {
		return
	}

	slog.Debug("whatsapp message received",
		"sender_id", msg.From,
		"preview", channels.Truncate(content, 50),
	)

	c.HandleMessage(msg.From, msg.From, content, nil, map[string]string{"message_id": msg.ID}, "direct")
}

// checkDMPolicy evaluates DMPolicy for a sender, triggering the pairing
// flow when required. WhatsApp has no group chats in the Cloud API, so
// there is no group-policy branch.
func (c *Channel) checkDMPolicy(senderID string) bool {
	dmPolicy := c.config.DMPolicy
	if dmPolicy == "" {
		dmPolicy = "pairing"
	}

	switch dmPolicy {
	case "disabled":
		return false
	case "open":
		return true
	case "allowlist":
		return c.IsAllowed(senderID)
	default: // "pairing"
		paired := false
		if c.pairingService != nil {
			paired = c.pairingService.IsPaired(senderID, c.Name())
		}
		if paired || (c.HasAllowList() && c.IsAllowed(senderID)) {
			return true
		}
		c.sendPairingReply(senderID)
		return false
	}
}

// sendPairingReply sends a pairing code to an unrecognized sender, debounced
// to once per pairingDebounceTime per sender.
func (c *Channel) sendPairingReply(senderID string) {
	if c.pairingService == nil {
		return
	}
	if lastSent, ok := c.pairingDebounce.Load(senderID); ok {
		if time.Since(lastSent.(time.Time)) < pairingDebounceTime {
			return
		}
	}

	code, err := c.pairingService.RequestPairing(senderID, c.Name(), senderID, "default")
	if err != nil {
		slog.Debug("whatsapp pairing request failed", "sender_id", senderID, "error", err)
		return
	}

	replyText := fmt.Sprintf(
		"Prime: access not configured.\n\nYour WhatsApp ID: %s\n\nPairing code: %s\n\nAsk the bot owner to approve with:\n  prime pairing approve %s",
		senderID, code, code,
	)

	if err := c.sendText(senderID, replyText); err != nil {
		slog.Warn("failed to send whatsapp pairing reply", "error", err)
		return
	}
	c.pairingDebounce.Store(senderID, time.Now())
	slog.Info("whatsapp pairing reply sent", "sender_id", senderID, "code", code)
}

// Send delivers an outbound reply via the Graph API, truncated to
// WhatsApp's 4096-character text message limit.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	return c.sendText(msg.ChatID, msg.Content)
}

func (c *Channel) sendText(to, text string) error {
	if len(text) > 4096 {
		text = text[:4096]
	}

	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]interface{}{"preview_url": false, "body": text},
	}

	return c.graphPost(payload)
}

func (c *Channel) markRead(messageID string) {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	}
	if err := c.graphPost(payload); err != nil {
		slog.Debug("whatsapp mark-read failed", "error", err)
	}
}

func (c *Channel) graphPost(payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", graphAPIBase, c.config.PhoneNumberID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.Token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp graph api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("whatsapp graph api returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
