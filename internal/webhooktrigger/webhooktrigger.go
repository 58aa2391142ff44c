// Package webhooktrigger implements the HTTP-driven half of C14 (spec
// §4.13): inbound POSTs to /hooks/{path} are signature-verified when the
// trigger has a secret, the payload is interpolated into the trigger's
// message_template, and the result is dispatched as an agent turn against
// a synthetic session.
package webhooktrigger

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/prime-gateway/internal/apperr"
	"github.com/nextlevelbuilder/prime-gateway/internal/sessions"
	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

// Runner fires one agent turn for a webhook trigger, mirroring
// internal/cron.Runner so both time- and HTTP-driven triggers share the
// same narrow dispatch contract.
type Runner interface {
	RunCronTurn(ctx context.Context, agentID, message, sessionKey string) error
}

// SignatureHeader is where the caller's HMAC-SHA256 signature is expected,
// hex-encoded, following the Meta/Slack webhook convention the rest of
// C10's adapters verify against.
const SignatureHeader = "X-Webhook-Signature"

// Handler serves POST /hooks/{path}.
type Handler struct {
	store  store.WebhookStore
	runner Runner
}

func New(webhookStore store.WebhookStore, runner Runner) *Handler {
	return &Handler{store: webhookStore, runner: runner}
}

// ServeHTTP looks up the trigger by path, verifies its signature if a
// secret is configured, interpolates the payload into message_template,
// and runs the agent turn synchronously: it responds 202 once the turn has
// finished, or 500 if the turn failed or exceeded RequestTimeout.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/hooks/")
	trigger, err := h.store.GetByPath(r.Context(), path)
	if err != nil || trigger == nil || !trigger.Active {
		writeError(w, http.StatusNotFound, apperr.NotFound, "unknown webhook path")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, apperr.Input, "failed to read body")
		return
	}

	if trigger.Secret != "" {
		sig := r.Header.Get(SignatureHeader)
		if !verifySignature(trigger.Secret, body, sig) {
			writeError(w, http.StatusUnauthorized, apperr.Auth, "invalid signature")
			return
		}
	}

	var payload map[string]interface{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, apperr.Input, "invalid JSON payload")
			return
		}
	}

	message := interpolate(trigger.MessageTemplate, payload)
	sessionKey := sessions.BuildCronSessionKey(trigger.AgentID, "webhook:"+trigger.ID, uuid.Must(uuid.NewV7()).String())

	ctx, cancel := context.WithTimeout(r.Context(), RequestTimeout)
	defer cancel()

	if err := h.runner.RunCronTurn(ctx, trigger.AgentID, message, sessionKey); err != nil {
		writeError(w, http.StatusInternalServerError, apperr.Internal, "agent turn failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

// verifySignature checks an HMAC-SHA256 hex digest over body using secret,
// constant-time to avoid timing side channels.
func verifySignature(secret string, body []byte, sigHex string) bool {
	if sigHex == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimPrefix(sigHex, "sha256="))))
}

// interpolate substitutes {{field}} placeholders in template with string
// values from payload. Missing fields are left as the literal placeholder
// so misconfiguration is visible rather than silently blank.
func interpolate(template string, payload map[string]interface{}) string {
	if len(payload) == 0 {
		return template
	}
	out := template
	for k, v := range payload {
		out = strings.ReplaceAll(out, "{{"+k+"}}", stringifyField(v))
	}
	return out
}

func stringifyField(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func writeError(w http.ResponseWriter, status int, code apperr.Code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": string(code), "message": message})
}

// RequestTimeout bounds how long a webhook-triggered agent turn may run
// before the HTTP handler gives up and responds with a timeout error,
// matching the gateway's "never block on a slow external call" ambient
// rule (SPEC_FULL.md §1).
const RequestTimeout = 25 * time.Second
