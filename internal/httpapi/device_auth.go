package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nextlevelbuilder/prime-gateway/internal/apperr"
	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

// DeviceAuthHandler implements the OAuth device-code flow supplement
// (SPEC_FULL.md §4, grounded on backend/app/services/oauth_device_service.py):
// a CLI/headless client starts a flow, a human completes it in a browser
// with their username/password, and the CLI polls token for a bearer
// credential it can hand to the gateway's WebSocket handshake.
type DeviceAuthHandler struct {
	devices store.DeviceAuthStore
	users   store.UserStore

	ttl      time.Duration
	interval int
	orgID    string
	verifyURL string
}

func NewDeviceAuthHandler(devices store.DeviceAuthStore, users store.UserStore, orgID, verifyURL string) *DeviceAuthHandler {
	return &DeviceAuthHandler{
		devices:   devices,
		users:     users,
		ttl:       10 * time.Minute,
		interval:  5,
		orgID:     orgID,
		verifyURL: verifyURL,
	}
}

type startRequest struct {
	ClientName string `json:"client_name"`
	Scope      string `json:"scope"`
}

type startResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// Start issues a new device_code/user_code pair. Only the SHA-256 hash of
// device_code is persisted; the plaintext is returned exactly once.
func (h *DeviceAuthHandler) Start(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, apperr.Input, "POST required")
		return
	}
	var req startRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.ClientName == "" {
		req.ClientName = "prime-cli"
	}
	if req.Scope == "" {
		req.Scope = "agent:run"
	}

	deviceCode, err := randomToken(32)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, apperr.Internal, "failed to generate device code")
		return
	}
	userCode := generateUserCode()
	now := time.Now().UTC()

	rec := &store.DeviceAuthRequest{
		ID:              uuid.Must(uuid.NewV7()).String(),
		OrgID:           h.orgID,
		DeviceCodeHash:  hashToken(deviceCode),
		UserCode:        userCode,
		ClientName:      req.ClientName,
		Scope:           req.Scope,
		Status:          store.DeviceAuthPending,
		IntervalSeconds: h.interval,
		ExpiresAt:       now.Add(h.ttl),
		CreatedAt:       now,
	}
	if err := h.devices.Create(r.Context(), rec); err != nil {
		writeAppErr(w, err)
		return
	}

	verify := strings.TrimRight(h.verifyURL, "/") + "/auth/device/complete"
	writeJSON(w, http.StatusOK, startResponse{
		DeviceCode:              deviceCode,
		UserCode:                userCode,
		VerificationURI:         verify,
		VerificationURIComplete: verify + "?user_code=" + userCode,
		ExpiresIn:               int(h.ttl.Seconds()),
		Interval:                h.interval,
	})
}

type completeRequest struct {
	UserCode string `json:"user_code"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Complete is where a human, having typed user_code into a browser,
// authorizes the pending device request with their own credentials.
func (h *DeviceAuthHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, apperr.Input, "POST required")
		return
	}
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, apperr.Input, "invalid request body")
		return
	}

	code := normalizeUserCode(req.UserCode)
	ctx := r.Context()
	rec, err := h.devices.GetByUserCode(ctx, code)
	if err != nil || rec == nil {
		writeErr(w, http.StatusNotFound, apperr.NotFound, "unknown user code")
		return
	}
	if expired := h.expireIfPast(ctx, rec); expired {
		writeErr(w, http.StatusGone, apperr.Input, "device authorization expired")
		return
	}
	if rec.Status != store.DeviceAuthPending {
		writeErr(w, http.StatusConflict, apperr.Input, "device code is not pending")
		return
	}

	user, err := h.users.GetByUsername(ctx, rec.OrgID, req.Username)
	if err != nil || user == nil || user.PasswordHash == "" {
		writeErr(w, http.StatusUnauthorized, apperr.Auth, "invalid username/password")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeErr(w, http.StatusUnauthorized, apperr.Auth, "invalid username/password")
		return
	}

	if err := h.devices.SetApproved(ctx, rec.ID, user.ID); err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "approved"})
}

type tokenRequest struct {
	DeviceCode string `json:"device_code"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Token is the polling endpoint a CLI hits every `interval` seconds until
// the device request is approved (or denied/expired).
func (h *DeviceAuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, apperr.Input, "POST required")
		return
	}
	var req tokenRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.DeviceCode == "" {
		writeErr(w, http.StatusBadRequest, apperr.Input, "device_code is required")
		return
	}

	ctx := r.Context()
	rec, err := h.devices.GetByDeviceCodeHash(ctx, hashToken(req.DeviceCode))
	if err != nil || rec == nil {
		writeErr(w, http.StatusNotFound, apperr.NotFound, "unknown device_code")
		return
	}
	if expired := h.expireIfPast(ctx, rec); expired {
		writeErr(w, http.StatusGone, apperr.Input, "device authorization expired")
		return
	}

	switch rec.Status {
	case store.DeviceAuthPending:
		writeErr(w, http.StatusPreconditionRequired, apperr.Input, "authorization_pending")
		return
	case store.DeviceAuthDenied:
		writeErr(w, http.StatusForbidden, apperr.Auth, "access_denied")
		return
	case store.DeviceAuthConsumed:
		writeErr(w, http.StatusConflict, apperr.Input, "device_code already consumed")
		return
	case store.DeviceAuthApproved:
		// falls through below
	default:
		writeErr(w, http.StatusConflict, apperr.Input, "device request in invalid status")
		return
	}

	access, refresh, err := h.issueTokens()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, apperr.Internal, "failed to issue tokens")
		return
	}
	if err := h.devices.SetConsumed(ctx, rec.ID, hashToken(refresh)); err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates a still-valid refresh token for a new access/refresh pair.
func (h *DeviceAuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, apperr.Input, "POST required")
		return
	}
	var req refreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.RefreshToken == "" {
		writeErr(w, http.StatusBadRequest, apperr.Input, "refresh_token is required")
		return
	}

	ctx := r.Context()
	rec, err := h.devices.GetByRefreshTokenHash(ctx, hashToken(req.RefreshToken))
	if err != nil || rec == nil {
		writeErr(w, http.StatusUnauthorized, apperr.Auth, "invalid refresh token")
		return
	}

	access, refresh, err := h.issueTokens()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, apperr.Internal, "failed to issue tokens")
		return
	}
	if err := h.devices.RotateRefreshToken(ctx, rec.ID, hashToken(refresh)); err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"})
}

func (h *DeviceAuthHandler) expireIfPast(ctx context.Context, rec *store.DeviceAuthRequest) bool {
	if time.Now().UTC().Before(rec.ExpiresAt) {
		return false
	}
	if rec.Status != store.DeviceAuthExpired {
		_ = h.devices.SetStatus(ctx, rec.ID, store.DeviceAuthExpired)
	}
	return true
}

func (h *DeviceAuthHandler) issueTokens() (access, refresh string, err error) {
	access, err = randomToken(32)
	if err != nil {
		return "", "", err
	}
	refresh, err = randomToken(32)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

const userCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateUserCode() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	raw := make([]byte, 8)
	for i, v := range b {
		raw[i] = userCodeAlphabet[int(v)%len(userCodeAlphabet)]
	}
	return string(raw[:4]) + "-" + string(raw[4:])
}

func normalizeUserCode(code string) string {
	code = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), " ", ""))
	if !strings.Contains(code, "-") && len(code) == 8 {
		code = code[:4] + "-" + code[4:]
	}
	return code
}
