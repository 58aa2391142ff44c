package webhooktrigger

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

type fakeWebhookStore struct {
	triggers map[string]*store.WebhookTrigger
}

func (f *fakeWebhookStore) List(ctx context.Context, orgID string) ([]*store.WebhookTrigger, error) {
	return nil, nil
}
func (f *fakeWebhookStore) GetByPath(ctx context.Context, path string) (*store.WebhookTrigger, error) {
	return f.triggers[path], nil
}
func (f *fakeWebhookStore) Create(ctx context.Context, w *store.WebhookTrigger) error { return nil }
func (f *fakeWebhookStore) Delete(ctx context.Context, id string) error               { return nil }

type fakeRunner struct {
	gotMessage string
	gotAgent   string
	fail       bool
}

func (r *fakeRunner) RunCronTurn(ctx context.Context, agentID, message, sessionKey string) error {
	r.gotAgent = agentID
	r.gotMessage = message
	if r.fail {
		return assert.AnError
	}
	return nil
}

func TestServeHTTP_UnknownPath_NotFound(t *testing.T) {
	h := New(&fakeWebhookStore{triggers: map[string]*store.WebhookTrigger{}}, &fakeRunner{})
	req := httptest.NewRequest(http.MethodPost, "/hooks/missing", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeHTTP_InterpolatesTemplateAndFires(t *testing.T) {
	st := &fakeWebhookStore{triggers: map[string]*store.WebhookTrigger{
		"deploy": {ID: "w1", Path: "deploy", MessageTemplate: "Deploy {{env}} finished by {{actor}}", AgentID: "a1", Active: true},
	}}
	runner := &fakeRunner{}
	h := New(st, runner)

	body := []byte(`{"env":"prod","actor":"alice"}`)
	req := httptest.NewRequest(http.MethodPost, "/hooks/deploy", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "Deploy prod finished by alice", runner.gotMessage)
	assert.Equal(t, "a1", runner.gotAgent)
}

func TestServeHTTP_InvalidSignature_Rejected(t *testing.T) {
	st := &fakeWebhookStore{triggers: map[string]*store.WebhookTrigger{
		"secure": {ID: "w1", Path: "secure", MessageTemplate: "hi", AgentID: "a1", Secret: "topsecret", Active: true},
	}}
	h := New(st, &fakeRunner{})

	body := []byte(`{}`)
	req := httptest.NewRequest(http.MethodPost, "/hooks/secure", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, "deadbeef")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServeHTTP_ValidSignature_Accepted(t *testing.T) {
	st := &fakeWebhookStore{triggers: map[string]*store.WebhookTrigger{
		"secure": {ID: "w1", Path: "secure", MessageTemplate: "hi", AgentID: "a1", Secret: "topsecret", Active: true},
	}}
	h := New(st, &fakeRunner{})

	body := []byte(`{}`)
	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/hooks/secure", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, sig)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
