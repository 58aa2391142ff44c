package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/prime-gateway/internal/apperr"
	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

// TriggersHandler exposes CRUD for C14's cron jobs and webhook triggers
// (spec §4.13), the REST counterpart to the gateway command-bus's
// tasks.* methods — cron/webhook management has no natural WS verb since
// it's an operator/admin concern, not something an agent session issues.
type TriggersHandler struct {
	cron     store.CronStore
	webhooks store.WebhookStore
	orgID    string
}

func NewTriggersHandler(cron store.CronStore, webhooks store.WebhookStore, orgID string) *TriggersHandler {
	return &TriggersHandler{cron: cron, webhooks: webhooks, orgID: orgID}
}

func (h *TriggersHandler) CronHandler() http.Handler {
	return http.HandlerFunc(h.serveCron)
}

func (h *TriggersHandler) WebhooksHandler() http.Handler {
	return http.HandlerFunc(h.serveWebhooks)
}

func (h *TriggersHandler) serveCron(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/cron/")
	ctx := r.Context()

	switch {
	case rest == "" && r.Method == http.MethodGet:
		jobs, err := h.cron.List(ctx, h.orgID)
		if err != nil {
			writeAppErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]*store.CronJob{"jobs": jobs})

	case rest == "" && r.Method == http.MethodPost:
		var job store.CronJob
		if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
			writeErr(w, http.StatusBadRequest, apperr.Input, "invalid request body")
			return
		}
		job.ID = uuid.Must(uuid.NewV7()).String()
		job.OrgID = h.orgID
		job.Active = true
		job.CreatedAt = time.Now().UTC()
		if err := h.cron.Create(ctx, &job); err != nil {
			writeAppErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, job)

	case r.Method == http.MethodDelete:
		if err := h.cron.Delete(ctx, rest); err != nil {
			writeAppErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case strings.HasSuffix(rest, "/pause") && r.Method == http.MethodPost:
		id := strings.TrimSuffix(rest, "/pause")
		if err := h.cron.SetActive(ctx, id, false); err != nil {
			writeAppErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case strings.HasSuffix(rest, "/resume") && r.Method == http.MethodPost:
		id := strings.TrimSuffix(rest, "/resume")
		if err := h.cron.SetActive(ctx, id, true); err != nil {
			writeAppErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeErr(w, http.StatusNotFound, apperr.NotFound, "unknown cron endpoint")
	}
}

func (h *TriggersHandler) serveWebhooks(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/webhooks/")
	ctx := r.Context()

	switch {
	case rest == "" && r.Method == http.MethodGet:
		triggers, err := h.webhooks.List(ctx, h.orgID)
		if err != nil {
			writeAppErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]*store.WebhookTrigger{"triggers": triggers})

	case rest == "" && r.Method == http.MethodPost:
		var trig store.WebhookTrigger
		if err := json.NewDecoder(r.Body).Decode(&trig); err != nil {
			writeErr(w, http.StatusBadRequest, apperr.Input, "invalid request body")
			return
		}
		trig.ID = uuid.Must(uuid.NewV7()).String()
		trig.OrgID = h.orgID
		trig.Active = true
		trig.CreatedAt = time.Now().UTC()
		if err := h.webhooks.Create(ctx, &trig); err != nil {
			writeAppErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, trig)

	case r.Method == http.MethodDelete:
		if err := h.webhooks.Delete(ctx, rest); err != nil {
			writeAppErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeErr(w, http.StatusNotFound, apperr.NotFound, "unknown webhook endpoint")
	}
}
