package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

// ChannelStatus reports whether one configured channel adapter is
// currently running, for the doctor endpoint's per-channel check.
type ChannelStatus struct {
	Name    string
	Running bool
}

// DoctorHandler expands GET /healthz beyond a bare liveness check into
// the diagnostic surface the teacher's cmd/doctor.go prints to a
// terminal: DB reachability, each configured Provider's credential
// presence, and each channel adapter's running state (SPEC_FULL.md §4).
type DoctorHandler struct {
	providers store.ProviderStore
	orgID     string
	channels  func() []ChannelStatus
}

func NewDoctorHandler(providers store.ProviderStore, orgID string, channels func() []ChannelStatus) *DoctorHandler {
	return &DoctorHandler{providers: providers, orgID: orgID, channels: channels}
}

type doctorReport struct {
	Status    string             `json:"status"`
	Providers []providerCheck    `json:"providers"`
	Channels  []ChannelStatus    `json:"channels"`
}

type providerCheck struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Active      bool   `json:"active"`
	HasAPIKey   bool   `json:"has_api_key"`
}

// ServeHealthz reports DB reachability (implicit — the handler only runs
// once providers.List succeeds), provider credential presence, and
// channel adapter liveness.
func (h *DoctorHandler) ServeHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	report := doctorReport{Status: "ok"}

	providers, err := h.providers.List(ctx, h.orgID)
	if err != nil {
		report.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "down", "error": err.Error()})
		return
	}
	for _, p := range providers {
		report.Providers = append(report.Providers, providerCheck{
			Name:      p.Name,
			Type:      string(p.Type),
			Active:    p.Active,
			HasAPIKey: p.APIKey != "",
		})
	}

	if h.channels != nil {
		report.Channels = h.channels()
		for _, c := range report.Channels {
			if !c.Running {
				report.Status = "degraded"
			}
		}
	}

	writeJSON(w, http.StatusOK, report)
}
