// Package httpapi implements the REST Surface (C15, spec §4.13): a thin
// HTTP facade over the Node Execution/Approval service (C11), the cron/
// webhook trigger stores (C14), and the OAuth device-code flow supplement
// (SPEC_FULL.md §4). It mirrors the teacher's cmd/doctor.go diagnostic
// style rather than reproducing its managed-mode SaaS admin CRUD surface,
// which has no SPEC_FULL.md component.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/nextlevelbuilder/prime-gateway/internal/apperr"
)

// Router is the C15 REST surface: a *http.ServeMux with every endpoint
// registered, ready to mount onto the gateway's listener via
// gateway.Server.SetRESTHandler.
type Router struct {
	mux   *http.ServeMux
	token string
}

// NewRouter wires every REST endpoint. token, if non-empty, is required
// as a Bearer credential on every request except the device-auth flow
// (which is how a token-less client obtains one).
func NewRouter(token string, doctor *DoctorHandler, device *DeviceAuthHandler, nodes *NodesHandler, triggers *TriggersHandler) *Router {
	mux := http.NewServeMux()
	r := &Router{mux: mux, token: token}

	if doctor != nil {
		mux.HandleFunc("/healthz", doctor.ServeHealthz)
	}
	if device != nil {
		mux.HandleFunc("/auth/device/start", device.Start)
		mux.HandleFunc("/auth/device/complete", device.Complete)
		mux.HandleFunc("/auth/device/token", device.Token)
		mux.HandleFunc("/auth/device/refresh", device.Refresh)
	}
	if nodes != nil {
		mux.Handle("/v1/nodes/", r.auth(nodes))
	}
	if triggers != nil {
		mux.Handle("/v1/cron/", r.auth(triggers.CronHandler()))
		mux.Handle("/v1/webhooks/", r.auth(triggers.WebhooksHandler()))
	}

	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) { r.mux.ServeHTTP(w, req) }

// auth enforces the bearer token on REST endpoints that aren't part of
// the device-auth bootstrap itself.
func (r *Router) auth(next http.Handler) http.Handler {
	if r.token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer "+r.token {
			writeErr(w, http.StatusUnauthorized, apperr.Auth, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, req)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code apperr.Code, msg string) {
	writeJSON(w, status, map[string]string{"code": string(code), "message": msg})
}

func writeAppErr(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	writeErr(w, apperr.HTTPStatus(code), code, err.Error())
}
