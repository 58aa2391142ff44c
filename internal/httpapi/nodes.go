package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/prime-gateway/internal/apperr"
	"github.com/nextlevelbuilder/prime-gateway/internal/nodes"
	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

// NodesHandler exposes the Node Execution & Approval service (C11) over
// REST, for operators who approve/reject from a dashboard rather than the
// WebSocket gateway's node_exec.approve/reject methods. It wraps the same
// nodes.Service the gateway's command-bus handlers call, so both surfaces
// observe one execution/approval state machine.
type NodesHandler struct {
	svc *nodes.Service
}

func NewNodesHandler(svc *nodes.Service) *NodesHandler {
	return &NodesHandler{svc: svc}
}

// ServeHTTP routes:
//
//	GET  /v1/nodes/approvals            list pending approvals
//	POST /v1/nodes/approvals/{id}/approve
//	POST /v1/nodes/approvals/{id}/reject
func (h *NodesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/nodes/")

	switch {
	case path == "approvals" && r.Method == http.MethodGet:
		h.listApprovals(w, r)
	case strings.HasPrefix(path, "approvals/") && strings.HasSuffix(path, "/approve") && r.Method == http.MethodPost:
		id := strings.TrimSuffix(strings.TrimPrefix(path, "approvals/"), "/approve")
		h.resolve(w, r, id, true)
	case strings.HasPrefix(path, "approvals/") && strings.HasSuffix(path, "/reject") && r.Method == http.MethodPost:
		id := strings.TrimSuffix(strings.TrimPrefix(path, "approvals/"), "/reject")
		h.resolve(w, r, id, false)
	default:
		writeErr(w, http.StatusNotFound, apperr.NotFound, "unknown nodes endpoint")
	}
}

func (h *NodesHandler) listApprovals(w http.ResponseWriter, r *http.Request) {
	pending, err := h.svc.ListPendingApprovals(r.Context())
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]*store.NodeApprovalQueue{"approvals": pending})
}

type resolveRequest struct {
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason"`
}

func (h *NodesHandler) resolve(w http.ResponseWriter, r *http.Request, queueID string, approve bool) {
	var req resolveRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.ActorID == "" {
		req.ActorID = "operator"
	}

	var (
		result *nodes.ExecutionResult
		err    error
	)
	if approve {
		result, err = h.svc.ApproveExecution(r.Context(), queueID, req.ActorID, req.Reason)
	} else {
		result, err = h.svc.RejectExecution(r.Context(), queueID, req.ActorID, req.Reason)
	}
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
