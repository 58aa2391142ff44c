// Package nodes implements the Node Execution & Approval service (C11,
// spec §4.10): risk classification, capability checks, the operator
// approval queue, and sandboxed command execution. Ported from
// original_source/backend/app/services/node_runtime.py.
package nodes

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/prime-gateway/internal/apperr"
	"github.com/nextlevelbuilder/prime-gateway/internal/bus"
	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

// ApprovalQueueTTL is how long a pending approval stays resolvable before
// expiring (§4.10).
const ApprovalQueueTTL = 24 * time.Hour

// Sandbox executes a command in an isolated environment. The default
// Service falls back to a local shell when none is configured.
type Sandbox interface {
	Execute(ctx context.Context, command, workingDir string, env map[string]string) (exitCode int, stdout, stderr string, err error)
}

// ShellSandbox runs commands via "sh -c" in the local environment. Meant
// for development; production deployments should configure a container
// Sandbox instead.
type ShellSandbox struct{}

func (ShellSandbox) Execute(ctx context.Context, command, workingDir string, env map[string]string) (int, string, string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = workingDir
	if len(env) > 0 {
		for k, v := range env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
		err = nil
	} else if err != nil {
		exitCode = -1
	}
	return exitCode, stdout.String(), stderr.String(), err
}

// RequestParams describes an execution request from a connected node.
type RequestParams struct {
	ConnectionID     string
	NodeID           string
	NodeName         string
	NodeCaps         []string
	Command          string
	Args             string
	WorkingDir       string
	EnvVars          map[string]string
	IdempotencyKey   string
	AutoApproveRules []string
}

// ExecutionResult is the outcome of a request/approve/reject/execute call.
type ExecutionResult struct {
	Success          bool
	ExecutionID      string
	Status           string
	RequiresApproval bool
	ApprovalQueueID  string
	Message          string
	ExitCode         *int
	Stdout           string
	Stderr           string
}

// Service manages the node execution lifecycle with its approval
// workflow.
type Service struct {
	execs          store.NodeExecutionStore
	approvals      store.NodeApprovalStore
	events         bus.Publisher
	sandbox        Sandbox
	autoApproveAll bool
	now            func() time.Time
	newID          func() string
}

// New constructs a Service. sandbox may be nil to fall back to a local
// shell. autoApproveAll mirrors AUTO_APPROVE_ALL in the Python service:
// when true, the approval queue is bypassed entirely.
func New(execs store.NodeExecutionStore, approvals store.NodeApprovalStore, events bus.Publisher, sandbox Sandbox, autoApproveAll bool) *Service {
	if sandbox == nil {
		sandbox = ShellSandbox{}
	}
	return &Service{
		execs:          execs,
		approvals:      approvals,
		events:         events,
		sandbox:        sandbox,
		autoApproveAll: autoApproveAll,
		now:            time.Now,
		newID:          func() string { return uuid.NewString() },
	}
}

// RequestExecution assesses risk, checks capabilities, and either queues
// the execution for operator approval or auto-approves it (§4.10).
func (s *Service) RequestExecution(ctx context.Context, p RequestParams) (*ExecutionResult, error) {
	risk := assessRisk(p.Command, p.Args)

	if !checkCapabilities(p.NodeCaps, risk) {
		return &ExecutionResult{
			Success: false,
			Status:  string(store.NodeExecRejected),
			Message: "node lacks required capability for " + string(risk) + " risk command",
		}, nil
	}

	var requiresApproval bool
	var autoRule string

	if s.autoApproveAll {
		requiresApproval = false
		autoRule = "auto_approve_all"
	} else {
		requiresApproval = risk == store.RiskHigh || risk == store.RiskCritical
		if approved, rule := canAutoApprove(p.NodeCaps, p.Command, risk, p.AutoApproveRules); approved {
			requiresApproval = false
			autoRule = rule
		}
	}

	now := s.now()
	execution := &store.NodeExecution{
		ID:               s.newID(),
		ConnectionID:     p.ConnectionID,
		NodeID:           p.NodeID,
		NodeName:         p.NodeName,
		Command:          p.Command,
		Params:           map[string]string{"args": p.Args},
		WorkingDir:       p.WorkingDir,
		EnvVars:          p.EnvVars,
		RequiresApproval: requiresApproval,
		IdempotencyKey:   p.IdempotencyKey,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if requiresApproval {
		execution.Status = store.NodeExecPendingApproval
	} else {
		execution.Status = store.NodeExecApproved
		execution.ApprovedAt = &now
		execution.ApprovalReason = autoRule
	}

	if err := s.execs.Create(ctx, execution); err != nil {
		return nil, apperr.E(apperr.Internal, "create node execution", err)
	}

	if !requiresApproval {
		s.events.Publish(bus.TopicNodeExecApproved, map[string]any{
			"execution_id":  execution.ID,
			"node_id":       p.NodeID,
			"command":       p.Command,
			"auto_approved": true,
			"reason":        autoRule,
		})
		return &ExecutionResult{
			Success:     true,
			ExecutionID: execution.ID,
			Status:      "approved",
			Message:     "execution auto-approved (" + fallback(autoRule, "no_risk") + ")",
		}, nil
	}

	queue := &store.NodeApprovalQueue{
		ID:            s.newID(),
		ExecutionID:   execution.ID,
		ConnectionID:  p.ConnectionID,
		NodeID:        p.NodeID,
		NodeName:      p.NodeName,
		Command:       p.Command,
		ParamsSummary: truncate(p.Args, 500),
		RiskLevel:     risk,
		Status:        store.ApprovalPending,
		ExpiresAt:     now.Add(ApprovalQueueTTL),
		CreatedAt:     now,
	}
	if err := s.approvals.Create(ctx, queue); err != nil {
		return nil, apperr.E(apperr.Internal, "create approval queue entry", err)
	}

	s.events.Publish(bus.TopicNodeExecPendingApproval, map[string]any{
		"execution_id":  execution.ID,
		"queue_id":      queue.ID,
		"node_id":       p.NodeID,
		"node_name":     p.NodeName,
		"command":       p.Command,
		"risk_level":    string(risk),
		"connection_id": p.ConnectionID,
	})

	return &ExecutionResult{
		Success:          true,
		ExecutionID:      execution.ID,
		Status:           "pending_approval",
		RequiresApproval: true,
		ApprovalQueueID:  queue.ID,
		Message:          "execution queued for approval (risk: " + string(risk) + ")",
	}, nil
}

// ApproveExecution transitions a pending approval-queue entry and its
// execution to approved, transactionally (§5).
func (s *Service) ApproveExecution(ctx context.Context, queueID, approvedBy, reason string) (*ExecutionResult, error) {
	queue, err := s.approvals.Get(ctx, queueID)
	if err != nil {
		return nil, apperr.E(apperr.Internal, "lookup approval queue entry", err)
	}
	if queue == nil {
		return nil, apperr.E(apperr.NotFound, "approval queue entry not found", nil)
	}
	if queue.Status != store.ApprovalPending {
		return nil, apperr.E(apperr.Input, "approval queue entry is already "+string(queue.Status), nil)
	}
	if s.now().After(queue.ExpiresAt) {
		_, _ = s.approvals.CompareAndSetStatus(ctx, queueID, store.ApprovalPending, store.ApprovalExpired, func(q *store.NodeApprovalQueue) {})
		return nil, apperr.E(apperr.Input, "approval request has expired", nil)
	}

	now := s.now()
	if _, err := s.approvals.CompareAndSetStatus(ctx, queueID, store.ApprovalPending, store.ApprovalApproved, func(q *store.NodeApprovalQueue) {
		q.ResolvedAt = &now
		q.ResolvedBy = approvedBy
		q.ResolutionReason = fallback(reason, "approved_by_operator")
	}); err != nil {
		return nil, apperr.E(apperr.Idempotency, "approval queue entry was resolved concurrently", err)
	}

	var execution *store.NodeExecution
	if err := s.execs.CompareAndSetStatus(ctx, queue.ExecutionID, store.NodeExecPendingApproval, store.NodeExecApproved, func(e *store.NodeExecution) {
		e.ApprovedAt = &now
		e.ApprovedBy = approvedBy
		e.ApprovalReason = fallback(reason, "operator_approved")
		execution = e
	}); err != nil {
		return nil, apperr.E(apperr.Internal, "approve node execution", err)
	}

	s.events.Publish(bus.TopicNodeExecApproved, map[string]any{
		"execution_id": queue.ExecutionID,
		"queue_id":      queueID,
		"node_id":       queue.NodeID,
		"command":       queue.Command,
		"approved_by":   approvedBy,
	})

	return &ExecutionResult{Success: true, ExecutionID: queue.ExecutionID, Status: "approved", Message: "execution approved by operator"}, nil
}

// RejectExecution transitions a pending approval-queue entry and its
// execution to rejected.
func (s *Service) RejectExecution(ctx context.Context, queueID, rejectedBy, reason string) (*ExecutionResult, error) {
	queue, err := s.approvals.Get(ctx, queueID)
	if err != nil {
		return nil, apperr.E(apperr.Internal, "lookup approval queue entry", err)
	}
	if queue == nil {
		return nil, apperr.E(apperr.NotFound, "approval queue entry not found", nil)
	}
	if queue.Status != store.ApprovalPending {
		return nil, apperr.E(apperr.Input, "approval queue entry is already "+string(queue.Status), nil)
	}

	now := s.now()
	if _, err := s.approvals.CompareAndSetStatus(ctx, queueID, store.ApprovalPending, store.ApprovalRejected, func(q *store.NodeApprovalQueue) {
		q.ResolvedAt = &now
		q.ResolvedBy = rejectedBy
		q.ResolutionReason = fallback(reason, "rejected_by_operator")
	}); err != nil {
		return nil, apperr.E(apperr.Idempotency, "approval queue entry was resolved concurrently", err)
	}

	if err := s.execs.CompareAndSetStatus(ctx, queue.ExecutionID, store.NodeExecPendingApproval, store.NodeExecRejected, func(e *store.NodeExecution) {
		e.ErrorMessage = fallback(reason, "rejected by operator")
	}); err != nil {
		return nil, apperr.E(apperr.Internal, "reject node execution", err)
	}

	s.events.Publish(bus.TopicNodeExecRejected, map[string]any{
		"execution_id": queue.ExecutionID,
		"queue_id":     queueID,
		"node_id":      queue.NodeID,
		"command":      queue.Command,
		"rejected_by":  rejectedBy,
		"reason":       reason,
	})

	return &ExecutionResult{Success: true, ExecutionID: queue.ExecutionID, Status: "rejected", Message: "execution rejected: " + fallback(reason, "no reason provided")}, nil
}

// ListPendingApprovals returns unexpired pending approval-queue entries.
func (s *Service) ListPendingApprovals(ctx context.Context) ([]*store.NodeApprovalQueue, error) {
	all, err := s.approvals.ListPending(ctx)
	if err != nil {
		return nil, apperr.E(apperr.Internal, "list pending approvals", err)
	}
	now := s.now()
	out := make([]*store.NodeApprovalQueue, 0, len(all))
	for _, q := range all {
		if q.ExpiresAt.After(now) {
			out = append(out, q)
		}
	}
	return out, nil
}

// ExecuteApproved runs an approved execution's command, via the
// configured Sandbox, and records the result.
func (s *Service) ExecuteApproved(ctx context.Context, executionID string) (*ExecutionResult, error) {
	execution, err := s.execs.Get(ctx, executionID)
	if err != nil {
		return nil, apperr.E(apperr.Internal, "lookup node execution", err)
	}
	if execution == nil {
		return nil, apperr.E(apperr.NotFound, "node execution not found", nil)
	}
	if execution.Status != store.NodeExecApproved {
		return nil, apperr.E(apperr.Input, "execution is not approved (status: "+string(execution.Status)+")", nil)
	}

	startedAt := s.now()
	if err := s.execs.CompareAndSetStatus(ctx, executionID, store.NodeExecApproved, store.NodeExecInProgress, func(e *store.NodeExecution) {
		e.StartedAt = &startedAt
	}); err != nil {
		return nil, apperr.E(apperr.Internal, "start node execution", err)
	}

	s.events.Publish(bus.TopicNodeExecStarted, map[string]any{
		"execution_id": executionID,
		"node_id":      execution.NodeID,
		"command":      execution.Command,
	})

	fullCommand := execution.Command
	if args := execution.Params["args"]; args != "" {
		fullCommand = fullCommand + " " + args
	}

	exitCode, stdout, stderr, runErr := s.sandbox.Execute(ctx, fullCommand, execution.WorkingDir, execution.EnvVars)
	completedAt := s.now()

	if runErr != nil {
		if casErr := s.execs.CompareAndSetStatus(ctx, executionID, store.NodeExecInProgress, store.NodeExecFailed, func(e *store.NodeExecution) {
			e.ErrorMessage = runErr.Error()
			e.CompletedAt = &completedAt
		}); casErr != nil {
			return nil, apperr.E(apperr.Internal, "record failed execution", casErr)
		}
		s.events.Publish(bus.TopicNodeExecFailed, map[string]any{
			"execution_id": executionID,
			"node_id":      execution.NodeID,
			"error":        runErr.Error(),
		})
		return &ExecutionResult{Success: false, ExecutionID: executionID, Status: "failed", Message: runErr.Error()}, nil
	}

	finalStatus := store.NodeExecCompleted
	if exitCode != 0 {
		finalStatus = store.NodeExecFailed
	}
	if err := s.execs.CompareAndSetStatus(ctx, executionID, store.NodeExecInProgress, finalStatus, func(e *store.NodeExecution) {
		e.ExitCode = &exitCode
		e.Stdout = stdout
		e.Stderr = stderr
		e.CompletedAt = &completedAt
	}); err != nil {
		return nil, apperr.E(apperr.Internal, "record execution result", err)
	}

	topic := bus.TopicNodeExecCompleted
	if exitCode != 0 {
		topic = bus.TopicNodeExecFailed
	}
	s.events.Publish(topic, map[string]any{
		"execution_id": executionID,
		"node_id":      execution.NodeID,
		"command":      execution.Command,
		"exit_code":    exitCode,
		"success":      exitCode == 0,
	})

	status := "completed"
	if exitCode != 0 {
		status = "failed"
	}
	return &ExecutionResult{
		Success:     exitCode == 0,
		ExecutionID: executionID,
		Status:      status,
		Stdout:      stdout,
		Stderr:      stderr,
		ExitCode:    &exitCode,
	}, nil
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
