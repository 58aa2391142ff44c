package commandbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/prime-gateway/internal/apperr"
	"github.com/nextlevelbuilder/prime-gateway/internal/policy"
	"github.com/nextlevelbuilder/prime-gateway/internal/routing"
	"github.com/nextlevelbuilder/prime-gateway/internal/store"
	"github.com/nextlevelbuilder/prime-gateway/pkg/protocol"
)

// Services bundles the dependencies the standard method set needs.
type Services struct {
	Tasks    store.TaskStore
	Agents   store.AgentStore
	Resolver *routing.Resolver
	Policy   *policy.Engine
}

// RegisterStandardMethods wires the six required command-bus methods
// (§4.11's table: health.get, tasks.list/create/retry, bindings.resolve,
// policy.dm_check) into bus.
func RegisterStandardMethods(b *Bus, svc Services) {
	b.Register(protocol.MethodHealth, "health.read", false, handleHealth)
	b.Register(protocol.MethodTasksList, "tasks.read", false, handleTasksList(svc))
	b.Register(protocol.MethodTasksCreate, "tasks.write", true, handleTasksCreate(svc))
	b.Register(protocol.MethodTasksRetry, "tasks.write", true, handleTasksRetry(svc))
	b.Register(protocol.MethodBindingsResolve, "routing.read", false, handleBindingsResolve(svc))
	b.Register(protocol.MethodPolicyDMCheck, "policy.read", false, handlePolicyDMCheck(svc))
}

func handleHealth(_ context.Context, _ json.RawMessage, _ Claims) (interface{}, error) {
	return map[string]string{"status": "ok"}, nil
}

func handleTasksList(svc Services) Handler {
	return func(ctx context.Context, params json.RawMessage, _ Claims) (interface{}, error) {
		var p struct {
			SessionID string `json:"session_id"`
			Limit     int    `json:"limit"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		limit := p.Limit
		if limit <= 0 {
			limit = 50
		}
		tasks, err := svc.Tasks.List(ctx, p.SessionID, limit)
		if err != nil {
			return nil, apperr.E(apperr.Internal, "list tasks", err)
		}
		return map[string]interface{}{"tasks": tasks}, nil
	}
}

func handleTasksCreate(svc Services) Handler {
	return func(ctx context.Context, params json.RawMessage, _ Claims) (interface{}, error) {
		var p struct {
			SessionID  string         `json:"session_id"`
			AgentID    string         `json:"agent_id"`
			ProviderID string         `json:"provider_id"`
			Input      map[string]any `json:"input"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		task := &store.Task{
			ID:         uuid.NewString(),
			SessionID:  p.SessionID,
			AgentID:    p.AgentID,
			ProviderID: p.ProviderID,
			Status:     store.TaskPending,
			InputData:  p.Input,
			CreatedAt:  time.Now(),
		}
		if err := svc.Tasks.Create(ctx, task); err != nil {
			return nil, apperr.E(apperr.Internal, "create task", err)
		}
		return map[string]string{"task_id": task.ID}, nil
	}
}

func handleTasksRetry(svc Services) Handler {
	return func(ctx context.Context, params json.RawMessage, _ Claims) (interface{}, error) {
		var p struct {
			TaskID string `json:"task_id"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		if p.TaskID == "" {
			return nil, apperr.E(apperr.Input, "task_id is required", nil)
		}
		retried, err := svc.Tasks.Retry(ctx, p.TaskID)
		if err != nil {
			return nil, apperr.E(apperr.Internal, "retry task", err)
		}
		return map[string]string{"task_id": retried.ID}, nil
	}
}

func handleBindingsResolve(svc Services) Handler {
	return func(ctx context.Context, params json.RawMessage, _ Claims) (interface{}, error) {
		var in routing.Input
		if err := decodeParams(params, &in); err != nil {
			return nil, err
		}
		binding, err := svc.Resolver.Resolve(ctx, in)
		if err != nil {
			return nil, apperr.E(apperr.Internal, "resolve binding", err)
		}
		return map[string]interface{}{"binding": binding}, nil
	}
}

func handlePolicyDMCheck(svc Services) Handler {
	return func(ctx context.Context, params json.RawMessage, _ Claims) (interface{}, error) {
		var p struct {
			AgentID string         `json:"agent_id"`
			Context policy.Context `json:"context"`
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		agent, err := svc.Agents.Get(ctx, p.AgentID)
		if err != nil {
			return nil, apperr.E(apperr.Internal, "load agent", err)
		}
		if agent == nil {
			return nil, apperr.E(apperr.NotFound, "agent not found", nil)
		}
		return svc.Policy.Evaluate(ctx, agent, p.Context), nil
	}
}
