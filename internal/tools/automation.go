package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// CronScheduler is the narrow slice of internal/cron (C14) the automation
// tools need: add, remove, and list standing schedules for the calling
// agent. Defined here, at the point of use, rather than in the store
// package — cron schedules aren't persisted entities the rest of the
// system queries, just this tool's own concern.
type CronScheduler interface {
	AddSchedule(ctx context.Context, agentID, expr, task string) (scheduleID string, err error)
	RemoveSchedule(ctx context.Context, agentID, scheduleID string) error
	ListSchedules(ctx context.Context, agentID string) ([]CronScheduleInfo, error)
}

// CronScheduleInfo describes one standing schedule for cron_list output.
type CronScheduleInfo struct {
	ID   string `json:"id"`
	Expr string `json:"cron_expr"`
	Task string `json:"task"`
}

// WebhookRegistrar is the narrow slice of internal/webhooktrigger (C14)
// the automation tools need.
type WebhookRegistrar interface {
	RegisterWebhook(ctx context.Context, agentID, path, task string) (webhookURL string, err error)
	ListWebhooks(ctx context.Context, agentID string) ([]WebhookInfo, error)
}

// WebhookInfo describes one registered webhook for webhook_list output.
type WebhookInfo struct {
	Path string `json:"path"`
	URL  string `json:"url"`
	Task string `json:"task"`
}

// GatewayStatusReporter is the narrow slice of internal/gateway (C13) the
// gateway_status tool needs: connection and queue-depth counters.
type GatewayStatusReporter interface {
	Status(ctx context.Context) GatewayStatus
}

// GatewayStatus is a snapshot of control-plane health for gateway_status.
type GatewayStatus struct {
	ConnectedClients int    `json:"connected_clients"`
	InboundQueued    int    `json:"inbound_queued"`
	OutboundQueued   int    `json:"outbound_queued"`
	Uptime           string `json:"uptime"`
}

// ============================================================
// cron_add / cron_remove / cron_list
// ============================================================

type CronAddTool struct{ scheduler CronScheduler }

func NewCronAddTool(s CronScheduler) *CronAddTool { return &CronAddTool{scheduler: s} }

func (t *CronAddTool) Name() string        { return "cron_add" }
func (t *CronAddTool) Description() string { return "Schedule a standing task on a cron expression" }
func (t *CronAddTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"cron_expr": map[string]interface{}{"type": "string", "description": "Standard 5-field cron expression"},
			"task":      map[string]interface{}{"type": "string", "description": "Task to run on each firing"},
		},
		"required": []string{"cron_expr", "task"},
	}
}

func (t *CronAddTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.scheduler == nil {
		return ErrorResult("cron scheduler not available")
	}
	expr, _ := args["cron_expr"].(string)
	task, _ := args["task"].(string)
	if expr == "" || task == "" {
		return ErrorResult("cron_expr and task are required")
	}
	agentID := resolveAgentIDString(ctx)
	id, err := t.scheduler.AddSchedule(ctx, agentID, expr, task)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to schedule: %v", err))
	}
	return SilentResult(fmt.Sprintf(`{"status":"scheduled","schedule_id":"%s"}`, id))
}

type CronRemoveTool struct{ scheduler CronScheduler }

func NewCronRemoveTool(s CronScheduler) *CronRemoveTool { return &CronRemoveTool{scheduler: s} }

func (t *CronRemoveTool) Name() string        { return "cron_remove" }
func (t *CronRemoveTool) Description() string { return "Cancel a standing scheduled task" }
func (t *CronRemoveTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"schedule_id": map[string]interface{}{"type": "string", "description": "Schedule ID from cron_add or cron_list"},
		},
		"required": []string{"schedule_id"},
	}
}

func (t *CronRemoveTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.scheduler == nil {
		return ErrorResult("cron scheduler not available")
	}
	id, _ := args["schedule_id"].(string)
	if id == "" {
		return ErrorResult("schedule_id is required")
	}
	agentID := resolveAgentIDString(ctx)
	if err := t.scheduler.RemoveSchedule(ctx, agentID, id); err != nil {
		return ErrorResult(fmt.Sprintf("failed to cancel schedule: %v", err))
	}
	return SilentResult(fmt.Sprintf("cancelled schedule %q", id))
}

type CronListTool struct{ scheduler CronScheduler }

func NewCronListTool(s CronScheduler) *CronListTool { return &CronListTool{scheduler: s} }

func (t *CronListTool) Name() string                           { return "cron_list" }
func (t *CronListTool) Description() string                    { return "List standing scheduled tasks" }
func (t *CronListTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}

func (t *CronListTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.scheduler == nil {
		return ErrorResult("cron scheduler not available")
	}
	agentID := resolveAgentIDString(ctx)
	schedules, err := t.scheduler.ListSchedules(ctx, agentID)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to list schedules: %v", err))
	}
	out, _ := json.Marshal(map[string]interface{}{"count": len(schedules), "schedules": schedules})
	return SilentResult(string(out))
}

// ============================================================
// webhook_register / webhook_list
// ============================================================

type WebhookRegisterTool struct{ registrar WebhookRegistrar }

func NewWebhookRegisterTool(r WebhookRegistrar) *WebhookRegisterTool {
	return &WebhookRegisterTool{registrar: r}
}

func (t *WebhookRegisterTool) Name() string { return "webhook_register" }
func (t *WebhookRegisterTool) Description() string {
	return "Register a webhook endpoint that triggers a task when called"
}
func (t *WebhookRegisterTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"webhook_path": map[string]interface{}{"type": "string", "description": "URL path segment to register under"},
			"task":         map[string]interface{}{"type": "string", "description": "Task to run when the webhook fires"},
		},
		"required": []string{"webhook_path", "task"},
	}
}

func (t *WebhookRegisterTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.registrar == nil {
		return ErrorResult("webhook registrar not available")
	}
	path, _ := args["webhook_path"].(string)
	task, _ := args["task"].(string)
	if path == "" || task == "" {
		return ErrorResult("webhook_path and task are required")
	}
	agentID := resolveAgentIDString(ctx)
	url, err := t.registrar.RegisterWebhook(ctx, agentID, path, task)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to register webhook: %v", err))
	}
	return SilentResult(fmt.Sprintf(`{"status":"registered","url":"%s"}`, url))
}

type WebhookListTool struct{ registrar WebhookRegistrar }

func NewWebhookListTool(r WebhookRegistrar) *WebhookListTool { return &WebhookListTool{registrar: r} }

func (t *WebhookListTool) Name() string                        { return "webhook_list" }
func (t *WebhookListTool) Description() string                 { return "List registered webhook endpoints" }
func (t *WebhookListTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}

func (t *WebhookListTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.registrar == nil {
		return ErrorResult("webhook registrar not available")
	}
	agentID := resolveAgentIDString(ctx)
	hooks, err := t.registrar.ListWebhooks(ctx, agentID)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to list webhooks: %v", err))
	}
	out, _ := json.Marshal(map[string]interface{}{"count": len(hooks), "webhooks": hooks})
	return SilentResult(string(out))
}

// ============================================================
// gateway_status
// ============================================================

type GatewayStatusTool struct{ gateway GatewayStatusReporter }

func NewGatewayStatusTool(g GatewayStatusReporter) *GatewayStatusTool {
	return &GatewayStatusTool{gateway: g}
}

func (t *GatewayStatusTool) Name() string                        { return "gateway_status" }
func (t *GatewayStatusTool) Description() string                 { return "Report control-plane connection and queue health" }
func (t *GatewayStatusTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}

func (t *GatewayStatusTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.gateway == nil {
		return ErrorResult("gateway status reporter not available")
	}
	status := t.gateway.Status(ctx)
	out, _ := json.Marshal(status)
	return SilentResult(string(out))
}
