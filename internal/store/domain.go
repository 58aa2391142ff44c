package store

import "time"

// Entity types for the platform's relational data model (§3). Identifiers
// are opaque 128-bit values (UUIDv7, string-encoded) unless noted.

type Organization struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	Active bool   `json:"active"`
}

type UserRole string

const (
	RoleAdmin UserRole = "admin"
	RoleUser  UserRole = "user"
)

type User struct {
	ID            string   `json:"id"`
	OrgID         string   `json:"org_id"`
	Username      string   `json:"username"`
	TelegramID    *int64   `json:"telegram_id,omitempty"`
	Role          UserRole `json:"role"`
	PasswordHash  string   `json:"-"`
	APITokenHash  string   `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

type Bot struct {
	ID               string            `json:"id"`
	OrgID            string            `json:"org_id"`
	Name             string            `json:"name"`
	Token            string            `json:"-"`
	Channels         []string          `json:"channels"`
	AllowedUserIDs   []string          `json:"allowed_user_ids"`
	Active           bool              `json:"active"`
	ProviderDefaults map[string]string `json:"provider_defaults,omitempty"`
}

type ProviderType string

const (
	ProviderOpenAI    ProviderType = "OpenAI"
	ProviderAnthropic ProviderType = "Anthropic"
	ProviderDeepSeek  ProviderType = "DeepSeek"
	ProviderGemini    ProviderType = "Gemini"
	ProviderKimi      ProviderType = "Kimi"
	ProviderMistral   ProviderType = "Mistral"
	ProviderGLM       ProviderType = "GLM"
	ProviderQwen      ProviderType = "Qwen"
	ProviderOllama    ProviderType = "Ollama"
	ProviderHTTP      ProviderType = "HTTP"
	ProviderShell     ProviderType = "Shell"
)

// ModelConfig describes one callable model under a Provider.
type ModelConfig struct {
	Name             string  `json:"name"`
	MaxTokens        int     `json:"max_tokens"`
	MaxOutputTokens  int     `json:"max_output_tokens"`
	ContextWindow    int     `json:"context_window"`
	CostPer1MInput   float64 `json:"cost_per_1m_input"`
	CostPer1MOutput  float64 `json:"cost_per_1m_output"`
}

// TokenOptimizationConfig is the provider-level knob set consumed by
// internal/optimizer (C5), grounded on original_source's token_optimizer.py.
type TokenOptimizationConfig struct {
	AutoRouteEnabled    bool                `json:"auto_route_enabled"`
	RouteByComplexity   map[string]string   `json:"route_by_complexity"` // "simple"/"complex" -> model name
	MaxOutputTokens     int                 `json:"max_output_tokens,omitempty"`
	OutputRatio         float64             `json:"output_ratio,omitempty"`
	InputBudgetTokens   int                 `json:"input_budget_tokens,omitempty"`
	MaxMessageTokens    int                 `json:"max_message_tokens,omitempty"`
}

type Provider struct {
	ID                string                   `json:"id"`
	OrgID             string                   `json:"org_id"`
	Name              string                   `json:"name"`
	Type              ProviderType             `json:"type"`
	APIKey            string                   `json:"-"`
	APIBase           string                   `json:"api_base,omitempty"`
	DefaultModel      string                   `json:"default_model"`
	Models            map[string]ModelConfig   `json:"models"`
	TokenOptimization TokenOptimizationConfig  `json:"token_optimization"`
	Active            bool                     `json:"active"`
}

type DMPolicy string

const (
	DMPolicyPairing   DMPolicy = "pairing"
	DMPolicyAllowlist DMPolicy = "allowlist"
	DMPolicyOpen      DMPolicy = "open"
	DMPolicyDisabled  DMPolicy = "disabled"
)

type Agent struct {
	ID                  string   `json:"id"`
	OrgID               string   `json:"org_id"`
	Name                string   `json:"name"`
	DefaultProviderID   string   `json:"default_provider_id"`
	WorkspacePath       string   `json:"workspace_path,omitempty"`
	DMPolicy            DMPolicy `json:"dm_policy"`
	AllowedUserIDs      []string `json:"allowed_user_ids"`
	GroupRequiresMention bool    `json:"group_requires_mention"`
	SystemPrompt        string   `json:"system_prompt"`
	WebSearchEnabled    bool     `json:"web_search_enabled"`
	MemoryEnabled       bool     `json:"memory_enabled"`
	MaxHistoryMessages  int      `json:"max_history_messages"`
	CodeExecutionEnabled bool    `json:"code_execution_enabled"`
	Active              bool     `json:"active"`
}

// BindingPeer identifies a specific conversational peer within an account;
// nil Peer means "any peer" (wildcard).
type BindingPeer struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type Binding struct {
	ID        string       `json:"id"`
	OrgID     string       `json:"org_id"`
	AgentID   string       `json:"agent_id"`
	BotID     string       `json:"bot_id,omitempty"`
	Channel   string       `json:"channel"`
	AccountID string       `json:"account_id,omitempty"`
	Peer      *BindingPeer `json:"peer,omitempty"`
	Priority  int          `json:"priority"`
	Active    bool         `json:"active"`
}

type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionFinished SessionStatus = "finished"
	SessionFailed   SessionStatus = "failed"
)

type ConvoSession struct {
	ID         string        `json:"id"`
	BotID      string        `json:"bot_id"`
	UserID     string        `json:"user_id"`
	AgentID    string        `json:"agent_id"`
	ProviderID string        `json:"provider_id"`
	Status     SessionStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

type MessageRole string

const (
	RoleUserMsg      MessageRole = "user"
	RoleAssistantMsg MessageRole = "assistant"
	RoleToolMsg      MessageRole = "tool"
)

type ContentType string

const (
	ContentText  ContentType = "text"
	ContentFile  ContentType = "file"
	ContentImage ContentType = "image"
	ContentCode  ContentType = "code"
)

type ConvoMessage struct {
	ID          string                 `json:"id"`
	SessionID   string                 `json:"session_id"`
	Role        MessageRole            `json:"role"`
	Content     string                 `json:"content"`
	ContentType ContentType            `json:"content_type"`
	Meta        map[string]interface{} `json:"meta,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

type DocStatus string

const (
	DocPending  DocStatus = "pending"
	DocIndexing DocStatus = "indexing"
	DocIndexed  DocStatus = "indexed"
	DocFailed   DocStatus = "failed"
)

type KnowledgeBase struct {
	ID      string `json:"id"`
	OrgID   string `json:"org_id"`
	Name    string `json:"name"`
	AgentID string `json:"agent_id,omitempty"`
	Active  bool   `json:"active"`
}

type Document struct {
	ID          string    `json:"id"`
	KBID        string    `json:"kb_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Status      DocStatus `json:"status"`
	Error       string    `json:"error,omitempty"`
	RawB64      string    `json:"raw_b64,omitempty"`
	RawPath     string    `json:"raw_path,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type DocumentChunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	KBID       string    `json:"kb_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

type IdempotencyStatus string

const (
	IdemInProgress IdempotencyStatus = "in_progress"
	IdemCompleted  IdempotencyStatus = "completed"
	IdemFailed     IdempotencyStatus = "failed"
)

type IdempotencyKey struct {
	Key         string            `json:"key"`
	ActorID     string            `json:"actor_id"`
	Method      string            `json:"method"`
	RequestHash string            `json:"request_hash"`
	Status      IdempotencyStatus `json:"status"`
	Response    []byte            `json:"response,omitempty"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

type NodeExecStatus string

const (
	NodeExecPending         NodeExecStatus = "pending"
	NodeExecPendingApproval NodeExecStatus = "pending_approval"
	NodeExecApproved        NodeExecStatus = "approved"
	NodeExecRejected        NodeExecStatus = "rejected"
	NodeExecInProgress      NodeExecStatus = "in_progress"
	NodeExecCompleted       NodeExecStatus = "completed"
	NodeExecFailed          NodeExecStatus = "failed"
	NodeExecCanceled        NodeExecStatus = "canceled"
)

type NodeExecution struct {
	ID               string            `json:"id"`
	ConnectionID     string            `json:"connection_id"`
	NodeID           string            `json:"node_id"`
	NodeName         string            `json:"node_name"`
	Command          string            `json:"command"`
	Params           map[string]string `json:"params"`
	WorkingDir       string            `json:"working_dir"`
	EnvVars          map[string]string `json:"env_vars,omitempty"`
	Status           NodeExecStatus    `json:"status"`
	RequiresApproval bool              `json:"requires_approval"`
	IdempotencyKey   string            `json:"idempotency_key,omitempty"`
	ApprovedAt       *time.Time        `json:"approved_at,omitempty"`
	ApprovedBy       string            `json:"approved_by,omitempty"`
	ApprovalReason   string            `json:"approval_reason,omitempty"`
	StartedAt        *time.Time        `json:"started_at,omitempty"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	ExitCode         *int              `json:"exit_code,omitempty"`
	Stdout           string            `json:"stdout,omitempty"`
	Stderr           string            `json:"stderr,omitempty"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

type NodeApprovalQueue struct {
	ID               string         `json:"id"`
	ExecutionID      string         `json:"execution_id"`
	ConnectionID     string         `json:"connection_id"`
	NodeID           string         `json:"node_id"`
	NodeName         string         `json:"node_name"`
	Command          string         `json:"command"`
	ParamsSummary    string         `json:"params_summary"`
	RiskLevel        RiskLevel      `json:"risk_level"`
	Status           ApprovalStatus `json:"status"`
	ExpiresAt        time.Time      `json:"expires_at"`
	AutoApproved     bool           `json:"auto_approved"`
	AutoApprovalRule string         `json:"auto_approval_rule,omitempty"`
	ResolvedAt       *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy       string         `json:"resolved_by,omitempty"`
	ResolutionReason string         `json:"resolution_reason,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// TaskStatus tracks a background unit of async work dispatched through
// the Command Bus's tasks.* methods (§4.11). Not named as an entity in
// the distilled spec's §3 but required by the tasks.list/create/retry
// methods it does name; grounded on original_source's `Task` model
// (app/persistence/models.py), which backs the same methods.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskSuccess    TaskStatus = "success"
	TaskFailed     TaskStatus = "failed"
	TaskCanceled   TaskStatus = "canceled"
)

type Task struct {
	ID           string         `json:"id"`
	SessionID    string         `json:"session_id"`
	AgentID      string         `json:"agent_id"`
	ProviderID   string         `json:"provider_id"`
	Status       TaskStatus     `json:"status"`
	InputData    map[string]any `json:"input_data"`
	OutputData   map[string]any `json:"output_data,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Artifacts    map[string]any `json:"artifacts,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
}

type PairingRequest struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	AccountID string    `json:"account_id"`
	Peer      string    `json:"peer"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type PairedDevice struct {
	ID         string     `json:"id"`
	Channel    string     `json:"channel"`
	AccountID  string     `json:"account_id"`
	Peer       string     `json:"peer"`
	PairedAt   time.Time  `json:"paired_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

type DeviceAuthStatus string

const (
	DeviceAuthPending  DeviceAuthStatus = "pending"
	DeviceAuthApproved DeviceAuthStatus = "approved"
	DeviceAuthConsumed DeviceAuthStatus = "consumed"
	DeviceAuthDenied   DeviceAuthStatus = "denied"
	DeviceAuthExpired  DeviceAuthStatus = "expired"
)

type DeviceAuthRequest struct {
	ID              string           `json:"id"`
	OrgID           string           `json:"org_id"`
	DeviceCodeHash  string           `json:"-"`
	UserCode        string           `json:"user_code"`
	ClientName      string           `json:"client_name"`
	Scope           string           `json:"scope"`
	Status          DeviceAuthStatus `json:"status"`
	IntervalSeconds int              `json:"interval_seconds"`
	UserID          string           `json:"user_id,omitempty"`
	RefreshTokenHash string          `json:"-"`
	ExpiresAt       time.Time        `json:"expires_at"`
	ApprovedAt      *time.Time       `json:"approved_at,omitempty"`
	ConsumedAt      *time.Time       `json:"consumed_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// CronJob is a time-driven agent invocation (§4.13): schedule is a 5-field
// cron expression; message is dispatched as a user turn against a
// synthetic session when the job fires.
type CronJob struct {
	ID        string     `json:"id"`
	OrgID     string     `json:"org_id"`
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	Message   string     `json:"message"`
	AgentID   string     `json:"agent_id"`
	Active    bool       `json:"active"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// WebhookTrigger is an HTTP-driven agent invocation (§4.13): an inbound
// POST to /hooks/{path} is verified by secret if set, its payload fields
// are interpolated into message_template, and dispatched as an agent turn.
type WebhookTrigger struct {
	ID              string    `json:"id"`
	OrgID           string    `json:"org_id"`
	Name            string    `json:"name"`
	Path            string    `json:"path"`
	MessageTemplate string    `json:"message_template"`
	AgentID         string    `json:"agent_id"`
	Secret          string    `json:"-"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}

// MemoryItem is one key/value note an agent has chosen to persist about a
// user across sessions, surfaced through the memory_* tools.
type MemoryItem struct {
	AgentID   string    `json:"agent_id"`
	UserID    string    `json:"user_id"`
	Key       string    `json:"key"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
