package store

import (
	"context"
	"time"
)

// Repository interfaces for the §3 entities. Each is deliberately narrow —
// the same style as the teacher's SessionStore in session_store.go — so a
// Postgres-backed implementation (store/pg) and a fake for tests both stay
// small. All methods take a context so the pgx-backed implementation can
// propagate cancellation/timeouts; this is the one departure from the
// teacher's context-free SessionStore, required because these entities are
// reached from request-scoped command-bus handlers rather than a
// long-lived in-process loop.

type OrgStore interface {
	Get(ctx context.Context, id string) (*Organization, error)
	GetBySlug(ctx context.Context, slug string) (*Organization, error)
	Create(ctx context.Context, org *Organization) error
}

type UserStore interface {
	Get(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, orgID, username string) (*User, error)
	GetByTelegramID(ctx context.Context, orgID string, telegramID int64) (*User, error)
	Upsert(ctx context.Context, u *User) error
}

type BotStore interface {
	Get(ctx context.Context, id string) (*Bot, error)
	GetByToken(ctx context.Context, channel, token string) (*Bot, error)
	List(ctx context.Context, orgID string) ([]*Bot, error)
	Create(ctx context.Context, b *Bot) error
	Update(ctx context.Context, b *Bot) error
	Delete(ctx context.Context, id string) error
}

type ProviderStore interface {
	Get(ctx context.Context, id string) (*Provider, error)
	GetByName(ctx context.Context, orgID, name string) (*Provider, error)
	List(ctx context.Context, orgID string) ([]*Provider, error)
	Create(ctx context.Context, p *Provider) error
	Update(ctx context.Context, p *Provider) error
	Delete(ctx context.Context, id string) error
}

type AgentStore interface {
	Get(ctx context.Context, id string) (*Agent, error)
	GetByName(ctx context.Context, orgID, name string) (*Agent, error)
	List(ctx context.Context, orgID string) ([]*Agent, error)
	Create(ctx context.Context, a *Agent) error
	Update(ctx context.Context, a *Agent) error
	Delete(ctx context.Context, id string) error
}

type BindingStore interface {
	// ActiveForChannel returns every active binding for a channel, used by
	// internal/routing to resolve in-process rather than per-candidate query.
	ActiveForChannel(ctx context.Context, channel string) ([]*Binding, error)
	Create(ctx context.Context, b *Binding) error
	Update(ctx context.Context, b *Binding) error
	Delete(ctx context.Context, id string) error
}

type TaskStore interface {
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, sessionID string, limit int) ([]*Task, error)
	Create(ctx context.Context, t *Task) error
	// Retry clones a failed/canceled task's input into a new pending task
	// and returns it; the original task is left untouched for audit.
	Retry(ctx context.Context, id string) (*Task, error)
}

type ConvoSessionStore interface {
	FindActive(ctx context.Context, botID, userID, agentID string) (*ConvoSession, error)
	Create(ctx context.Context, s *ConvoSession) error
	Close(ctx context.Context, id string, status SessionStatus) error
}

type MessageStore interface {
	Append(ctx context.Context, m *ConvoMessage) error
	History(ctx context.Context, sessionID string, limit int) ([]*ConvoMessage, error)
}

type KnowledgeBaseStore interface {
	Get(ctx context.Context, id string) (*KnowledgeBase, error)
	ActiveForAgent(ctx context.Context, agentID string) ([]*KnowledgeBase, error)
	Create(ctx context.Context, kb *KnowledgeBase) error
}

type DocumentStore interface {
	Get(ctx context.Context, id string) (*Document, error)
	Create(ctx context.Context, d *Document) error
	SetStatus(ctx context.Context, id string, status DocStatus, errMsg string) error
}

type ChunkStore interface {
	// ReplaceAll atomically replaces every chunk for a document (reindex).
	ReplaceAll(ctx context.Context, documentID string, chunks []*DocumentChunk) error
	ForKB(ctx context.Context, kbID string, limit int) ([]*DocumentChunk, error)
}

type IdempotencyStore interface {
	// Get returns the row for (key, actorID), or nil if absent or expired.
	Get(ctx context.Context, key, actorID string) (*IdempotencyKey, error)
	// Insert creates an in_progress row; must fail if one already exists
	// (unique constraint on key+actor_id) so callers can race-detect.
	Insert(ctx context.Context, row *IdempotencyKey) error
	Complete(ctx context.Context, key, actorID string, response []byte) error
	Fail(ctx context.Context, key, actorID, reason string) error
}

type NodeExecutionStore interface {
	Get(ctx context.Context, id string) (*NodeExecution, error)
	Create(ctx context.Context, e *NodeExecution) error
	// CompareAndSetStatus performs the transactional status transition
	// required by §5: read-then-write must not interleave.
	CompareAndSetStatus(ctx context.Context, id string, from, to NodeExecStatus, mutate func(*NodeExecution)) error
}

type NodeApprovalStore interface {
	Get(ctx context.Context, id string) (*NodeApprovalQueue, error)
	Create(ctx context.Context, q *NodeApprovalQueue) error
	ListPending(ctx context.Context) ([]*NodeApprovalQueue, error)
	// CompareAndSetStatus performs the transactional approval-queue
	// transition required by §5: read-then-write must not interleave.
	// mutate is applied to the row before it is persisted and must return
	// the row's new status; if it does not match `to`, the caller's intent
	// was violated by a concurrent transition and the store returns an
	// error instead of committing.
	CompareAndSetStatus(ctx context.Context, id string, from, to ApprovalStatus, mutate func(*NodeApprovalQueue)) (*NodeApprovalQueue, error)
}

type PairingStore interface {
	CreateRequest(ctx context.Context, r *PairingRequest) error
	GetRequest(ctx context.Context, code string) (*PairingRequest, error)
	IsPaired(ctx context.Context, channel, accountID, peer string) (bool, error)
	Approve(ctx context.Context, code string) (*PairedDevice, error)
	Revoke(ctx context.Context, channel, accountID, peer string) error
}

type DeviceAuthStore interface {
	Create(ctx context.Context, r *DeviceAuthRequest) error
	GetByUserCode(ctx context.Context, userCode string) (*DeviceAuthRequest, error)
	GetByDeviceCodeHash(ctx context.Context, hash string) (*DeviceAuthRequest, error)
	// GetByRefreshTokenHash backs the refresh grant.
	GetByRefreshTokenHash(ctx context.Context, hash string) (*DeviceAuthRequest, error)
	SetStatus(ctx context.Context, id string, status DeviceAuthStatus) error
	// SetApproved transitions a pending request to approved, recording
	// which user completed the flow.
	SetApproved(ctx context.Context, id, userID string) error
	// SetConsumed transitions an approved request to consumed and records
	// the issued refresh token's hash, so device_code can never be
	// exchanged twice and the refresh token can be looked up later.
	SetConsumed(ctx context.Context, id, refreshTokenHash string) error
	// RotateRefreshToken replaces the stored refresh token hash on a
	// successful refresh grant (rotation on use).
	RotateRefreshToken(ctx context.Context, id, newRefreshTokenHash string) error
}

// CronStore backs the cron.{add,remove,list} CLI verbs and the scheduler's
// startup load of active jobs (§4.13, C14).
type CronStore interface {
	List(ctx context.Context, orgID string) ([]*CronJob, error)
	Create(ctx context.Context, j *CronJob) error
	Delete(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) error
	MarkRun(ctx context.Context, id string, at time.Time) error
}

// WebhookStore backs webhook trigger CRUD and the /hooks/{path} ingress
// lookup by path (§4.13, C14).
type WebhookStore interface {
	List(ctx context.Context, orgID string) ([]*WebhookTrigger, error)
	GetByPath(ctx context.Context, path string) (*WebhookTrigger, error)
	Create(ctx context.Context, w *WebhookTrigger) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore backs the memory_search/memory_get/memory_store/memory_forget
// tools (§4.6). Scoped per agent+user so one session's notes never leak
// into another's context.
type MemoryStore interface {
	Store(ctx context.Context, item *MemoryItem) error
	Get(ctx context.Context, agentID, userID, key string) (*MemoryItem, error)
	// Search returns items whose key or content match query, newest first.
	Search(ctx context.Context, agentID, userID, query string, limit int) ([]*MemoryItem, error)
	Forget(ctx context.Context, agentID, userID, key string) error
}
