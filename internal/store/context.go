package store

import (
	"context"

	"github.com/google/uuid"
)

// Request-scoped identity propagated from the gateway/agent runner down into
// stores and tools — which agent, which external user, which agent flavor,
// and (in group chats) which individual sender. Carried on context rather
// than threaded through every call so store implementations and tool
// interceptors can reach it without widening their signatures.

type storeContextKey string

const (
	ctxAgentID   storeContextKey = "store_agent_id"
	ctxUserID    storeContextKey = "store_user_id"
	ctxAgentType storeContextKey = "store_agent_type"
	ctxSenderID  storeContextKey = "store_sender_id"
)

// GenNewID mints a time-ordered UUIDv7, the identifier scheme used
// throughout the data model (§3).
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

func WithAgentID(ctx context.Context, agentID uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxAgentID, agentID)
}

// AgentIDFromContext returns uuid.Nil when no agent scope was set
// (standalone, non-managed mode).
func AgentIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxAgentID).(uuid.UUID)
	return id
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserID, userID)
}

func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxUserID).(string)
	return id
}

func WithAgentType(ctx context.Context, agentType string) context.Context {
	return context.WithValue(ctx, ctxAgentType, agentType)
}

func AgentTypeFromContext(ctx context.Context) string {
	t, _ := ctx.Value(ctxAgentType).(string)
	return t
}

// WithSenderID carries the original individual sender's ID through a group
// chat, where UserID is the group's own identity — needed for per-sender
// permission checks (e.g. group file-write allowlists).
func WithSenderID(ctx context.Context, senderID string) context.Context {
	return context.WithValue(ctx, ctxSenderID, senderID)
}

func SenderIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxSenderID).(string)
	return id
}
