// Package policy implements DM/group authorization for inbound channel
// messages (C4, spec §4.4), generalized from the teacher's per-channel
// BaseChannel.CheckPolicy into an agent-scoped decision service.
package policy

import (
	"context"

	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

// Context describes the inbound message being authorized.
type Context struct {
	SenderUserID string `json:"sender_user_id"`
	IsGroup      bool   `json:"is_group"`
	BotMentioned bool   `json:"bot_mentioned"`
	Channel      string `json:"channel"`
	AccountID    string `json:"account_id"`
	Peer         string `json:"peer"`
}

// Reason codes returned alongside Allowed.
const (
	ReasonAllowed          = "allowed"
	ReasonDisabled         = "disabled"
	ReasonNotAllowlisted   = "not_allowlisted"
	ReasonMentionRequired  = "mention_required"
	ReasonPairingRequested = "pairing_requested"
)

// Decision is the result of evaluating a DM policy.
type Decision struct {
	Allowed bool
	Reason  string
}

// Pairings abstracts the subset of the pairing store the policy engine
// needs: whether a peer is already paired, and how to start a new pairing
// request when one is not.
type Pairings interface {
	IsPaired(ctx context.Context, channel, accountID, peer string) (bool, error)
	RequestPairing(ctx context.Context, channel, accountID, peer string) error
}

// Engine evaluates DM policy decisions for agents.
type Engine struct {
	pairings Pairings
}

// New constructs an Engine. pairings may be nil if pairing policy isn't
// used by any agent (Evaluate then falls back to allowlist-only for
// "pairing").
func New(pairings Pairings) *Engine {
	return &Engine{pairings: pairings}
}

// Evaluate decides whether a message from msgCtx is authorized against
// agent's configured policy.
func (e *Engine) Evaluate(ctx context.Context, agent *store.Agent, msgCtx Context) Decision {
	switch agent.DMPolicy {
	case store.DMPolicyDisabled:
		return Decision{Allowed: false, Reason: ReasonDisabled}

	case store.DMPolicyOpen:
		if msgCtx.IsGroup && agent.GroupRequiresMention && !msgCtx.BotMentioned {
			return Decision{Allowed: false, Reason: ReasonMentionRequired}
		}
		return Decision{Allowed: true, Reason: ReasonAllowed}

	case store.DMPolicyAllowlist:
		if !isAllowlisted(agent.AllowedUserIDs, msgCtx.SenderUserID) {
			return Decision{Allowed: false, Reason: ReasonNotAllowlisted}
		}
		if msgCtx.IsGroup && agent.GroupRequiresMention && !msgCtx.BotMentioned {
			return Decision{Allowed: false, Reason: ReasonMentionRequired}
		}
		return Decision{Allowed: true, Reason: ReasonAllowed}

	case store.DMPolicyPairing:
		if isAllowlisted(agent.AllowedUserIDs, msgCtx.SenderUserID) {
			return Decision{Allowed: true, Reason: ReasonAllowed}
		}
		if e.pairings != nil {
			paired, err := e.pairings.IsPaired(ctx, msgCtx.Channel, msgCtx.AccountID, msgCtx.Peer)
			if err == nil && paired {
				return Decision{Allowed: true, Reason: ReasonAllowed}
			}
			_ = e.pairings.RequestPairing(ctx, msgCtx.Channel, msgCtx.AccountID, msgCtx.Peer)
		}
		return Decision{Allowed: false, Reason: ReasonPairingRequested}

	default:
		// Unrecognized policy values fail closed.
		return Decision{Allowed: false, Reason: ReasonDisabled}
	}
}

func isAllowlisted(allowed []string, senderID string) bool {
	for _, id := range allowed {
		if id == senderID {
			return true
		}
	}
	return false
}
