// Package routing resolves an inbound (channel, bot, account, peer) tuple
// to a single Binding (C3, spec §4.3).
package routing

import (
	"context"
	"sort"

	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

// Resolver is read-only and side-effect free.
type Resolver struct {
	bindings store.BindingStore
}

// New constructs a Resolver over the given binding store.
func New(bindings store.BindingStore) *Resolver {
	return &Resolver{bindings: bindings}
}

// Input identifies an inbound message's routing coordinates.
type Input struct {
	Channel   string `json:"channel"`
	BotID     string `json:"bot_id"`
	AccountID string `json:"account_id"`
	Peer      string `json:"peer"` // peer kind+id already flattened by the caller, e.g. "user:123"
}

// tier ranks a binding's specificity against an Input; lower is more
// specific. Returns -1 if the binding does not match at all.
func tier(b *store.Binding, in Input) int {
	if b.Channel != in.Channel {
		return -1
	}
	botWild := b.BotID == ""
	acctWild := b.AccountID == ""
	peerWild := b.Peer == nil

	botMatch := botWild || b.BotID == in.BotID
	acctMatch := acctWild || b.AccountID == in.AccountID
	peerMatch := peerWild || peerID(b.Peer) == in.Peer

	if !botMatch || !acctMatch || !peerMatch {
		return -1
	}

	switch {
	case !botWild && !acctWild && !peerWild:
		return 1 // exact
	case !botWild && !acctWild && peerWild:
		return 2
	case !botWild && acctWild && peerWild:
		return 3
	case botWild && acctWild && peerWild:
		return 4
	case !peerWild:
		return 1 // a pinned peer outranks every peer-wildcard binding
	default:
		// A binding that wildcards bot but pins account has no tier
		// in the spec's 4-level table; treat as least specific valid match.
		return 4
	}
}

func peerID(p *store.BindingPeer) string {
	if p == nil {
		return ""
	}
	return p.Kind + ":" + p.ID
}

// Resolve returns the single best-matching active binding for in, or nil
// if none match. Tie-break: lowest tier (most specific) first, then
// lowest Priority, then lowest binding ID.
func (r *Resolver) Resolve(ctx context.Context, in Input) (*store.Binding, error) {
	candidates, err := r.bindings.ActiveForChannel(ctx, in.Channel)
	if err != nil {
		return nil, err
	}

	type scored struct {
		b    *store.Binding
		tier int
	}
	var matched []scored
	for _, b := range candidates {
		if !b.Active {
			continue
		}
		tr := tier(b, in)
		if tr < 0 {
			continue
		}
		matched = append(matched, scored{b, tr})
	}
	if len(matched) == 0 {
		return nil, nil
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].tier != matched[j].tier {
			return matched[i].tier < matched[j].tier
		}
		if matched[i].b.Priority != matched[j].b.Priority {
			return matched[i].b.Priority < matched[j].b.Priority
		}
		return matched[i].b.ID < matched[j].b.ID
	})

	return matched[0].b, nil
}
