// Package commandbus implements the Command Bus (C12, spec §4.11):
// dispatch(method, params, user_claims) over a fixed, scope-checked
// method table, enforcing the idempotency-key requirement for
// side-effecting methods.
package commandbus

import (
	"context"
	"encoding/json"

	"github.com/nextlevelbuilder/prime-gateway/internal/apperr"
	"github.com/nextlevelbuilder/prime-gateway/internal/idempotency"
)

// Claims carries the authenticated caller's identity and granted scopes.
type Claims struct {
	ActorID string
	Scopes  []string
}

// Has reports whether claims grants scope, or the wildcard "*".
func (c Claims) Has(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope || s == "*" {
			return true
		}
	}
	return false
}

// Handler executes one command-bus method and returns a JSON-marshalable
// result.
type Handler func(ctx context.Context, params json.RawMessage, claims Claims) (interface{}, error)

type methodSpec struct {
	scope      string
	sideEffect bool
	handler    Handler
}

// Bus dispatches RPC methods per §4.11's table.
type Bus struct {
	methods map[string]methodSpec
	idem    *idempotency.Service
}

// New constructs an empty Bus. idem may be nil only in tests that never
// register side-effecting methods.
func New(idem *idempotency.Service) *Bus {
	return &Bus{methods: make(map[string]methodSpec), idem: idem}
}

// Register wires method into the dispatch table. sideEffect methods
// require an idempotency_key at Dispatch time.
func (b *Bus) Register(method, scope string, sideEffect bool, h Handler) {
	b.methods[method] = methodSpec{scope: scope, sideEffect: sideEffect, handler: h}
}

// Dispatch routes method against claims, enforcing scope and (for
// side-effecting methods) idempotent at-most-once execution.
func (b *Bus) Dispatch(ctx context.Context, method string, params json.RawMessage, idempotencyKey string, claims Claims) (interface{}, error) {
	spec, ok := b.methods[method]
	if !ok {
		return nil, apperr.E(apperr.NotFound, "unknown method: "+method, nil)
	}
	if !claims.Has(spec.scope) {
		return nil, apperr.E(apperr.Capability, "missing required scope: "+spec.scope, nil)
	}

	if !spec.sideEffect {
		return spec.handler(ctx, params, claims)
	}

	if idempotencyKey == "" {
		return nil, apperr.E(apperr.Idempotency, "required", nil)
	}
	if b.idem == nil {
		return spec.handler(ctx, params, claims)
	}

	cached, err := b.idem.ReserveOrGet(ctx, idempotencyKey, claims.ActorID, method, params)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		var result interface{}
		if uerr := json.Unmarshal(cached, &result); uerr != nil {
			return nil, apperr.E(apperr.Internal, "decode cached response", uerr)
		}
		return result, nil
	}

	result, err := spec.handler(ctx, params, claims)
	if err != nil {
		_ = b.idem.Fail(ctx, idempotencyKey, claims.ActorID, err.Error())
		return nil, err
	}

	encoded, merr := json.Marshal(result)
	if merr != nil {
		return nil, apperr.E(apperr.Internal, "encode response for replay", merr)
	}
	if cerr := b.idem.Complete(ctx, idempotencyKey, claims.ActorID, encoded); cerr != nil {
		return nil, apperr.E(apperr.Internal, "record idempotency completion", cerr)
	}

	return result, nil
}

func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.E(apperr.Input, "invalid params", err)
	}
	return nil
}
