package gateway

import (
	"context"
	"encoding/json"

	"github.com/nextlevelbuilder/prime-gateway/internal/commandbus"
)

// MethodRouter is the gateway's binding to the Command Bus (C12): every
// post-handshake "req" frame's method is dispatched here, which forwards
// straight to the embedded commandbus.Bus so RPC dispatch, scope
// enforcement, and idempotency replay all go through one implementation
// regardless of whether the caller arrived over WebSocket or REST.
type MethodRouter struct {
	bus *commandbus.Bus
}

// NewMethodRouter wraps bus for use by the gateway's WS client loop.
// The server owns no command-bus state itself; cmd/ wiring constructs
// the Bus (with its idempotency.Service) and hands it to SetBus.
func NewMethodRouter(_ *Server) *MethodRouter {
	return &MethodRouter{}
}

// SetBus installs the commandbus.Bus the router dispatches into.
func (m *MethodRouter) SetBus(b *commandbus.Bus) { m.bus = b }

// Bus returns the underlying commandbus.Bus, or nil if none is set yet.
func (m *MethodRouter) Bus() *commandbus.Bus { return m.bus }

// Dispatch routes one request frame's method/params through the command
// bus under claims, honoring idempotencyKey for side-effecting methods.
func (m *MethodRouter) Dispatch(ctx context.Context, method string, params json.RawMessage, idempotencyKey string, claims commandbus.Claims) (interface{}, error) {
	return m.bus.Dispatch(ctx, method, params, idempotencyKey, claims)
}
