package protocol

// RPC method name constants (§4.11, §6 of the platform spec). The Command
// Bus (internal/commandbus/handlers.go) registers health, tasks.*,
// bindings.resolve and policy.dm_check; the node.* names are not registered
// with it. "connect" is handled by the gateway during the handshake.
const (
	MethodConnect = "connect"
	MethodHealth  = "health.get"

	MethodTasksList   = "tasks.list"
	MethodTasksCreate = "tasks.create"
	MethodTasksRetry  = "tasks.retry"

	MethodBindingsResolve = "bindings.resolve"
	MethodPolicyDMCheck   = "policy.dm_check"

	MethodNodeExecRequest   = "node.exec.request"
	MethodNodeExecApprove   = "node.exec.approve"
	MethodNodeExecReject    = "node.exec.reject"
	MethodNodeApprovalsList = "node.approvals.list"
	MethodNodeExecStatus    = "node.exec.status"
)

// Error codes carried on ErrorFrame.Code (§6, §7).
const (
	ErrAuthFailed            = "auth_failed"
	ErrProtocolError         = "protocol_error"
	ErrIdempotencyRequired   = "idempotency_required"
	ErrIdempotencyConflict   = "idempotency_conflict"
	ErrIdempotencyInProgress = "idempotency_in_progress"
	ErrScopeDenied           = "scope_denied"
	ErrCommandFailed         = "command_failed"
	ErrNotFound              = "not_found"
)

// ConnectParams is the payload of the client's "connect" request, sent in
// reply to the server's connect.challenge event.
type ConnectParams struct {
	Nonce       string      `json:"nonce"`
	Token       string      `json:"token,omitempty"`
	Auth        *AuthParams `json:"auth,omitempty"`
	Client      ClientInfo  `json:"client"`
	MinProtocol int         `json:"minProtocol"`
	MaxProtocol int         `json:"maxProtocol"`
}

// AuthParams carries password-style auth as an alternative to a bearer token.
type AuthParams struct {
	Password string `json:"password,omitempty"`
}

// ClientInfo self-describes the connecting client.
type ClientInfo struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
}

// ChallengePayload is sent immediately after the WS upgrade, before any
// request is accepted.
type ChallengePayload struct {
	Nonce string `json:"nonce"`
}

// ConnectResult is returned in the res frame answering "connect".
type ConnectResult struct {
	ConnectionID string `json:"connection_id"`
	User         string `json:"user,omitempty"`
}
