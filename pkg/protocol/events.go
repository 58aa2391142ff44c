package protocol

// WebSocket event names pushed from server to client (§4.1, §4.12 of the
// platform spec).
const (
	EventConnectChallenge = "connect.challenge"
	EventPresenceConnect  = "presence.connected"
	EventHeartbeat        = "heartbeat"

	EventStreamStart = "stream.start"
	EventStreamChunk = "stream.chunk"
	EventStreamEnd   = "stream.end"
	EventStreamError = "stream.error"

	EventTaskUpdated = "task.updated"

	EventNodeExecPendingApproval = "node.execution.pending_approval"
	EventNodeExecApproved        = "node.execution.approved"
	EventNodeExecRejected        = "node.execution.rejected"
	EventNodeExecStarted         = "node.execution.started"
	EventNodeExecCompleted       = "node.execution.completed"
	EventNodeExecFailed          = "node.execution.failed"
)
