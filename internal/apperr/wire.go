package apperr

import (
	"errors"

	"github.com/nextlevelbuilder/prime-gateway/pkg/protocol"
)

// WireCode maps an apperr.Code to the gateway's wire error code (§6, §7).
// Idempotency carries three distinct wire codes depending on the specific
// failure (required/conflict/in_progress); use WireCodeForErr when the
// original error is available to get that distinction.
func WireCode(code Code) string {
	switch code {
	case Auth:
		return protocol.ErrAuthFailed
	case Input:
		return protocol.ErrProtocolError
	case Idempotency:
		return protocol.ErrIdempotencyConflict
	case NotFound:
		return protocol.ErrNotFound
	case Capability, Policy:
		return protocol.ErrScopeDenied
	case Upstream, Internal:
		return protocol.ErrCommandFailed
	default:
		return protocol.ErrCommandFailed
	}
}

// WireCodeForErr maps err to a wire error code, distinguishing the three
// Idempotency sub-cases by the classified error's Message (set by
// internal/idempotency and internal/commandbus to "required", "conflict",
// or "in_progress").
func WireCodeForErr(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code == Idempotency {
		switch e.Message {
		case "required":
			return protocol.ErrIdempotencyRequired
		case "in_progress":
			return protocol.ErrIdempotencyInProgress
		default:
			return protocol.ErrIdempotencyConflict
		}
	}
	return WireCode(CodeOf(err))
}

// HTTPStatus maps an apperr.Code to a REST status code (§6).
func HTTPStatus(code Code) int {
	switch code {
	case Input:
		return 400
	case Auth:
		return 401
	case Capability, Policy:
		return 403
	case NotFound:
		return 404
	case Idempotency:
		return 409
	case Upstream:
		return 502
	default:
		return 500
	}
}
