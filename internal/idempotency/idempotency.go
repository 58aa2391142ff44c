// Package idempotency implements at-most-once side-effect dispatch keyed
// by a client-chosen idempotency key (C2, spec §4.2).
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/nextlevelbuilder/prime-gateway/internal/apperr"
	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

// DefaultTTL is how long an idempotency row is honored before being
// treated as absent.
const DefaultTTL = 24 * time.Hour

// Service guards side-effecting command-bus methods against duplicate
// execution.
type Service struct {
	store store.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

// New constructs a Service backed by the given store.
func New(s store.IdempotencyStore) *Service {
	return &Service{store: s, ttl: DefaultTTL, now: time.Now}
}

// CanonicalHash computes SHA-256 over the canonical (sorted-key) JSON
// encoding of params, per §4.2.
func CanonicalHash(params interface{}) (string, error) {
	canonical, err := canonicalJSON(params)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON re-marshals arbitrary JSON-able data with map keys sorted,
// so that two structurally-equal params values hash identically regardless
// of field/key order.
func canonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return marshalSorted(generic)
}

func marshalSorted(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, _ := json.Marshal(k)
			buf = append(buf, kb...)
			buf = append(buf, ':')
			vb, err := marshalSorted(val[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, vb...)
		}
		buf = append(buf, '}')
		return buf, nil
	case []interface{}:
		buf := []byte{'['}
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			ib, err := marshalSorted(item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, ib...)
		}
		buf = append(buf, ']')
		return buf, nil
	default:
		return json.Marshal(val)
	}
}

// ReserveOrGet reserves (key, actorID) for method with params, or returns
// the replayed response of a prior completed call. A nil response with a
// nil error means the caller proceeds and must later call Complete or
// Fail. apperr.Idempotency errors distinguish Conflict from InProgress.
func (s *Service) ReserveOrGet(ctx context.Context, key, actorID, method string, params interface{}) ([]byte, error) {
	hash, err := CanonicalHash(params)
	if err != nil {
		return nil, apperr.E(apperr.Input, "params not serializable", err)
	}

	row, err := s.store.Get(ctx, key, actorID)
	if err != nil {
		return nil, apperr.E(apperr.Internal, "idempotency lookup failed", err)
	}

	if row != nil && !s.expired(row) {
		if row.RequestHash != hash {
			return nil, apperr.E(apperr.Idempotency, "conflict", nil)
		}
		switch row.Status {
		case store.IdemCompleted:
			return row.Response, nil
		case store.IdemInProgress:
			return nil, apperr.E(apperr.Idempotency, "in_progress", nil)
		case store.IdemFailed:
			// A prior failed attempt does not block retry with identical
			// params; fall through to re-reserve.
		}
	}

	newRow := &store.IdempotencyKey{
		Key:         key,
		ActorID:     actorID,
		Method:      method,
		RequestHash: hash,
		Status:      store.IdemInProgress,
		ExpiresAt:   s.now().Add(s.ttl),
	}
	if err := s.store.Insert(ctx, newRow); err != nil {
		// Lost the race to a concurrent reserver: re-read and resolve as
		// above rather than surfacing a raw insert-conflict error.
		row, readErr := s.store.Get(ctx, key, actorID)
		if readErr != nil || row == nil {
			return nil, apperr.E(apperr.Internal, "idempotency reserve race", err)
		}
		if row.RequestHash != hash {
			return nil, apperr.E(apperr.Idempotency, "conflict", nil)
		}
		if row.Status == store.IdemCompleted {
			return row.Response, nil
		}
		return nil, apperr.E(apperr.Idempotency, "in_progress", nil)
	}

	return nil, nil
}

// Complete records a successful response for replay.
func (s *Service) Complete(ctx context.Context, key, actorID string, response []byte) error {
	return s.store.Complete(ctx, key, actorID, response)
}

// Fail records a failed attempt; a subsequent ReserveOrGet with identical
// params is free to retry.
func (s *Service) Fail(ctx context.Context, key, actorID, reason string) error {
	return s.store.Fail(ctx, key, actorID, reason)
}

func (s *Service) expired(row *store.IdempotencyKey) bool {
	return !row.ExpiresAt.IsZero() && s.now().After(row.ExpiresAt)
}
