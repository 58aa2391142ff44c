package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/prime-gateway/internal/apperr"
	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

type fakeStore struct {
	rows map[string]*store.IdempotencyKey
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]*store.IdempotencyKey)}
}

func rowKey(key, actorID string) string { return actorID + "/" + key }

func (f *fakeStore) Get(_ context.Context, key, actorID string) (*store.IdempotencyKey, error) {
	row, ok := f.rows[rowKey(key, actorID)]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (f *fakeStore) Insert(_ context.Context, row *store.IdempotencyKey) error {
	k := rowKey(row.Key, row.ActorID)
	if existing, ok := f.rows[k]; ok && !existing.ExpiresAt.Before(time.Now()) {
		return assert.AnError
	}
	cp := *row
	f.rows[k] = &cp
	return nil
}

func (f *fakeStore) Complete(_ context.Context, key, actorID string, response []byte) error {
	row := f.rows[rowKey(key, actorID)]
	row.Status = store.IdemCompleted
	row.Response = response
	return nil
}

func (f *fakeStore) Fail(_ context.Context, key, actorID, reason string) error {
	row := f.rows[rowKey(key, actorID)]
	row.Status = store.IdemFailed
	return nil
}

func TestReserveOrGet_ReplayAfterComplete(t *testing.T) {
	svc := New(newFakeStore())
	ctx := context.Background()
	params := map[string]interface{}{"a": 1, "b": "x"}

	resp, err := svc.ReserveOrGet(ctx, "K1", "actor1", "tasks.create", params)
	require.NoError(t, err)
	require.Nil(t, resp)

	require.NoError(t, svc.Complete(ctx, "K1", "actor1", []byte(`{"task_id":"X"}`)))

	resp, err = svc.ReserveOrGet(ctx, "K1", "actor1", "tasks.create", params)
	require.NoError(t, err)
	assert.Equal(t, `{"task_id":"X"}`, string(resp))
}

func TestReserveOrGet_ConflictOnDifferentParams(t *testing.T) {
	svc := New(newFakeStore())
	ctx := context.Background()

	_, err := svc.ReserveOrGet(ctx, "K1", "actor1", "tasks.create", map[string]interface{}{"a": 1})
	require.NoError(t, err)
	require.NoError(t, svc.Complete(ctx, "K1", "actor1", []byte(`{}`)))

	_, err = svc.ReserveOrGet(ctx, "K1", "actor1", "tasks.create", map[string]interface{}{"a": 2})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Idempotency))
}

func TestReserveOrGet_InProgress(t *testing.T) {
	svc := New(newFakeStore())
	ctx := context.Background()
	params := map[string]interface{}{"a": 1}

	_, err := svc.ReserveOrGet(ctx, "K1", "actor1", "tasks.create", params)
	require.NoError(t, err)

	_, err = svc.ReserveOrGet(ctx, "K1", "actor1", "tasks.create", params)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Idempotency))
}

func TestCanonicalHash_KeyOrderIndependent(t *testing.T) {
	h1, err := CanonicalHash(map[string]interface{}{"a": 1, "b": 2})
	require.NoError(t, err)
	h2, err := CanonicalHash(map[string]interface{}{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := CanonicalHash(map[string]interface{}{"a": 1, "b": 3})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
