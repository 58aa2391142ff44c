package commandbus

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/prime-gateway/internal/apperr"
)

func echoHandler(_ context.Context, params json.RawMessage, _ Claims) (interface{}, error) {
	var p map[string]interface{}
	_ = json.Unmarshal(params, &p)
	return p, nil
}

func TestDispatch_UnknownMethod(t *testing.T) {
	b := New(nil)
	_, err := b.Dispatch(context.Background(), "nope.go", nil, "", Claims{})
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.CodeOf(err))
}

func TestDispatch_ScopeDenied(t *testing.T) {
	b := New(nil)
	b.Register("thing.read", "thing.read", false, echoHandler)
	_, err := b.Dispatch(context.Background(), "thing.read", nil, "", Claims{Scopes: []string{"other.read"}})
	require.Error(t, err)
	assert.Equal(t, apperr.Capability, apperr.CodeOf(err))
}

func TestDispatch_ReadMethodNoIdempotencyRequired(t *testing.T) {
	b := New(nil)
	b.Register("thing.read", "thing.read", false, echoHandler)
	result, err := b.Dispatch(context.Background(), "thing.read", json.RawMessage(`{"a":1}`), "", Claims{Scopes: []string{"thing.read"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, result)
}

func TestDispatch_SideEffectMissingKeyRequiresIdempotency(t *testing.T) {
	b := New(nil)
	calls := 0
	b.Register("thing.write", "thing.write", true, func(ctx context.Context, params json.RawMessage, claims Claims) (interface{}, error) {
		calls++
		return map[string]string{"ok": "yes"}, nil
	})
	_, err := b.Dispatch(context.Background(), "thing.write", nil, "", Claims{Scopes: []string{"thing.write"}})
	require.Error(t, err)
	assert.Equal(t, apperr.Idempotency, apperr.CodeOf(err))
	assert.Equal(t, 0, calls)
}
