package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

type fakeBindingStore struct {
	bindings []*store.Binding
}

func (f *fakeBindingStore) ActiveForChannel(_ context.Context, channel string) ([]*store.Binding, error) {
	var out []*store.Binding
	for _, b := range f.bindings {
		if b.Channel == channel {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBindingStore) Create(_ context.Context, b *store.Binding) error { return nil }
func (f *fakeBindingStore) Update(_ context.Context, b *store.Binding) error { return nil }
func (f *fakeBindingStore) Delete(_ context.Context, id string) error       { return nil }

func TestResolve_SpecificityBeatsPriority(t *testing.T) {
	// Scenario 5 from spec §8: peer-specific binding wins over a wildcard
	// binding despite a higher (less-preferred) priority number.
	wildcard := &store.Binding{ID: "b1", Channel: "telegram", BotID: "B", Priority: 100, Active: true}
	specific := &store.Binding{
		ID: "b2", Channel: "telegram", BotID: "B", Priority: 200, Active: true,
		Peer: &store.BindingPeer{Kind: "user", ID: "12345"},
	}
	fs := &fakeBindingStore{bindings: []*store.Binding{wildcard, specific}}
	r := New(fs)

	got, err := r.Resolve(context.Background(), Input{Channel: "telegram", BotID: "B", Peer: "user:12345"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "b2", got.ID)
}

func TestResolve_NoMatch(t *testing.T) {
	fs := &fakeBindingStore{}
	r := New(fs)
	got, err := r.Resolve(context.Background(), Input{Channel: "telegram", BotID: "B", Peer: "user:1"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolve_TieBreakByID(t *testing.T) {
	b1 := &store.Binding{ID: "b-aaa", Channel: "telegram", Priority: 10, Active: true}
	b2 := &store.Binding{ID: "b-bbb", Channel: "telegram", Priority: 10, Active: true}
	fs := &fakeBindingStore{bindings: []*store.Binding{b2, b1}}
	r := New(fs)

	got, err := r.Resolve(context.Background(), Input{Channel: "telegram"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "b-aaa", got.ID)
}

func TestResolve_InactiveIgnored(t *testing.T) {
	b1 := &store.Binding{ID: "b1", Channel: "telegram", Priority: 1, Active: false}
	fs := &fakeBindingStore{bindings: []*store.Binding{b1}}
	r := New(fs)

	got, err := r.Resolve(context.Background(), Input{Channel: "telegram"})
	require.NoError(t, err)
	assert.Nil(t, got)
}
