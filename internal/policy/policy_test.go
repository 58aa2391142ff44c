package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

func TestEvaluate_Disabled_DeniesAll(t *testing.T) {
	e := New(nil)
	agent := &store.Agent{DMPolicy: store.DMPolicyDisabled}

	d := e.Evaluate(context.Background(), agent, Context{SenderUserID: "u1"})
	assert.False(t, d.Allowed)

	d = e.Evaluate(context.Background(), agent, Context{SenderUserID: "u1", IsGroup: true})
	assert.False(t, d.Allowed)
}

func TestEvaluate_Monotonicity(t *testing.T) {
	// §8: for identical context, open ⊇ allowlist ⊇ pairing for a sender
	// that is neither allowlisted nor paired.
	e := New(nil)
	ctx := context.Background()
	msgCtx := Context{SenderUserID: "stranger", Channel: "telegram", AccountID: "acct", Peer: "p1"}

	open := &store.Agent{DMPolicy: store.DMPolicyOpen}
	allowlist := &store.Agent{DMPolicy: store.DMPolicyAllowlist, AllowedUserIDs: []string{"someone-else"}}
	pairing := &store.Agent{DMPolicy: store.DMPolicyPairing, AllowedUserIDs: []string{"someone-else"}}

	dOpen := e.Evaluate(ctx, open, msgCtx)
	dAllow := e.Evaluate(ctx, allowlist, msgCtx)
	dPair := e.Evaluate(ctx, pairing, msgCtx)

	assert.True(t, dOpen.Allowed)
	assert.False(t, dAllow.Allowed)
	assert.False(t, dPair.Allowed)
	// open allows the superset; neither allowlist nor pairing allow this
	// stranger, consistent with allowlist ⊇ pairing on the denied side.
}

func TestEvaluate_Allowlist_AllowsMember(t *testing.T) {
	e := New(nil)
	agent := &store.Agent{DMPolicy: store.DMPolicyAllowlist, AllowedUserIDs: []string{"u1"}}
	d := e.Evaluate(context.Background(), agent, Context{SenderUserID: "u1"})
	assert.True(t, d.Allowed)
}

func TestEvaluate_Open_GroupRequiresMention(t *testing.T) {
	e := New(nil)
	agent := &store.Agent{DMPolicy: store.DMPolicyOpen, GroupRequiresMention: true}

	d := e.Evaluate(context.Background(), agent, Context{IsGroup: true, BotMentioned: false})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonMentionRequired, d.Reason)

	d = e.Evaluate(context.Background(), agent, Context{IsGroup: true, BotMentioned: true})
	assert.True(t, d.Allowed)
}

type fakePairings struct {
	paired    bool
	requested bool
}

func (f *fakePairings) IsPaired(_ context.Context, _, _, _ string) (bool, error) {
	return f.paired, nil
}

func (f *fakePairings) RequestPairing(_ context.Context, _, _, _ string) error {
	f.requested = true
	return nil
}

func TestEvaluate_Pairing_PairedAllowed(t *testing.T) {
	fp := &fakePairings{paired: true}
	e := New(fp)
	agent := &store.Agent{DMPolicy: store.DMPolicyPairing}
	d := e.Evaluate(context.Background(), agent, Context{SenderUserID: "u1", Channel: "telegram"})
	assert.True(t, d.Allowed)
}

func TestEvaluate_Pairing_UnpairedRequestsAndDenies(t *testing.T) {
	fp := &fakePairings{paired: false}
	e := New(fp)
	agent := &store.Agent{DMPolicy: store.DMPolicyPairing}
	d := e.Evaluate(context.Background(), agent, Context{SenderUserID: "u1", Channel: "telegram"})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonPairingRequested, d.Reason)
	assert.True(t, fp.requested)
}
