package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

type fakeCronStore struct {
	jobs    []*store.CronJob
	lastRun map[string]time.Time
}

func (f *fakeCronStore) List(ctx context.Context, orgID string) ([]*store.CronJob, error) { return f.jobs, nil }
func (f *fakeCronStore) Create(ctx context.Context, j *store.CronJob) error               { f.jobs = append(f.jobs, j); return nil }
func (f *fakeCronStore) Delete(ctx context.Context, id string) error                      { return nil }
func (f *fakeCronStore) SetActive(ctx context.Context, id string, active bool) error      { return nil }
func (f *fakeCronStore) MarkRun(ctx context.Context, id string, at time.Time) error {
	if f.lastRun == nil {
		f.lastRun = map[string]time.Time{}
	}
	f.lastRun[id] = at
	return nil
}

type fakeRunner struct {
	calls atomic.Int32
	fail  bool
}

func (r *fakeRunner) RunCronTurn(ctx context.Context, agentID, message, sessionKey string) error {
	r.calls.Add(1)
	if r.fail {
		return assert.AnError
	}
	return nil
}

func TestTickOnce_FiresDueJobOnly(t *testing.T) {
	now := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	st := &fakeCronStore{jobs: []*store.CronJob{
		{ID: "j1", Schedule: "0 9 * * *", Message: "good morning", AgentID: "a1", Active: true},
		{ID: "j2", Schedule: "0 10 * * *", Message: "not due", AgentID: "a1", Active: true},
		{ID: "j3", Schedule: "0 9 * * *", Message: "inactive", AgentID: "a1", Active: false},
	}}
	runner := &fakeRunner{}
	s := New(st, runner, "org1")

	s.tickOnce(context.Background(), now)

	assert.Equal(t, int32(1), runner.calls.Load())
	_, ran := st.lastRun["j1"]
	assert.True(t, ran)
}

func TestTickOnce_FailedJobStaysActive(t *testing.T) {
	now := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	st := &fakeCronStore{jobs: []*store.CronJob{
		{ID: "j1", Schedule: "0 9 * * *", Message: "x", AgentID: "a1", Active: true},
	}}
	runner := &fakeRunner{fail: true}
	s := New(st, runner, "org1")

	require.NotPanics(t, func() { s.tickOnce(context.Background(), now) })
	assert.True(t, st.jobs[0].Active, "failed execution must not disable the job")
}
