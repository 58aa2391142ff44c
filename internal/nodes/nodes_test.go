package nodes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/prime-gateway/internal/bus"
	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

type fakeExecStore struct {
	rows map[string]*store.NodeExecution
}

func newFakeExecStore() *fakeExecStore {
	return &fakeExecStore{rows: make(map[string]*store.NodeExecution)}
}

func (f *fakeExecStore) Get(_ context.Context, id string) (*store.NodeExecution, error) {
	return f.rows[id], nil
}

func (f *fakeExecStore) Create(_ context.Context, e *store.NodeExecution) error {
	f.rows[e.ID] = e
	return nil
}

func (f *fakeExecStore) CompareAndSetStatus(_ context.Context, id string, from, to store.NodeExecStatus, mutate func(*store.NodeExecution)) error {
	row, ok := f.rows[id]
	if !ok || row.Status != from {
		return assert.AnError
	}
	mutate(row)
	row.Status = to
	return nil
}

type fakeApprovalStore struct {
	rows map[string]*store.NodeApprovalQueue
}

func newFakeApprovalStore() *fakeApprovalStore {
	return &fakeApprovalStore{rows: make(map[string]*store.NodeApprovalQueue)}
}

func (f *fakeApprovalStore) Get(_ context.Context, id string) (*store.NodeApprovalQueue, error) {
	return f.rows[id], nil
}

func (f *fakeApprovalStore) Create(_ context.Context, q *store.NodeApprovalQueue) error {
	f.rows[q.ID] = q
	return nil
}

func (f *fakeApprovalStore) ListPending(_ context.Context) ([]*store.NodeApprovalQueue, error) {
	var out []*store.NodeApprovalQueue
	for _, q := range f.rows {
		if q.Status == store.ApprovalPending {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeApprovalStore) CompareAndSetStatus(_ context.Context, id string, from, to store.ApprovalStatus, mutate func(*store.NodeApprovalQueue)) (*store.NodeApprovalQueue, error) {
	row, ok := f.rows[id]
	if !ok || row.Status != from {
		return nil, assert.AnError
	}
	mutate(row)
	row.Status = to
	return row, nil
}

type recordingBus struct {
	events []string
}

func (r *recordingBus) Publish(topic string, _ interface{}) {
	r.events = append(r.events, topic)
}

func TestRequestExecution_LowRiskTrustedAutoApproves(t *testing.T) {
	execs := newFakeExecStore()
	approvals := newFakeApprovalStore()
	rb := &recordingBus{}
	svc := New(execs, approvals, rb, nil, false)

	result, err := svc.RequestExecution(context.Background(), RequestParams{
		NodeID:   "node-1",
		NodeCaps: []string{"exec", "trusted"},
		Command:  "ls",
		Args:     "-la",
	})
	require.NoError(t, err)
	assert.Equal(t, "approved", result.Status)
	assert.False(t, result.RequiresApproval)
	assert.Contains(t, rb.events, bus.TopicNodeExecApproved)
}

func TestRequestExecution_CriticalRiskQueuesForApproval(t *testing.T) {
	execs := newFakeExecStore()
	approvals := newFakeApprovalStore()
	rb := &recordingBus{}
	svc := New(execs, approvals, rb, nil, false)

	result, err := svc.RequestExecution(context.Background(), RequestParams{
		NodeID:   "node-1",
		NodeCaps: []string{"exec", "exec.critical"},
		Command:  "rm",
		Args:     "-rf /tmp/x",
	})
	require.NoError(t, err)
	assert.Equal(t, "pending_approval", result.Status)
	assert.True(t, result.RequiresApproval)
	assert.NotEmpty(t, result.ApprovalQueueID)
	assert.Contains(t, rb.events, bus.TopicNodeExecPendingApproval)

	queued := approvals.rows[result.ApprovalQueueID]
	require.NotNil(t, queued)
	assert.Equal(t, store.RiskCritical, queued.RiskLevel)
}

func TestRequestExecution_MissingCapabilityRejects(t *testing.T) {
	execs := newFakeExecStore()
	approvals := newFakeApprovalStore()
	svc := New(execs, approvals, &recordingBus{}, nil, false)

	result, err := svc.RequestExecution(context.Background(), RequestParams{
		NodeID:   "node-1",
		NodeCaps: []string{"exec"},
		Command:  "rm",
		Args:     "-rf /tmp/x",
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "rejected", result.Status)
}

func TestApproveExecution_StateMachine_NoSkipApproved(t *testing.T) {
	execs := newFakeExecStore()
	approvals := newFakeApprovalStore()
	rb := &recordingBus{}
	svc := New(execs, approvals, rb, nil, false)

	req, err := svc.RequestExecution(context.Background(), RequestParams{
		NodeID:   "node-1",
		NodeCaps: []string{"exec", "exec.high"},
		Command:  "sudo",
		Args:     "apt-get update",
	})
	require.NoError(t, err)
	require.True(t, req.RequiresApproval)

	// Cannot run before approval.
	_, err = svc.ExecuteApproved(context.Background(), req.ExecutionID)
	assert.Error(t, err)

	res, err := svc.ApproveExecution(context.Background(), req.ApprovalQueueID, "operator-1", "looks fine")
	require.NoError(t, err)
	assert.Equal(t, "approved", res.Status)
	assert.Equal(t, store.NodeExecApproved, execs.rows[req.ExecutionID].Status)

	// Double-approve fails.
	_, err = svc.ApproveExecution(context.Background(), req.ApprovalQueueID, "operator-1", "")
	assert.Error(t, err)
}

func TestApproveExecution_ExpiredCannotBeApproved(t *testing.T) {
	execs := newFakeExecStore()
	approvals := newFakeApprovalStore()
	svc := New(execs, approvals, &recordingBus{}, nil, false)
	svc.now = func() time.Time { return time.Unix(0, 0) }

	req, err := svc.RequestExecution(context.Background(), RequestParams{
		NodeID:   "node-1",
		NodeCaps: []string{"exec", "exec.high"},
		Command:  "sudo",
		Args:     "reboot",
	})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Unix(0, 0).Add(25 * time.Hour) }
	_, err = svc.ApproveExecution(context.Background(), req.ApprovalQueueID, "operator-1", "")
	assert.Error(t, err)
	assert.Equal(t, store.ApprovalExpired, approvals.rows[req.ApprovalQueueID].Status)
}

func TestExecuteApproved_RunsAndRecordsExitCode(t *testing.T) {
	execs := newFakeExecStore()
	approvals := newFakeApprovalStore()
	rb := &recordingBus{}
	svc := New(execs, approvals, rb, nil, true) // auto-approve-all, low risk

	req, err := svc.RequestExecution(context.Background(), RequestParams{
		NodeID:   "node-1",
		NodeCaps: []string{"exec"},
		Command:  "echo",
		Args:     "hello",
	})
	require.NoError(t, err)
	require.Equal(t, "approved", req.Status)

	result, err := svc.ExecuteApproved(context.Background(), req.ExecutionID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "completed", result.Status)
	assert.Contains(t, result.Stdout, "hello")
	assert.Contains(t, rb.events, bus.TopicNodeExecCompleted)
}

func TestListPendingApprovals_ExcludesExpired(t *testing.T) {
	execs := newFakeExecStore()
	approvals := newFakeApprovalStore()
	svc := New(execs, approvals, &recordingBus{}, nil, false)

	approvals.rows["q1"] = &store.NodeApprovalQueue{ID: "q1", Status: store.ApprovalPending, ExpiresAt: time.Now().Add(time.Hour)}
	approvals.rows["q2"] = &store.NodeApprovalQueue{ID: "q2", Status: store.ApprovalPending, ExpiresAt: time.Now().Add(-time.Hour)}

	pending, err := svc.ListPendingApprovals(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "q1", pending[0].ID)
}
