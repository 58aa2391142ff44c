// Package cron implements the time-driven half of C14 (spec §4.13): a
// scheduler that loads active CronJob rows on start and fires the agent
// runner with each job's stored message as a user turn against a
// synthetic session, once per matching minute. Ported from
// original_source/backend/app/services/cron_service.py (APScheduler-based
// in the source; this rewrite uses github.com/adhocore/gronx for 5-field
// cron matching, already in the teacher's go.mod for this purpose).
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/nextlevelbuilder/prime-gateway/internal/sessions"
	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

// Runner fires one agent turn for a cron job. Implemented by
// internal/agent.Router in production; kept narrow so this package doesn't
// need to know about sessions, providers, or streaming.
type Runner interface {
	RunCronTurn(ctx context.Context, agentID, message, sessionKey string) error
}

// Scheduler polls active jobs every tick and fires due ones exactly once
// per matching minute (gronx.IsDue is minute-resolution, matching the
// 5-field cron format named in §4.13).
type Scheduler struct {
	store  store.CronStore
	runner Runner
	gron   gronx.Gronx
	orgID  string

	tick time.Duration
}

// New constructs a Scheduler. orgID scopes which jobs are loaded (a
// deployment profile with a single org passes its id; multi-org
// deployments run one Scheduler per org).
func New(cronStore store.CronStore, runner Runner, orgID string) *Scheduler {
	return &Scheduler{
		store:  cronStore,
		runner: runner,
		gron:   gronx.New(),
		orgID:  orgID,
		tick:   time.Minute,
	}
}

// Run loads active jobs and checks them every tick until ctx is canceled.
// A job whose execution fails is logged and left active — failures never
// disable a job (§4.13).
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	slog.Info("cron scheduler started", "tick", s.tick)
	for {
		select {
		case <-ctx.Done():
			slog.Info("cron scheduler stopped")
			return
		case now := <-ticker.C:
			s.tickOnce(ctx, now)
		}
	}
}

func (s *Scheduler) tickOnce(ctx context.Context, now time.Time) {
	jobs, err := s.store.List(ctx, s.orgID)
	if err != nil {
		slog.Warn("cron: failed to list jobs", "error", err)
		return
	}

	for _, job := range jobs {
		if !job.Active {
			continue
		}
		due, err := s.gron.IsDue(job.Schedule, now.UTC())
		if err != nil {
			slog.Warn("cron: invalid schedule, skipping", "job", job.ID, "schedule", job.Schedule, "error", err)
			continue
		}
		if !due {
			continue
		}
		s.fire(ctx, job, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, job *store.CronJob, now time.Time) {
	sessionKey := sessions.BuildCronSessionKey(job.AgentID, job.ID, now.UTC().Format("2006-01-02T15:04"))
	slog.Info("cron: firing job", "job", job.ID, "name", job.Name, "agent", job.AgentID)

	if err := s.runner.RunCronTurn(ctx, job.AgentID, job.Message, sessionKey); err != nil {
		slog.Error("cron: job execution failed", "job", job.ID, "error", err)
		// Failures never disable the job (§4.13).
	}

	if err := s.store.MarkRun(ctx, job.ID, now.UTC()); err != nil {
		slog.Warn("cron: failed to record last_run", "job", job.ID, "error", err)
	}
}

// NewJobID returns a fresh opaque job identifier.
func NewJobID() string {
	return uuid.Must(uuid.NewV7()).String()
}
