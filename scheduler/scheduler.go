/*
Package scheduler implements the Nightly Scheduler (spec §4.7): a
single-threaded, cooperatively sequenced pipeline (Backup → Penalty
refresh → Exchange-rate fetch), each task under its own timeout,
serialized across instances by a persisted lease document, finishing
in a Run Log document with a per-task outcome and an overall
success/partial_failure status.

Grounded on the teacher's api/scheduler.go (ReconciliationScheduler:
ticker-driven run loop, per-entity run records, "already done" guard),
generalized from an in-process isRunning bool and a ticker-driven
reconciliation sweep to a persisted lease document and a fixed ordered
task pipeline, because this scheduler must survive process restarts
and coordinate across multiple instances (spec §4.7 "only one
scheduler instance is permitted to run at a time").
*/
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/condomx/billing-core/audit"
	"github.com/condomx/billing-core/coreerr"
	"github.com/condomx/billing-core/money"
	"github.com/condomx/billing-core/store"
)

// schedulerClientID is the audit trail's client scope for operator-wide
// events (lease acquisition, run start/finish) that are not specific to
// any one client.
const schedulerClientID = "_system"

const leasePath = store.Path("system/nightlyScheduler/lease")

// Default per-task timeouts (spec §4.7).
const (
	DefaultBackupTimeout       = 8 * time.Minute
	DefaultPenaltyTimeout      = 1 * time.Minute
	DefaultExchangeRateTimeout = 2 * time.Minute

	// DefaultLeaseTTL bounds how long a crashed instance can hold the
	// lease before another instance is allowed to take over (§C of
	// SPEC_FULL.md's lease-renewal supplement).
	DefaultLeaseTTL = 30 * time.Minute
)

// TaskOutcome is one task's result inside a Run Log.
type TaskOutcome struct {
	Name      string `json:"name"`
	Status    string `json:"status"` // "success" | "failed" | "skipped"
	Error     string `json:"error,omitempty"`
	StartedAt string `json:"startedAt"`
	EndedAt   string `json:"endedAt"`
}

// RunLog is the scheduler's persisted per-run document (spec §6.2
// /system/nightlyScheduler/runs/{YYYY-MM-DD}).
type RunLog struct {
	RunID     string        `json:"runId"`
	Date      string        `json:"date"`
	Status    string        `json:"status"` // "success" | "partial_failure"
	Tasks     []TaskOutcome `json:"tasks"`
	StartedAt string        `json:"startedAt"`
	EndedAt   string        `json:"endedAt"`
}

// Lease is the single-instance-enforcement document.
type Lease struct {
	Token     string `json:"token"`
	AcquiredAt string `json:"acquiredAt"`
	ExpiresAt string `json:"expiresAt"`
}

// Task is one pipeline step. Run must respect ctx's deadline.
type Task struct {
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler runs the ordered task pipeline once per invocation,
// enforcing the single-instance lease and writing the Run Log.
type Scheduler struct {
	Store    store.Store
	Clock    money.Clock
	Logger   zerolog.Logger
	LeaseTTL time.Duration
	Tasks    []Task
	Audit    audit.Sink
}

func New(s store.Store, clock money.Clock, logger zerolog.Logger, tasks []Task) *Scheduler {
	return &Scheduler{Store: s, Clock: clock, Logger: logger, LeaseTTL: DefaultLeaseTTL, Tasks: tasks, Audit: audit.NewStoreSink(s)}
}

// RunOnce acquires the lease, runs every task in order regardless of
// individual task failure, releases the lease, and writes the Run Log.
// It returns PartialFailure (never a task's own error) if any task
// failed, so the caller can distinguish "ran with issues" from "could
// not run at all" (lease unavailable, store unreachable).
func (s *Scheduler) RunOnce(ctx context.Context) (RunLog, error) {
	now := s.Clock.Now()
	date := money.ISODate(now)

	acquired, err := s.acquireLease(ctx, now)
	if err != nil {
		return RunLog{}, err
	}
	if !acquired {
		return RunLog{}, coreerr.New(coreerr.Conflict, "nightly scheduler: lease held by another instance")
	}
	defer s.releaseLease(ctx)

	run := RunLog{
		RunID:     uuid.NewString(),
		Date:      date,
		StartedAt: now.Format(time.RFC3339),
	}

	s.Audit.Append(ctx, audit.Entry{
		ID: uuid.NewString(), At: run.StartedAt, ActorID: "system",
		Action: audit.ActionSchedulerRunStart, ClientID: schedulerClientID,
		Payload: map[string]any{"runId": run.RunID},
	})

	overallOK := true
	for _, task := range s.Tasks {
		if err := ctx.Err(); err != nil {
			run.Tasks = append(run.Tasks, TaskOutcome{Name: task.Name, Status: "skipped", Error: err.Error()})
			overallOK = false
			continue
		}

		taskCtx, cancel := context.WithTimeout(ctx, task.Timeout)
		startedAt := s.Clock.Now()
		taskErr := task.Run(taskCtx)
		cancel()
		endedAt := s.Clock.Now()

		outcome := TaskOutcome{
			Name:      task.Name,
			StartedAt: startedAt.Format(time.RFC3339),
			EndedAt:   endedAt.Format(time.RFC3339),
		}
		if taskErr != nil {
			outcome.Status = "failed"
			outcome.Error = taskErr.Error()
			overallOK = false
			s.Logger.Error().Str("task", task.Name).Err(taskErr).Msg("nightly scheduler task failed")
		} else {
			outcome.Status = "success"
			s.Logger.Info().Str("task", task.Name).Msg("nightly scheduler task succeeded")
		}
		run.Tasks = append(run.Tasks, outcome)
	}

	if overallOK {
		run.Status = "success"
	} else {
		run.Status = "partial_failure"
	}
	run.EndedAt = s.Clock.Now().Format(time.RFC3339)

	runPath := store.Path("system/nightlyScheduler/runs/" + date)
	if err := s.Store.Set(ctx, runPath, run, store.SetOptions{}); err != nil {
		return run, err
	}

	s.Audit.Append(ctx, audit.Entry{
		ID: uuid.NewString(), At: run.EndedAt, ActorID: "system",
		Action: audit.ActionSchedulerRunFinish, ClientID: schedulerClientID,
		Payload: map[string]any{"runId": run.RunID, "status": run.Status},
	})

	if !overallOK {
		return run, coreerr.New(coreerr.PartialFailure, "nightly scheduler: one or more tasks failed")
	}
	return run, nil
}

// acquireLease writes the lease document only if none exists or the
// existing one has expired, using a Conflict-safe Set (no Merge) so a
// racing instance's write loses if it lands first.
func (s *Scheduler) acquireLease(ctx context.Context, now time.Time) (bool, error) {
	var existing Lease
	exists, err := s.Store.Get(ctx, leasePath, &existing)
	if err != nil {
		return false, err
	}
	if exists {
		expiresAt, parseErr := time.Parse(time.RFC3339, existing.ExpiresAt)
		if parseErr == nil && now.Before(expiresAt) {
			return false, nil
		}
	}

	lease := Lease{
		Token:      uuid.NewString(),
		AcquiredAt: now.Format(time.RFC3339),
		ExpiresAt:  now.Add(s.LeaseTTL).Format(time.RFC3339),
	}
	if err := s.Store.Set(ctx, leasePath, lease, store.SetOptions{}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Scheduler) releaseLease(ctx context.Context) {
	_ = s.Store.Delete(ctx, leasePath)
}

// ForceReleaseLease is the operator escape hatch for a lease left
// behind by a crashed instance before its TTL expires.
func ForceReleaseLease(ctx context.Context, s store.Store) error {
	return s.Delete(ctx, leasePath)
}
