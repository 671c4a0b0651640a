package scheduler_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/condomx/billing-core/money"
	"github.com/condomx/billing-core/scheduler"
	"github.com/condomx/billing-core/store"
	"github.com/condomx/billing-core/store/memtest"
)

func fixedClock(t *testing.T, iso string) money.Clock {
	t.Helper()
	c, err := money.NewFixedClock(iso)
	require.NoError(t, err)
	return c
}

func TestRunOnceAllSucceedIsSuccess(t *testing.T) {
	s := memtest.New(10)
	var ran []string
	tasks := []scheduler.Task{
		{Name: "backup", Timeout: scheduler.DefaultBackupTimeout, Run: func(ctx context.Context) error { ran = append(ran, "backup"); return nil }},
		{Name: "penalty", Timeout: scheduler.DefaultPenaltyTimeout, Run: func(ctx context.Context) error { ran = append(ran, "penalty"); return nil }},
		{Name: "rates", Timeout: scheduler.DefaultExchangeRateTimeout, Run: func(ctx context.Context) error { ran = append(ran, "rates"); return nil }},
	}
	sched := scheduler.New(s, fixedClock(t, "2025-08-05"), zerolog.Nop(), tasks)

	run, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "success", run.Status)
	assert.Equal(t, []string{"backup", "penalty", "rates"}, ran)
}

func TestRunOnceOneTaskFailsIsPartialFailureButRunsAll(t *testing.T) {
	s := memtest.New(10)
	var ran []string
	tasks := []scheduler.Task{
		{Name: "backup", Timeout: scheduler.DefaultBackupTimeout, Run: func(ctx context.Context) error {
			ran = append(ran, "backup")
			return errors.New("object store unreachable")
		}},
		{Name: "penalty", Timeout: scheduler.DefaultPenaltyTimeout, Run: func(ctx context.Context) error { ran = append(ran, "penalty"); return nil }},
	}
	sched := scheduler.New(s, fixedClock(t, "2025-08-05"), zerolog.Nop(), tasks)

	run, err := sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, "partial_failure", run.Status)
	assert.Equal(t, []string{"backup", "penalty"}, ran)
	assert.Equal(t, "failed", run.Tasks[0].Status)
	assert.Equal(t, "success", run.Tasks[1].Status)
}

func TestRunOnceWritesRunLogAndReleasesLease(t *testing.T) {
	s := memtest.New(10)
	tasks := []scheduler.Task{{Name: "noop", Timeout: scheduler.DefaultPenaltyTimeout, Run: func(ctx context.Context) error { return nil }}}
	sched := scheduler.New(s, fixedClock(t, "2025-08-05"), zerolog.Nop(), tasks)

	_, err := sched.RunOnce(context.Background())
	require.NoError(t, err)

	var run scheduler.RunLog
	exists, err := s.Get(context.Background(), store.Path("system/nightlyScheduler/runs/2025-08-05"), &run)
	require.NoError(t, err)
	assert.True(t, exists)

	var lease scheduler.Lease
	exists, err = s.Get(context.Background(), store.Path("system/nightlyScheduler/lease"), &lease)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRunOnceRejectsConcurrentRunWhileLeaseHeld(t *testing.T) {
	s := memtest.New(10)
	clock := fixedClock(t, "2025-08-05")

	blocking := []scheduler.Task{{Name: "slow", Timeout: scheduler.DefaultPenaltyTimeout, Run: func(ctx context.Context) error { return nil }}}
	held := scheduler.Lease{Token: "held", AcquiredAt: "2025-08-05T00:00:00Z", ExpiresAt: "2099-01-01T00:00:00Z"}
	require.NoError(t, s.Set(context.Background(), store.Path("system/nightlyScheduler/lease"), held, store.SetOptions{}))

	sched := scheduler.New(s, clock, zerolog.Nop(), blocking)
	_, err := sched.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestForceReleaseLeaseAllowsNextRun(t *testing.T) {
	s := memtest.New(10)
	clock := fixedClock(t, "2025-08-05")
	held := scheduler.Lease{Token: "held", AcquiredAt: "2025-08-05T00:00:00Z", ExpiresAt: "2099-01-01T00:00:00Z"}
	require.NoError(t, s.Set(context.Background(), store.Path("system/nightlyScheduler/lease"), held, store.SetOptions{}))

	require.NoError(t, scheduler.ForceReleaseLease(context.Background(), s))

	tasks := []scheduler.Task{{Name: "noop", Timeout: scheduler.DefaultPenaltyTimeout, Run: func(ctx context.Context) error { return nil }}}
	sched := scheduler.New(s, clock, zerolog.Nop(), tasks)
	_, err := sched.RunOnce(context.Background())
	assert.NoError(t, err)
}
