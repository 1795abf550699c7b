package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stratumhq/stratum/internal/clock"
	"github.com/stratumhq/stratum/internal/config"
	"github.com/stratumhq/stratum/internal/tiering"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubMigrator struct {
	calls int
	run   tiering.RunResult
	err   error
}

func (m *stubMigrator) RunFullMigration(ctx context.Context) (tiering.RunResult, error) {
	m.calls++
	return m.run, m.err
}

type stubLocker struct {
	acquired bool
	tryErr   error
	releases int
}

func (l *stubLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	return "token", l.acquired, l.tryErr
}

func (l *stubLocker) Release(ctx context.Context, key, token string) error {
	l.releases++
	return nil
}

func newTestScheduler(migrator Migrator, locker lockProvider) *Scheduler {
	return &Scheduler{
		migrator: migrator,
		policy:   config.NewStaticTieringPolicyHolder(config.TieringPolicy{}),
		clock:    clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		log:      zap.NewNop(),
		locker:   locker,
		cfg:      Config{}.withDefaults(),
	}
}

func TestNewRejectsMissingDeps(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnceWithoutLocker(t *testing.T) {
	migrator := &stubMigrator{run: tiering.RunResult{RunID: "run-1"}}
	sched := newTestScheduler(migrator, nil)

	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, 1, migrator.calls)
}

func TestRunOnceDefersWhenLockHeld(t *testing.T) {
	migrator := &stubMigrator{}
	locker := &stubLocker{acquired: false}
	sched := newTestScheduler(migrator, locker)

	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, 0, migrator.calls)
	assert.Equal(t, 0, locker.releases)
}

func TestRunOnceReleasesLockAfterSweep(t *testing.T) {
	migrator := &stubMigrator{}
	locker := &stubLocker{acquired: true}
	sched := newTestScheduler(migrator, locker)

	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, 1, migrator.calls)
	assert.Equal(t, 1, locker.releases)
}

func TestRunOnceSurfacesMigrationError(t *testing.T) {
	migrator := &stubMigrator{err: errors.New("store_unavailable")}
	sched := newTestScheduler(migrator, nil)

	err := sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tiering_migration")
}

func TestRunOnceTreatsDeadlineAsSoftTimeout(t *testing.T) {
	migrator := &stubMigrator{err: context.DeadlineExceeded}
	sched := newTestScheduler(migrator, nil)

	assert.NoError(t, sched.RunOnce(context.Background()))
}

func TestRunOnceLockErrorIsFatal(t *testing.T) {
	migrator := &stubMigrator{}
	locker := &stubLocker{tryErr: errors.New("redis down")}
	sched := newTestScheduler(migrator, locker)

	err := sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, migrator.calls)
}
