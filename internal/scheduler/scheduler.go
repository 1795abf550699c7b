package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stratumhq/stratum/internal/clock"
	"github.com/stratumhq/stratum/internal/cloudmetrics"
	"github.com/stratumhq/stratum/internal/config"
	obsmetrics "github.com/stratumhq/stratum/internal/observability/metrics"
	"github.com/stratumhq/stratum/internal/tiering"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const jobName = "tiering_migration"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// Migrator is the slice of the tiering engine the scheduler drives.
type Migrator interface {
	RunFullMigration(ctx context.Context) (tiering.RunResult, error)
}

type lockProvider interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Params struct {
	fx.In

	Engine *tiering.Engine
	Policy *config.TieringPolicyHolder
	Clock  clock.Clock
	Log    *zap.Logger
	Locker *Locker `optional:"true"`
	Config Config  `optional:"true"`
}

// Scheduler runs the full migration sweep on the policy's interval. When a
// Locker is configured, overlapping sweeps across instances are deferred
// rather than run twice.
type Scheduler struct {
	migrator Migrator
	policy   *config.TieringPolicyHolder
	clock    clock.Clock
	log      *zap.Logger
	locker   lockProvider
	cfg      Config
}

func New(p Params) (*Scheduler, error) {
	if p.Engine == nil || p.Policy == nil || p.Clock == nil || p.Log == nil {
		return nil, ErrInvalidConfig
	}
	s := &Scheduler{
		migrator: p.Engine,
		policy:   p.Policy,
		clock:    p.Clock,
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
	}
	if p.Locker != nil {
		s.locker = p.Locker
	}
	return s, nil
}

// RunOnce performs one migration sweep, holding the distributed lock for its
// duration when a locker is wired.
func (s *Scheduler) RunOnce(parent context.Context) error {
	storageMetrics := obsmetrics.Storage()

	if s.locker != nil {
		token, acquired, err := s.locker.TryLock(parent, s.cfg.LockKey, s.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		if !acquired {
			storageMetrics.IncRunDeferred(obsmetrics.RunDeferredReasonLockHeld)
			s.log.Info("migration sweep deferred, lock held elsewhere",
				zap.String("lock_key", s.cfg.LockKey))
			return nil
		}
		defer func() {
			if err := s.locker.Release(parent, s.cfg.LockKey, token); err != nil {
				s.log.Warn("failed to release migration lock", zap.Error(err))
			}
		}()
	}

	return s.runJob(parent, func(ctx context.Context) error {
		run, err := s.migrator.RunFullMigration(ctx)
		if err != nil {
			cloudmetrics.RecordMigrationRun("failure")
			return err
		}
		cloudmetrics.RecordMigrationRun("success")
		cloudmetrics.RecordMigratedRecords(run.Tier2.Stage, run.Tier2.Succeeded)
		cloudmetrics.RecordMigratedRecords(run.Tier3.Stage, run.Tier3.Succeeded)
		s.log.Info("migration sweep finished",
			zap.String("run_id", run.RunID),
			zap.Int("succeeded", run.TotalSucceeded()),
			zap.Int("failed", run.TotalFailed()),
			zap.Int64("bytes", run.TotalBytes()),
			zap.Duration("duration", run.Duration))
		return nil
	})
}

func (s *Scheduler) runJob(parent context.Context, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	storageMetrics := obsmetrics.Storage()
	storageMetrics.IncJobRun(jobName)

	err := fn(ctx)
	storageMetrics.ObserveJobDuration(jobName, s.clock.Now().Sub(start))
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		storageMetrics.IncJobTimeout(jobName)
		s.log.Warn("migration sweep timed out",
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err))
		return nil
	}

	storageMetrics.IncJobError(jobName, obsmetrics.ClassifyJobReason(err))
	return fmt.Errorf("%s: %w", jobName, err)
}

// RunForever sweeps on the policy interval until the context is canceled.
// The interval is re-read every cycle so tiering policy reloads take effect
// without a restart.
func (s *Scheduler) RunForever(ctx context.Context) {
	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("migration sweep failed", zap.Error(err))
		}

		interval := s.policy.Get().RunInterval
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
