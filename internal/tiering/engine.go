package tiering

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stratumhq/stratum/internal/blobstore"
	"github.com/stratumhq/stratum/internal/clock"
	"github.com/stratumhq/stratum/internal/config"
	obsmetrics "github.com/stratumhq/stratum/internal/observability/metrics"
	"github.com/stratumhq/stratum/internal/record/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Params struct {
	fx.In

	Records domain.RecordStore
	Blobs   blobstore.Tiers
	Policy  *config.TieringPolicyHolder
	Clock   clock.Clock
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Engine moves aging records down the tiers. Every step keeps the record
// readable: the destination blob is written and acknowledged before the
// pointer record flips, and the stale source blob is only deleted after the
// pointer no longer references it.
type Engine struct {
	records domain.RecordStore
	blobs   blobstore.Tiers
	policy  *config.TieringPolicyHolder
	clock   clock.Clock
	log     *zap.Logger
	meters  *obsmetrics.Metrics
}

func New(p Params) *Engine {
	return &Engine{
		records: p.Records,
		blobs:   p.Blobs,
		policy:  p.Policy,
		clock:   p.Clock,
		log:     p.Log.Named("tiering").With(zap.String("component", "tiering")),
		meters:  p.Metrics,
	}
}

// MigratePrimaryToTier2 selects primary records inside the tier2 age window,
// oldest first, and moves each one independently. batchSize <= 0 uses the
// policy batch size. The returned error is a stage-level fault (selection
// query failed); per-record failures live in the result.
func (e *Engine) MigratePrimaryToTier2(ctx context.Context, batchSize int) (StageResult, error) {
	policy := e.policy.Get()
	if batchSize <= 0 {
		batchSize = policy.BatchSize
	}
	now := e.clock.Now().UTC()
	from := now.Add(-policy.Tier2MaxAge())
	before := now.Add(-policy.Tier2MinAge())

	result := StageResult{Stage: obsmetrics.MigrationStageTier2}
	start := time.Now()

	candidates, err := e.records.Query(ctx, domain.RecordQuery{
		Tier:          domain.TierPrimary,
		CreatedFrom:   &from,
		CreatedBefore: &before,
		Order:         domain.OrderCreatedAsc,
		Limit:         batchSize,
	})
	if err != nil {
		return result, err
	}
	result.Selected = len(candidates)

	e.forEachRecord(ctx, policy.Workers, candidates, &result, func(ctx context.Context, rec *domain.Record) (int64, error) {
		return e.moveToTier2(ctx, rec, now)
	})

	result.Duration = time.Since(start)
	e.logStage(result)
	return result, nil
}

// MigrateTier2ToTier3 selects tier2 records older than the tier3 threshold.
// There is no upper bound: tier3 is the last tier, so arbitrarily old tier2
// records still take this path.
func (e *Engine) MigrateTier2ToTier3(ctx context.Context, batchSize int) (StageResult, error) {
	policy := e.policy.Get()
	if batchSize <= 0 {
		batchSize = policy.BatchSize
	}
	now := e.clock.Now().UTC()
	before := now.Add(-policy.Tier3MinAge())

	result := StageResult{Stage: obsmetrics.MigrationStageTier3}
	start := time.Now()

	candidates, err := e.records.Query(ctx, domain.RecordQuery{
		Tier:          domain.Tier2,
		CreatedBefore: &before,
		Order:         domain.OrderCreatedAsc,
		Limit:         batchSize,
	})
	if err != nil {
		return result, err
	}
	result.Selected = len(candidates)

	e.forEachRecord(ctx, policy.Workers, candidates, &result, func(ctx context.Context, rec *domain.Record) (int64, error) {
		return e.moveToTier3(ctx, rec, now)
	})

	result.Duration = time.Since(start)
	e.logStage(result)
	return result, nil
}

// RunFullMigration runs both stages sequentially under a fresh run id. A
// stage-level fault aborts the run and surfaces to the caller; per-record
// failures only show up in the counts.
func (e *Engine) RunFullMigration(ctx context.Context) (RunResult, error) {
	return e.RunFullMigrationBatch(ctx, 0)
}

// RunFullMigrationBatch is RunFullMigration with an explicit per-stage batch
// size; batchSize <= 0 falls back to the policy batch size.
func (e *Engine) RunFullMigrationBatch(ctx context.Context, batchSize int) (RunResult, error) {
	run := RunResult{RunID: ulid.Make().String()}
	start := time.Now()
	log := e.log.With(zap.String("run_id", run.RunID))

	log.Info("migration run starting")

	tier2, err := e.MigratePrimaryToTier2(ctx, batchSize)
	run.Tier2 = tier2
	if err != nil {
		run.Duration = time.Since(start)
		e.meters.RecordMigrationRun(ctx, obsmetrics.MigrationResultFailure)
		log.Error("primary to tier2 stage aborted", zap.Error(err))
		return run, err
	}

	tier3, err := e.MigrateTier2ToTier3(ctx, batchSize)
	run.Tier3 = tier3
	if err != nil {
		run.Duration = time.Since(start)
		e.meters.RecordMigrationRun(ctx, obsmetrics.MigrationResultFailure)
		log.Error("tier2 to tier3 stage aborted", zap.Error(err))
		return run, err
	}

	run.Duration = time.Since(start)
	e.meters.RecordMigrationRun(ctx, obsmetrics.MigrationResultSuccess)
	log.Info("migration run finished",
		zap.Int("succeeded", run.TotalSucceeded()),
		zap.Int("failed", run.TotalFailed()),
		zap.Int64("bytes", run.TotalBytes()),
		zap.Duration("duration", run.Duration),
	)
	return run, nil
}

// forEachRecord fans the batch out over a bounded worker pool. Worker
// closures never return an error to the group: per-record isolation means a
// failing record only marks itself failed.
func (e *Engine) forEachRecord(
	ctx context.Context,
	workers int,
	records []*domain.Record,
	result *StageResult,
	move func(ctx context.Context, rec *domain.Record) (int64, error),
) {
	if workers <= 0 {
		workers = 1
	}
	metrics := obsmetrics.Storage()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			bytes, err := move(gctx, rec)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, RecordError{RecordID: rec.ID, Message: err.Error()})
				metrics.AddMigrationRecords(result.Stage, obsmetrics.MigrationResultFailure, 1)
				e.log.Warn("record migration failed",
					zap.String("stage", result.Stage),
					zap.String("record_id", rec.ID),
					zap.Error(err),
				)
				return nil
			}
			result.Succeeded++
			result.Bytes += bytes
			metrics.AddMigrationRecords(result.Stage, obsmetrics.MigrationResultSuccess, 1)
			metrics.AddMigrationBytes(result.Stage, bytes)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) moveToTier2(ctx context.Context, rec *domain.Record, now time.Time) (int64, error) {
	path := domain.GenerateBlobPath(domain.Tier2, rec.CreatedAt, rec.CustomerID, rec.ID)

	updated := *rec
	updated.StorageTier = domain.Tier2
	updated.BlobPath = path
	updated.MigratedToTier2At = &now

	data, err := domain.EncodeBlob(&updated)
	if err != nil {
		return 0, err
	}

	size, err := e.blobs.Tier2.Put(ctx, e.blobs.Tier2Container, path, data, blobMetadata(rec, domain.Tier2, now, len(data)))
	if err != nil {
		return 0, err
	}

	// Pointer flips only after the blob write is acknowledged. A crash
	// before this line leaves the record served from the primary tier and
	// at worst an orphaned blob, cleaned up by the next run.
	updated.BlobSize = size
	if err := e.records.PutFull(ctx, &updated); err != nil {
		return 0, err
	}
	return size, nil
}

func (e *Engine) moveToTier3(ctx context.Context, rec *domain.Record, now time.Time) (int64, error) {
	oldPath := rec.BlobPath

	data, err := e.blobs.Tier2.Get(ctx, e.blobs.Tier2Container, oldPath)
	if err != nil {
		return 0, err
	}
	full, err := domain.DecodeBlob(data)
	if err != nil {
		return 0, err
	}

	newPath := domain.GenerateBlobPath(domain.Tier3, rec.CreatedAt, rec.CustomerID, rec.ID)

	updated := *full
	updated.StorageTier = domain.Tier3
	updated.BlobPath = newPath
	updated.MigratedToTier3At = &now

	encoded, err := domain.EncodeBlob(&updated)
	if err != nil {
		return 0, err
	}

	size, err := e.blobs.Tier3.Put(ctx, e.blobs.Tier3Container, newPath, encoded, blobMetadata(rec, domain.Tier3, now, len(encoded)))
	if err != nil {
		return 0, err
	}

	updated.BlobSize = size
	if err := e.records.PutFull(ctx, &updated); err != nil {
		return 0, err
	}

	// Best-effort cleanup. The pointer no longer references the tier2
	// blob, so a failed delete leaves a harmless orphan.
	if err := e.blobs.Tier2.Delete(ctx, e.blobs.Tier2Container, oldPath); err != nil {
		e.meters.RecordBlobDelete(ctx, domain.Tier2, "failed")
		e.log.Warn("stale tier2 blob left behind",
			zap.String("record_id", rec.ID),
			zap.String("blob_path", oldPath),
			zap.Error(err),
		)
	} else {
		e.meters.RecordBlobDelete(ctx, domain.Tier2, "deleted")
	}
	return size, nil
}

func (e *Engine) logStage(result StageResult) {
	e.log.Info("migration stage finished",
		zap.String("stage", result.Stage),
		zap.Int("selected", result.Selected),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int64("bytes", result.Bytes),
		zap.Duration("duration", result.Duration),
	)
}

func blobMetadata(rec *domain.Record, tier string, migratedAt time.Time, size int) map[string]string {
	return map[string]string{
		"record_id":    rec.ID,
		"customer_id":  rec.CustomerID,
		"created_at":   rec.CreatedAt.UTC().Format(time.RFC3339),
		"migrated_at":  migratedAt.Format(time.RFC3339),
		"storage_tier": tier,
		"size_bytes":   strconv.Itoa(size),
	}
}
