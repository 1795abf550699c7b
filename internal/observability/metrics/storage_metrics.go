package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonUnknown              = "unknown"

	RunDeferredReasonLockHeld = "lock_held"
)

const (
	MigrationStageTier2 = "primary_to_tier2"
	MigrationStageTier3 = "tier2_to_tier3"

	MigrationResultSuccess = "success"
	MigrationResultFailure = "failure"
)

// StorageMetrics captures tiered storage health signals: migration batch
// outcomes, scheduler runs and retrieval tier traffic.
type StorageMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobTimeouts *prometheus.CounterVec
	jobErrors   *prometheus.CounterVec
	runDeferred *prometheus.CounterVec

	migrationRecords *prometheus.CounterVec
	migrationBytes   *prometheus.CounterVec

	retrievalHits    *prometheus.CounterVec
	retrievalLatency *prometheus.HistogramVec
	retrievalMisses  prometheus.Counter
	retrievalErrors  *prometheus.CounterVec
}

var (
	storageMetricsOnce sync.Once
	storageMetrics     *StorageMetrics
)

// Storage returns the singleton storage metrics registry.
func Storage() *StorageMetrics {
	return StorageWithConfig(Config{})
}

// StorageWithConfig returns the singleton storage metrics registry using config labels.
func StorageWithConfig(cfg Config) *StorageMetrics {
	storageMetricsOnce.Do(func() {
		storageMetrics = newStorageMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return storageMetrics
}

// ResetStorageMetricsForTest resets the storage metrics singleton for tests.
func ResetStorageMetricsForTest() {
	storageMetricsOnce = sync.Once{}
	storageMetrics = nil
}

func newStorageMetrics(registerer prometheus.Registerer, cfg Config) *StorageMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "stratum"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &StorageMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "stratum_scheduler_job_runs_total",
			Help:        "Scheduler job runs by name.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "stratum_scheduler_job_duration_seconds",
			Help:        "Scheduler job latency to protect migration batch freshness.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "stratum_scheduler_job_timeouts_total",
			Help:        "Scheduler job timeouts that threaten migration SLAs.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "stratum_scheduler_job_errors_total",
			Help:        "Scheduler job errors by classified reason.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"}),
		runDeferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "stratum_scheduler_runs_deferred_total",
			Help:        "Scheduled migration runs skipped, e.g. because another replica holds the lock.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		migrationRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "stratum_migration_records_total",
			Help:        "Records processed by migration stage and per-record outcome.",
			ConstLabels: constLabels,
		}, []string{"stage", "result"}),
		migrationBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "stratum_migration_bytes_total",
			Help:        "Payload bytes written to the destination tier per stage.",
			ConstLabels: constLabels,
		}, []string{"stage"}),
		retrievalHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "stratum_retrieval_hits_total",
			Help:        "Record retrievals satisfied, by serving tier.",
			ConstLabels: constLabels,
		}, []string{"tier"}),
		retrievalLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "stratum_retrieval_latency_seconds",
			Help:        "Retrieval latency by serving tier.",
			Buckets:     []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			ConstLabels: constLabels,
		}, []string{"tier"}),
		retrievalMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "stratum_retrieval_misses_total",
			Help:        "Retrievals where the primary store has no pointer record.",
			ConstLabels: constLabels,
		}),
		retrievalErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "stratum_retrieval_errors_total",
			Help:        "Retrievals that failed after the pointer resolved, by tier.",
			ConstLabels: constLabels,
		}, []string{"tier"}),
	}

	registerer.MustRegister(
		m.jobRuns,
		m.jobDuration,
		m.jobTimeouts,
		m.jobErrors,
		m.runDeferred,
		m.migrationRecords,
		m.migrationBytes,
		m.retrievalHits,
		m.retrievalLatency,
		m.retrievalMisses,
		m.retrievalErrors,
	)
	return m
}

func (m *StorageMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *StorageMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *StorageMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *StorageMetrics) IncJobError(job, reason string) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, reason).Inc()
}

func (m *StorageMetrics) IncRunDeferred(reason string) {
	if m == nil {
		return
	}
	m.runDeferred.WithLabelValues(reason).Inc()
}

func (m *StorageMetrics) AddMigrationRecords(stage, result string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.migrationRecords.WithLabelValues(stage, result).Add(float64(count))
}

func (m *StorageMetrics) AddMigrationBytes(stage string, bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}
	m.migrationBytes.WithLabelValues(stage).Add(float64(bytes))
}

func (m *StorageMetrics) ObserveRetrieval(tier string, d time.Duration) {
	if m == nil {
		return
	}
	m.retrievalHits.WithLabelValues(tier).Inc()
	m.retrievalLatency.WithLabelValues(tier).Observe(d.Seconds())
}

func (m *StorageMetrics) IncRetrievalMiss() {
	if m == nil {
		return
	}
	m.retrievalMisses.Inc()
}

func (m *StorageMetrics) IncRetrievalError(tier string) {
	if m == nil {
		return
	}
	m.retrievalErrors.WithLabelValues(tier).Inc()
}

// ClassifyJobReason maps scheduler job errors to low-cardinality reasons.
func ClassifyJobReason(err error) string {
	if err == nil {
		return JobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return JobReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return JobReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return JobReasonDBLockTimeout
		case "40001":
			return JobReasonSerializationFailure
		case "23505":
			return JobReasonUniqueViolation
		}
	}
	return JobReasonUnknown
}
