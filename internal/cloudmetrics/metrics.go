package cloudmetrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// CloudMetrics owns a private registry of accounting metrics pushed to the
// control plane. It never registers on the default registerer and never
// appears on the local /metrics endpoint.
type CloudMetrics struct {
	registry *prometheus.Registry
	pusher   Pusher
	log      *zap.Logger

	instanceInfo    *prometheus.GaugeVec
	tierRecords     *prometheus.GaugeVec
	migrationRuns   *prometheus.CounterVec
	migratedRecords *prometheus.CounterVec
	retrievals      *prometheus.CounterVec
	memoryBytes     prometheus.Gauge
}

func New(registry *prometheus.Registry, pusher Pusher, instanceID, version string, log *zap.Logger) *CloudMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}

	c := &CloudMetrics{
		registry: registry,
		pusher:   pusher,
		log:      log.Named("cloudmetrics"),
		instanceInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stratum_instance_info",
			Help: "Static instance identity labels.",
		}, []string{"instance_id", "version"}),
		tierRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stratum_cloud_tier_records",
			Help: "Stored record count per storage tier.",
		}, []string{"tier"}),
		migrationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stratum_cloud_migration_runs_total",
			Help: "Completed migration sweeps by outcome.",
		}, []string{"result"}),
		migratedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stratum_cloud_migrated_records_total",
			Help: "Records moved between tiers by stage.",
		}, []string{"stage"}),
		retrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stratum_cloud_retrievals_total",
			Help: "Record retrievals by serving tier.",
		}, []string{"tier"}),
		memoryBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stratum_cloud_memory_bytes",
			Help: "Process memory obtained from the OS.",
		}),
	}

	registry.MustRegister(
		c.instanceInfo,
		c.tierRecords,
		c.migrationRuns,
		c.migratedRecords,
		c.retrievals,
		c.memoryBytes,
	)
	c.instanceInfo.WithLabelValues(normalizeLabel(instanceID), normalizeLabel(version)).Set(1)
	return c
}

func (c *CloudMetrics) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *CloudMetrics) SetTierRecords(tier string, count int64) {
	if c == nil {
		return
	}
	if count < 0 {
		count = 0
	}
	c.tierRecords.WithLabelValues(normalizeLabel(tier)).Set(float64(count))
}

func (c *CloudMetrics) IncMigrationRun(result string) {
	if c == nil {
		return
	}
	c.migrationRuns.WithLabelValues(normalizeLabel(result)).Inc()
}

func (c *CloudMetrics) AddMigratedRecords(stage string, count int) {
	if c == nil || count <= 0 {
		return
	}
	c.migratedRecords.WithLabelValues(normalizeLabel(stage)).Add(float64(count))
}

func (c *CloudMetrics) IncRetrieval(tier string) {
	if c == nil {
		return
	}
	c.retrievals.WithLabelValues(normalizeLabel(tier)).Inc()
}

func (c *CloudMetrics) SetMemoryUsage(bytes uint64) {
	if c == nil {
		return
	}
	c.memoryBytes.Set(float64(bytes))
}

func (c *CloudMetrics) Push(ctx context.Context) error {
	if c == nil || c.pusher == nil {
		return nil
	}
	return c.pusher.Push(ctx, c.registry)
}
