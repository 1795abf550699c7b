package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: JobReasonDeadlineExceeded,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: JobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: JobReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: JobReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: JobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddMigrationRecords(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newStorageMetrics(registry, Config{
		ServiceName: "stratum",
		Environment: "test",
	})

	m.AddMigrationRecords(MigrationStageTier2, MigrationResultSuccess, 3)
	m.AddMigrationBytes(MigrationStageTier2, 2048)

	got := testutil.ToFloat64(m.migrationRecords.WithLabelValues(MigrationStageTier2, MigrationResultSuccess))
	if got != 3 {
		t.Fatalf("expected migration record count 3, got %v", got)
	}
	gotBytes := testutil.ToFloat64(m.migrationBytes.WithLabelValues(MigrationStageTier2))
	if gotBytes != 2048 {
		t.Fatalf("expected migration bytes 2048, got %v", gotBytes)
	}
}

func TestRetrievalCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newStorageMetrics(registry, Config{
		ServiceName: "stratum",
		Environment: "test",
	})

	m.ObserveRetrieval("tier1", 3*time.Millisecond)
	m.ObserveRetrieval("tier1", 5*time.Millisecond)
	m.IncRetrievalMiss()

	if got := testutil.ToFloat64(m.retrievalHits.WithLabelValues("tier1")); got != 2 {
		t.Fatalf("expected 2 tier1 hits, got %v", got)
	}
	if got := testutil.ToFloat64(m.retrievalMisses); got != 1 {
		t.Fatalf("expected 1 miss, got %v", got)
	}
}
