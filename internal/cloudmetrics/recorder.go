package cloudmetrics

import (
	"strings"
	"sync"
)

// Recorder receives storage lifecycle signals from the engines. The package
// level functions dispatch to the active recorder so callers stay decoupled
// from whether cloud metrics are enabled.
type Recorder interface {
	RecordMigrationRun(result string)
	RecordMigratedRecords(stage string, count int)
	RecordRetrieval(tier string)
}

type noopRecorder struct{}

func (noopRecorder) RecordMigrationRun(string)         {}
func (noopRecorder) RecordMigratedRecords(string, int) {}
func (noopRecorder) RecordRetrieval(string)            {}

var (
	activeRecorder Recorder = noopRecorder{}
	recorderMu     sync.RWMutex
)

func setRecorder(rec Recorder) {
	if rec == nil {
		return
	}
	recorderMu.Lock()
	activeRecorder = rec
	recorderMu.Unlock()
}

func RecordMigrationRun(result string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordMigrationRun(result)
}

func RecordMigratedRecords(stage string, count int) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordMigratedRecords(stage, count)
}

func RecordRetrieval(tier string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordRetrieval(tier)
}

type recorder struct {
	metrics *CloudMetrics
}

func (r *recorder) RecordMigrationRun(result string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.IncMigrationRun(result)
}

func (r *recorder) RecordMigratedRecords(stage string, count int) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.AddMigratedRecords(stage, count)
}

func (r *recorder) RecordRetrieval(tier string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.IncRetrieval(tier)
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
