package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stratumhq/stratum/internal/blobstore"
	"github.com/stratumhq/stratum/internal/clock"
	"github.com/stratumhq/stratum/internal/config"
	"github.com/stratumhq/stratum/internal/record/domain"
	recordrepo "github.com/stratumhq/stratum/internal/record/repository"
	"github.com/stratumhq/stratum/internal/retrieval"
	"github.com/stratumhq/stratum/internal/server"
	"github.com/stratumhq/stratum/internal/tiering"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type env struct {
	engine *gin.Engine
	tier2  *blobstore.MemoryStore
	tier3  *blobstore.MemoryStore
	clock  *clock.FakeClock
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:e2e?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Record{}))
	t.Cleanup(func() {
		db.Exec("DELETE FROM billing_records")
	})

	records := recordrepo.Provide(db)
	tier2 := blobstore.NewMemoryStore()
	tier3 := blobstore.NewMemoryStore()
	tiers := blobstore.Tiers{
		Tier2:          tier2,
		Tier3:          tier3,
		Tier2Container: "billing-hot",
		Tier3Container: "billing-cold",
	}
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	policy := config.NewStaticTieringPolicyHolder(config.TieringPolicy{})
	log := zap.NewNop()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(server.ErrorHandlingMiddleware())
	server.NewServer(server.ServerParams{
		Gin:     engine,
		Records: records,
		Retrieval: retrieval.New(retrieval.Params{
			Records: records,
			Blobs:   tiers,
			Clock:   fake,
			Log:     log,
		}),
		Tiering: tiering.New(tiering.Params{
			Records: records,
			Blobs:   tiers,
			Policy:  policy,
			Clock:   fake,
			Log:     log,
		}),
		GenID: node,
		Clock: fake,
		Log:   log,
	})

	return &env{engine: engine, tier2: tier2, tier3: tier3, clock: fake}
}

func (e *env) request(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	fields := map[string]json.RawMessage{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fields), "body: %s", w.Body.String())
	}
	return w, fields
}

// TestRecordLifecycleAcrossTiers drives a record through ingest, both
// migration stages and retrieval purely through the HTTP API, advancing the
// clock between sweeps.
func TestRecordLifecycleAcrossTiers(t *testing.T) {
	e := newEnv(t)

	created := e.clock.Now()
	w, _ := e.request(t, http.MethodPost, "/v1/records", map[string]any{
		"id":          "lifecycle-1",
		"customer_id": "cust-e2e",
		"amount":      250.0,
		"currency":    "USD",
		"created_at":  created.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	readTier := func() string {
		w, fields := e.request(t, http.MethodGet, "/v1/records/lifecycle-1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var tier string
		require.NoError(t, json.Unmarshal(fields["storage_tier"], &tier))
		return tier
	}

	runSweep := func() {
		w, _ := e.request(t, http.MethodPost, "/v1/migrations/run", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	// Fresh record: a sweep must not touch it.
	runSweep()
	assert.Equal(t, domain.TierLabelPrimary, readTier())

	// Past the tier2 threshold it moves down one tier per sweep.
	e.clock.Advance(45 * 24 * time.Hour)
	runSweep()
	assert.Equal(t, domain.TierLabelTier2, readTier())
	assert.Equal(t, 1, e.tier2.Len())

	e.clock.Advance(60 * 24 * time.Hour)
	runSweep()
	assert.Equal(t, domain.TierLabelTier3, readTier())
	assert.Equal(t, 0, e.tier2.Len(), "tier2 blob must be cleaned up")
	assert.Equal(t, 1, e.tier3.Len())

	// Payload survives both hops.
	w, fields := e.request(t, http.MethodGet, "/v1/records/lifecycle-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rec domain.Record
	require.NoError(t, json.Unmarshal(fields["record"], &rec))
	assert.Equal(t, 250.0, rec.Amount)
	assert.Equal(t, "cust-e2e", rec.CustomerID)

	// Statistics reflect the final distribution.
	w, fields = e.request(t, http.MethodGet, "/v1/storage/statistics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var total int64
	require.NoError(t, json.Unmarshal(fields["total_records"], &total))
	assert.Equal(t, int64(1), total)
}

func TestBatchAcrossTiers(t *testing.T) {
	e := newEnv(t)

	for i, age := range []int{5, 45} {
		w, _ := e.request(t, http.MethodPost, "/v1/records", map[string]any{
			"id":          fmt.Sprintf("batch-%d", i),
			"customer_id": "cust-batch",
			"amount":      float64(i + 1),
			"created_at":  e.clock.Now().AddDate(0, 0, -age).Format(time.RFC3339),
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w, _ := e.request(t, http.MethodPost, "/v1/migrations/run", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, fields := e.request(t, http.MethodPost, "/v1/records/batch", map[string]any{
		"ids": []string{"batch-0", "batch-1", "batch-absent"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var results []struct {
		ID          string `json:"id"`
		StorageTier string `json:"storage_tier"`
		Error       *struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(fields["results"], &results))
	require.Len(t, results, 3)
	assert.Equal(t, domain.TierLabelPrimary, results[0].StorageTier)
	assert.Equal(t, domain.TierLabelTier2, results[1].StorageTier)
	require.NotNil(t, results[2].Error)
	assert.Equal(t, "not_found", results[2].Error.Type)
}
