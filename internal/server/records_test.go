package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stratumhq/stratum/internal/blobstore"
	"github.com/stratumhq/stratum/internal/clock"
	"github.com/stratumhq/stratum/internal/config"
	obsmetrics "github.com/stratumhq/stratum/internal/observability/metrics"
	"github.com/stratumhq/stratum/internal/record/domain"
	recordrepo "github.com/stratumhq/stratum/internal/record/repository"
	"github.com/stratumhq/stratum/internal/retrieval"
	"github.com/stratumhq/stratum/internal/tiering"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBSeq int

type testServer struct {
	server  *Server
	records domain.RecordStore
	tier2   *blobstore.MemoryStore
	clock   *clock.FakeClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	testDBSeq++
	dsn := fmt.Sprintf("file:server%d?mode=memory&cache=shared", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Record{}))

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

	tieringEngine := tiering.New(tiering.Params{
		Records: records,
		Blobs:   tiers,
		Policy:  policy,
		Clock:   fake,
		Log:     log,
	})
	retrievalEngine := retrieval.New(retrieval.Params{
		Records: records,
		Blobs:   tiers,
		Clock:   fake,
		Log:     log,
	})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	srv := NewServer(ServerParams{
		Gin:       engine,
		Records:   records,
		Retrieval: retrievalEngine,
		Tiering:   tieringEngine,
		GenID:     node,
		Clock:     fake,
		Log:       log,
	})

	return &testServer{server: srv, records: records, tier2: tier2, clock: fake}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.server.engine.ServeHTTP(w, req)
	return w
}

func (ts *testServer) seed(t *testing.T, id, customerID string, ageDays int) *domain.Record {
	t.Helper()
	rec := &domain.Record{
		ID:         id,
		CustomerID: customerID,
		Amount:     12.5,
		Currency:   "USD",
		CreatedAt:  ts.clock.Now().AddDate(0, 0, -ageDays),
	}
	require.NoError(t, ts.records.PutFull(context.Background(), rec))
	return rec
}

func TestCreateRecordGeneratesID(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/v1/records", gin.H{
		"customer_id": "cust-1",
		"amount":      99.5,
		"currency":    "EUR",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp recordResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Record.ID)
	assert.Equal(t, domain.TierLabelPrimary, resp.StorageTier)

	stored, err := ts.records.Get(context.Background(), resp.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, "cust-1", stored.CustomerID)
}

func TestCreateRecordRequiresCustomerID(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/v1/records", gin.H{"amount": 1.0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateRecordCountsIngest(t *testing.T) {
	ts := newTestServer(t)

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	meters, err := obsmetrics.New(obsmetrics.Config{ServiceName: "server-test"}, provider)
	require.NoError(t, err)
	ts.server.meters = meters

	w := ts.do(t, http.MethodPost, "/v1/records", createRecordRequest{CustomerID: "cust-1", Amount: 5, Currency: "USD"})
	require.Equal(t, http.StatusCreated, w.Code)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, sm := range scope.Metrics {
			if sm.Name != "stratum_records_ingested_total" {
				continue
			}
			sum, ok := sm.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), total)
}

func TestGetRecord(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "rec-1", "cust-1", 5)

	w := ts.do(t, http.MethodGet, "/v1/records/rec-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp recordResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "rec-1", resp.Record.ID)
	assert.Equal(t, domain.TierLabelPrimary, resp.StorageTier)
}

func TestGetRecordNotFound(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/v1/records/absent", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp.Error.Type)
}

func TestGetRecordsBatchMixedOutcomes(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "rec-1", "cust-1", 5)

	w := ts.do(t, http.MethodPost, "/v1/records/batch", batchRequest{IDs: []string{"rec-1", "absent"}})
	require.Equal(t, http.StatusOK, w.Code)

	var resp batchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)

	assert.Equal(t, "rec-1", resp.Results[0].ID)
	assert.Nil(t, resp.Results[0].Error)
	assert.Equal(t, domain.TierLabelPrimary, resp.Results[0].StorageTier)

	assert.Equal(t, "absent", resp.Results[1].ID)
	require.NotNil(t, resp.Results[1].Error)
	assert.Equal(t, "not_found", resp.Results[1].Error.Type)
	assert.Equal(t, "not-found", resp.Results[1].StorageTier)
}

func TestListCustomerRecordsPagination(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "rec-new", "cust-1", 1)
	ts.seed(t, "rec-mid", "cust-1", 2)
	ts.seed(t, "rec-old", "cust-1", 3)

	w := ts.do(t, http.MethodGet, "/v1/customers/cust-1/records?page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page1 listRecordsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page1))
	require.Len(t, page1.Records, 2)
	assert.Equal(t, "rec-new", page1.Records[0].ID)
	assert.Equal(t, "rec-mid", page1.Records[1].ID)
	require.True(t, page1.PageInfo.HasMore)
	require.NotEmpty(t, page1.PageInfo.NextPageToken)

	w = ts.do(t, http.MethodGet, "/v1/customers/cust-1/records?page_size=2&page_token="+url.QueryEscape(page1.PageInfo.NextPageToken), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page2 listRecordsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page2))
	require.Len(t, page2.Records, 1)
	assert.Equal(t, "rec-old", page2.Records[0].ID)
	assert.False(t, page2.PageInfo.HasMore)
}

func TestRunMigrationEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "aging", "cust-1", 40)
	ts.seed(t, "fresh", "cust-1", 5)

	w := ts.do(t, http.MethodPost, "/v1/migrations/run", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var run tiering.RunResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, 1, run.Tier2.Succeeded)

	migrated, err := ts.records.Get(context.Background(), "aging")
	require.NoError(t, err)
	assert.Equal(t, domain.Tier2, migrated.StorageTier)

	// Migrated records remain readable through the API.
	w = ts.do(t, http.MethodGet, "/v1/records/aging", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp recordResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.TierLabelTier2, resp.StorageTier)
	assert.Equal(t, 12.5, resp.Record.Amount)
}

func TestRunMigrationRejectsBadBatchSize(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/v1/migrations/run?batch_size=nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStorageStatisticsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "rec-1", "cust-1", 1)

	w := ts.do(t, http.MethodGet, "/v1/storage/statistics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats retrieval.Statistics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalRecords)
	assert.Equal(t, int64(1), stats.Distribution[domain.TierLabelPrimary].Count)
}
