package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stratumhq/stratum/internal/clock"
	"github.com/stratumhq/stratum/internal/config"
	obsmetrics "github.com/stratumhq/stratum/internal/observability/metrics"
	"github.com/stratumhq/stratum/internal/record/domain"
	"github.com/stratumhq/stratum/internal/retrieval"
	"github.com/stratumhq/stratum/internal/tiering"
	"github.com/stratumhq/stratum/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const maxBatchIDs = 100

type Server struct {
	engine    *gin.Engine
	cfg       config.Config
	records   domain.RecordStore
	retrieval *retrieval.Engine
	tiering   *tiering.Engine
	genID     *snowflake.Node
	clock     clock.Clock
	log       *zap.Logger
	meters    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	Records   domain.RecordStore
	Retrieval *retrieval.Engine
	Tiering   *tiering.Engine
	GenID     *snowflake.Node
	Clock     clock.Clock
	Log       *zap.Logger
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		records:   p.Records,
		retrieval: p.Retrieval,
		tiering:   p.Tiering,
		genID:     p.GenID,
		clock:     p.Clock,
		log:       p.Log.Named("server").With(zap.String("component", "server")),
		meters:    p.Metrics,
	}

	v1 := s.engine.Group("/v1")
	v1.POST("/records", s.CreateRecord)
	v1.GET("/records/:record_id", s.GetRecord)
	v1.POST("/records/batch", s.GetRecordsBatch)
	v1.GET("/customers/:customer_id/records", s.ListCustomerRecords)
	v1.GET("/storage/statistics", s.GetStorageStatistics)
	v1.POST("/migrations/run", s.RunMigration)

	return s
}

type createRecordRequest struct {
	ID         string            `json:"id"`
	CustomerID string            `json:"customer_id"`
	Amount     float64           `json:"amount"`
	Currency   string            `json:"currency"`
	Metadata   datatypes.JSONMap `json:"metadata"`
	CreatedAt  *time.Time        `json:"created_at"`
}

func (s *Server) CreateRecord(c *gin.Context) {
	var req createRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_json", "request body is not valid JSON"))
		return
	}
	if strings.TrimSpace(req.CustomerID) == "" {
		AbortWithError(c, newValidationError("customer_id", "required", "customer_id is required"))
		return
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = s.genID.Generate().String()
	}
	createdAt := s.clock.Now().UTC()
	if req.CreatedAt != nil && !req.CreatedAt.IsZero() {
		createdAt = req.CreatedAt.UTC()
	}

	rec := &domain.Record{
		ID:         id,
		CustomerID: strings.TrimSpace(req.CustomerID),
		Amount:     req.Amount,
		Currency:   req.Currency,
		Metadata:   req.Metadata,
		CreatedAt:  createdAt,
	}
	if err := s.records.PutFull(c.Request.Context(), rec); err != nil {
		AbortWithError(c, err)
		return
	}
	s.meters.RecordIngested(c.Request.Context(), rec.Currency)

	c.JSON(http.StatusCreated, recordResponse{Record: rec, StorageTier: rec.TierLabel()})
}

type recordResponse struct {
	Record      *domain.Record `json:"record"`
	StorageTier string         `json:"storage_tier"`
}

func (s *Server) GetRecord(c *gin.Context) {
	id := strings.TrimSpace(c.Param("record_id"))
	if id == "" {
		AbortWithError(c, newValidationError("record_id", "required", "record_id is required"))
		return
	}

	rec, tier, err := s.retrieval.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, recordResponse{Record: rec, StorageTier: tier})
}

type batchRequest struct {
	IDs []string `json:"ids"`
}

type batchEntry struct {
	ID          string         `json:"id"`
	Record      *domain.Record `json:"record,omitempty"`
	StorageTier string         `json:"storage_tier"`
	Error       *errorPayload  `json:"error,omitempty"`
}

type batchResponse struct {
	Results []batchEntry `json:"results"`
}

// GetRecordsBatch resolves up to maxBatchIDs records in request order. Each
// entry carries its own outcome; one missing id never fails the batch.
func (s *Server) GetRecordsBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_json", "request body is not valid JSON"))
		return
	}
	if len(req.IDs) == 0 {
		AbortWithError(c, newValidationError("ids", "required", "ids must not be empty"))
		return
	}
	if len(req.IDs) > maxBatchIDs {
		AbortWithError(c, newValidationError("ids", "too_many", "at most 100 ids per batch"))
		return
	}

	lookups := s.retrieval.GetMany(c.Request.Context(), req.IDs)
	results := make([]batchEntry, 0, len(lookups))
	for _, lookup := range lookups {
		entry := batchEntry{
			ID:          lookup.ID,
			Record:      lookup.Record,
			StorageTier: lookup.Tier,
		}
		if lookup.Err != nil {
			_, payload := mapError(lookup.Err)
			entry.Error = &payload
		}
		results = append(results, entry)
	}

	c.JSON(http.StatusOK, batchResponse{Results: results})
}

type listRecordsResponse struct {
	Records  []*domain.Record     `json:"records"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

func (s *Server) ListCustomerRecords(c *gin.Context) {
	customerID := strings.TrimSpace(c.Param("customer_id"))
	if customerID == "" {
		AbortWithError(c, newValidationError("customer_id", "required", "customer_id is required"))
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid", "invalid pagination parameters"))
		return
	}
	if page.PageSize <= 0 {
		page.PageSize = 10
	}
	if page.PageSize > 250 {
		page.PageSize = 250
	}

	var before *time.Time
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			AbortWithError(c, newValidationError("page_token", "invalid", "invalid page token"))
			return
		}
		if cursor.CreatedAt != "" {
			ts, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
			if err != nil {
				AbortWithError(c, newValidationError("page_token", "invalid", "invalid page token"))
				return
			}
			before = &ts
		}
	}

	records, err := s.retrieval.GetByCustomer(c.Request.Context(), customerID, page.PageSize+1, before)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pageInfo := pagination.BuildCursorPageInfo(records, int32(page.PageSize), func(rec *domain.Record) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        rec.ID,
			CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(records) > page.PageSize {
		records = records[:page.PageSize]
	}

	c.JSON(http.StatusOK, listRecordsResponse{Records: records, PageInfo: pageInfo})
}

func (s *Server) GetStorageStatistics(c *gin.Context) {
	stats, err := s.retrieval.StorageStatistics(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// RunMigration triggers a full migration sweep inline. batch_size > 0
// overrides the policy batch size for both stages.
func (s *Server) RunMigration(c *gin.Context) {
	batchSize := 0
	if raw := strings.TrimSpace(c.Query("batch_size")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, newValidationError("batch_size", "invalid", "batch_size must be a non-negative integer"))
			return
		}
		batchSize = parsed
	}

	run, err := s.tiering.RunFullMigrationBatch(c.Request.Context(), batchSize)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, run)
}
