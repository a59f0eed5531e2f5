package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rawblock/ring-engine/internal/alerts"
	"github.com/rawblock/ring-engine/internal/cache"
	"github.com/rawblock/ring-engine/internal/config"
	"github.com/rawblock/ring-engine/internal/db"
	"github.com/rawblock/ring-engine/internal/heuristics"
	"github.com/rawblock/ring-engine/internal/ingest"
	"github.com/rawblock/ring-engine/pkg/models"
)

// ReportStore persists finished runs. *db.PostgresStore implements it.
type ReportStore interface {
	SaveReport(ctx context.Context, id uuid.UUID, sourceName string, result *models.AnalysisResult) error
	GetReport(ctx context.Context, id uuid.UUID) (*models.AnalysisResult, error)
	ListReports(ctx context.Context, page, limit int) ([]db.ReportInfo, int, error)
	Ping(ctx context.Context) error
}

// Options wires the router's collaborators. Everything except Engine is
// optional: a nil Store, Cache, Alerts or Hub disables that feature.
type Options struct {
	Engine *heuristics.Engine
	Store  ReportStore
	Cache  *cache.ResultCache
	Alerts *alerts.AlertManager
	Hub    *Hub
	Server config.ServerConfig
}

type APIHandler struct {
	engine    *heuristics.Engine
	store     ReportStore
	cache     *cache.ResultCache
	alerts    *alerts.AlertManager
	wsHub     *Hub
	server    config.ServerConfig
	configKey string
}

func SetupRouter(opts Options) *gin.Engine {
	r := gin.Default()
	r.Use(corsMiddleware(opts.Server.AllowedOrigins))

	if opts.Server.MaxUploadBytes <= 0 {
		opts.Server.MaxUploadBytes = config.Default().Server.MaxUploadBytes
	}
	r.MaxMultipartMemory = opts.Server.MaxUploadBytes

	handler := &APIHandler{
		engine:    opts.Engine,
		store:     opts.Store,
		cache:     opts.Cache,
		alerts:    opts.Alerts,
		wsHub:     opts.Hub,
		server:    opts.Server,
		configKey: fmt.Sprintf("%+v", opts.Engine.Config()),
	}

	limiter := NewRateLimiter(opts.Server.RateLimit, opts.Server.RateBurst)
	auth := AuthMiddleware(opts.Server.AuthToken)

	api := r.Group("/api/v1")
	{
		api.GET("/health", handler.handleHealth)
		if opts.Hub != nil {
			api.GET("/stream", opts.Hub.Subscribe)
		}

		protected := api.Group("", auth)
		protected.POST("/analyze", limiter.Middleware(), handler.handleAnalyze)
		protected.GET("/reports", handler.handleListReports)
		protected.GET("/reports/:id", handler.handleGetReport)
		protected.GET("/reports/:id/suspicious.csv", handler.handleExportSuspicious)
		protected.GET("/alerts", handler.handleGetAlerts)
	}

	return r
}

// corsMiddleware allows every origin when the list is empty or "*"
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowAll {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range allowedOrigins {
				if allowed == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// upload is one decoded ledger submission
type upload struct {
	kind   string // "csv" or "json"
	source string
	data   []byte
	rows   []heuristics.Row
}

// handleAnalyze runs the engine over an uploaded ledger.
// Multipart field "csv_file" (a .csv file) or an application/json body.
func (h *APIHandler) handleAnalyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.server.MaxUploadBytes)

	up, status, err := h.readUpload(c)
	if err != nil {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	digest := cache.Digest(up.kind+"\x00"+h.configKey, up.data)
	if cached, ok, err := h.cache.Get(c.Request.Context(), digest); err != nil {
		log.Printf("[API] Cache lookup failed: %v", err)
	} else if ok {
		c.Header("X-Cache", "HIT")
		c.JSON(http.StatusOK, cached)
		return
	}

	ctx := c.Request.Context()
	if h.server.AnalyzeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.server.AnalyzeTimeout)
		defer cancel()
	}

	run, err := h.engine.Run(ctx, up.rows)
	if err != nil {
		c.JSON(analyzeErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	id := uuid.New()
	result := run.Result
	result.AnalysisID = id.String()
	result.Analysis.Summary = buildSummary(run)

	if h.store != nil {
		if err := h.store.SaveReport(c.Request.Context(), id, up.source, result); err != nil {
			log.Printf("[API] Failed to save report %s to DB: %v", id, err)
		}
	}
	if err := h.cache.Set(c.Request.Context(), digest, result); err != nil {
		log.Printf("[API] Failed to cache report %s: %v", id, err)
	}
	if h.alerts != nil {
		h.alerts.EmitRingAlerts(result.AnalysisID, result.Analysis.FraudRings)
	}
	if h.wsHub != nil {
		h.wsHub.publishAnalysis(result, up.source)
	}

	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, result)
}

func (h *APIHandler) readUpload(c *gin.Context) (*upload, int, error) {
	contentType := c.ContentType()

	if strings.HasPrefix(contentType, "multipart/") {
		header, err := c.FormFile("csv_file")
		if err != nil {
			if isTooLarge(err) {
				return nil, http.StatusRequestEntityTooLarge, errTooLarge(h.server.MaxUploadBytes)
			}
			return nil, http.StatusBadRequest, errors.New("No file part")
		}
		if header.Filename == "" {
			return nil, http.StatusBadRequest, errors.New("No selected file")
		}
		if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
			return nil, http.StatusBadRequest, errors.New("File must be CSV")
		}

		f, err := header.Open()
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("cannot open upload: %v", err)
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("cannot read upload: %v", err)
		}
		rows, err := ingest.ReadCSV(bytes.NewReader(data))
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		return &upload{kind: "csv", source: header.Filename, data: data, rows: rows}, 0, nil
	}

	if contentType == gin.MIMEJSON {
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			if isTooLarge(err) {
				return nil, http.StatusRequestEntityTooLarge, errTooLarge(h.server.MaxUploadBytes)
			}
			return nil, http.StatusBadRequest, fmt.Errorf("cannot read body: %v", err)
		}
		rows, err := ingest.DecodeJSON(data)
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		return &upload{kind: "json", source: "json", data: data, rows: rows}, 0, nil
	}

	return nil, http.StatusUnsupportedMediaType, errors.New("expected multipart/form-data with csv_file or application/json")
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func errTooLarge(limit int64) error {
	return fmt.Errorf("upload exceeds the %d MB limit", limit>>20)
}

func analyzeErrorStatus(err error) int {
	switch {
	case errors.Is(err, heuristics.ErrEmptyInput), errors.Is(err, heuristics.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// buildSummary fills the block the engine leaves to its caller
func buildSummary(run *heuristics.Run) models.Summary {
	return models.Summary{
		TotalAccountsAnalyzed:     run.Accounts,
		SuspiciousAccountsFlagged: len(run.Result.Analysis.SuspiciousAccounts),
		FraudRingsDetected:        len(run.Result.Analysis.FraudRings),
		ProcessingTimeSeconds:     roundSeconds(run.Elapsed),
		RowsReceived:              run.Stats.Rows,
		RowsSkipped:               run.Stats.Skipped,
		DefaultedTimestamps:       run.Stats.DefaultedTimestamps,
		ZeroedAmounts:             run.Stats.ZeroedAmounts,
	}
}

func roundSeconds(d time.Duration) float64 {
	return float64(d.Round(time.Millisecond)) / float64(time.Second)
}

// handleListReports returns stored runs, newest first
func (h *APIHandler) handleListReports(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	reports, totalCount, err := h.store.ListReports(c.Request.Context(), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch reports", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       reports,
		"totalCount": totalCount,
		"page":       page,
		"limit":      limit,
	})
}

func (h *APIHandler) loadReport(c *gin.Context) (*models.AnalysisResult, bool) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid analysis id"})
		return nil, false
	}

	result, err := h.store.GetReport(c.Request.Context(), id)
	if errors.Is(err, db.ErrReportNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load report", "details": err.Error()})
		return nil, false
	}
	return result, true
}

// handleGetReport returns one stored run in the same shape as /analyze
func (h *APIHandler) handleGetReport(c *gin.Context) {
	if result, ok := h.loadReport(c); ok {
		c.JSON(http.StatusOK, result)
	}
}

// handleExportSuspicious serves the suspicious-account table of a stored run as CSV
func (h *APIHandler) handleExportSuspicious(c *gin.Context) {
	result, ok := h.loadReport(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := WriteSuspiciousCSV(&buf, result.Analysis.SuspiciousAccounts); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render CSV", "details": err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="suspicious_accounts.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// handleGetAlerts returns recent ring alerts, most recent first
func (h *APIHandler) handleGetAlerts(c *gin.Context) {
	if h.alerts == nil {
		c.JSON(http.StatusOK, gin.H{"data": []alerts.Alert{}})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	var list []alerts.Alert
	if minSeverity := c.Query("minSeverity"); minSeverity != "" {
		list = h.alerts.GetAlertsBySeverity(minSeverity)
		if limit > 0 && len(list) > limit {
			list = list[len(list)-limit:]
		}
	} else {
		list = h.alerts.GetRecentAlerts(limit)
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// handleHealth returns engine status and capabilities for service discovery
func (h *APIHandler) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbConnected := h.store != nil && h.store.Ping(ctx) == nil
	cacheConnected := h.cache != nil && h.cache.Ping(ctx) == nil
	streamClients := 0
	if h.wsHub != nil {
		streamClients = h.wsHub.ClientCount()
	}

	cfg := h.engine.Config()
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "RawBlock Ring Detection Engine v1.0",
		"capabilities": gin.H{
			"cycle_detection":   true,
			"smurfing":          true,
			"legitimacy_filter": true,
			"shell_chains":      true,
			"csv_upload":        true,
			"json_upload":       true,
			"report_storage":    h.store != nil,
			"result_cache":      h.cache != nil,
			"ring_alerts":       h.alerts != nil,
		},
		"thresholds": gin.H{
			"maxCycleDepth":  cfg.MaxCycleDepth,
			"fanThreshold":   cfg.FanThreshold,
			"windowSpan":     cfg.WindowSpan.String(),
			"cycleTimeout":   cfg.CycleTimeout.String(),
			"maxUploadBytes": h.server.MaxUploadBytes,
		},
		"dbConnected":    dbConnected,
		"cacheConnected": cacheConnected,
		"streamClients":  streamClients,
	})
}
