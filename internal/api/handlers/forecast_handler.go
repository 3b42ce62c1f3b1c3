package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/export"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/ingest"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/service"
)

const defaultHistoryLimit = 50

type ForecastHandler struct {
	engine     *service.ForecastEngine
	importer   *ingest.Importer
	reconciler *service.Reconciler
}

func NewForecastHandler(engine *service.ForecastEngine, importer *ingest.Importer, reconciler *service.Reconciler) *ForecastHandler {
	return &ForecastHandler{engine: engine, importer: importer, reconciler: reconciler}
}

type predictRequest struct {
	EntityID string `json:"sto_id" binding:"required"`
	Horizon  string `json:"horizon" binding:"required"`
	AsOf     string `json:"as_of_time"`
}

type reconcileRequest struct {
	EntityID    string `json:"sto_id" binding:"required"`
	Horizon     string `json:"horizon" binding:"required"`
	PeriodStart string `json:"period_start" binding:"required"`
}

type salesRequest struct {
	Observations []domain.SalesObservation `json:"observations" binding:"required"`
}

// Predict generates (or returns the cached) forecast for one STO and horizon.
func (h *ForecastHandler) Predict(c *gin.Context) {
	var body predictRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	var asOf time.Time
	if strings.TrimSpace(body.AsOf) != "" {
		var err error
		if asOf, err = parseTime(body.AsOf); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	req, err := h.engine.ParseRequest(body.EntityID, body.Horizon, asOf)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.engine.Generate(c.Request.Context(), req)
	if err != nil && !(result != nil && errors.Is(err, domain.ErrPersistenceFailure)) {
		respondError(c, err)
		return
	}

	resp := gin.H{"data": result}
	if err != nil {
		resp["warnings"] = []string{err.Error()}
	}
	c.JSON(http.StatusOK, resp)
}

// RecordSales stores a JSON batch of sales observations.
func (h *ForecastHandler) RecordSales(c *gin.Context) {
	var body salesRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	n, err := h.importer.Record(c.Request.Context(), body.Observations)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recorded": n})
}

// UploadSales imports CSV/XLSX files sent as multipart "files".
func (h *ForecastHandler) UploadSales(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form data"})
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}

	total := 0
	for _, file := range files {
		format, err := ingest.FormatFromPath(file.Filename)
		if err != nil {
			respondError(c, err)
			return
		}

		f, err := file.Open()
		if err != nil {
			zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("filename", file.Filename).Msg("failed to open uploaded file")
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read " + file.Filename})
			return
		}
		observations, err := ingest.ReadSales(f, format)
		f.Close()
		if err != nil {
			respondError(c, fmt.Errorf("%s: %w", file.Filename, err))
			return
		}

		n, err := h.importer.Record(c.Request.Context(), observations)
		total += n
		if err != nil {
			respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"files": len(files), "recorded": total})
}

// GetHistory returns stored predictions of an STO, newest first.
func (h *ForecastHandler) GetHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if l, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil && l > 0 {
		limit = l
	}

	results, err := h.engine.History(c.Request.Context(), c.Param("sto_id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": results})
}

// ExportHistory streams stored predictions of an STO as CSV or XLSX.
func (h *ForecastHandler) ExportHistory(c *gin.Context) {
	entityID := c.Param("sto_id")
	results, err := h.engine.History(c.Request.Context(), entityID, 0)
	if err != nil {
		respondError(c, err)
		return
	}

	var (
		buf         bytes.Buffer
		contentType string
		ext         string
	)
	switch strings.ToLower(c.DefaultQuery("format", "csv")) {
	case "xlsx":
		err = export.WritePredictionsXLSX(&buf, results, export.DefaultOptions)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		ext = "xlsx"
	case "csv":
		err = export.WritePredictionsCSV(&buf, results, export.DefaultOptions)
		contentType = "text/csv"
		ext = "csv"
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv or xlsx"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=predictions_%s.%s", entityID, ext))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

// Reconcile compares a finished period's prediction with actual sales.
func (h *ForecastHandler) Reconcile(c *gin.Context) {
	var body reconcileRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	horizon, ok := domain.ParseHorizon(body.Horizon)
	if !ok {
		respondError(c, fmt.Errorf("%w: unsupported horizon %q", domain.ErrInvalidInput, body.Horizon))
		return
	}
	start, err := parseTime(body.PeriodStart)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, err := h.engine.ReconcileAccuracy(c.Request.Context(), body.EntityID, domain.Period{Horizon: horizon, Start: start})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

// RunReconciliation triggers a reconciliation pass over every STO.
func (h *ForecastHandler) RunReconciliation(c *gin.Context) {
	if h.reconciler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reconciler is not configured"})
		return
	}
	summary, err := h.reconciler.RunOnce(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

// GetAccuracy returns the rolled-up model accuracy of an STO.
func (h *ForecastHandler) GetAccuracy(c *gin.Context) {
	acc, err := h.engine.ModelAccuracy(c.Request.Context(), c.Param("sto_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": acc})
}

// GetCacheStats returns the result cache counters.
func (h *ForecastHandler) GetCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.engine.Cache().Stats()})
}

// InvalidateCache drops the cached predictions of an STO.
func (h *ForecastHandler) InvalidateCache(c *gin.Context) {
	if err := h.engine.InvalidateEntity(c.Request.Context(), c.Param("sto_id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrComputeFailure):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q, expected RFC3339 or YYYY-MM-DD", s)
}
