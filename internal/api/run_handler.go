package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/dump-ingestion-api/internal/service"
)

// RunHandler handles the run ledger endpoints
type RunHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewRunHandler creates a new RunHandler
func NewRunHandler(services *service.Services, log zerolog.Logger) *RunHandler {
	return &RunHandler{
		services: services,
		log:      log.With().Str("handler", "run").Logger(),
	}
}

// ListRuns handles GET /v1/runs
func (h *RunHandler) ListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 1000 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
		return
	}

	runs, err := h.services.Runs.ListRuns(c.Request.Context(), c.Query("entity"), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count": len(runs),
		"runs":  runs,
	})
}

// GetRun handles GET /v1/runs/:run_id
func (h *RunHandler) GetRun(c *gin.Context) {
	runID := c.Param("run_id")

	run, err := h.services.Runs.GetRun(c.Request.Context(), runID)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to get run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get run"})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	c.JSON(http.StatusOK, run)
}

// GetRunFailures handles GET /v1/runs/:run_id/failures
func (h *RunHandler) GetRunFailures(c *gin.Context) {
	runID := c.Param("run_id")

	failures, err := h.services.Runs.GetRunFailures(c.Request.Context(), runID)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to get run failures")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get failures"})
		return
	}

	if c.Query("format") == "csv" {
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=failures_%s.csv", runID))
		writer := csv.NewWriter(c.Writer)
		writer.Write([]string{"position", "identifier", "kind", "reason"})
		for _, f := range failures {
			writer.Write([]string{strconv.Itoa(f.Position), f.Identifier, f.Kind, f.Reason})
		}
		writer.Flush()
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":        runID,
		"failure_count": len(failures),
		"failures":      failures,
	})
}
