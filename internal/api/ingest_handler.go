package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/dump-ingestion-api/internal/config"
	"github.com/dump-ingestion-api/internal/models"
	"github.com/dump-ingestion-api/internal/service"
)

// runIDHeader carries the run ledger id of an ingestion request
const runIDHeader = "X-Ingestion-Run-ID"

// IngestHandler handles the per-entity ingestion endpoints
type IngestHandler struct {
	services *service.Services
	cfg      *config.Config
	log      zerolog.Logger
}

// NewIngestHandler creates a new IngestHandler
func NewIngestHandler(services *service.Services, cfg *config.Config, log zerolog.Logger) *IngestHandler {
	return &IngestHandler{
		services: services,
		cfg:      cfg,
		log:      log.With().Str("handler", "ingest").Logger(),
	}
}

// Upload handles POST /v1/:entity/upload
func (h *IngestHandler) Upload(c *gin.Context) {
	mode := models.UploadMode(c.DefaultQuery("mode", string(models.UploadModeCreate)))
	if mode != models.UploadModeCreate && mode != models.UploadModeUpsert {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be one of: create, upsert"})
		return
	}

	var req models.BatchRequest
	if !h.bindBody(c, &req) {
		return
	}

	outcome, err := h.services.Ingest.Upload(c.Request.Context(), c.Param("entity"), &req, mode)
	h.respond(c, outcome, err)
}

// Update handles POST /v1/:entity/update
func (h *IngestHandler) Update(c *gin.Context) {
	createMissing, err := strconv.ParseBool(c.DefaultQuery("create_missing", "true"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "create_missing must be true or false"})
		return
	}

	var req models.BatchRequest
	if !h.bindBody(c, &req) {
		return
	}

	outcome, err := h.services.Ingest.Update(c.Request.Context(), c.Param("entity"), &req, createMissing)
	h.respond(c, outcome, err)
}

// Delete handles POST /v1/:entity/delete
func (h *IngestHandler) Delete(c *gin.Context) {
	var req models.DeleteRequest
	if !h.bindBody(c, &req) {
		return
	}

	outcome, err := h.services.Ingest.Delete(c.Request.Context(), c.Param("entity"), &req)
	h.respond(c, outcome, err)
}

// ListEntities handles GET /v1/entities
func (h *IngestHandler) ListEntities(c *gin.Context) {
	entities := h.services.Entities.All()
	c.JSON(http.StatusOK, gin.H{
		"count":    len(entities),
		"entities": entities,
	})
}

// bindBody decodes the JSON body into dst, enforcing the configured size
// limit. It writes the error response and returns false on failure.
func (h *IngestHandler) bindBody(c *gin.Context, dst interface{}) bool {
	if _, ok := h.services.Entities.Get(c.Param("entity")); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown entity '%s'", c.Param("entity"))})
		return false
	}

	if limit := h.cfg.Ingest.MaxBodySize; limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	if err := json.NewDecoder(c.Request.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("payload too large, max size is %d MB", tooLarge.Limit/(1024*1024)),
			})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

// respond writes the batch result or maps a structural error
func (h *IngestHandler) respond(c *gin.Context, outcome *service.BatchOutcome, err error) {
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownEntity),
			errors.Is(err, service.ErrTableMismatch),
			errors.Is(err, service.ErrMissingBlock):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.log.Error().Err(err).Str("entity", c.Param("entity")).Msg("Ingestion request failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	c.Header(runIDHeader, outcome.RunID)
	c.JSON(outcome.Status, outcome.Result)
}
