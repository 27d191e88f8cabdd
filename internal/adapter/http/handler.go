package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Mathew005/aura-agent/internal/domain"
	"github.com/Mathew005/aura-agent/internal/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Agent is the ingestion side of the service.
type Agent interface {
	CheckReadiness(ctx context.Context) error
	ProcessNext(ctx context.Context) pipeline.Cycle
	Processed() int64
	Incidents() int
	Reset()
}

// IncidentReader reads consolidated incidents.
type IncidentReader interface {
	List() []domain.Incident
	Get(id int64) (domain.Incident, bool)
}

// Ingester queues operator-submitted reports for ingestion.
type Ingester interface {
	Enqueue(ctx context.Context, item domain.Item) error
}

// Handler serves /api/v1.
type Handler struct {
	agent     Agent
	incidents IncidentReader
	ingest    Ingester
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandler creates the API handler.
func NewHandler(agent Agent, incidents IncidentReader, ingest Ingester, logger *slog.Logger) *Handler {
	return &Handler{
		agent:     agent,
		incidents: incidents,
		ingest:    ingest,
		validate:  validator.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// RegisterRoutes mounts the API on group.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/status", h.status)
	api.POST("/simulate", h.simulate)
	api.POST("/reset", h.reset)
	api.POST("/reports", h.submitReport)

	incidents := api.Group("/incidents")
	{
		incidents.GET("", h.listIncidents)
		incidents.GET("/:id", h.getIncident)
	}
}

func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status:         "online",
		IncidentsCount: h.agent.Incidents(),
		ProcessedCount: h.agent.Processed(),
	})
}

func (h *Handler) simulate(c *gin.Context) {
	cycle := h.agent.ProcessNext(c.Request.Context())
	if cycle.Status == pipeline.StatusFailed {
		h.logger.Error("simulation step failed", "error", cycle.Message)
		c.JSON(http.StatusInternalServerError, gin.H{"error": cycle.Message, "logs": cycle.Logs()})
		return
	}
	c.JSON(http.StatusOK, NewCycleResponse(cycle))
}

func (h *Handler) reset(c *gin.Context) {
	h.agent.Reset()
	h.logger.Info("system reset")
	c.JSON(http.StatusOK, gin.H{"message": "System reset complete"})
}

func (h *Handler) submitReport(c *gin.Context) {
	var input SubmitReportRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item := input.ToItem(h.now())
	if err := h.ingest.Enqueue(c.Request.Context(), item); err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("enqueue report failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "source": item.Source})
}

func (h *Handler) listIncidents(c *gin.Context) {
	c.JSON(http.StatusOK, h.incidents.List())
}

func (h *Handler) getIncident(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}
	inc, ok := h.incidents.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}
	c.JSON(http.StatusOK, inc)
}
