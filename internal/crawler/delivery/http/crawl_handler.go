package http

import (
	"errors"
	"net/http"
	"strconv"

	"golang-fundamental-scryper/internal/crawler/dto"
	"golang-fundamental-scryper/internal/crawler/repository"
	"golang-fundamental-scryper/internal/crawler/service"
	"golang-fundamental-scryper/pkg/common"
	"golang-fundamental-scryper/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// CrawlHandler handles HTTP requests for crawl runs.
type CrawlHandler struct {
	pipelineService service.PipelineService
	runService      service.CrawlRunService
	logger          *logger.Logger
}

// NewCrawlHandler creates a new CrawlHandler.
func NewCrawlHandler(pipelineService service.PipelineService, runService service.CrawlRunService, logger *logger.Logger) *CrawlHandler {
	return &CrawlHandler{pipelineService: pipelineService, runService: runService, logger: logger}
}

// RegisterRoutes registers the crawl routes to the Echo group.
func (h *CrawlHandler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.StartCrawl)
	g.GET("", h.ListCrawls)
	g.GET("/:id", h.GetCrawlByID)
}

// StartCrawl triggers a run in the background and answers 202 with its id.
func (h *CrawlHandler) StartCrawl(c echo.Context) error {
	runID, err := h.pipelineService.Start(c.Request().Context(), common.CrawlTriggerHTTP)
	if errors.Is(err, service.ErrRunInProgress) {
		return c.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
	}
	if err != nil {
		h.logger.Error("Failed to start crawl", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to start crawl"})
	}

	return c.JSON(http.StatusAccepted, dto.StartCrawlResponse{RunID: runID, Status: "running"})
}

func (h *CrawlHandler) ListCrawls(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid limit"})
		}
		limit = v
	}

	runs, err := h.runService.ListRuns(c.Request().Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list crawl runs", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to list crawl runs"})
	}
	return c.JSON(http.StatusOK, runs)
}

func (h *CrawlHandler) GetCrawlByID(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid crawl run ID"})
	}

	run, err := h.runService.GetRun(c.Request().Context(), id.String())
	if errors.Is(err, repository.ErrRunNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, run)
}
