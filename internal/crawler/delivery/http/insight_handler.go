package http

import (
	"net/http"
	"strconv"

	"golang-fundamental-scryper/internal/crawler/dto"
	"golang-fundamental-scryper/internal/crawler/service"
	"golang-fundamental-scryper/pkg/logger"

	"github.com/labstack/echo/v4"
)

const (
	defaultTopSectors = 5
	maxTopSectors     = 100
)

// InsightHandler serves the read-only reports over stored instruments.
type InsightHandler struct {
	insightService service.InsightService
	logger         *logger.Logger
}

// NewInsightHandler creates a new InsightHandler.
func NewInsightHandler(insightService service.InsightService, logger *logger.Logger) *InsightHandler {
	return &InsightHandler{insightService: insightService, logger: logger}
}

// RegisterRoutes registers the insight routes to the Echo group.
func (h *InsightHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/top-sectors", h.GetTopSectors)
	g.GET("/pe-buckets", h.GetPEBuckets)
}

// RegisterInstrumentRoutes registers the instrument listing route.
func (h *InsightHandler) RegisterInstrumentRoutes(g *echo.Group) {
	g.GET("", h.ListInstruments)
}

// GetTopSectors returns the n sectors with the largest total market cap (default 5).
func (h *InsightHandler) GetTopSectors(c echo.Context) error {
	n := defaultTopSectors
	if raw := c.QueryParam("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxTopSectors {
			return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "n must be an integer between 1 and 100"})
		}
		n = v
	}

	resp, err := h.insightService.TopSectors(c.Request().Context(), n)
	if err != nil {
		h.logger.Error("Failed to get top sectors", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get top sectors"})
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *InsightHandler) GetPEBuckets(c echo.Context) error {
	resp, err := h.insightService.PEBuckets(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to get pe buckets", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get pe buckets"})
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *InsightHandler) ListInstruments(c echo.Context) error {
	var req dto.InstrumentListRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
	}

	instruments, err := h.insightService.ListInstruments(c.Request().Context(), req)
	if err != nil {
		h.logger.Error("Failed to list instruments", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list instruments"})
	}
	return c.JSON(http.StatusOK, instruments)
}
