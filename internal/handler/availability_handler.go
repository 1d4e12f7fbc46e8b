package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/whenwemeet/whenwemeet-api/internal/models"
	"github.com/whenwemeet/whenwemeet-api/internal/service"
	appErrors "github.com/whenwemeet/whenwemeet-api/pkg/errors"
	"github.com/whenwemeet/whenwemeet-api/pkg/response"
)

// AvailabilityHandler wires HTTP endpoints to the availability engine.
type AvailabilityHandler struct {
	service *service.AvailabilityService
}

// NewAvailabilityHandler creates a new handler.
func NewAvailabilityHandler(svc *service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc}
}

// Grid godoc
// @Summary Monthly availability grid
// @Description Per-day unavailable member counts for a room and month
// @Tags Availability
// @Produce json
// @Security BearerAuth
// @Param id path string true "Room ID"
// @Param year query int false "Year (defaults to current)"
// @Param month query int false "Month 1-12 (defaults to current)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /rooms/{id}/availability [get]
func (h *AvailabilityHandler) Grid(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	now := time.Now().UTC()
	year, err := intQuery(c, "year", now.Year())
	if err != nil {
		response.Error(c, err)
		return
	}
	month, err := intQuery(c, "month", int(now.Month()))
	if err != nil {
		response.Error(c, err)
		return
	}

	grid, err := h.service.MonthlyGrid(c.Request.Context(), c.Param("id"), claims.UserID, year, time.Month(month))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grid, nil)
}

// Recommendations godoc
// @Summary Recommend meeting slots
// @Description Longest free window per day over a bounded horizon
// @Tags Availability
// @Produce json
// @Security BearerAuth
// @Param id path string true "Room ID"
// @Param dayType query string false "ALL, WEEKDAY or WEEKEND"
// @Param maxResults query int false "Maximum slots to return"
// @Param horizonDays query int false "Days to scan from today"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /rooms/{id}/recommendations [get]
func (h *AvailabilityHandler) Recommendations(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	dayType, ok := models.ParseDayType(c.Query("dayType"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "dayType must be ALL, WEEKDAY or WEEKEND"))
		return
	}

	defaults := h.service.Defaults()
	maxResults, err := intQuery(c, "maxResults", defaults.MaxResults)
	if err != nil {
		response.Error(c, err)
		return
	}
	horizonDays, err := intQuery(c, "horizonDays", defaults.HorizonDays)
	if err != nil {
		response.Error(c, err)
		return
	}

	slots, err := h.service.Recommend(c.Request.Context(), c.Param("id"), claims.UserID, service.RecommendationQuery{
		DayType:     dayType,
		MaxResults:  maxResults,
		HorizonDays: horizonDays,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, name+" must be an integer")
	}
	return value, nil
}
