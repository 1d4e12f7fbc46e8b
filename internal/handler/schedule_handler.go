package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/whenwemeet/whenwemeet-api/internal/service"
	appErrors "github.com/whenwemeet/whenwemeet-api/pkg/errors"
	"github.com/whenwemeet/whenwemeet-api/pkg/response"
)

// ScheduleHandler wires HTTP endpoints to the schedule service.
type ScheduleHandler struct {
	service *service.ScheduleService
}

// NewScheduleHandler creates a new handler.
func NewScheduleHandler(svc *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// Submit godoc
// @Summary Submit unavailability
// @Description Replace the caller's unavailable intervals in a room
// @Tags Schedules
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Room ID"
// @Param payload body service.SubmitUnavailabilityRequest true "Unavailability payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /rooms/{id}/unavailability [put]
func (h *ScheduleHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.SubmitUnavailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid unavailability payload"))
		return
	}

	records, err := h.service.SubmitUnavailability(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Mine godoc
// @Summary Get my unavailability
// @Tags Schedules
// @Produce json
// @Security BearerAuth
// @Param id path string true "Room ID"
// @Success 200 {object} response.Envelope
// @Router /rooms/{id}/unavailability [get]
func (h *ScheduleHandler) Mine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	records, err := h.service.GetMemberUnavailability(c.Request.Context(), c.Param("id"), claims.UserID, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Member godoc
// @Summary Get a member's unavailability
// @Tags Schedules
// @Produce json
// @Security BearerAuth
// @Param id path string true "Room ID"
// @Param userId path string true "Member user ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /rooms/{id}/members/{userId}/unavailability [get]
func (h *ScheduleHandler) Member(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	records, err := h.service.GetMemberUnavailability(c.Request.Context(), c.Param("id"), claims.UserID, c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}
