package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/citywatch/dispatch-api/internal/models"
	"github.com/citywatch/dispatch-api/internal/service"
	appErrors "github.com/citywatch/dispatch-api/pkg/errors"
	"github.com/citywatch/dispatch-api/pkg/response"
)

// PresenceHandler exposes officer presence endpoints.
type PresenceHandler struct {
	service *service.PresenceService
}

// NewPresenceHandler creates a new handler.
func NewPresenceHandler(svc *service.PresenceService) *PresenceHandler {
	return &PresenceHandler{service: svc}
}

type locationPayload struct {
	Lat        float64    `json:"lat" binding:"required"`
	Lng        float64    `json:"lng" binding:"required"`
	ObservedAt *time.Time `json:"observed_at"`
}

// UpdateLocation godoc
// @Summary Update own location
// @Description Report a location ping; stale pings are dropped
// @Tags Presence
// @Accept json
// @Produce json
// @Param payload body locationPayload true "Location ping"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /presence/location [put]
func (h *PresenceHandler) UpdateLocation(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload locationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "lat and lng are required"))
		return
	}

	observedAt := time.Time{}
	if payload.ObservedAt != nil {
		observedAt = *payload.ObservedAt
	}

	if err := h.service.UpdateLocation(c.Request.Context(), claims.UserID, payload.Lat, payload.Lng, observedAt); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UpdateDutyStatus godoc
// @Summary Update own duty status
// @Description Switch between ON_DUTY, OFF_DUTY and BUSY
// @Tags Presence
// @Accept json
// @Produce json
// @Param payload body object true "Duty status"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /presence/duty [put]
func (h *PresenceHandler) UpdateDutyStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		DutyStatus models.DutyStatus `json:"duty_status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "duty_status is required"))
		return
	}

	if err := h.service.UpdateDutyStatus(c.Request.Context(), claims.UserID, payload.DutyStatus); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Get godoc
// @Summary Officer presence
// @Description Fetch one officer's presence record
// @Tags Presence
// @Produce json
// @Param id path string true "Officer ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /presence/{id} [get]
func (h *PresenceHandler) Get(c *gin.Context) {
	presence, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, presence, nil)
}

// ListOnDuty godoc
// @Summary On-duty officers
// @Description List every officer currently on duty
// @Tags Presence
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /presence [get]
func (h *PresenceHandler) ListOnDuty(c *gin.Context) {
	officers, err := h.service.ListOnDuty(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, officers, nil)
}
