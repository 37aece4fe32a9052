package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/citywatch/dispatch-api/internal/service"
	appErrors "github.com/citywatch/dispatch-api/pkg/errors"
	"github.com/citywatch/dispatch-api/pkg/response"
)

// BackupHandler exposes backup dispatch endpoints.
type BackupHandler struct {
	service *service.BackupService
}

// NewBackupHandler creates a new handler.
func NewBackupHandler(svc *service.BackupService) *BackupHandler {
	return &BackupHandler{service: svc}
}

type backupRequestPayload struct {
	Lat          float64 `json:"lat" binding:"required"`
	Lng          float64 `json:"lng" binding:"required"`
	Reason       string  `json:"reason"`
	AssignmentID *string `json:"assignment_id"`
}

// Request godoc
// @Summary Request backup
// @Description Open a backup request and alert nearby on-duty officers
// @Tags Backup
// @Accept json
// @Produce json
// @Param payload body backupRequestPayload true "Location and reason"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /backup/requests [post]
func (h *BackupHandler) Request(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload backupRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "lat and lng are required"))
		return
	}

	dispatch, err := h.service.RequestBackup(c.Request.Context(), claims.UserID, service.RequestBackupInput{
		Lat:          payload.Lat,
		Lng:          payload.Lng,
		Reason:       payload.Reason,
		AssignmentID: payload.AssignmentID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dispatch)
}

// Cancel godoc
// @Summary Cancel pending backup request
// @Description Withdraw the caller's pending backup request
// @Tags Backup
// @Produce json
// @Success 204 {object} response.Envelope
// @Security BearerAuth
// @Router /backup/requests [delete]
func (h *BackupHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if _, err := h.service.CancelBackup(c.Request.Context(), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Acknowledge godoc
// @Summary Acknowledge a backup request
// @Description Mark a pending backup request as answered by the caller
// @Tags Backup
// @Produce json
// @Param id path string true "Backup request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /backup/requests/{id}/ack [post]
func (h *BackupHandler) Acknowledge(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	request, err := h.service.AcknowledgeBackup(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Resolve godoc
// @Summary Resolve a backup request
// @Description Close an open backup request and clear alert flags
// @Tags Backup
// @Produce json
// @Param id path string true "Backup request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /backup/requests/{id}/resolve [post]
func (h *BackupHandler) Resolve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	request, err := h.service.ResolveBackup(c.Request.Context(), c.Param("id"), claims.UserID, claims.IsAdmin())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}
