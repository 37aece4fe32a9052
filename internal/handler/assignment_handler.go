package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/citywatch/dispatch-api/internal/models"
	"github.com/citywatch/dispatch-api/internal/service"
	appErrors "github.com/citywatch/dispatch-api/pkg/errors"
	"github.com/citywatch/dispatch-api/pkg/response"
)

// AssignmentHandler exposes assignment coordination endpoints.
type AssignmentHandler struct {
	service *service.AssignmentService
	exports *service.ExportService
}

// NewAssignmentHandler creates a new handler.
func NewAssignmentHandler(svc *service.AssignmentService, exports *service.ExportService) *AssignmentHandler {
	return &AssignmentHandler{service: svc, exports: exports}
}

// Assign godoc
// @Summary Assign an officer to a report
// @Description Create the single active assignment for a report
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body service.AssignRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /assignments [post]
func (h *AssignmentHandler) Assign(c *gin.Context) {
	var req service.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}

	detail, err := h.service.Assign(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, detail)
}

// UpdateStatus godoc
// @Summary Update assignment status
// @Description Move an assignment along ASSIGNED, IN_PROGRESS, COMPLETED or CANCELLED
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body object true "New status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /assignments/{id}/status [patch]
func (h *AssignmentHandler) UpdateStatus(c *gin.Context) {
	var payload struct {
		Status models.AssignmentStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "status is required"))
		return
	}

	detail, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), payload.Status, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, detail, nil)
}

// Unassign godoc
// @Summary Unassign a report
// @Description Cancel the report's active assignment; a no-op when none is active
// @Tags Assignments
// @Produce json
// @Param reportId path string true "Report ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/{reportId}/assignment [delete]
func (h *AssignmentHandler) Unassign(c *gin.Context) {
	detail, err := h.service.Unassign(c.Request.Context(), c.Param("reportId"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if detail == nil {
		response.NoContent(c)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// List godoc
// @Summary List assignments
// @Description List assignments filtered by officer, status and priority
// @Tags Assignments
// @Produce json
// @Param officer_id query string false "Officer ID"
// @Param status query string false "Assignment status"
// @Param priority query string false "Report priority"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /assignments [get]
func (h *AssignmentHandler) List(c *gin.Context) {
	filter := models.AssignmentFilter{
		OfficerID: c.Query("officer_id"),
		Status:    models.AssignmentStatus(c.Query("status")),
		Priority:  models.ReportPriority(c.Query("priority")),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "page_size", 20),
	}

	details, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, details, pagination)
}

// Export godoc
// @Summary Export assignments
// @Description Download assignment history as CSV or PDF
// @Tags Assignments
// @Produce octet-stream
// @Param format query string false "csv or pdf"
// @Param officer_id query string false "Officer ID"
// @Param status query string false "Assignment status"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /assignments/export [get]
func (h *AssignmentHandler) Export(c *gin.Context) {
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}

	filter := models.AssignmentFilter{
		OfficerID: c.Query("officer_id"),
		Status:    models.AssignmentStatus(c.Query("status")),
		Priority:  models.ReportPriority(c.Query("priority")),
	}

	result, err := h.exports.ExportAssignments(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+result.Filename)
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}
