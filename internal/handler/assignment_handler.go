package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clinrota/rota-api/internal/middleware"
	"github.com/clinrota/rota-api/internal/models"
	"github.com/clinrota/rota-api/internal/service"
	appErrors "github.com/clinrota/rota-api/pkg/errors"
	"github.com/clinrota/rota-api/pkg/response"
)

// AssignmentHandler exposes manual assignment endpoints. Mutations carry the
// row version; a stale version surfaces as 409.
type AssignmentHandler struct {
	service *service.AssignmentService
}

// NewAssignmentHandler constructs an assignment handler.
func NewAssignmentHandler(svc *service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{service: svc}
}

// List godoc
// @Summary List assignments
// @Tags Assignments
// @Produce json
// @Param person_id query string false "Filter by person"
// @Param template_id query string false "Filter by template"
// @Param block_id query string false "Filter by block"
// @Param role query string false "Filter by role"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /assignments [get]
func (h *AssignmentHandler) List(c *gin.Context) {
	var filter models.AssignmentFilter
	filter.PersonID = c.Query("person_id")
	filter.TemplateID = c.Query("template_id")
	filter.BlockID = c.Query("block_id")
	filter.Role = models.AssignmentRole(c.Query("role"))
	from, err := dateQuery(c, "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := dateQuery(c, "to")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.From = from
	filter.To = to
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}

	assignments, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, pagination)
}

// Get godoc
// @Summary Get one assignment
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id} [get]
func (h *AssignmentHandler) Get(c *gin.Context) {
	assignment, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Create godoc
// @Summary Place a manual assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body service.CreateAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Router /assignments [post]
func (h *AssignmentHandler) Create(c *gin.Context) {
	var req service.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assignment, violations, err := h.service.Create(c.Request.Context(), middleware.ActorID(c), req)
	if err != nil {
		respondWithViolations(c, err, violations)
		return
	}
	response.JSON(c, http.StatusCreated, assignment, nil, violationMeta(violations))
}

// Update godoc
// @Summary Update an assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body service.UpdateAssignmentRequest true "Assignment payload"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id} [put]
func (h *AssignmentHandler) Update(c *gin.Context) {
	var req service.UpdateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assignment, violations, err := h.service.Update(c.Request.Context(), middleware.ActorID(c), c.Param("id"), req)
	if err != nil {
		respondWithViolations(c, err, violations)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil, violationMeta(violations))
}

// Delete godoc
// @Summary Delete an assignment
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Param version query int true "Expected row version"
// @Success 204
// @Router /assignments/{id} [delete]
func (h *AssignmentHandler) Delete(c *gin.Context) {
	version, err := strconv.Atoi(c.Query("version"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "version query parameter is required"))
		return
	}
	if err := h.service.Delete(c.Request.Context(), middleware.ActorID(c), c.Param("id"), version); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

type lockRequest struct {
	Version int  `json:"version" binding:"required"`
	Locked  bool `json:"locked"`
}

// SetLocked godoc
// @Summary Lock or unlock an assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body lockRequest true "Lock payload"
// @Success 204
// @Router /assignments/{id}/lock [put]
func (h *AssignmentHandler) SetLocked(c *gin.Context) {
	var req lockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.service.SetLocked(c.Request.Context(), middleware.ActorID(c), c.Param("id"), req.Version, req.Locked); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// BulkCreate godoc
// @Summary Bulk create assignments
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body service.BulkCreateRequest true "Batch payload"
// @Success 200 {object} response.Envelope
// @Router /assignments/bulk [post]
func (h *AssignmentHandler) BulkCreate(c *gin.Context) {
	var req service.BulkCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	results, err := h.service.BulkCreate(c.Request.Context(), middleware.ActorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}

// BulkUpdate godoc
// @Summary Bulk update assignments
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body service.BulkUpdateRequest true "Batch payload"
// @Success 200 {object} response.Envelope
// @Router /assignments/bulk [put]
func (h *AssignmentHandler) BulkUpdate(c *gin.Context) {
	var req service.BulkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	results, err := h.service.BulkUpdate(c.Request.Context(), middleware.ActorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}

// BulkDelete godoc
// @Summary Bulk delete assignments by date range
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body service.BulkDeleteRequest true "Date range payload"
// @Success 200 {object} response.Envelope
// @Router /assignments/bulk [delete]
func (h *AssignmentHandler) BulkDelete(c *gin.Context) {
	var req service.BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	results, err := h.service.BulkDelete(c.Request.Context(), middleware.ActorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}

// respondWithViolations keeps the rejected rule breaches visible in the
// error envelope's meta so the client can offer the override flow.
func respondWithViolations(c *gin.Context, err error, violations []models.Violation) {
	if len(violations) == 0 {
		response.Error(c, err)
		return
	}
	appErr := appErrors.FromError(err)
	c.JSON(appErr.Status, response.Envelope{
		Error: appErr,
		Meta:  map[string]interface{}{"violations": violations},
	})
}

func violationMeta(violations []models.Violation) map[string]interface{} {
	if len(violations) == 0 {
		return nil
	}
	return map[string]interface{}{"overridden_violations": violations}
}
