package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinrota/rota-api/internal/middleware"
	"github.com/clinrota/rota-api/internal/service"
	appErrors "github.com/clinrota/rota-api/pkg/errors"
	"github.com/clinrota/rota-api/pkg/response"
)

// RotationHandler exposes rotation template endpoints.
type RotationHandler struct {
	service *service.RotationService
}

// NewRotationHandler constructs a rotation handler.
func NewRotationHandler(svc *service.RotationService) *RotationHandler {
	return &RotationHandler{service: svc}
}

// List godoc
// @Summary List rotation templates
// @Tags Rotations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /rotations [get]
func (h *RotationHandler) List(c *gin.Context) {
	templates, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, templates, nil)
}

// Get godoc
// @Summary Get rotation template
// @Tags Rotations
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} response.Envelope
// @Router /rotations/{id} [get]
func (h *RotationHandler) Get(c *gin.Context) {
	tpl, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tpl, nil)
}

// Create godoc
// @Summary Create rotation template
// @Tags Rotations
// @Accept json
// @Produce json
// @Param payload body service.UpsertRotationTemplateRequest true "Template payload"
// @Success 201 {object} response.Envelope
// @Router /rotations [post]
func (h *RotationHandler) Create(c *gin.Context) {
	var req service.UpsertRotationTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	tpl, err := h.service.Create(c.Request.Context(), middleware.ActorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, tpl)
}

// Update godoc
// @Summary Update rotation template
// @Tags Rotations
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param payload body service.UpsertRotationTemplateRequest true "Template payload"
// @Success 200 {object} response.Envelope
// @Router /rotations/{id} [put]
func (h *RotationHandler) Update(c *gin.Context) {
	var req service.UpsertRotationTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	tpl, err := h.service.Update(c.Request.Context(), middleware.ActorID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tpl, nil)
}

// Delete godoc
// @Summary Delete rotation template
// @Tags Rotations
// @Produce json
// @Param id path string true "Template ID"
// @Success 204
// @Router /rotations/{id} [delete]
func (h *RotationHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), middleware.ActorID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
