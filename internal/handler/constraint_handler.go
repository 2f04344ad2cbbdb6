package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinrota/rota-api/internal/service"
	appErrors "github.com/clinrota/rota-api/pkg/errors"
	"github.com/clinrota/rota-api/pkg/response"
)

// ConstraintHandler exposes constraint configuration endpoints. Changes
// apply to future solver runs; nothing already scheduled moves.
type ConstraintHandler struct {
	service *service.ConstraintService
}

// NewConstraintHandler constructs a constraint handler.
func NewConstraintHandler(svc *service.ConstraintService) *ConstraintHandler {
	return &ConstraintHandler{service: svc}
}

// List godoc
// @Summary List constraint configurations
// @Tags Constraints
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /constraints [get]
func (h *ConstraintHandler) List(c *gin.Context) {
	configs, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, configs, nil)
}

// Get godoc
// @Summary Get one constraint configuration
// @Tags Constraints
// @Produce json
// @Param name path string true "Constraint name"
// @Success 200 {object} response.Envelope
// @Router /constraints/{name} [get]
func (h *ConstraintHandler) Get(c *gin.Context) {
	cfg, err := h.service.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// Create godoc
// @Summary Create a constraint configuration
// @Tags Constraints
// @Accept json
// @Produce json
// @Param payload body service.UpsertConstraintRequest true "Constraint payload"
// @Success 201 {object} response.Envelope
// @Router /constraints [post]
func (h *ConstraintHandler) Create(c *gin.Context) {
	var req service.UpsertConstraintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	cfg, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cfg)
}

// Update godoc
// @Summary Update a constraint configuration
// @Tags Constraints
// @Accept json
// @Produce json
// @Param name path string true "Constraint name"
// @Param payload body service.UpsertConstraintRequest true "Constraint payload"
// @Success 200 {object} response.Envelope
// @Router /constraints/{name} [put]
func (h *ConstraintHandler) Update(c *gin.Context) {
	var req service.UpsertConstraintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	cfg, err := h.service.Update(c.Request.Context(), c.Param("name"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

type enableRequest struct {
	Enabled bool `json:"enabled"`
}

// SetEnabled godoc
// @Summary Enable or disable a constraint
// @Tags Constraints
// @Accept json
// @Produce json
// @Param name path string true "Constraint name"
// @Param payload body enableRequest true "Toggle payload"
// @Success 204
// @Router /constraints/{name}/enabled [put]
func (h *ConstraintHandler) SetEnabled(c *gin.Context) {
	var req enableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.service.SetEnabled(c.Request.Context(), c.Param("name"), req.Enabled); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
