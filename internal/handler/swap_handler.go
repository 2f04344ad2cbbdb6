package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinrota/rota-api/internal/middleware"
	"github.com/clinrota/rota-api/internal/models"
	"github.com/clinrota/rota-api/internal/service"
	appErrors "github.com/clinrota/rota-api/pkg/errors"
	"github.com/clinrota/rota-api/pkg/response"
)

// SwapHandler exposes the swap lifecycle endpoints.
type SwapHandler struct {
	service *service.SwapService
}

// NewSwapHandler constructs a swap handler.
func NewSwapHandler(svc *service.SwapService) *SwapHandler {
	return &SwapHandler{service: svc}
}

// Propose godoc
// @Summary Propose a swap between two assignments
// @Tags Swaps
// @Accept json
// @Produce json
// @Param payload body service.ProposeSwapRequest true "Swap payload"
// @Success 201 {object} response.Envelope
// @Router /swaps [post]
func (h *SwapHandler) Propose(c *gin.Context) {
	var req service.ProposeSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	swap, err := h.service.Propose(c.Request.Context(), middleware.ActorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, swap)
}

// Get godoc
// @Summary Get a swap record
// @Tags Swaps
// @Produce json
// @Param id path string true "Swap ID"
// @Success 200 {object} response.Envelope
// @Router /swaps/{id} [get]
func (h *SwapHandler) Get(c *gin.Context) {
	swap, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, swap, nil)
}

// List godoc
// @Summary List swaps by lifecycle status
// @Tags Swaps
// @Produce json
// @Param status query string true "Swap status"
// @Success 200 {object} response.Envelope
// @Router /swaps [get]
func (h *SwapHandler) List(c *gin.Context) {
	status := models.SwapStatus(c.DefaultQuery("status", string(models.SwapStatusProposed)))
	swaps, err := h.service.ListByStatus(c.Request.Context(), status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, swaps, nil)
}

// Validate godoc
// @Summary Validate a proposed swap
// @Tags Swaps
// @Accept json
// @Produce json
// @Param id path string true "Swap ID"
// @Param payload body service.ValidateSwapRequest false "Validation options"
// @Success 200 {object} response.Envelope
// @Router /swaps/{id}/validate [post]
func (h *SwapHandler) Validate(c *gin.Context) {
	var req service.ValidateSwapRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	swap, err := h.service.Validate(c.Request.Context(), middleware.ActorID(c), c.Param("id"), req)
	if err != nil {
		// A failing validation still carries the stored outcome.
		if swap != nil && appErrors.HasCode(err, appErrors.ErrCompliance.Code) {
			appErr := appErrors.FromError(err)
			c.JSON(appErr.Status, response.Envelope{
				Error: appErr,
				Meta:  map[string]interface{}{"validation": swap.Validation},
			})
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, swap, nil)
}

// Execute godoc
// @Summary Execute a validated swap
// @Tags Swaps
// @Produce json
// @Param id path string true "Swap ID"
// @Success 200 {object} response.Envelope
// @Router /swaps/{id}/execute [post]
func (h *SwapHandler) Execute(c *gin.Context) {
	swap, err := h.service.Execute(c.Request.Context(), middleware.ActorID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, swap, nil)
}

// Rollback godoc
// @Summary Roll back an executed swap inside its window
// @Tags Swaps
// @Accept json
// @Produce json
// @Param id path string true "Swap ID"
// @Param payload body service.RollbackSwapRequest true "Rollback payload"
// @Success 200 {object} response.Envelope
// @Router /swaps/{id}/rollback [post]
func (h *SwapHandler) Rollback(c *gin.Context) {
	var req service.RollbackSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	swap, err := h.service.Rollback(c.Request.Context(), middleware.ActorID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, swap, nil)
}

// Match godoc
// @Summary Rank counterpart assignments for a swap
// @Tags Swaps
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/swap-candidates [get]
func (h *SwapHandler) Match(c *gin.Context) {
	candidates, err := h.service.Match(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, candidates, nil)
}
