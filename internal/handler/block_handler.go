package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clinrota/rota-api/internal/middleware"
	"github.com/clinrota/rota-api/internal/service"
	appErrors "github.com/clinrota/rota-api/pkg/errors"
	"github.com/clinrota/rota-api/pkg/response"
)

// BlockHandler exposes academic block endpoints.
type BlockHandler struct {
	service *service.BlockService
}

// NewBlockHandler constructs a block handler.
func NewBlockHandler(svc *service.BlockService) *BlockHandler {
	return &BlockHandler{service: svc}
}

// List godoc
// @Summary List blocks for an academic year
// @Tags Blocks
// @Produce json
// @Param year query int true "Academic year"
// @Success 200 {object} response.Envelope
// @Router /blocks [get]
func (h *BlockHandler) List(c *gin.Context) {
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "year query parameter is required"))
		return
	}
	blocks, err := h.service.ListByYear(c.Request.Context(), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, blocks, nil)
}

// Get godoc
// @Summary Get one block
// @Tags Blocks
// @Produce json
// @Param id path string true "Block ID"
// @Success 200 {object} response.Envelope
// @Router /blocks/{id} [get]
func (h *BlockHandler) Get(c *gin.Context) {
	block, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, block, nil)
}

// GenerateYear godoc
// @Summary Generate the 13-block grid for an academic year
// @Tags Blocks
// @Accept json
// @Produce json
// @Param year query int true "Academic year"
// @Success 201 {object} response.Envelope
// @Router /blocks/generate [post]
func (h *BlockHandler) GenerateYear(c *gin.Context) {
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "year query parameter is required"))
		return
	}
	blocks, err := h.service.GenerateYear(c.Request.Context(), middleware.ActorID(c), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, blocks)
}
