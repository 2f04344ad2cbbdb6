package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinrota/rota-api/internal/service"
	"github.com/clinrota/rota-api/pkg/response"
)

// ConflictHandler exposes the read-only conflict surface.
type ConflictHandler struct {
	service *service.ConflictService
}

// NewConflictHandler constructs a conflict handler.
func NewConflictHandler(svc *service.ConflictService) *ConflictHandler {
	return &ConflictHandler{service: svc}
}

// Detect godoc
// @Summary List conflicts in a date range
// @Tags Conflicts
// @Produce json
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param to query string true "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /conflicts [get]
func (h *ConflictHandler) Detect(c *gin.Context) {
	dr, err := dateRangeQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	conflicts, err := h.service.Detect(c.Request.Context(), dr)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflicts, nil)
}
