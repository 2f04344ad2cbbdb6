package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinrota/rota-api/internal/middleware"
	"github.com/clinrota/rota-api/internal/service"
	appErrors "github.com/clinrota/rota-api/pkg/errors"
	"github.com/clinrota/rota-api/pkg/response"
)

// ScheduleHandler exposes the solver endpoint.
type ScheduleHandler struct {
	service *service.ScheduleService
}

// NewScheduleHandler constructs a schedule handler.
func NewScheduleHandler(svc *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// Solve godoc
// @Summary Run the solver over a horizon
// @Tags Schedule
// @Accept json
// @Produce json
// @Param payload body service.SolveRequest true "Solve parameters"
// @Success 200 {object} response.Envelope
// @Router /schedule/solve [post]
func (h *ScheduleHandler) Solve(c *gin.Context) {
	var req service.SolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.Solve(c.Request.Context(), middleware.ActorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	// Infeasible and partial runs are 200s; the status field carries the
	// outcome and the blocking set explains what to relax.
	response.JSON(c, http.StatusOK, result, nil)
}
