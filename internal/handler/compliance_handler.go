package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinrota/rota-api/internal/service"
	appErrors "github.com/clinrota/rota-api/pkg/errors"
	"github.com/clinrota/rota-api/pkg/response"
)

// ComplianceHandler exposes duty-hour validation endpoints.
type ComplianceHandler struct {
	service *service.ComplianceService
}

// NewComplianceHandler constructs a compliance handler.
func NewComplianceHandler(svc *service.ComplianceService) *ComplianceHandler {
	return &ComplianceHandler{service: svc}
}

// ValidatePerson godoc
// @Summary Validate one person's duty hours over a range
// @Tags Compliance
// @Produce json
// @Param id path string true "Person ID"
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param to query string true "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /compliance/people/{id} [get]
func (h *ComplianceHandler) ValidatePerson(c *gin.Context) {
	dr, err := dateRangeQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.ValidatePerson(c.Request.Context(), c.Param("id"), dr)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ValidatePopulation godoc
// @Summary Validate every active person over a range
// @Tags Compliance
// @Produce json
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param to query string true "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /compliance/population [get]
func (h *ComplianceHandler) ValidatePopulation(c *gin.Context) {
	dr, err := dateRangeQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.ValidatePopulation(c.Request.Context(), dr)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Sweep godoc
// @Summary Queue an asynchronous population sweep
// @Tags Compliance
// @Produce json
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param to query string true "End date (YYYY-MM-DD)"
// @Success 202 {object} response.Envelope
// @Router /compliance/sweep [post]
func (h *ComplianceHandler) Sweep(c *gin.Context) {
	dr, err := dateRangeQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.EnqueueSweep(c.Request.Context(), dr); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"status": "queued"}, nil)
}

// Acknowledge godoc
// @Summary Acknowledge a violation with justification
// @Tags Compliance
// @Accept json
// @Produce json
// @Param payload body service.AcknowledgeViolationRequest true "Acknowledgment payload"
// @Success 201 {object} response.Envelope
// @Router /compliance/acknowledgments [post]
func (h *ComplianceHandler) Acknowledge(c *gin.Context) {
	var req service.AcknowledgeViolationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	violation, err := h.service.Acknowledge(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, violation)
}
