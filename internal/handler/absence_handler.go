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

// AbsenceHandler exposes absence endpoints. Writes report clashing
// assignments in the response meta so schedulers see the fallout
// immediately without the write being rejected.
type AbsenceHandler struct {
	service *service.AbsenceService
}

// NewAbsenceHandler constructs an absence handler.
func NewAbsenceHandler(svc *service.AbsenceService) *AbsenceHandler {
	return &AbsenceHandler{service: svc}
}

// ListForPerson godoc
// @Summary List absences for a person
// @Tags Absences
// @Produce json
// @Param id path string true "Person ID"
// @Success 200 {object} response.Envelope
// @Router /people/{id}/absences [get]
func (h *AbsenceHandler) ListForPerson(c *gin.Context) {
	absences, err := h.service.ListForPerson(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, absences, nil)
}

// Create godoc
// @Summary Record an absence
// @Tags Absences
// @Accept json
// @Produce json
// @Param payload body service.UpsertAbsenceRequest true "Absence payload"
// @Success 201 {object} response.Envelope
// @Router /absences [post]
func (h *AbsenceHandler) Create(c *gin.Context) {
	var req service.UpsertAbsenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	absence, clashes, err := h.service.Create(c.Request.Context(), middleware.ActorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, absence, nil, clashMeta(clashes))
}

// Update godoc
// @Summary Update an absence
// @Tags Absences
// @Accept json
// @Produce json
// @Param id path string true "Absence ID"
// @Param payload body service.UpsertAbsenceRequest true "Absence payload"
// @Success 200 {object} response.Envelope
// @Router /absences/{id} [put]
func (h *AbsenceHandler) Update(c *gin.Context) {
	var req service.UpsertAbsenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	absence, clashes, err := h.service.Update(c.Request.Context(), middleware.ActorID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, absence, nil, clashMeta(clashes))
}

// Delete godoc
// @Summary Delete an absence
// @Tags Absences
// @Produce json
// @Param id path string true "Absence ID"
// @Success 204
// @Router /absences/{id} [delete]
func (h *AbsenceHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), middleware.ActorID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func clashMeta(clashes []models.Assignment) map[string]interface{} {
	if len(clashes) == 0 {
		return nil
	}
	return map[string]interface{}{"clashing_assignments": clashes}
}
