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

// PersonHandler exposes the people roster endpoints.
type PersonHandler struct {
	service *service.PersonService
}

// NewPersonHandler constructs a person handler.
func NewPersonHandler(svc *service.PersonService) *PersonHandler {
	return &PersonHandler{service: svc}
}

// List godoc
// @Summary List people
// @Tags People
// @Produce json
// @Param role query string false "Filter by role"
// @Param specialty query string false "Filter by specialty"
// @Param include_archived query bool false "Include archived people"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /people [get]
func (h *PersonHandler) List(c *gin.Context) {
	var filter models.PersonFilter
	filter.Role = models.PersonRole(c.Query("role"))
	filter.Specialty = c.Query("specialty")
	filter.IncludeArchived = c.Query("include_archived") == "true"
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	people, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, people, pagination)
}

// Get godoc
// @Summary Get one person
// @Tags People
// @Produce json
// @Param id path string true "Person ID"
// @Success 200 {object} response.Envelope
// @Router /people/{id} [get]
func (h *PersonHandler) Get(c *gin.Context) {
	person, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, person, nil)
}

// Create godoc
// @Summary Create person
// @Tags People
// @Accept json
// @Produce json
// @Param payload body service.CreatePersonRequest true "Person payload"
// @Success 201 {object} response.Envelope
// @Router /people [post]
func (h *PersonHandler) Create(c *gin.Context) {
	var req service.CreatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	person, err := h.service.Create(c.Request.Context(), middleware.ActorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, person)
}

// Update godoc
// @Summary Update person
// @Tags People
// @Accept json
// @Produce json
// @Param id path string true "Person ID"
// @Param payload body service.UpdatePersonRequest true "Person payload"
// @Success 200 {object} response.Envelope
// @Router /people/{id} [put]
func (h *PersonHandler) Update(c *gin.Context) {
	var req service.UpdatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	person, err := h.service.Update(c.Request.Context(), middleware.ActorID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, person, nil)
}

// Archive godoc
// @Summary Archive person
// @Tags People
// @Produce json
// @Param id path string true "Person ID"
// @Success 204
// @Router /people/{id} [delete]
func (h *PersonHandler) Archive(c *gin.Context) {
	if err := h.service.Archive(c.Request.Context(), middleware.ActorID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
