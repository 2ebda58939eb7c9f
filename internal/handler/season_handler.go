package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-registry/internal/dto"
	"github.com/noah-isme/school-registry/internal/models"
	"github.com/noah-isme/school-registry/pkg/response"
)

type seasonService interface {
	Get(ctx context.Context, id int64) (*models.Season, error)
	List(ctx context.Context, filter models.SeasonFilter) ([]models.Season, *models.Pagination, error)
	Window(ctx context.Context, id int64) (*dto.SeasonWindowResponse, error)
	ResolveTerms(ctx context.Context, yearID int64) (*dto.SeasonTerms, error)
	StartSemester(ctx context.Context, actor models.Actor, req dto.StartSemesterRequest) (*dto.SeasonTerms, error)
}

// SeasonHandler exposes season endpoints.
type SeasonHandler struct {
	service seasonService
}

// NewSeasonHandler constructs the handler.
func NewSeasonHandler(svc seasonService) *SeasonHandler {
	return &SeasonHandler{service: svc}
}

// List godoc
// @Summary List seasons
// @Tags Seasons
// @Security BearerAuth
// @Produce json
// @Param status query string false "ACTIVE or INACTIVE"
// @Param yearOnly query bool false "Only year records"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /seasons [get]
func (h *SeasonHandler) List(c *gin.Context) {
	filter := models.SeasonFilter{Status: models.SeasonStatus(c.Query("status"))}
	filter.YearOnly, _ = strconv.ParseBool(c.Query("yearOnly"))
	filter.Page, _ = strconv.Atoi(c.Query("page"))
	filter.PageSize, _ = strconv.Atoi(c.Query("pageSize"))

	seasons, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, seasons, pagination)
}

// Get godoc
// @Summary Get season
// @Tags Seasons
// @Security BearerAuth
// @Produce json
// @Param id path int true "Season ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /seasons/{id} [get]
func (h *SeasonHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	season, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, season)
}

// Window godoc
// @Summary Registration window
// @Description Classify the current moment against the season's registration calendar
// @Tags Seasons
// @Security BearerAuth
// @Produce json
// @Param id path int true "Season ID"
// @Success 200 {object} response.Envelope
// @Router /seasons/{id}/window [get]
func (h *SeasonHandler) Window(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	window, err := h.service.Window(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, window)
}

// Terms godoc
// @Summary Resolve terms
// @Description Resolve a year record to its fall and spring terms
// @Tags Seasons
// @Security BearerAuth
// @Produce json
// @Param id path int true "Year season ID"
// @Success 200 {object} response.Envelope
// @Router /seasons/{id}/terms [get]
func (h *SeasonHandler) Terms(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	terms, err := h.service.ResolveTerms(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, terms)
}

// StartSemester godoc
// @Summary Start semester
// @Description Create a year with fall and spring terms and retire active seasons
// @Tags Seasons
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.StartSemesterRequest true "Calendars"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /seasons/semesters [post]
func (h *SeasonHandler) StartSemester(c *gin.Context) {
	var req dto.StartSemesterRequest
	if !bindJSON(c, &req, "invalid semester payload") {
		return
	}
	terms, err := h.service.StartSemester(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, terms)
}
