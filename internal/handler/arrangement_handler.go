package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-registry/internal/dto"
	"github.com/noah-isme/school-registry/internal/models"
	appErrors "github.com/noah-isme/school-registry/pkg/errors"
	"github.com/noah-isme/school-registry/pkg/response"
)

type arrangementService interface {
	List(ctx context.Context, filter models.ArrangementFilter) ([]models.Arrangement, error)
	Get(ctx context.Context, id int64) (*models.Arrangement, error)
	Quote(ctx context.Context, id int64) (*models.Price, error)
	Roster(ctx context.Context, actor models.Actor, id int64) ([]models.RosterEntry, error)
	Create(ctx context.Context, actor models.Actor, req dto.CreateArrangementRequest) (*models.Arrangement, error)
	Update(ctx context.Context, actor models.Actor, id int64, req dto.UpdateArrangementRequest) (*models.Arrangement, error)
}

// ArrangementHandler exposes the class catalog.
type ArrangementHandler struct {
	service arrangementService
}

// NewArrangementHandler constructs the handler.
func NewArrangementHandler(svc arrangementService) *ArrangementHandler {
	return &ArrangementHandler{service: svc}
}

// List godoc
// @Summary List arrangements
// @Tags Arrangements
// @Security BearerAuth
// @Produce json
// @Param seasonId query int true "Season ID"
// @Param classId query int false "Class ID"
// @Param teacherId query int false "Teacher ID"
// @Param regClasses query bool false "Only placeholder (true) or scheduled (false) arrangements"
// @Success 200 {object} response.Envelope
// @Router /arrangements [get]
func (h *ArrangementHandler) List(c *gin.Context) {
	var filter models.ArrangementFilter
	var ok bool
	if filter.SeasonID, ok = queryInt64(c, "seasonId"); !ok {
		return
	}
	if filter.SeasonID == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "seasonId is required"))
		return
	}
	if filter.ClassID, ok = queryInt64(c, "classId"); !ok {
		return
	}
	if filter.TeacherID, ok = queryInt64(c, "teacherId"); !ok {
		return
	}
	if raw := c.Query("regClasses"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid regClasses"))
			return
		}
		filter.RegClasses = &v
	}

	arrangements, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, arrangements)
}

// Get godoc
// @Summary Get arrangement
// @Tags Arrangements
// @Security BearerAuth
// @Produce json
// @Param id path int true "Arrangement ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /arrangements/{id} [get]
func (h *ArrangementHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	arrangement, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, arrangement)
}

// Quote godoc
// @Summary Price quote
// @Description Price a registration into the arrangement would be charged
// @Tags Arrangements
// @Security BearerAuth
// @Produce json
// @Param id path int true "Arrangement ID"
// @Success 200 {object} response.Envelope
// @Router /arrangements/{id}/quote [get]
func (h *ArrangementHandler) Quote(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	price, err := h.service.Quote(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, price)
}

// Roster godoc
// @Summary Arrangement roster
// @Tags Arrangements
// @Security BearerAuth
// @Produce json
// @Param id path int true "Arrangement ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /arrangements/{id}/roster [get]
func (h *ArrangementHandler) Roster(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	entries, err := h.service.Roster(c.Request.Context(), actorFromContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, entries)
}

// Create godoc
// @Summary Create arrangement
// @Tags Arrangements
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.CreateArrangementRequest true "Arrangement"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /arrangements [post]
func (h *ArrangementHandler) Create(c *gin.Context) {
	var req dto.CreateArrangementRequest
	if !bindJSON(c, &req, "invalid arrangement payload") {
		return
	}
	arrangement, err := h.service.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, arrangement)
}

// Update godoc
// @Summary Update arrangement
// @Description Edit an arrangement; refused while its season's registration window is open
// @Tags Arrangements
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Arrangement ID"
// @Param payload body dto.UpdateArrangementRequest true "Arrangement"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /arrangements/{id} [put]
func (h *ArrangementHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateArrangementRequest
	if !bindJSON(c, &req, "invalid arrangement payload") {
		return
	}
	arrangement, err := h.service.Update(c.Request.Context(), actorFromContext(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, arrangement)
}
