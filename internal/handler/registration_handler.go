package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-registry/internal/dto"
	"github.com/noah-isme/school-registry/internal/models"
	appErrors "github.com/noah-isme/school-registry/pkg/errors"
	"github.com/noah-isme/school-registry/pkg/response"
)

type registrationService interface {
	Enroll(ctx context.Context, actor models.Actor, req dto.EnrollRequest) (*models.ClassRegistration, error)
	Distribute(ctx context.Context, actor models.Actor, req dto.DistributeRequest) (*dto.BatchResult, error)
	Rollback(ctx context.Context, actor models.Actor, req dto.RollbackRequest) (*dto.BatchResult, error)
	Drop(ctx context.Context, actor models.Actor, registrationID int64) (*dto.DropResult, error)
	Get(ctx context.Context, actor models.Actor, id int64) (*models.ClassRegistration, error)
	List(ctx context.Context, actor models.Actor, query dto.RegistrationQuery) ([]models.ClassRegistration, *models.Pagination, error)
}

// RegistrationHandler exposes the registration engine.
type RegistrationHandler struct {
	service registrationService
}

// NewRegistrationHandler constructs the handler.
func NewRegistrationHandler(svc registrationService) *RegistrationHandler {
	return &RegistrationHandler{service: svc}
}

// Enroll godoc
// @Summary Enroll student
// @Description Book a student into an arrangement and charge the family ledger
// @Tags Registrations
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.EnrollRequest true "Enrollment"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations [post]
func (h *RegistrationHandler) Enroll(c *gin.Context) {
	var req dto.EnrollRequest
	if !bindJSON(c, &req, "invalid enrollment payload") {
		return
	}
	reg, err := h.service.Enroll(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reg)
}

// Distribute godoc
// @Summary Distribute students
// @Description Move students between arrangements of one season as a single batch
// @Tags Registrations
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.DistributeRequest true "Moves"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/distribute [post]
func (h *RegistrationHandler) Distribute(c *gin.Context) {
	var req dto.DistributeRequest
	if !bindJSON(c, &req, "invalid distribute payload") {
		return
	}
	result, err := h.service.Distribute(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Rollback godoc
// @Summary Roll back distribution
// @Description Return every student of the listed arrangements to a placeholder
// @Tags Registrations
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.RollbackRequest true "Rollback"
// @Success 200 {object} response.Envelope
// @Router /registrations/rollback [post]
func (h *RegistrationHandler) Rollback(c *gin.Context) {
	var req dto.RollbackRequest
	if !bindJSON(c, &req, "invalid rollback payload") {
		return
	}
	result, err := h.service.Rollback(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Drop godoc
// @Summary Drop registration
// @Description Cancel with refund before the cancel deadline, otherwise mark as dropout
// @Tags Registrations
// @Security BearerAuth
// @Produce json
// @Param id path int true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /registrations/{id} [delete]
func (h *RegistrationHandler) Drop(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.service.Drop(c.Request.Context(), actorFromContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Get godoc
// @Summary Get registration
// @Tags Registrations
// @Security BearerAuth
// @Produce json
// @Param id path int true "Registration ID"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id} [get]
func (h *RegistrationHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	reg, err := h.service.Get(c.Request.Context(), actorFromContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, reg)
}

// List godoc
// @Summary List registrations
// @Description Families only see their own registrations
// @Tags Registrations
// @Security BearerAuth
// @Produce json
// @Param familyId query int false "Family ID"
// @Param studentId query int false "Student ID"
// @Param seasonId query int false "Season ID"
// @Param arrangementId query int false "Arrangement ID"
// @Param status query int false "Status code"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /registrations [get]
func (h *RegistrationHandler) List(c *gin.Context) {
	var query dto.RegistrationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	regs, pagination, err := h.service.List(c.Request.Context(), actorFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, regs, pagination)
}
