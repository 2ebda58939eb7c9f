package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-registry/internal/dto"
	"github.com/noah-isme/school-registry/internal/models"
	"github.com/noah-isme/school-registry/pkg/response"
)

type regChangeService interface {
	Request(ctx context.Context, actor models.Actor, req dto.CreateChangeRequest) (*models.RegChangeRequest, error)
	Approve(ctx context.Context, actor models.Actor, requestID int64, req dto.ApproveChangeRequest) (*models.RegChangeRequest, error)
	Reject(ctx context.Context, actor models.Actor, requestID int64) (*models.RegChangeRequest, error)
	Undo(ctx context.Context, actor models.Actor, registrationID int64) (bool, error)
	List(ctx context.Context, actor models.Actor, filter models.RegChangeFilter) ([]models.RegChangeRequest, *models.Pagination, error)
}

// RegChangeHandler exposes the registration-change workflow.
type RegChangeHandler struct {
	service regChangeService
}

// NewRegChangeHandler constructs the handler.
func NewRegChangeHandler(svc regChangeService) *RegChangeHandler {
	return &RegChangeHandler{service: svc}
}

// Request godoc
// @Summary Request a registration change
// @Tags Change Requests
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.CreateChangeRequest true "Change request"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /change-requests [post]
func (h *RegChangeHandler) Request(c *gin.Context) {
	var req dto.CreateChangeRequest
	if !bindJSON(c, &req, "invalid change request payload") {
		return
	}
	created, err := h.service.Request(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Approve godoc
// @Summary Approve a change request
// @Description Refund the registration's charge and mark it transferred
// @Tags Change Requests
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Request ID"
// @Param payload body dto.ApproveChangeRequest true "Registration reference"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /change-requests/{id}/approve [post]
func (h *RegChangeHandler) Approve(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.ApproveChangeRequest
	if !bindJSON(c, &req, "invalid approval payload") {
		return
	}
	processed, err := h.service.Approve(c.Request.Context(), actorFromContext(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, processed)
}

// Reject godoc
// @Summary Reject a change request
// @Tags Change Requests
// @Security BearerAuth
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /change-requests/{id}/reject [post]
func (h *RegChangeHandler) Reject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	processed, err := h.service.Reject(c.Request.Context(), actorFromContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, processed)
}

// Undo godoc
// @Summary Withdraw a pending change request
// @Tags Change Requests
// @Security BearerAuth
// @Produce json
// @Param id path int true "Registration ID"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id}/change-request [delete]
func (h *RegChangeHandler) Undo(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	removed, err := h.service.Undo(c.Request.Context(), actorFromContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"removed": removed})
}

// List godoc
// @Summary List change requests
// @Tags Change Requests
// @Security BearerAuth
// @Produce json
// @Param familyId query int false "Family ID"
// @Param seasonId query int false "Season ID"
// @Param status query int false "1 pending, 2 approved, 3 rejected"
// @Success 200 {object} response.Envelope
// @Router /change-requests [get]
func (h *RegChangeHandler) List(c *gin.Context) {
	var filter models.RegChangeFilter
	var ok bool
	if filter.FamilyID, ok = queryInt64(c, "familyId"); !ok {
		return
	}
	if filter.SeasonID, ok = queryInt64(c, "seasonId"); !ok {
		return
	}
	status, ok := queryInt64(c, "status")
	if !ok {
		return
	}
	filter.Status = models.ChangeRequestStatus(status)
	page, _ := queryInt64(c, "page")
	size, _ := queryInt64(c, "pageSize")
	filter.Page, filter.PageSize = int(page), int(size)

	reqs, pagination, err := h.service.List(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reqs, pagination)
}
