package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-registry/internal/dto"
	"github.com/noah-isme/school-registry/internal/models"
	appErrors "github.com/noah-isme/school-registry/pkg/errors"
	"github.com/noah-isme/school-registry/pkg/response"
)

type paymentService interface {
	ApplyCheck(ctx context.Context, actor models.Actor, familyID int64, req dto.CheckPaymentRequest) (*dto.PaymentResult, error)
	ApplyCapture(ctx context.Context, actor models.Actor, familyID int64, req dto.CapturePaymentRequest) (*dto.PaymentResult, error)
	Statement(ctx context.Context, actor models.Actor, familyID, seasonID int64) (*models.FamilyStatement, error)
}

// PaymentHandler exposes payment application and family statements.
type PaymentHandler struct {
	service paymentService
}

// NewPaymentHandler constructs the handler.
func NewPaymentHandler(svc paymentService) *PaymentHandler {
	return &PaymentHandler{service: svc}
}

// ApplyCheck godoc
// @Summary Apply check payment
// @Description Reduce a family ledger row by a check payment and mark its registrations registered
// @Tags Payments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param familyID path int true "Family ID"
// @Param payload body dto.CheckPaymentRequest true "Payment"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /families/{familyID}/payments/check [post]
func (h *PaymentHandler) ApplyCheck(c *gin.Context) {
	familyID, ok := pathID(c, "familyID")
	if !ok {
		return
	}
	var req dto.CheckPaymentRequest
	if !bindJSON(c, &req, "invalid payment payload") {
		return
	}
	result, err := h.service.ApplyCheck(c.Request.Context(), actorFromContext(c), familyID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// ApplyCapture godoc
// @Summary Apply gateway capture
// @Description Verify a gateway order and apply it like a check payment
// @Tags Payments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param familyID path int true "Family ID"
// @Param payload body dto.CapturePaymentRequest true "Capture"
// @Success 201 {object} response.Envelope
// @Failure 402 {object} response.Envelope
// @Router /families/{familyID}/payments/capture [post]
func (h *PaymentHandler) ApplyCapture(c *gin.Context) {
	familyID, ok := pathID(c, "familyID")
	if !ok {
		return
	}
	var req dto.CapturePaymentRequest
	if !bindJSON(c, &req, "invalid capture payload") {
		return
	}
	result, err := h.service.ApplyCapture(c.Request.Context(), actorFromContext(c), familyID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Statement godoc
// @Summary Family statement
// @Tags Payments
// @Security BearerAuth
// @Produce json
// @Param familyID path int true "Family ID"
// @Param seasonId query int true "Season ID"
// @Success 200 {object} response.Envelope
// @Router /families/{familyID}/statement [get]
func (h *PaymentHandler) Statement(c *gin.Context) {
	familyID, ok := pathID(c, "familyID")
	if !ok {
		return
	}
	seasonID, ok := queryInt64(c, "seasonId")
	if !ok {
		return
	}
	if seasonID == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "seasonId is required"))
		return
	}
	statement, err := h.service.Statement(c.Request.Context(), actorFromContext(c), familyID, seasonID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, statement)
}
