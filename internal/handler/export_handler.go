package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-registry/internal/models"
	"github.com/noah-isme/school-registry/internal/service"
	appErrors "github.com/noah-isme/school-registry/pkg/errors"
	"github.com/noah-isme/school-registry/pkg/response"
)

type exportService interface {
	RosterCSV(ctx context.Context, actor models.Actor, arrangementID int64) (*service.ExportFile, error)
	StatementPDF(ctx context.Context, actor models.Actor, familyID, seasonID int64) (*service.ExportFile, error)
}

// ExportHandler streams generated documents.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(svc exportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// RosterCSV godoc
// @Summary Export roster
// @Tags Exports
// @Security BearerAuth
// @Produce text/csv
// @Param id path int true "Arrangement ID"
// @Success 200 {file} file
// @Router /arrangements/{id}/roster.csv [get]
func (h *ExportHandler) RosterCSV(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	file, err := h.service.RosterCSV(c.Request.Context(), actorFromContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// StatementPDF godoc
// @Summary Export family statement
// @Tags Exports
// @Security BearerAuth
// @Produce application/pdf
// @Param familyID path int true "Family ID"
// @Param seasonId query int true "Season ID"
// @Success 200 {file} file
// @Router /families/{familyID}/statement.pdf [get]
func (h *ExportHandler) StatementPDF(c *gin.Context) {
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
	file, err := h.service.StatementPDF(c.Request.Context(), actorFromContext(c), familyID, seasonID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
