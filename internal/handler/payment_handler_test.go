package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-registry/internal/dto"
	"github.com/noah-isme/school-registry/internal/middleware"
	"github.com/noah-isme/school-registry/internal/models"
	"github.com/noah-isme/school-registry/internal/service"
)

type paymentServiceMock struct {
	familyID int64
	check    dto.CheckPaymentRequest
	seasonID int64
}

func (m *paymentServiceMock) ApplyCheck(ctx context.Context, actor models.Actor, familyID int64, req dto.CheckPaymentRequest) (*dto.PaymentResult, error) {
	m.familyID, m.check = familyID, req
	return &dto.PaymentResult{RegistrationsUpdated: 2}, nil
}

func (m *paymentServiceMock) ApplyCapture(ctx context.Context, actor models.Actor, familyID int64, req dto.CapturePaymentRequest) (*dto.PaymentResult, error) {
	m.familyID = familyID
	return &dto.PaymentResult{}, nil
}

func (m *paymentServiceMock) Statement(ctx context.Context, actor models.Actor, familyID, seasonID int64) (*models.FamilyStatement, error) {
	m.familyID, m.seasonID = familyID, seasonID
	return &models.FamilyStatement{FamilyID: familyID, SeasonID: seasonID}, nil
}

type exportServiceMock struct{}

func (exportServiceMock) RosterCSV(ctx context.Context, actor models.Actor, arrangementID int64) (*service.ExportFile, error) {
	return &service.ExportFile{Filename: "roster-10.csv", ContentType: "text/csv", Data: []byte("a,b\n")}, nil
}

func (exportServiceMock) StatementPDF(ctx context.Context, actor models.Actor, familyID, seasonID int64) (*service.ExportFile, error) {
	return &service.ExportFile{Filename: "statement-100-2.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}, nil
}

var adminClaims = &models.JWTClaims{UserID: 1, Role: models.RoleAdmin}

func TestApplyCheckDecodesDecimalAmount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &paymentServiceMock{}
	router := gin.New()
	router.POST("/families/:familyID/payments/check", withClaims(adminClaims), NewPaymentHandler(svc).ApplyCheck)

	body := []byte(`{"balanceId":55,"amount":"200.50","reference":"CHK-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/families/100/payments/check", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int64(100), svc.familyID)
	assert.True(t, svc.check.Amount.Equal(decimal.RequireFromString("200.50")))
	assert.Equal(t, "CHK-1", svc.check.Reference)
}

func TestStatementRequiresSeason(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &paymentServiceMock{}
	router := gin.New()
	router.GET("/families/:familyID/statement", withClaims(familyClaims), middleware.FamilyScope("familyID"), NewPaymentHandler(svc).Statement)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/families/100/statement", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/families/200/statement?seasonId=2", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/families/100/statement?seasonId=2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), svc.seasonID)
}

func TestExportsStreamAttachments(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewExportHandler(exportServiceMock{})
	router := gin.New()
	router.GET("/arrangements/:id/roster.csv", withClaims(adminClaims), h.RosterCSV)
	router.GET("/families/:familyID/statement.pdf", withClaims(adminClaims), h.StatementPDF)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/arrangements/10/roster.csv", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="roster-10.csv"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/families/100/statement.pdf?seasonId=2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF", w.Body.String())
}
