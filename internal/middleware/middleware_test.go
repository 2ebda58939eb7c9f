package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-registry/internal/models"
	"github.com/noah-isme/school-registry/internal/service"
	appErrors "github.com/noah-isme/school-registry/pkg/errors"
)

type stubValidator map[string]*models.JWTClaims

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

var tokens = stubValidator{
	"admin":  {UserID: 1, Role: models.RoleAdmin},
	"family": {UserID: 10, Role: models.RoleFamily, FamilyID: 100},
}

func newTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	chain := append([]gin.HandlerFunc{JWT(tokens)}, handlers...)
	chain = append(chain, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": Actor(c).UserID})
	})
	r.GET("/families/:familyID", chain...)
	return r
}

func call(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTRejectsMissingAndInvalidTokens(t *testing.T) {
	r := newTestRouter()

	assert.Equal(t, http.StatusUnauthorized, call(r, "/families/100", "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "/families/100", "forged").Code)

	w := call(r, "/families/100", "family")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":10`)
}

func TestBearerTokenParsing(t *testing.T) {
	_, err := bearerToken("Basic abc")
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
	_, err = bearerToken("Bearer ")
	assert.Error(t, err)
	token, err := bearerToken("bearer  abc ")
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
}

func TestRequireRoles(t *testing.T) {
	r := newTestRouter(RequireRoles(models.RoleAdmin))

	assert.Equal(t, http.StatusOK, call(r, "/families/100", "admin").Code)
	assert.Equal(t, http.StatusForbidden, call(r, "/families/100", "family").Code)
}

func TestFamilyScope(t *testing.T) {
	r := newTestRouter(FamilyScope("familyID"))

	assert.Equal(t, http.StatusOK, call(r, "/families/100", "family").Code)
	assert.Equal(t, http.StatusForbidden, call(r, "/families/200", "family").Code)
	assert.Equal(t, http.StatusForbidden, call(r, "/families/abc", "family").Code)
	assert.Equal(t, http.StatusOK, call(r, "/families/200", "admin").Code)
}

func TestMetricsLabelsUnmatchedRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/seasons/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/seasons/3", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `path="/seasons/:id"`))
	assert.True(t, strings.Contains(body, `path="unmatched"`))
	assert.False(t, strings.Contains(body, "/nope/123"))
}
