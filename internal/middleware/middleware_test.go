package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/edumatrix-api/internal/models"
	appErrors "github.com/noah-isme/edumatrix-api/pkg/errors"
)

type staticAuth map[string]*models.JWTClaims

func (a staticAuth) Authenticate(_ context.Context, token string) (*models.JWTClaims, error) {
	if claims, ok := a[token]; ok {
		return claims, nil
	}
	return nil, appErrors.ErrUnauthorized
}

var testAuth = staticAuth{
	"admin-token":   {UserID: "1", Username: "mikeadmin", Role: models.RoleAdmin},
	"student-token": {UserID: "3", Username: "johnsmith", Role: models.RoleStudent},
}

func serve(r *gin.Engine, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTRejectsMissingAndUnknownTokens(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", JWT(testAuth), func(c *gin.Context) { c.String(http.StatusOK, Claims(c).Username) })

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "nope").Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodGet, "/me", "admin-token")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mikeadmin", w.Body.String())
}

func TestJWTQueryFallsBackToAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/events", JWTQuery(testAuth), func(c *gin.Context) { c.String(http.StatusOK, Claims(c).Username) })

	w := serve(r, http.MethodGet, "/events?access_token=student-token", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "johnsmith", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/events", "").Code)
}

func TestRBACWithSelf(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/students/:id", JWT(testAuth), RBAC(string(models.RoleTeacher), Self), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/admin", JWT(testAuth), RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/students/3", "student-token").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/students/4", "student-token").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/students/3", "admin-token").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/admin", "admin-token").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/admin", "student-token").Code)
}

func TestRBACWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", RBAC(string(models.RoleAdmin)), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/x", "").Code)
}

func TestAuditLogsMutationsOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	group := r.Group("", JWT(testAuth), Audit(zap.New(core), "courses"))
	group.GET("/courses", func(c *gin.Context) { c.Status(http.StatusOK) })
	group.POST("/courses", func(c *gin.Context) { c.Status(http.StatusCreated) })
	group.DELETE("/courses/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	serve(r, http.MethodGet, "/courses", "admin-token")
	serve(r, http.MethodPost, "/courses", "admin-token")
	serve(r, http.MethodDelete, "/courses/9", "admin-token")

	entries := logs.FilterMessage("audit").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "courses", fields["resource"])
	assert.Equal(t, "mikeadmin", fields["actor"])
	assert.Equal(t, int64(http.StatusCreated), fields["status"])
}

type observedRequest struct {
	method, path string
	status       int
}

type recordingObserver struct{ seen []observedRequest }

func (o *recordingObserver) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	o.seen = append(o.seen, observedRequest{method, path, status})
}

func TestMetricsSkipsScrapePath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	obs := &recordingObserver{}
	r := gin.New()
	r.Use(Metrics(obs, "/metrics"))
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/courses/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, http.MethodGet, "/metrics", "")
	serve(r, http.MethodGet, "/courses/1", "")
	serve(r, http.MethodGet, "/missing", "")

	require.Len(t, obs.seen, 2)
	assert.Equal(t, observedRequest{http.MethodGet, "/courses/:id", http.StatusOK}, obs.seen[0])
	assert.Equal(t, "unmatched", obs.seen[1].path)
}

func TestCacheHitMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WithResponseMeta())
	var meta map[string]interface{}
	r.GET("/dash", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dash", bytes.NewReader(nil)))
	assert.Equal(t, "true", w.Header().Get(CacheHeader))
	assert.Equal(t, true, meta[cacheHitKey])
	assert.Contains(t, meta, "processing_time_ms")
}
