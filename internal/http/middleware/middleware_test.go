package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() { gin.SetMode(gin.TestMode) }

func serve(h gin.HandlerFunc, header, value string) *httptest.ResponseRecorder {
	r := gin.New()
	r.Use(RequestID(), h)
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(RequestIDHeader)) })
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminKey(t *testing.T) {
	assert.Equal(t, http.StatusOK, serve(AdminKey(""), "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(AdminKey("k"), "X-Admin-Key", "nope").Code)
	assert.Equal(t, http.StatusOK, serve(AdminKey("k"), "X-Admin-Key", "k").Code)
}

func TestCronSecret(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, serve(CronSecret(""), "Authorization", "Bearer ").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(CronSecret("s3"), "Authorization", "s3").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(CronSecret("s3"), "Authorization", "Bearer s4").Code)

	w := serve(CronSecret("s3"), "Authorization", "Bearer s3")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "req_")
	assert.Equal(t, w.Body.String(), w.Header().Get(RequestIDHeader))
}

func TestRequestIDPassthrough(t *testing.T) {
	w := serve(AdminKey(""), RequestIDHeader, "abc")
	assert.Equal(t, "abc", w.Body.String())
}
