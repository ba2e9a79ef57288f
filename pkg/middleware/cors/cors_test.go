package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(mw gin.HandlerFunc, method, origin string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw)
	r.GET("/courses", func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(method, "/courses", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCORSAllowList(t *testing.T) {
	mw := New([]string{"https://learn.example/", "https://*.edufin.example"})

	cases := []struct {
		origin  string
		allowed bool
	}{
		{"https://learn.example", true},
		{"https://admin.edufin.example", true},
		{"https://edufin.example", false},
		{"http://admin.edufin.example", false},
		{"https://evil.example", false},
		{"https://learn.example.evil", false},
	}
	for _, tc := range cases {
		rec := serve(mw, http.MethodGet, tc.origin)
		if tc.allowed {
			assert.Equal(t, tc.origin, rec.Header().Get("Access-Control-Allow-Origin"), tc.origin)
			assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"), tc.origin)
		} else {
			assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), tc.origin)
		}
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestCORSPreflightAndWildcard(t *testing.T) {
	rec := serve(New(nil), http.MethodOptions, "https://any.example")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	rec = serve(New(nil), http.MethodGet, "https://any.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"), "only preflights list methods")
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")
}
