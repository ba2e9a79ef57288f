package requestid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareGeneratesAndReuses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var seen, fromCtx string
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		seen = Value(c)
		fromCtx = FromContext(c.Request.Context())
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, fromCtx)
	assert.Equal(t, seen, rec.Header().Get(Header))

	for _, tc := range []struct {
		header string
		reused bool
	}{
		{"abc-123", true},
		{strings.Repeat("x", 200), false},
		{"two words", false},
		{"line\nbreak", false},
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(Header, tc.header)
		r.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, tc.reused, seen == tc.header, tc.header)
	}
}

func TestFromContextWithoutID(t *testing.T) {
	assert.Empty(t, FromContext(context.Background()))
	assert.Equal(t, "req-1", FromContext(NewContext(context.Background(), "req-1")))
}
