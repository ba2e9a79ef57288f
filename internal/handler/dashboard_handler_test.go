package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edufin-api/internal/dto"
	"github.com/noah-isme/edufin-api/internal/middleware"
	"github.com/noah-isme/edufin-api/internal/models"
	appErrors "github.com/noah-isme/edufin-api/pkg/errors"
)

type fakeDashboardSrv struct {
	studentResp *dto.StudentDashboardResponse
	summaryResp *dto.ProgressSummaryResponse
	err         error
	lastStudent string
}

func (f *fakeDashboardSrv) Student(_ context.Context, studentID string) (*dto.StudentDashboardResponse, error) {
	f.lastStudent = studentID
	return f.studentResp, f.err
}

func (f *fakeDashboardSrv) Summary(_ context.Context, studentID string) (*dto.ProgressSummaryResponse, error) {
	f.lastStudent = studentID
	return f.summaryResp, f.err
}

// authedContext builds a test context for a request made by userID. An empty
// userID leaves the request anonymous.
func authedContext(method, target, body, userID string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	req := httptest.NewRequest(method, target, nil)
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	if userID != "" {
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: userID, Role: models.RoleStudent})
	}
	return c, rec
}

func TestDashboardHandlerRequiresUser(t *testing.T) {
	handler := NewDashboardHandler(&fakeDashboardSrv{})
	c, rec := authedContext(http.MethodGet, "/me/dashboard", "", "")

	handler.Student(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDashboardHandlerStudentSuccess(t *testing.T) {
	srv := &fakeDashboardSrv{studentResp: &dto.StudentDashboardResponse{
		Summary: dto.ProgressSummaryResponse{TotalCourses: 3},
	}}
	handler := NewDashboardHandler(srv)
	c, rec := authedContext(http.MethodGet, "/me/dashboard", "", "student-1")

	handler.Student(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "student-1", srv.lastStudent)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	summary := envelope.Data["summary"].(map[string]interface{})
	assert.Equal(t, float64(3), summary["total_courses"])
	assert.Contains(t, envelope.Meta, "processing_time_ms")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestDashboardHandlerSummary(t *testing.T) {
	handler := NewDashboardHandler(&fakeDashboardSrv{summaryResp: &dto.ProgressSummaryResponse{CompletionRate: 50}})
	c, rec := authedContext(http.MethodGet, "/me/progress", "", "student-1")

	handler.Summary(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, float64(50), envelope.Data["completion_rate"])
}

func TestDashboardHandlerServiceError(t *testing.T) {
	handler := NewDashboardHandler(&fakeDashboardSrv{err: appErrors.ErrInternal})
	c, rec := authedContext(http.MethodGet, "/me/progress", "", "student-1")

	handler.Summary(c)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, appErrors.ErrInternal.Code, envelope.Error["code"])
}

type responseEnvelope struct {
	Data  map[string]interface{} `json:"data"`
	Error map[string]interface{} `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}
