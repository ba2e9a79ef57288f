package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edufin-api/internal/dto"
	"github.com/noah-isme/edufin-api/internal/models"
	appErrors "github.com/noah-isme/edufin-api/pkg/errors"
)

type fakeCatalogSrv struct {
	lastFilter  models.CourseFilter
	lastStudent string
	hit         bool
	err         error
}

func (f *fakeCatalogSrv) ListCategories(context.Context) ([]models.Category, bool, error) {
	return []models.Category{{Slug: "programming"}}, f.hit, f.err
}

func (f *fakeCatalogSrv) GetCategory(_ context.Context, slug string) (*models.Category, error) {
	return &models.Category{Slug: slug}, f.err
}

func (f *fakeCatalogSrv) ListCourses(_ context.Context, filter models.CourseFilter) ([]models.CourseSummary, *models.Pagination, bool, error) {
	f.lastFilter = filter
	if f.err != nil {
		return nil, nil, false, f.err
	}
	return []models.CourseSummary{{Course: models.Course{Slug: "go-basics"}}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, f.hit, nil
}

func (f *fakeCatalogSrv) CategoryCourses(_ context.Context, slug string, filter models.CourseFilter) (*models.Category, []models.CourseSummary, *models.Pagination, error) {
	f.lastFilter = filter
	return &models.Category{Slug: slug}, nil, &models.Pagination{}, f.err
}

func (f *fakeCatalogSrv) CourseDetail(_ context.Context, slug, studentID string) (*dto.CourseDetailResponse, bool, error) {
	f.lastStudent = studentID
	if f.err != nil {
		return nil, false, f.err
	}
	return &dto.CourseDetailResponse{Course: models.CourseSummary{Course: models.Course{Slug: slug}}, IsEnrolled: studentID != ""}, f.hit, nil
}

func TestCatalogHandlerListCoursesParsesQuery(t *testing.T) {
	service := &fakeCatalogSrv{hit: true}
	handler := NewCatalogHandler(service)
	c, rec := authedContext(http.MethodGet, "/courses?q=go&category=programming&price=FREE&sort=newest&page=2&limit=5", "", "")

	handler.ListCourses(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.CourseFilter{Search: "go", CategorySlug: "programming", Price: "free", Sort: "newest", Page: 2, PageSize: 5}, service.lastFilter)
	var envelope struct {
		Pagination models.Pagination      `json:"pagination"`
		Meta       map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, 1, envelope.Pagination.TotalCount)
	assert.Equal(t, true, envelope.Meta["cache_hit"])
}

func TestCatalogHandlerListCoursesValidationError(t *testing.T) {
	invalid := appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "invalid course filter"), map[string]string{"sort": "must be one of popularity newest price_low price_high"})
	handler := NewCatalogHandler(&fakeCatalogSrv{err: invalid})
	c, rec := authedContext(http.MethodGet, "/courses?sort=alphabetical", "", "")

	handler.ListCourses(c)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "VALIDATION_ERROR", envelope.Error["code"])
	assert.Contains(t, envelope.Error["fields"], "sort")
}

func TestCatalogHandlerCourseDetailUsesOptionalUser(t *testing.T) {
	service := &fakeCatalogSrv{}
	handler := NewCatalogHandler(service)

	c, rec := authedContext(http.MethodGet, "/courses/go-basics", "", "")
	c.Params = gin.Params{{Key: "slug", Value: "go-basics"}}
	handler.CourseDetail(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, service.lastStudent)

	c, rec = authedContext(http.MethodGet, "/courses/go-basics", "", "student-1")
	c.Params = gin.Params{{Key: "slug", Value: "go-basics"}}
	handler.CourseDetail(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "student-1", service.lastStudent)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, true, envelope.Data["is_enrolled"])
}

func TestCatalogHandlerCourseDetailNotFound(t *testing.T) {
	handler := NewCatalogHandler(&fakeCatalogSrv{err: appErrors.Clone(appErrors.ErrNotFound, "course not found")})
	c, rec := authedContext(http.MethodGet, "/courses/missing", "", "")
	c.Params = gin.Params{{Key: "slug", Value: "missing"}}

	handler.CourseDetail(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
