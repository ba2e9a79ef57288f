package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edufin-api/internal/dto"
	"github.com/noah-isme/edufin-api/internal/middleware"
	"github.com/noah-isme/edufin-api/internal/models"
	"github.com/noah-isme/edufin-api/pkg/response"
)

type catalogService interface {
	ListCategories(ctx context.Context) ([]models.Category, bool, error)
	GetCategory(ctx context.Context, slug string) (*models.Category, error)
	ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.CourseSummary, *models.Pagination, bool, error)
	CategoryCourses(ctx context.Context, slug string, filter models.CourseFilter) (*models.Category, []models.CourseSummary, *models.Pagination, error)
	CourseDetail(ctx context.Context, slug, studentID string) (*dto.CourseDetailResponse, bool, error)
}

// CatalogHandler serves the public course catalog.
type CatalogHandler struct {
	service catalogService
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(service catalogService) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// ListCategories godoc
// @Summary List categories
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /categories [get]
func (h *CatalogHandler) ListCategories(c *gin.Context) {
	categories, hit, err := h.service.ListCategories(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, categories, nil, middleware.ResponseMeta(c))
}

// GetCategory godoc
// @Summary Get category
// @Tags Catalog
// @Produce json
// @Param slug path string true "Category slug"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /categories/{slug} [get]
func (h *CatalogHandler) GetCategory(c *gin.Context) {
	category, err := h.service.GetCategory(c.Request.Context(), trimmedParam(c, "slug"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, category, nil)
}

// CategoryCourses godoc
// @Summary List courses in a category
// @Tags Catalog
// @Produce json
// @Param slug path string true "Category slug"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /categories/{slug}/courses [get]
func (h *CatalogHandler) CategoryCourses(c *gin.Context) {
	category, courses, pagination, err := h.service.CategoryCourses(c.Request.Context(), trimmedParam(c, "slug"), courseFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"category": category, "courses": courses}, pagination)
}

// ListCourses godoc
// @Summary Search the course catalog
// @Tags Catalog
// @Produce json
// @Param q query string false "Search text"
// @Param category query string false "Category slug"
// @Param price query string false "free or paid"
// @Param sort query string false "popularity, newest, price_low or price_high"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses [get]
func (h *CatalogHandler) ListCourses(c *gin.Context) {
	courses, pagination, hit, err := h.service.ListCourses(c.Request.Context(), courseFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, courses, pagination, middleware.ResponseMeta(c))
}

// CourseDetail godoc
// @Summary Course detail
// @Description Includes the caller's progress when a bearer token is supplied
// @Tags Catalog
// @Produce json
// @Param slug path string true "Course slug"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{slug} [get]
func (h *CatalogHandler) CourseDetail(c *gin.Context) {
	detail, hit, err := h.service.CourseDetail(c.Request.Context(), trimmedParam(c, "slug"), optionalUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, detail, nil, middleware.ResponseMeta(c))
}

func courseFilter(c *gin.Context) models.CourseFilter {
	page, size := pageParams(c)
	return models.CourseFilter{
		Search:       c.Query("q"),
		CategorySlug: strings.TrimSpace(c.Query("category")),
		Price:        strings.ToLower(strings.TrimSpace(c.Query("price"))),
		Sort:         strings.ToLower(strings.TrimSpace(c.Query("sort"))),
		Page:         page,
		PageSize:     size,
	}
}
