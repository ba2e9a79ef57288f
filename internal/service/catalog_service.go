package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edufin-api/internal/dto"
	"github.com/noah-isme/edufin-api/internal/models"
	appErrors "github.com/noah-isme/edufin-api/pkg/errors"
)

const relatedCourseLimit = 4

type catalogRepository interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	FindCategoryBySlug(ctx context.Context, slug string) (*models.Category, error)
	ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.CourseSummary, int, error)
	FindCourseBySlug(ctx context.Context, slug string) (*models.CourseSummary, error)
	ListModules(ctx context.Context, courseID string) ([]models.Module, error)
	ListLessonsByCourse(ctx context.Context, courseID string) ([]models.Lesson, error)
}

type enrollmentChecker interface {
	IsActive(ctx context.Context, studentID, courseID string) (bool, error)
}

type courseProgressReader interface {
	CompletedLessonIDs(ctx context.Context, studentID, courseID string) ([]string, error)
}

type catalogCache interface {
	Remember(ctx context.Context, key string, dest interface{}, load LoadFunc) (bool, error)
}

// courseStructure is the user independent part of a course page.
type courseStructure struct {
	Course  models.CourseSummary   `json:"course"`
	Modules []models.Module        `json:"modules"`
	Lessons []models.Lesson        `json:"lessons"`
	Related []models.CourseSummary `json:"related"`
}

// CatalogService serves the category and course catalog. Anonymous reads go
// through the cache; per-student state is layered on afterwards.
type CatalogService struct {
	repo        catalogRepository
	enrollments enrollmentChecker
	progress    courseProgressReader
	cache       catalogCache
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCatalogService constructs CatalogService.
func NewCatalogService(repo catalogRepository, enrollments enrollmentChecker, progress courseProgressReader, cache catalogCache, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{repo: repo, enrollments: enrollments, progress: progress, cache: cache, validator: validate, logger: logger}
}

// ListCategories returns every category with its listed course count.
func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, bool, error) {
	var categories []models.Category
	hit, err := s.remember(ctx, CatalogKey("categories"), &categories, func(ctx context.Context) (interface{}, error) {
		categories, err := s.repo.ListCategories(ctx)
		if err != nil {
			return nil, appErrors.ErrInternal.Wrap(err, "failed to list categories")
		}
		return categories, nil
	})
	if err != nil {
		return nil, false, err
	}
	return categories, hit, nil
}

// GetCategory resolves a category by slug.
func (s *CatalogService) GetCategory(ctx context.Context, slug string) (*models.Category, error) {
	category, err := s.repo.FindCategoryBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "category not found")
		}
		return nil, appErrors.ErrInternal.Wrap(err, "failed to load category")
	}
	return category, nil
}

// ListCourses searches listed courses.
func (s *CatalogService) ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.CourseSummary, *models.Pagination, bool, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, nil, false, validationError(err, "invalid course filter")
	}
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)

	key := CatalogKey("courses", filter.Search, filter.CategorySlug, filter.Price, filter.Sort,
		strconv.Itoa(filter.Page), strconv.Itoa(filter.PageSize))
	pagination := func(total int) *models.Pagination {
		return models.NewPagination(filter.Page, filter.PageSize, total)
	}

	var result dto.CourseListResult
	hit, err := s.remember(ctx, key, &result, func(ctx context.Context) (interface{}, error) {
		courses, total, err := s.repo.ListCourses(ctx, filter)
		if err != nil {
			return nil, appErrors.ErrInternal.Wrap(err, "failed to list courses")
		}
		return dto.CourseListResult{Items: courses, Total: total}, nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	return result.Items, pagination(result.Total), hit, nil
}

// CategoryCourses lists the courses of one category.
func (s *CatalogService) CategoryCourses(ctx context.Context, slug string, filter models.CourseFilter) (*models.Category, []models.CourseSummary, *models.Pagination, error) {
	category, err := s.GetCategory(ctx, slug)
	if err != nil {
		return nil, nil, nil, err
	}
	filter.CategorySlug = category.Slug
	courses, pagination, _, err := s.ListCourses(ctx, filter)
	if err != nil {
		return nil, nil, nil, err
	}
	return category, courses, pagination, nil
}

// ResolveCourse returns a listed course by slug. Private courses are
// reported as missing.
func (s *CatalogService) ResolveCourse(ctx context.Context, slug string) (*models.CourseSummary, error) {
	course, err := s.repo.FindCourseBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.ErrInternal.Wrap(err, "failed to load course")
	}
	if !course.Listed() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return course, nil
}

// CourseDetail returns the course tree. When studentID is set the response
// carries enrollment state, lesson completion and fresh progress.
func (s *CatalogService) CourseDetail(ctx context.Context, slug, studentID string) (*dto.CourseDetailResponse, bool, error) {
	structure, hit, err := s.courseStructure(ctx, slug)
	if err != nil {
		return nil, false, err
	}

	completed := map[string]bool{}
	resp := &dto.CourseDetailResponse{
		Course:          structure.Course,
		Related:         structure.Related,
		PaymentRequired: !structure.Course.IsFree(),
	}
	if studentID != "" {
		enrolled, err := s.enrollments.IsActive(ctx, studentID, structure.Course.ID)
		if err != nil {
			return nil, false, appErrors.ErrInternal.Wrap(err, "failed to check enrollment")
		}
		resp.IsEnrolled = enrolled
		resp.PaymentRequired = resp.PaymentRequired && !enrolled

		ids, err := s.progress.CompletedLessonIDs(ctx, studentID, structure.Course.ID)
		if err != nil {
			return nil, false, appErrors.ErrInternal.Wrap(err, "failed to load progress")
		}
		for _, id := range ids {
			completed[id] = true
		}
	}

	byModule := make(map[string][]dto.LessonOutline, len(structure.Modules))
	for _, lesson := range structure.Lessons {
		byModule[lesson.ModuleID] = append(byModule[lesson.ModuleID], dto.LessonOutline{Lesson: lesson, IsCompleted: completed[lesson.ID]})
	}

	var courseCounts models.ProgressCounts
	resp.Modules = make([]dto.ModuleOutline, 0, len(structure.Modules))
	for _, module := range structure.Modules {
		lessons := byModule[module.ID]
		if lessons == nil {
			lessons = []dto.LessonOutline{}
		}
		counts := models.ProgressCounts{Total: len(lessons)}
		for _, lesson := range lessons {
			if lesson.IsCompleted {
				counts.Completed++
			}
		}
		courseCounts.Total += counts.Total
		courseCounts.Completed += counts.Completed
		resp.Modules = append(resp.Modules, dto.ModuleOutline{Module: module, Lessons: lessons, Progress: counts.Percent()})
	}
	resp.Progress = courseCounts.Percent()
	return resp, hit, nil
}

func (s *CatalogService) courseStructure(ctx context.Context, slug string) (*courseStructure, bool, error) {
	var structure courseStructure
	hit, err := s.remember(ctx, CatalogKey("course", slug), &structure, func(ctx context.Context) (interface{}, error) {
		return s.loadCourseStructure(ctx, slug)
	})
	if err != nil {
		return nil, false, err
	}
	return &structure, hit, nil
}

func (s *CatalogService) loadCourseStructure(ctx context.Context, slug string) (*courseStructure, error) {
	course, err := s.ResolveCourse(ctx, slug)
	if err != nil {
		return nil, err
	}
	modules, err := s.repo.ListModules(ctx, course.ID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to load modules")
	}
	lessons, err := s.repo.ListLessonsByCourse(ctx, course.ID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to load lessons")
	}
	related, _, err := s.repo.ListCourses(ctx, models.CourseFilter{
		CategorySlug: course.CategorySlug,
		ExcludeIDs:   []string{course.ID},
		PageSize:     relatedCourseLimit,
	})
	if err != nil {
		s.logger.Warn("failed to load related courses", zap.String("course_id", course.ID), zap.Error(err))
		related = nil
	}
	return &courseStructure{Course: *course, Modules: modules, Lessons: lessons, Related: related}, nil
}

// remember reads through the cache when one is configured.
func (s *CatalogService) remember(ctx context.Context, key string, dest interface{}, load LoadFunc) (bool, error) {
	if s.cache != nil {
		return s.cache.Remember(ctx, key, dest, load)
	}
	value, err := load(ctx)
	if err != nil {
		return false, err
	}
	return false, copyInto(dest, value)
}
