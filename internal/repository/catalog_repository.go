package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/edufin-api/internal/models"
)

const categorySelect = `SELECT ca.id, ca.name, ca.slug, ca.description, ca.created_at, ca.updated_at,
    COUNT(co.id) AS course_count
FROM categories ca
LEFT JOIN courses co ON co.category_id = ca.id AND co.visibility IN ('public', 'subscription')`

const courseSummarySelect = `SELECT co.id, co.title, co.slug, co.category_id, co.instructor_id, co.overview, co.image_path,
    co.price, co.visibility, co.created_at, co.updated_at,
    ca.name AS category_name, ca.slug AS category_slug, u.full_name AS instructor_name,
    (SELECT COUNT(*) FROM enrollments e WHERE e.course_id = co.id AND e.active) AS enrollment_count,
    (SELECT COUNT(*) FROM lessons l JOIN modules m ON m.id = l.module_id WHERE m.course_id = co.id) AS lesson_count`

const courseSummaryFrom = ` FROM courses co
JOIN categories ca ON ca.id = co.category_id
JOIN users u ON u.id = co.instructor_id`

const lessonColumns = `l.id, l.module_id, l.title, l.description, l.video_url, l.video_path, l.position, l.created_at, l.updated_at`

// CatalogRepository reads and seeds the category, course, module, lesson and resource tables.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListCategories returns every category with its listed course count.
func (r *CatalogRepository) ListCategories(ctx context.Context) ([]models.Category, error) {
	query := categorySelect + ` GROUP BY ca.id ORDER BY ca.name`
	var categories []models.Category
	if err := r.db.SelectContext(ctx, &categories, query); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// FindCategoryBySlug returns a single category.
func (r *CatalogRepository) FindCategoryBySlug(ctx context.Context, slug string) (*models.Category, error) {
	query := categorySelect + ` WHERE ca.slug = $1 GROUP BY ca.id`
	var category models.Category
	if err := r.db.GetContext(ctx, &category, query, slug); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find category: %w", err)
	}
	return &category, nil
}

// ListCourses returns listed courses matching the filter with the total count.
func (r *CatalogRepository) ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.CourseSummary, int, error) {
	conditions := []string{"co.visibility IN ('public', 'subscription')"}
	var args []interface{}

	if filter.Search != "" {
		idx := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(co.title) LIKE $%d OR LOWER(co.overview) LIKE $%d OR LOWER(ca.name) LIKE $%d OR LOWER(u.full_name) LIKE $%d)", idx, idx, idx, idx))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.CategorySlug != "" {
		conditions = append(conditions, fmt.Sprintf("ca.slug = $%d", len(args)+1))
		args = append(args, filter.CategorySlug)
	}
	switch filter.Price {
	case "free":
		conditions = append(conditions, "co.price = 0")
	case "paid":
		conditions = append(conditions, "co.price > 0")
	}
	if len(filter.ExcludeIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("NOT (co.id = ANY($%d))", len(args)+1))
		args = append(args, pq.Array(filter.ExcludeIDs))
	}

	where := " WHERE " + strings.Join(conditions, " AND ")

	var orderBy string
	switch filter.Sort {
	case models.SortNewest:
		orderBy = "co.created_at DESC"
	case models.SortPriceLow:
		orderBy = "co.price ASC, co.created_at DESC"
	case models.SortPriceHigh:
		orderBy = "co.price DESC, co.created_at DESC"
	default:
		orderBy = "enrollment_count DESC, co.created_at DESC"
	}

	page, pageSize := models.NormalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("%s%s%s ORDER BY %s LIMIT %d OFFSET %d", courseSummarySelect, courseSummaryFrom, where, orderBy, pageSize, models.PageOffset(page, pageSize))

	var courses []models.CourseSummary
	if err := r.db.SelectContext(ctx, &courses, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	countQuery := "SELECT COUNT(*)" + courseSummaryFrom + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindCourseBySlug returns a course regardless of visibility.
func (r *CatalogRepository) FindCourseBySlug(ctx context.Context, slug string) (*models.CourseSummary, error) {
	return r.findCourse(ctx, "co.slug", slug)
}

// FindCourseByID returns a course regardless of visibility.
func (r *CatalogRepository) FindCourseByID(ctx context.Context, id string) (*models.CourseSummary, error) {
	return r.findCourse(ctx, "co.id", id)
}

func (r *CatalogRepository) findCourse(ctx context.Context, column, value string) (*models.CourseSummary, error) {
	query := courseSummarySelect + courseSummaryFrom + ` WHERE ` + column + ` = $1 LIMIT 1`
	var course models.CourseSummary
	if err := r.db.GetContext(ctx, &course, query, value); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// ListModules returns a course's modules in order.
func (r *CatalogRepository) ListModules(ctx context.Context, courseID string) ([]models.Module, error) {
	const query = `SELECT id, course_id, title, description, position, created_at FROM modules WHERE course_id = $1 ORDER BY position, created_at`
	var modules []models.Module
	if err := r.db.SelectContext(ctx, &modules, query, courseID); err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	return modules, nil
}

// ListLessonsByCourse returns every lesson of a course ordered by module then lesson position.
func (r *CatalogRepository) ListLessonsByCourse(ctx context.Context, courseID string) ([]models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons l JOIN modules m ON m.id = l.module_id WHERE m.course_id = $1 ORDER BY m.position, l.position, l.created_at`
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, courseID); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return lessons, nil
}

// FindLessonContext returns a lesson with the module and course it belongs to.
func (r *CatalogRepository) FindLessonContext(ctx context.Context, lessonID string) (*models.LessonContext, error) {
	query := `SELECT ` + lessonColumns + `, m.title AS module_title, m.position AS module_position,
    co.id AS course_id, co.slug AS course_slug, co.title AS course_title
FROM lessons l
JOIN modules m ON m.id = l.module_id
JOIN courses co ON co.id = m.course_id
WHERE l.id = $1 LIMIT 1`
	var lesson models.LessonContext
	if err := r.db.GetContext(ctx, &lesson, query, lessonID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find lesson: %w", err)
	}
	return &lesson, nil
}

// ListResources returns the downloadable files attached to a lesson.
func (r *CatalogRepository) ListResources(ctx context.Context, lessonID string) ([]models.Resource, error) {
	const query = `SELECT id, lesson_id, title, file_path, created_at FROM resources WHERE lesson_id = $1 ORDER BY created_at`
	var resources []models.Resource
	if err := r.db.SelectContext(ctx, &resources, query, lessonID); err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return resources, nil
}

// UpsertCategory inserts or updates a category keyed by slug.
func (r *CatalogRepository) UpsertCategory(ctx context.Context, category *models.Category) error {
	prepareIDs(&category.ID, &category.CreatedAt, &category.UpdatedAt)
	const query = `INSERT INTO categories (id, name, slug, description, created_at, updated_at)
VALUES (:id, :name, :slug, :description, :created_at, :updated_at)
ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description, updated_at = EXCLUDED.updated_at
RETURNING id`
	return r.upsertReturningID(ctx, query, category, &category.ID, "category")
}

// UpsertCourse inserts or updates a course keyed by slug.
func (r *CatalogRepository) UpsertCourse(ctx context.Context, course *models.Course) error {
	prepareIDs(&course.ID, &course.CreatedAt, &course.UpdatedAt)
	const query = `INSERT INTO courses (id, title, slug, category_id, instructor_id, overview, image_path, price, visibility, created_at, updated_at)
VALUES (:id, :title, :slug, :category_id, :instructor_id, :overview, :image_path, :price, :visibility, :created_at, :updated_at)
ON CONFLICT (slug) DO UPDATE SET title = EXCLUDED.title, category_id = EXCLUDED.category_id, instructor_id = EXCLUDED.instructor_id,
    overview = EXCLUDED.overview, image_path = EXCLUDED.image_path, price = EXCLUDED.price, visibility = EXCLUDED.visibility,
    updated_at = EXCLUDED.updated_at
RETURNING id`
	return r.upsertReturningID(ctx, query, course, &course.ID, "course")
}

// UpsertModule inserts or updates a module keyed by (course, position).
func (r *CatalogRepository) UpsertModule(ctx context.Context, module *models.Module) error {
	var updated time.Time
	prepareIDs(&module.ID, &module.CreatedAt, &updated)
	const query = `INSERT INTO modules (id, course_id, title, description, position, created_at)
VALUES (:id, :course_id, :title, :description, :position, :created_at)
ON CONFLICT (course_id, position) DO UPDATE SET title = EXCLUDED.title, description = EXCLUDED.description
RETURNING id`
	return r.upsertReturningID(ctx, query, module, &module.ID, "module")
}

// UpsertLesson inserts or updates a lesson keyed by (module, position).
func (r *CatalogRepository) UpsertLesson(ctx context.Context, lesson *models.Lesson) error {
	prepareIDs(&lesson.ID, &lesson.CreatedAt, &lesson.UpdatedAt)
	const query = `INSERT INTO lessons (id, module_id, title, description, video_url, video_path, position, created_at, updated_at)
VALUES (:id, :module_id, :title, :description, :video_url, :video_path, :position, :created_at, :updated_at)
ON CONFLICT (module_id, position) DO UPDATE SET title = EXCLUDED.title, description = EXCLUDED.description,
    video_url = EXCLUDED.video_url, video_path = EXCLUDED.video_path, updated_at = EXCLUDED.updated_at
RETURNING id`
	return r.upsertReturningID(ctx, query, lesson, &lesson.ID, "lesson")
}

// UpsertResource inserts or updates a resource keyed by (lesson, title).
func (r *CatalogRepository) UpsertResource(ctx context.Context, resource *models.Resource) error {
	var updated time.Time
	prepareIDs(&resource.ID, &resource.CreatedAt, &updated)
	const query = `INSERT INTO resources (id, lesson_id, title, file_path, created_at)
VALUES (:id, :lesson_id, :title, :file_path, :created_at)
ON CONFLICT (lesson_id, title) DO UPDATE SET file_path = EXCLUDED.file_path
RETURNING id`
	return r.upsertReturningID(ctx, query, resource, &resource.ID, "resource")
}

func (r *CatalogRepository) upsertReturningID(ctx context.Context, query string, arg interface{}, id *string, kind string) error {
	rows, err := r.db.NamedQueryContext(ctx, query, arg)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", kind, err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(id); err != nil {
			return fmt.Errorf("scan %s id: %w", kind, err)
		}
	}
	return rows.Err()
}

func prepareIDs(id *string, createdAt, updatedAt *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	now := time.Now().UTC()
	if createdAt.IsZero() {
		*createdAt = now
	}
	*updatedAt = now
}
