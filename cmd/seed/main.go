package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/edufin-api/internal/models"
	"github.com/noah-isme/edufin-api/internal/repository"
	"github.com/noah-isme/edufin-api/internal/service"
	"github.com/noah-isme/edufin-api/pkg/cache"
	"github.com/noah-isme/edufin-api/pkg/config"
	"github.com/noah-isme/edufin-api/pkg/database"
	"github.com/noah-isme/edufin-api/pkg/logger"
	"github.com/noah-isme/edufin-api/pkg/slug"
)

type fixture struct {
	Users      []userFixture     `yaml:"users"`
	Categories []categoryFixture `yaml:"categories"`
	Courses    []courseFixture   `yaml:"courses"`
	Badges     []badgeFixture    `yaml:"badges"`
	Plans      []planFixture     `yaml:"plans"`
}

type userFixture struct {
	Email    string `yaml:"email"`
	FullName string `yaml:"full_name"`
	Role     string `yaml:"role"`
	Password string `yaml:"password"`
}

type categoryFixture struct {
	Name        string `yaml:"name"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
}

type courseFixture struct {
	Title      string          `yaml:"title"`
	Slug       string          `yaml:"slug"`
	Category   string          `yaml:"category"`
	Instructor string          `yaml:"instructor"`
	Overview   string          `yaml:"overview"`
	Image      string          `yaml:"image"`
	Price      string          `yaml:"price"`
	Visibility string          `yaml:"visibility"`
	Modules    []moduleFixture `yaml:"modules"`
}

type moduleFixture struct {
	Title       string          `yaml:"title"`
	Description string          `yaml:"description"`
	Lessons     []lessonFixture `yaml:"lessons"`
}

type lessonFixture struct {
	Title       string            `yaml:"title"`
	Description string            `yaml:"description"`
	VideoURL    string            `yaml:"video_url"`
	Resources   []resourceFixture `yaml:"resources"`
}

type resourceFixture struct {
	Title    string `yaml:"title"`
	FilePath string `yaml:"file_path"`
}

type badgeFixture struct {
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	Icon          string `yaml:"icon"`
	Color         string `yaml:"color"`
	Type          string `yaml:"type"`
	RequiredValue int64  `yaml:"required_value"`
}

type planFixture struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Price        string   `yaml:"price"`
	DurationDays int      `yaml:"duration_days"`
	Features     []string `yaml:"features"`
}

type seeder struct {
	users    *repository.UserRepository
	catalog  *repository.CatalogRepository
	badges   *repository.BadgeRepository
	plans    *repository.SubscriptionRepository
	logger   *zap.Logger
	userIDs  map[string]string
	category map[string]string
}

func main() {
	path := flag.String("file", "scripts/seed/fixtures.yaml", "path to the seed fixture")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	data, err := loadFixture(*path)
	if err != nil {
		logr.Fatal("invalid fixture", zap.String("file", *path), zap.Error(err))
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	s := newSeeder(db, logr)
	if err := s.run(ctx, data); err != nil {
		logr.Fatal("seed failed", zap.Error(err))
	}

	if cfg.Catalog.CacheEnabled {
		invalidateCatalog(ctx, cfg, logr)
	}
	logr.Info("seed complete",
		zap.Int("users", len(data.Users)),
		zap.Int("categories", len(data.Categories)),
		zap.Int("courses", len(data.Courses)),
		zap.Int("badges", len(data.Badges)),
		zap.Int("plans", len(data.Plans)),
	)
}

func loadFixture(path string) (*fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data fixture
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &data, nil
}

func newSeeder(db *sqlx.DB, logr *zap.Logger) *seeder {
	return &seeder{
		users:    repository.NewUserRepository(db),
		catalog:  repository.NewCatalogRepository(db),
		badges:   repository.NewBadgeRepository(db),
		plans:    repository.NewSubscriptionRepository(db),
		logger:   logr,
		userIDs:  map[string]string{},
		category: map[string]string{},
	}
}

func (s *seeder) run(ctx context.Context, data *fixture) error {
	for _, u := range data.Users {
		if err := s.seedUser(ctx, u); err != nil {
			return err
		}
	}
	for _, c := range data.Categories {
		category := &models.Category{Name: c.Name, Slug: slugOr(c.Slug, c.Name), Description: c.Description}
		if err := s.catalog.UpsertCategory(ctx, category); err != nil {
			return err
		}
		s.category[category.Slug] = category.ID
	}
	for _, c := range data.Courses {
		if err := s.seedCourse(ctx, c); err != nil {
			return fmt.Errorf("course %q: %w", c.Title, err)
		}
	}
	for _, b := range data.Badges {
		badge := &models.Badge{
			Name:          b.Name,
			Description:   b.Description,
			Icon:          b.Icon,
			Color:         b.Color,
			Type:          models.BadgeType(strings.ToLower(b.Type)),
			RequiredValue: b.RequiredValue,
			IsActive:      true,
		}
		if err := s.badges.UpsertBadge(ctx, badge); err != nil {
			return err
		}
	}
	for _, p := range data.Plans {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return fmt.Errorf("plan %q price: %w", p.Name, err)
		}
		plan := &models.SubscriptionType{
			Name:         p.Name,
			Description:  p.Description,
			Price:        price,
			DurationDays: p.DurationDays,
			Features:     p.Features,
			IsActive:     true,
		}
		if err := s.plans.UpsertType(ctx, plan); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) seedUser(ctx context.Context, u userFixture) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password for %s: %w", u.Email, err)
	}
	role, err := models.ParseRole(u.Role)
	if err != nil {
		return fmt.Errorf("user %s: %w", u.Email, err)
	}
	user := &models.User{
		Email:        models.NormalizeEmail(u.Email),
		FullName:     u.FullName,
		Role:         role,
		PasswordHash: string(hash),
		Active:       true,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return err
	}
	s.userIDs[user.Email] = user.ID
	return nil
}

func (s *seeder) seedCourse(ctx context.Context, c courseFixture) error {
	categoryID, ok := s.category[c.Category]
	if !ok {
		return fmt.Errorf("unknown category %q", c.Category)
	}
	instructorID, ok := s.userIDs[strings.ToLower(c.Instructor)]
	if !ok {
		return fmt.Errorf("unknown instructor %q", c.Instructor)
	}
	price := decimal.Zero
	if c.Price != "" {
		parsed, err := decimal.NewFromString(c.Price)
		if err != nil {
			return fmt.Errorf("price: %w", err)
		}
		price = parsed
	}
	visibility := models.CourseVisibility(strings.ToLower(c.Visibility))
	if visibility == "" {
		visibility = models.VisibilityPublic
	}

	course := &models.Course{
		Title:        c.Title,
		Slug:         slugOr(c.Slug, c.Title),
		CategoryID:   categoryID,
		InstructorID: instructorID,
		Overview:     c.Overview,
		Price:        price,
		Visibility:   visibility,
	}
	if c.Image != "" {
		course.ImagePath = &c.Image
	}
	if err := s.catalog.UpsertCourse(ctx, course); err != nil {
		return err
	}

	lessons := 0
	for mi, m := range c.Modules {
		module := &models.Module{CourseID: course.ID, Title: m.Title, Description: m.Description, Position: mi + 1}
		if err := s.catalog.UpsertModule(ctx, module); err != nil {
			return err
		}
		for li, l := range m.Lessons {
			lesson := &models.Lesson{ModuleID: module.ID, Title: l.Title, Description: l.Description, Position: li + 1}
			if l.VideoURL != "" {
				videoURL := l.VideoURL
				lesson.VideoURL = &videoURL
			}
			if err := s.catalog.UpsertLesson(ctx, lesson); err != nil {
				return err
			}
			for _, r := range l.Resources {
				resource := &models.Resource{LessonID: lesson.ID, Title: r.Title, FilePath: r.FilePath}
				if err := s.catalog.UpsertResource(ctx, resource); err != nil {
					return err
				}
			}
			lessons++
		}
	}
	s.logger.Info("course seeded", zap.String("slug", course.Slug), zap.Int("modules", len(c.Modules)), zap.Int("lessons", lessons))
	return nil
}

// invalidateCatalog drops cached catalog pages so the API serves the fresh rows.
func invalidateCatalog(ctx context.Context, cfg *config.Config, logr *zap.Logger) {
	client, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, catalog cache left as is", zap.Error(err))
		return
	}
	defer client.Close()

	svc := service.NewCacheService(repository.NewCacheRepository(client, cfg.Redis.KeyPrefix, logr), nil, cfg.Catalog.CacheTTL, logr, true)
	if err := svc.InvalidateCatalog(ctx); err != nil {
		logr.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}

func slugOr(explicit, title string) string {
	if explicit != "" {
		return explicit
	}
	return slug.Make(title, slug.DefaultMaxLength)
}
