package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/edufin-api/internal/middleware"
	"github.com/noah-isme/edufin-api/internal/models"
	"github.com/noah-isme/edufin-api/pkg/config"
	"github.com/noah-isme/edufin-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/edufin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/edufin-api/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, app *application, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(app.metrics, "/metrics"))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", app.metricsHandler.Health)
	r.GET("/ready", app.metricsHandler.Ready)
	r.GET("/metrics", app.metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	requireAuth := middleware.JWT(app.auth)
	optionalAuth := middleware.OptionalJWT(app.auth)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", app.authHandler.Login)
	auth.POST("/refresh", app.authHandler.Refresh)
	auth.POST("/logout", requireAuth, app.authHandler.Logout)
	auth.GET("/me", requireAuth, app.authHandler.Me)

	api.GET("/categories", app.catalogHandler.ListCategories)
	api.GET("/categories/:slug", app.catalogHandler.GetCategory)
	api.GET("/categories/:slug/courses", app.catalogHandler.CategoryCourses)

	api.GET("/courses", app.catalogHandler.ListCourses)
	api.GET("/courses/:slug", optionalAuth, app.catalogHandler.CourseDetail)
	api.POST("/courses/:slug/enroll", requireAuth, app.enrollmentHandler.Enroll)
	api.POST("/courses/:slug/unenroll", requireAuth, app.enrollmentHandler.Unenroll)
	api.GET("/courses/:slug/progress", requireAuth, app.enrollmentHandler.Progress)
	api.GET("/modules/:id/progress", optionalAuth, app.progressHandler.Module)

	lessons := api.Group("/lessons", requireAuth)
	lessons.POST("/complete", app.progressHandler.Complete)
	lessons.GET("/:id", app.progressHandler.Lesson)
	lessons.POST("/:id/complete", app.progressHandler.CompleteLesson)
	lessons.GET("/:id/discussions", app.discussionHandler.List)
	lessons.POST("/:id/discussions", app.discussionHandler.Create)
	lessons.POST("/:id/comments", app.discussionHandler.CommentOnLesson)
	lessons.PUT("/:id/note", app.discussionHandler.SaveNote)

	discussions := api.Group("/discussions", requireAuth)
	discussions.GET("/:id", app.discussionHandler.Thread)
	discussions.POST("/:id/comments", app.discussionHandler.Reply)

	me := api.Group("/me", requireAuth)
	me.GET("/dashboard", app.dashboardHandler.Student)
	me.GET("/progress", app.dashboardHandler.Summary)
	me.GET("/enrollments", app.enrollmentHandler.Mine)
	me.GET("/badges", app.gamificationHandler.Badges)
	me.GET("/profile", app.gamificationHandler.Profile)
	me.GET("/payments", app.paymentHandler.Mine)
	me.GET("/certificates", app.certificateHandler.Mine)
	me.GET("/certificates/:id/pdf", app.certificateHandler.Download)
	me.POST("/certificates/:id/share", app.certificateHandler.Share)

	api.GET("/certificates/verify/:code", app.certificateHandler.Verify)
	api.GET("/certificates/shared/:token", app.certificateHandler.Shared)

	api.GET("/subscription-types", app.paymentHandler.Plans)
	api.POST("/checkout/courses/:slug", requireAuth, app.paymentHandler.CheckoutCourse)
	api.POST("/checkout/subscriptions/:id", requireAuth, app.paymentHandler.CheckoutSubscription)
	api.GET("/payments/success", requireAuth, app.paymentHandler.Success)
	api.GET("/payments/cancel", requireAuth, app.paymentHandler.Cancel)
	api.POST("/payments/webhook", app.paymentHandler.Webhook)

	admin := api.Group("/admin", requireAuth, middleware.RequireRoles(models.RoleAdmin), middleware.Audit(app.users, logr, models.AuditActionAdminRequest, models.AuditResourceAdmin))
	admin.POST("/payments/:id/refund", app.paymentHandler.Refund)
	admin.GET("/payments/export", app.paymentHandler.Export)
	admin.GET("/metrics", app.metricsHandler.Snapshot)

	return r
}
