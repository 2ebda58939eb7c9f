package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/school-registry/internal/handler"
	"github.com/noah-isme/school-registry/internal/middleware"
	"github.com/noah-isme/school-registry/internal/models"
	"github.com/noah-isme/school-registry/internal/service"
	"github.com/noah-isme/school-registry/pkg/config"
	"github.com/noah-isme/school-registry/pkg/logger"
	corsmiddleware "github.com/noah-isme/school-registry/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/school-registry/pkg/middleware/requestid"
)

// Handlers bundles every HTTP handler the API serves.
type Handlers struct {
	Auth         *handler.AuthHandler
	Season       *handler.SeasonHandler
	Arrangement  *handler.ArrangementHandler
	Registration *handler.RegistrationHandler
	RegChange    *handler.RegChangeHandler
	Payment      *handler.PaymentHandler
	Export       *handler.ExportHandler
	Metrics      *handler.MetricsHandler
}

// Deps carries the cross-cutting pieces the routes need.
type Deps struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *service.MetricsService
	Tokens  middleware.TokenValidator
}

// New builds the gin engine with middleware and all routes mounted.
func New(deps Deps, h Handlers) *gin.Engine {
	if deps.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(deps.Config.CORS))
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	if deps.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(deps.Config.APIPrefix)
	api.POST("/auth/login", h.Auth.Login)

	authed := api.Group("", middleware.JWT(deps.Tokens))
	admin := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)

	authed.GET("/auth/me", h.Auth.Me)
	authed.PUT("/auth/password", h.Auth.ChangePassword)

	seasons := authed.Group("/seasons")
	seasons.GET("", h.Season.List)
	seasons.GET("/:id", h.Season.Get)
	seasons.GET("/:id/window", h.Season.Window)
	seasons.GET("/:id/terms", h.Season.Terms)
	seasons.POST("/semesters", admin, h.Season.StartSemester)

	arrangements := authed.Group("/arrangements")
	arrangements.GET("", h.Arrangement.List)
	arrangements.GET("/:id", h.Arrangement.Get)
	arrangements.GET("/:id/quote", h.Arrangement.Quote)
	arrangements.GET("/:id/roster", staff, h.Arrangement.Roster)
	arrangements.GET("/:id/roster.csv", staff, h.Export.RosterCSV)
	arrangements.POST("", admin, h.Arrangement.Create)
	arrangements.PUT("/:id", admin, h.Arrangement.Update)

	registrations := authed.Group("/registrations")
	registrations.GET("", h.Registration.List)
	registrations.POST("", h.Registration.Enroll)
	registrations.GET("/:id", h.Registration.Get)
	registrations.DELETE("/:id", h.Registration.Drop)
	registrations.POST("/distribute", admin, h.Registration.Distribute)
	registrations.POST("/rollback", admin, h.Registration.Rollback)
	registrations.DELETE("/:id/change-request", h.RegChange.Undo)

	changes := authed.Group("/change-requests")
	changes.GET("", h.RegChange.List)
	changes.POST("", h.RegChange.Request)
	changes.POST("/:id/approve", admin, h.RegChange.Approve)
	changes.POST("/:id/reject", admin, h.RegChange.Reject)

	families := authed.Group("/families/:familyID", middleware.FamilyScope("familyID"))
	families.GET("/statement", h.Payment.Statement)
	families.GET("/statement.pdf", h.Export.StatementPDF)
	families.POST("/payments/check", admin, h.Payment.ApplyCheck)
	families.POST("/payments/capture", h.Payment.ApplyCapture)

	return r
}
