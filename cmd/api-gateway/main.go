package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/ruangpulih/clinic-api/api/swagger"
	"github.com/ruangpulih/clinic-api/internal/handler"
	"github.com/ruangpulih/clinic-api/internal/middleware"
	"github.com/ruangpulih/clinic-api/internal/models"
	"github.com/ruangpulih/clinic-api/internal/repository"
	"github.com/ruangpulih/clinic-api/internal/service"
	"github.com/ruangpulih/clinic-api/pkg/cache"
	"github.com/ruangpulih/clinic-api/pkg/config"
	"github.com/ruangpulih/clinic-api/pkg/database"
	"github.com/ruangpulih/clinic-api/pkg/export"
	"github.com/ruangpulih/clinic-api/pkg/logger"
	corsmiddleware "github.com/ruangpulih/clinic-api/pkg/middleware/cors"
	reqidmiddleware "github.com/ruangpulih/clinic-api/pkg/middleware/requestid"
)

// @title Ruang Pulih Clinic API
// @version 1.0.0
// @description Therapy clinic management API with a rule-driven scheduling engine
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if client, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	} else {
		redisClient = client
		defer redisClient.Close()
	}

	validate := validator.New()

	// Repositories.
	ruleRepo := repository.NewRuleRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	patientRepo := repository.NewPatientRepository(db)
	therapistRepo := repository.NewTherapistRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	schedulingSvc := service.NewSchedulingService(ruleRepo, sessionRepo, metricsSvc, validate, logr, cfg.Scheduling.MinBufferMinutes)
	ruleSvc := service.NewRuleService(ruleRepo, schedulingSvc, validate, logr)
	dashboardSvc := service.NewDashboardService(schedulingSvc, cacheRepo, metricsSvc, logr, cfg.Dashboard.CacheTTL)
	sessionSvc := service.NewSessionService(sessionRepo, schedulingSvc, dashboardSvc, validate, logr)
	patientSvc := service.NewPatientService(patientRepo, validate)
	therapistSvc := service.NewTherapistService(therapistRepo, validate)
	catalogSvc := service.NewCatalogService(catalogRepo, validate)
	exporter := export.NewPDFExporter(cfg.Receipts.ClinicName, cfg.Receipts.Footer)
	paymentSvc := service.NewPaymentService(paymentRepo, sessionRepo, exporter, validate)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "clinic-api",
	})

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	schedulingHandler := handler.NewSchedulingHandler(schedulingSvc)
	ruleHandler := handler.NewRuleHandler(ruleSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	patientHandler := handler.NewPatientHandler(patientSvc)
	therapistHandler := handler.NewTherapistHandler(therapistSvc)
	catalogHandler := handler.NewCatalogHandler(catalogSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	staff := []models.UserRole{models.RoleAdmin, models.RoleReception}
	everyone := []models.UserRole{models.RoleAdmin, models.RoleReception, models.RoleTherapist}

	if cfg.Scheduling.Enabled {
		scheduling := protected.Group("/scheduling")
		{
			scheduling.POST("/validate", middleware.RequireRoles(everyone...), schedulingHandler.Validate)
			scheduling.GET("/conflicts", middleware.RequireRoles(everyone...), schedulingHandler.Conflicts)
		}

		rules := protected.Group("/scheduling/rules")
		rules.Use(middleware.RequireRoles(models.RoleAdmin))
		{
			rules.GET("", ruleHandler.List)
			rules.GET("/:id", ruleHandler.Get)
			rules.POST("", middleware.Audit(userRepo, models.AuditActionRuleCreate, "scheduling_rule"), ruleHandler.Create)
			rules.PUT("/:id", middleware.Audit(userRepo, models.AuditActionRuleUpdate, "scheduling_rule"), ruleHandler.Update)
			rules.DELETE("/:id", middleware.Audit(userRepo, models.AuditActionRuleDelete, "scheduling_rule"), ruleHandler.Delete)
			rules.POST("/:id/test", ruleHandler.Test)
		}
	}

	sessions := protected.Group("/sessions")
	{
		sessions.GET("", middleware.RequireRoles(everyone...), sessionHandler.List)
		sessions.GET("/:id", middleware.RequireRoles(everyone...), sessionHandler.Get)
		sessions.POST("", middleware.RequireRoles(staff...), sessionHandler.Create)
		sessions.PUT("/:id", middleware.RequireRoles(staff...), sessionHandler.Update)
		sessions.DELETE("/:id", middleware.RequireRoles(staff...), sessionHandler.Cancel)
	}

	patients := protected.Group("/patients")
	patients.Use(middleware.RequireRoles(staff...))
	{
		patients.GET("", patientHandler.List)
		patients.GET("/:id", patientHandler.Get)
		patients.POST("", patientHandler.Create)
		patients.PUT("/:id", patientHandler.Update)
		patients.DELETE("/:id", patientHandler.Deactivate)
	}

	therapists := protected.Group("/therapists")
	{
		therapists.GET("", middleware.RequireRoles(everyone...), therapistHandler.List)
		therapists.GET("/:id", middleware.RequireRoles(everyone...), therapistHandler.Get)
		therapists.POST("", middleware.RequireRoles(models.RoleAdmin), therapistHandler.Create)
		therapists.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), therapistHandler.Update)
		therapists.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), therapistHandler.Deactivate)
	}

	services := protected.Group("/services")
	{
		services.GET("", middleware.RequireRoles(everyone...), catalogHandler.List)
		services.GET("/:id", middleware.RequireRoles(everyone...), catalogHandler.Get)
		services.POST("", middleware.RequireRoles(models.RoleAdmin), catalogHandler.Create)
		services.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), catalogHandler.Update)
		services.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), catalogHandler.Deactivate)
	}

	payments := protected.Group("/payments")
	payments.Use(middleware.RequireRoles(staff...))
	{
		payments.GET("", paymentHandler.List)
		payments.GET("/:id", paymentHandler.Get)
		payments.POST("", paymentHandler.Create)
		payments.POST("/:id/pay", paymentHandler.MarkPaid)
		payments.POST("/:id/refund", paymentHandler.Refund)
		if cfg.Receipts.Enabled {
			payments.GET("/:id/receipt", paymentHandler.Receipt)
			payments.POST("/proposal", paymentHandler.Proposal)
		}
	}

	if cfg.Dashboard.Enabled {
		dashboard := protected.Group("/dashboard")
		{
			dashboard.GET("/therapists/:id", middleware.RequireRoles(everyone...), dashboardHandler.TherapistDay)
			dashboard.GET("/system", middleware.RequireRoles(models.RoleAdmin), metricsHandler.Snapshot)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
