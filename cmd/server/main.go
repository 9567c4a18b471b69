package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"learnlynk/internal/config"
	"learnlynk/internal/handlers"
	"learnlynk/internal/middleware"
	"learnlynk/internal/models"
	"learnlynk/internal/observability"
	"learnlynk/internal/services"
	"learnlynk/pkg/notifier"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()
	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	shutdownOTel, err := observability.SetupTracing(context.Background(), cfg)
	if err != nil {
		appLogger.Warnf("init tracing: %v", err)
	} else {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Info)})
	if err != nil {
		appLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.Monitoring.Tracing.Enabled {
		_ = db.Use(gormtracing.NewPlugin())
	}

	if err := db.AutoMigrate(
		&models.User{}, &models.Company{}, &models.Recruiter{},
		&models.Lead{}, &models.LeadTask{}, &models.Student{},
		&models.AutomationRule{}, &models.AutomationExecution{}, &models.AutomationActionLog{},
	); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	// Email delivery: real client when enabled, log-only otherwise.
	var emailSender services.Notifier
	if cfg.Notifier.Enabled {
		emailSender = notifier.NewClient(&notifier.Config{
			BaseURL:    cfg.Notifier.BaseURL,
			APIKey:     cfg.Notifier.APIKey,
			Timeout:    cfg.Notifier.Timeout,
			MaxRetries: cfg.Notifier.MaxRetries,
		}, appLogger)
	} else {
		emailSender = notifier.NewLogSender(appLogger)
	}

	automationService := services.NewAutomationService(db, appLogger)
	automationService.SetNotifier(emailSender)
	automationService.SetActionTimeout(cfg.Automation.ActionTimeout)
	studentService := services.NewStudentService(db, appLogger)
	automationService.SetStudentConverter(studentService)
	leadService := services.NewLeadService(db, appLogger, automationService)

	activityHub := services.NewActivityHub(appLogger)
	automationService.SetExecutionPublisher(activityHub)
	go activityHub.Run()

	// time_based trigger sweep; disable when an external cron runs the
	// sweep CLI command instead.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Automation.SweepEnabled {
		go runSweepWorker(ctx, automationService, appLogger, cfg.Automation.SweepInterval)
	}

	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddlewareWithConfig(cfg))
	if cfg.Monitoring.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Monitoring.Tracing.ServiceName))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC(), "version": "v1.0.0"})
	})
	if cfg.Monitoring.Enabled {
		r.GET("/metrics", handlers.NewMetricsHandler(activityHub).GetMetrics)
	}

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(cfg))
	handlers.RegisterAutomationRoutes(api, handlers.NewAutomationHandler(automationService, appLogger))
	handlers.RegisterLeadRoutes(api, handlers.NewLeadHandler(leadService, appLogger))

	// Live execution feed for dashboards.
	v1 := r.Group("/api/v1")
	v1.GET("/ws/activity", activityHub.HandleWebSocket)

	listenAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: listenAddr, Handler: r}
	go func() {
		appLogger.Infof("Starting server on %s", listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatalf("Server forced to shutdown: %v", err)
	}
	appLogger.Info("Server exited")
}

func runSweepWorker(ctx context.Context, automation *services.AutomationService, log *logrus.Logger, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			executed, err := automation.RunTimeBasedSweep(ctx)
			if err != nil {
				log.Warnf("time_based sweep failed: %v", err)
				continue
			}
			if executed > 0 {
				log.Infof("time_based sweep executed %d rule runs", executed)
			}
		}
	}
}

func corsMiddlewareWithConfig(cfg *config.Config) gin.HandlerFunc {
	allowedOrigins := "*"
	allowedMethods := "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	allowedHeaders := "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization"
	if cfg != nil && cfg.Security.CORS.Enabled {
		if len(cfg.Security.CORS.AllowedOrigins) > 0 {
			allowedOrigins = strings.Join(cfg.Security.CORS.AllowedOrigins, ", ")
		}
		if len(cfg.Security.CORS.AllowedMethods) > 0 {
			allowedMethods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
		}
		if len(cfg.Security.CORS.AllowedHeaders) > 0 {
			allowedHeaders = strings.Join(cfg.Security.CORS.AllowedHeaders, ", ")
		}
	}
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", allowedOrigins)
		c.Header("Access-Control-Allow-Methods", allowedMethods)
		c.Header("Access-Control-Allow-Headers", allowedHeaders)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
