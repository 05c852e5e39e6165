package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "erequisition/api/swagger" // swagger docs
	"erequisition/internal/config"
	"erequisition/internal/database"
	"erequisition/internal/handler"
	"erequisition/internal/mailer"
	"erequisition/internal/metrics"
	"erequisition/internal/middleware"
	"erequisition/internal/repository"
	"erequisition/internal/scheduler"
	"erequisition/internal/service"
	"erequisition/internal/storage"
	"erequisition/internal/websocket"
	"erequisition/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           e-Requisition API
// @version         1.0
// @description     Requisition approval, finance processing and leave requests.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	seedAdmin := flag.Bool("seed-admin", false, "create the first admin from ADMIN_NAME, ADMIN_EMAIL, ADMIN_PASSWORD and ADMIN_BRANCH, then exit")
	flag.Parse()

	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	db, err := database.NewConnection(cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Database connection failed", zap.Error(err))
	}

	middleware.InitAuth(cfg.Auth.JWTSecret)
	jwtSecret := string(middleware.GetJWTSecret())
	workflow := service.NewWorkflowConfig(cfg.Workflow)

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	requisitionRepo := repository.NewRequisitionRepository(db, workflow.Stage2Threshold)
	attachmentRepo := repository.NewAttachmentRepository(db)
	leaveRepo := repository.NewLeaveRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	reportRepo := repository.NewReportRepository(db)

	auditService := service.NewAuditService(auditRepo)
	userService := service.NewUserService(userRepo, auditService, jwtSecret, cfg.Auth.TokenTTL, appLogger)

	if *seedAdmin {
		runSeedAdmin(userService, appLogger)
		return
	}

	store, err := storage.NewLocalStore(cfg.Storage.AttachmentDir, appLogger)
	if err != nil {
		appLogger.Fatal("Attachment storage unavailable", zap.Error(err))
	}

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(appLogger)
	go wsHub.Run()
	defer wsHub.Stop()

	var mail service.Mailer
	if cfg.Mail.Enabled() {
		mail = mailer.New(cfg.Mail)
		appLogger.Info("E-mail notifications enabled", zap.String("host", cfg.Mail.Host))
	}

	notificationService := service.NewNotificationService(notificationRepo, userRepo, wsHub, mail, appLogger)
	requisitionService := service.NewRequisitionService(
		txManager, requisitionRepo, attachmentRepo, userRepo,
		auditService, notificationService, store, workflow, appLogger,
	)
	leaveService := service.NewLeaveService(txManager, leaveRepo, userRepo, auditService, notificationService, appLogger)
	reportService := service.NewReportService(reportRepo, leaveRepo, notificationRepo, appLogger)

	if cfg.Scheduler.Enabled {
		jobs := scheduler.New(requisitionService, time.Duration(cfg.Scheduler.ReminderAfterDays)*24*time.Hour, appLogger)
		if _, err := jobs.AddReminderJob(cfg.Scheduler.ReminderSpec); err != nil {
			appLogger.Fatal("Invalid reminder schedule", zap.String("spec", cfg.Scheduler.ReminderSpec), zap.Error(err))
		}
		jobs.Start()
		defer jobs.Stop()
	}

	// Initialize Handlers
	userHandler := handler.NewUserHandler(userService, cfg.Auth.TokenTTL)
	requisitionHandler := handler.NewRequisitionHandler(requisitionService)
	leaveHandler := handler.NewLeaveHandler(leaveService)
	notificationHandler := handler.NewNotificationHandler(notificationService)
	auditHandler := handler.NewAuditHandler(auditService)
	reportHandler := handler.NewReportHandler(reportService)

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(middleware.Recovery(appLogger), middleware.RequestLogger(appLogger))
	// multipart bodies above this size spill to temp files
	router.MaxMultipartMemory = workflow.AttachmentMaxBytes

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c)
	})

	// API Routing
	userHandler.RegisterRoutes(router.Group(""))
	requisitionHandler.RegisterRoutes(router.Group(""))
	leaveHandler.RegisterRoutes(router.Group(""))
	notificationHandler.RegisterRoutes(router.Group(""))
	auditHandler.RegisterRoutes(router.Group(""))
	reportHandler.RegisterRoutes(router.Group(""))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
	}
}

func runSeedAdmin(userService service.UserService, appLogger *zap.Logger) {
	req := service.CreateUserRequest{
		Name:     os.Getenv("ADMIN_NAME"),
		Email:    os.Getenv("ADMIN_EMAIL"),
		Password: os.Getenv("ADMIN_PASSWORD"),
		Branch:   os.Getenv("ADMIN_BRANCH"),
	}
	if req.Name == "" {
		req.Name = "Administrator"
	}
	if req.Email == "" || req.Password == "" {
		appLogger.Fatal("ADMIN_EMAIL and ADMIN_PASSWORD are required to seed an admin")
	}

	user, created, err := userService.SeedAdmin(context.Background(), req)
	if err != nil {
		appLogger.Fatal("Failed to seed admin", zap.Error(err))
	}
	if !created {
		appLogger.Info("An admin already exists, nothing to seed")
		return
	}
	appLogger.Info("Admin created", zap.Uint("user_id", user.ID), zap.String("email", user.Email))
}
