package main

import (
	"log"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/richxcame/creator-payouts/internal/payoutfraud"
	"github.com/richxcame/creator-payouts/pkg/common"
	"github.com/richxcame/creator-payouts/pkg/config"
	"github.com/richxcame/creator-payouts/pkg/database"
	"github.com/richxcame/creator-payouts/pkg/health"
	"github.com/richxcame/creator-payouts/pkg/logger"
	"github.com/richxcame/creator-payouts/pkg/middleware"
	"github.com/richxcame/creator-payouts/pkg/redis"
)

const serviceVersion = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load("fraudcheck")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Server.Environment); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Connect to PostgreSQL
	pool, err := database.NewPostgresPool(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(pool)
	log.Println("Connected to PostgreSQL database")

	// Connect to Redis (bot-score cache)
	redisClient, err := redis.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Connected to Redis")

	// Wire the evaluator
	repo := payoutfraud.NewRepository(pool)
	scorer := payoutfraud.NewBotScoringClient(
		cfg.BotScoring.BaseURL,
		time.Duration(cfg.BotScoring.TimeoutSeconds)*time.Second,
		redisClient,
		time.Duration(cfg.BotScoring.CacheTTLMinutes)*time.Minute,
	)
	notifier := payoutfraud.NewHTTPNotifier(
		cfg.Notifier.BaseURL,
		time.Duration(cfg.Notifier.TimeoutSeconds)*time.Second,
		cfg.Alerting.WebhookURL,
		time.Duration(cfg.Alerting.TimeoutSeconds)*time.Second,
	)
	service := payoutfraud.NewService(repo, scorer, notifier)
	handler := payoutfraud.NewHandler(service)

	// Set up Gin router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Metrics(cfg.Server.ServiceName))
	router.Use(middleware.SecurityHeaders())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	if cfg.Server.CORSOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.Server.CORSOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type"}
	router.Use(cors.New(corsConfig))

	// Health check and metrics (no auth required)
	router.GET("/healthz", common.HealthCheckWithDeps(cfg.Server.ServiceName, serviceVersion, map[string]func() error{
		"database": health.DatabaseChecker(pool),
		"redis":    health.RedisChecker(redisClient.Client),
	}))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api/v1")
	{
		fraud := api.Group("/fraud")
		{
			fraud.POST("/check", handler.CheckPayout)
			fraud.GET("/payouts/:id/result", handler.GetCheckResult)
			fraud.GET("/flags", handler.ListPendingFlags)
			fraud.POST("/flags/:id/resolve", handler.ResolveFlag)
		}
	}

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Fraud check service starting on port %s", cfg.Server.Port)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
