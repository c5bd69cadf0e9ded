package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ziptext/api/internal/client"
	"github.com/ziptext/api/internal/config"
	"github.com/ziptext/api/internal/handler"
	"github.com/ziptext/api/internal/logging"
	"github.com/ziptext/api/internal/middleware"
	"github.com/ziptext/api/internal/ocr"
	"github.com/ziptext/api/internal/pipeline"
	"github.com/ziptext/api/internal/service"
	"github.com/ziptext/api/internal/stream"
	"github.com/ziptext/api/internal/telemetry"
	"github.com/ziptext/api/internal/worker"
	"github.com/ziptext/api/pkg/response"
)

func main() {
	// Load .env if present; deployments set real env vars instead
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to load config")
	}

	log := logging.New(cfg.Server.LogLevel, cfg.Server.Env, "ziptext-api")

	if err := os.MkdirAll(cfg.Upload.Dir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Upload.Dir).Msg("failed to create upload directory")
	}
	if cfg.Pipeline.WorkDir != "" {
		if err := os.MkdirAll(cfg.Pipeline.WorkDir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", cfg.Pipeline.WorkDir).Msg("failed to create work directory")
		}
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Warn().Err(err).Msg("redis not available")
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize event hub
	hub := stream.NewHub(log)
	go hub.Run()

	// Initialize services
	jobs := service.NewJobService(redisClient, asynqClient)

	// Initialize document storage (optional - continues if not configured)
	var archiver pipeline.Archiver
	if cfg.Storage.AccessKeyID != "" && cfg.Storage.SecretAccessKey != "" {
		s3Client, err := client.NewS3Client(&cfg.Storage)
		if err != nil {
			log.Warn().Err(err).Msg("document storage not initialized")
		} else {
			archiver = s3Client
		}
	} else {
		log.Info().Msg("document storage not configured, archival disabled")
	}

	// Initialize pipeline runner
	engines := func() (ocr.Engine, error) {
		return ocr.NewEngine(ocr.Config{
			Provider:  cfg.OCR.Provider,
			Languages: cfg.OCR.Languages,
			Google: ocr.GoogleConfig{
				APIKey:   cfg.OCR.Google.APIKey,
				Endpoint: cfg.OCR.Google.Endpoint,
			},
		})
	}
	runner := pipeline.NewRunner(pipeline.Config{
		WorkDir:          cfg.Pipeline.WorkDir,
		AllowBMP:         cfg.Pipeline.AllowBMP,
		MaxEntryBytes:    cfg.Pipeline.MaxEntryBytes,
		RecognizeTimeout: cfg.Pipeline.RecognizeTimeout,
		MaxImageBytes:    cfg.OCR.MaxImageBytes,
		MaxImageEdge:     cfg.OCR.MaxImageEdge,
	}, engines, hub, jobs, archiver, log)

	// Initialize handlers
	jobHandler := handler.NewJobHandler(jobs, validate, cfg.Upload.Dir, cfg.Upload.MaxBytes)

	// Initialize middleware
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(cfg.Upload.MaxBytes) + 1024*1024, // multipart overhead headroom
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis":   redisClient.Ping(c.Context()).Err() == nil,
				"storage": archiver != nil,
			},
		})
	})

	// Prometheus metrics
	app.Get("/metrics", adaptor.HTTPHandler(telemetry.Handler()))

	// API routes
	api := app.Group("/api")
	api.Post("/jobs", rateLimiter.UploadLimit(cfg.RateLimit.UploadLimit, cfg.RateLimit.UploadWindow), jobHandler.Create)
	api.Get("/jobs/:jobId", jobHandler.Status)
	api.Get("/jobs/:jobId/document", jobHandler.Document)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, jobs, runner, log)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Info().Str("addr", addr).Msg("server starting")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func startWorkerServer(cfg *config.Config, jobs *service.JobService, runner *pipeline.Runner, log zerolog.Logger) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Pipeline.Concurrency,
			Queues: map[string]int{
				"ocr": 10,
			},
			LogLevel: asynqLogLevel(cfg.Server.LogLevel),
		},
	)

	ocrWorker := worker.NewOCRWorker(jobs, runner, log)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeOCR, ocrWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Error().Err(err).Msg("asynq worker stopped")
	}
}

func asynqLogLevel(level string) asynq.LogLevel {
	switch level {
	case "debug":
		return asynq.DebugLevel
	case "warn", "warning":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(response.ErrorResponse{
		Error: response.ErrorDetail{
			Code:    response.CodeServiceError,
			Message: message,
		},
	})
}
