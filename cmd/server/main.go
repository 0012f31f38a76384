package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/coachcall/api/internal/client"
	"github.com/coachcall/api/internal/config"
	"github.com/coachcall/api/internal/handler"
	"github.com/coachcall/api/internal/logger"
	"github.com/coachcall/api/internal/middleware"
	"github.com/coachcall/api/internal/model"
	"github.com/coachcall/api/internal/repair"
	"github.com/coachcall/api/internal/service"
	"github.com/coachcall/api/internal/store"
	ws "github.com/coachcall/api/internal/websocket"
	"github.com/coachcall/api/internal/worker"
)

const maxRecordingBytes = 100 * 1024 * 1024

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.New("production", "info").WithError(err).Fatal("failed to load config")
	}

	appLog := logger.New(cfg.Server.Env, cfg.Server.LogLevel)

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		appLog.WithError(err).Warn("redis not available")
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(redisClientOpt(cfg))
	defer asynqClient.Close()

	// Call store: Postgres when a DSN is configured, Redis otherwise
	var st store.Store
	if cfg.Postgres.DSN != "" {
		db, err := store.OpenPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			appLog.WithError(err).Fatal("failed to connect to postgres")
		}
		defer db.Close()

		pg := store.NewPostgresStore(db)
		if err := pg.Migrate(ctx); err != nil {
			appLog.WithError(err).Fatal("failed to migrate postgres schema")
		}
		st = pg
		appLog.Info("using postgres call store")
	} else {
		st = store.NewRedisStore(redisClient)
		appLog.Info("using redis call store")
	}

	var prompts store.PromptRegistry = st
	if cfg.Prompts.File != "" {
		fileRegistry, err := store.LoadFilePromptRegistry(cfg.Prompts.File)
		if err != nil {
			appLog.WithError(err).Warn("prompt file not loaded")
		} else {
			appLog.WithField("prompts", fileRegistry.Len()).Info("loaded prompt file")
			prompts = store.ChainRegistry{st, fileRegistry}
		}
	}

	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub(appLog)
	go hub.Run()

	// Initialize external clients
	openaiClient := client.NewOpenAIClient(&cfg.OpenAI)
	if !openaiClient.IsConfigured() {
		appLog.Warn("openai api key not set, analysis calls will fail")
	}

	// Initialize R2 client (optional - http(s) recordings still work without it)
	var storage client.StorageClient
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			appLog.WithError(err).Warn("R2 client not initialized")
		} else {
			storage = r2Client
		}
	} else {
		appLog.Info("R2 storage not configured")
	}

	var toneModel client.ToneModel = client.NewOpenAIToneClient(openaiClient, cfg.OpenAI.ToneModel)
	if model.ToneProvider(strings.ToLower(cfg.Tone.Provider)) == model.ToneProviderGemini {
		gemini, err := client.NewGeminiToneClient(ctx, &cfg.Gemini)
		if err != nil {
			appLog.WithError(err).Warn("gemini tone client not initialized, falling back to openai")
		} else {
			toneModel = gemini
		}
	}

	// Initialize services
	callLog := service.NewCallLogger(st, appLog)
	engine := repair.New()
	audio := service.NewAudioSource(storage, client.NewHTTPDownloader(cfg.OpenAI.Timeout, maxRecordingBytes), cfg.Pipeline.SignedURLTTL)

	transcriptionService := service.NewTranscriptionService(audio, openaiClient, cfg, callLog)
	toneService := service.NewToneService(audio, toneModel, engine, callLog)
	contentService := service.NewContentService(openaiClient, prompts, st, engine, cfg, callLog)
	pipeline := service.NewPipeline(st, transcriptionService, toneService, contentService, callLog,
		service.WithNotifier(hub),
		service.WithTimeout(cfg.Pipeline.Timeout),
		service.WithLogger(appLog),
	)
	callService := service.NewCallService(st, asynqClient, cfg.Pipeline.Timeout, callLog)
	reportService := service.NewReportService(st, storage, cfg.Pipeline.SignedURLTTL)

	// Initialize handlers
	callHandler := handler.NewCallHandler(callService, reportService, pipeline, validate)
	promptHandler := handler.NewPromptHandler(callService, validate)
	healthHandler := handler.NewHealthHandler(st, map[string]bool{
		"openai": openaiClient.IsConfigured(),
		"tone":   toneModel.IsConfigured(),
		"r2":     storage != nil && storage.IsConfigured(),
	})

	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    4 * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
	}
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/health", healthHandler.Check)

	// API routes
	api := app.Group("/api")

	calls := api.Group("/calls")
	calls.Post("/", callHandler.Create)
	calls.Get("/:callId", callHandler.Get)
	calls.Get("/:callId/logs", callHandler.Logs)
	calls.Get("/:callId/report", callHandler.Report)

	process := api.Group("/process-call", rateLimiter.ProcessLimit(cfg.RateLimit.ProcessPerHour))
	process.Post("/", callHandler.Process)
	process.Post("/sync", callHandler.ProcessSync)

	promptRoutes := api.Group("/prompts")
	promptRoutes.Put("/", promptHandler.Upsert)
	promptRoutes.Get("/:callType", promptHandler.Get)
	promptRoutes.Delete("/:callType", promptHandler.Delete)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/calls/:callId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("callId"))
	}))

	// Start Asynq worker server
	workerServer, err := startWorkerServer(cfg, pipeline, appLog)
	if err != nil {
		appLog.WithError(err).Fatal("failed to start worker server")
	}

	sweeper := worker.NewStallSweeper(st, callService, cfg.Pipeline.StallAfter, appLog)
	if err := sweeper.Start(ctx, cfg.Pipeline.SweepSchedule); err != nil {
		appLog.WithError(err).Fatal("failed to start stall sweeper")
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		appLog.Info("shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			appLog.WithError(err).Error("server shutdown error")
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	appLog.WithField("addr", addr).Info("server starting")
	if err := app.Listen(addr); err != nil {
		appLog.WithError(err).Error("server error")
	}

	sweeper.Stop()
	workerServer.Shutdown()
	hub.Stop()
	cancel()
	callLog.Wait()
	appLog.Info("server stopped")
}

func redisClientOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

func startWorkerServer(cfg *config.Config, pipeline worker.CallProcessor, log *logger.Logger) (*asynq.Server, error) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		redisClientOpt(cfg),
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				service.QueueAnalysis: 1,
			},
			LogLevel: asynqLogLevel,
		},
	)

	analysisWorker := worker.NewAnalysisWorker(pipeline, log)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeAnalyzeCall, analysisWorker.ProcessTask)

	if err := srv.Start(mux); err != nil {
		return nil, err
	}
	return srv, nil
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
