package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"rag-knowledge-platform/internal/ai"
	"rag-knowledge-platform/internal/config"
	"rag-knowledge-platform/internal/logger"
	"rag-knowledge-platform/internal/queue"
	"rag-knowledge-platform/internal/source"
	"rag-knowledge-platform/internal/storage"
	"rag-knowledge-platform/internal/telemetry"
	"rag-knowledge-platform/internal/vectorindex"
	"rag-knowledge-platform/models"
	"rag-knowledge-platform/routes"
	"rag-knowledge-platform/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.Init(cfg.GinMode != "release")

	shutdownTracer, err := telemetry.InitTracer("rag-knowledge-platform", cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
		shutdownTracer = func() {}
	}
	defer shutdownTracer()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to init metrics:", err)
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	store, err := storage.NewMongoStore(context.Background(), db)
	if err != nil {
		log.Fatal("Failed to init metadata store:", err)
	}
	auditLogger := models.NewAuditLogger(db)
	auditLogger.SetMetrics(metrics)
	quotaStore := ai.NewQuotaStore(db)

	gemini, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiTier, cfg.GenerationModel, cfg.EmbeddingsModel)
	if err != nil {
		log.Fatal("Failed to init Gemini client:", err)
	}
	defer gemini.Close()

	connector, err := source.NewFilesystemConnector(cfg.SourceRoot)
	if err != nil {
		log.Fatal("Failed to open document source:", err)
	}

	index := vectorindex.New()
	pipeline := services.NewIndexingPipeline(index, gemini, connector, store, auditLogger, cfg)
	pipeline.SetMetrics(metrics)
	orchestrator := services.NewRetrievalOrchestrator(index, gemini, gemini, auditLogger, cfg)

	// Expired cache entries are otherwise only swept lazily on reads.
	janitorStop := make(chan struct{})
	defer close(janitorStop)
	index.StartCacheJanitor(time.Minute, janitorStop)
	pipeline.StartCacheJanitor(time.Minute, janitorStop)
	orchestrator.StartCacheJanitor(time.Minute, janitorStop)

	// The vector index lives in this process, so the asynq worker runs
	// in-process instead of as a separate binary.
	redisOpt := asynqRedisOpt(cfg)
	asynqServer := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			"critical": 6,
			"default":  3,
			"low":      1,
		},
		StrictPriority: true,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("task failed", "type", task.Type(), "error", err)
		}),
	})
	mux := asynq.NewServeMux()
	queue.NewTaskProcessor(pipeline).Register(mux)
	if err := asynqServer.Start(mux); err != nil {
		log.Fatal("Failed to start task worker:", err)
	}
	defer asynqServer.Shutdown()

	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	scheduler := services.NewSyncScheduler(pipeline)
	if err := scheduler.Schedule(cfg.SyncCron); err != nil {
		log.Fatal("Failed to schedule sync:", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Warm the index with a full sync in the background.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Minute)
		defer cancel()
		if _, err := pipeline.FullSync(ctx); err != nil {
			logger.Error("startup sync failed", "error", err)
		}
	}()

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	routes.Register(router, cfg, rdb, metrics, routes.Handlers{
		Query:     routes.NewQueryHandler(orchestrator, quotaStore, metrics),
		Documents: routes.NewDocumentHandler(pipeline, index, store, asynqClient),
		Audit:     routes.NewAuditHandler(auditLogger),
		Health:    routes.NewHealthHandler(index, store),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("server exited")
}

func asynqRedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	if strings.Contains(cfg.RedisURL, "://") {
		if opt, err := asynq.ParseRedisURI(cfg.RedisURL); err == nil {
			if clientOpt, ok := opt.(asynq.RedisClientOpt); ok {
				return clientOpt
			}
		}
	}
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}
