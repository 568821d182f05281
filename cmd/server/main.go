package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"booking-service/config"
	"booking-service/internal/api"
	"booking-service/internal/broker"
	"booking-service/internal/embedding"
	"booking-service/internal/payment"
	"booking-service/internal/redisclient"
	"booking-service/internal/service"
	"booking-service/internal/store"
	"booking-service/internal/util"
	"booking-service/internal/vectorindex"
	"booking-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting booking service")

	tp, err := util.InitTracer("booking-service", cfg.Server.Env, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	embedder := embedding.NewClient(embedding.Config{
		APIURL:     cfg.Embedding.APIURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimension:  cfg.Embedding.Dimension,
		Timeout:    cfg.Embedding.Timeout,
		MaxRetries: cfg.Embedding.MaxRetries,
		CacheTTL:   cfg.Redis.EmbeddingCacheTTL,
	}, redisClient)
	if cfg.Embedding.APIKey == "" {
		logger.Warn("EMBEDDING_API_KEY not set, vectors will be zero and search results empty")
	}

	qdrantBackend, err := vectorindex.NewQdrantBackend(vectorindex.QdrantConfig{
		Host:   cfg.Vector.Host,
		Port:   cfg.Vector.Port,
		APIKey: cfg.Vector.APIKey,
		UseTLS: cfg.Vector.UseTLS,
	})
	if err != nil {
		logger.Fatal("Failed to create vector index client", zap.Error(err))
	}
	defer qdrantBackend.Close()

	index := vectorindex.NewService(qdrantBackend, embedder)

	bus := broker.NewBus(broker.BusConfig{
		Workers:        cfg.Sync.Workers,
		QueueSize:      cfg.Sync.QueueSize,
		HandlerTimeout: cfg.Sync.HandlerTimeout,
	})
	service.NewIndexSyncHandler(index, cfg.Vector.Collection).Register(bus)

	// nil interface, not a typed nil, when Kafka is off
	var bookingEvents service.BookingEventPublisher
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicBookingEvents)
		defer producer.Close()
		bookingEvents = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicBookingEvents))
	}

	gateway := payment.NewStripeGateway(payment.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Currency:      cfg.Stripe.Currency,
		ClientAppURL:  cfg.Stripe.ClientAppURL,
	})

	bookingService := service.NewBookingService(db, gateway, bookingEvents)
	webhookService := service.NewWebhookService(gateway, bookingService)
	catalogService := service.NewCatalogService(db, bus)
	searchService := service.NewSearchService(index, cfg.Vector.Collection)
	reindexService := service.NewReindexService(db, index, redisClient)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var catalogWorker *worker.CatalogWorker
	if cfg.Kafka.Enabled {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicCatalogEvents, cfg.Kafka.ConsumerGroup)
		catalogWorker = worker.NewCatalogWorker(consumer, bus)
		go func() {
			if err := catalogWorker.Start(workerCtx); err != nil {
				logger.Error("Catalog worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Sync.OnStartup {
		worker.NewStartupSync(reindexService, cfg.Vector.Collection, 0).Start(workerCtx)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Bookings:   bookingService,
		Webhooks:   webhookService,
		Search:     searchService,
		Catalog:    catalogService,
		Reindex:    reindexService,
		Collection: cfg.Vector.Collection,
		Readiness: []api.ReadinessCheck{
			{Name: "database", Check: db.Ping},
			{Name: "vector_index", Check: qdrantBackend.HealthCheck},
		},
	}, cfg.Stripe.ClientAppURL)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if catalogWorker != nil {
		if err := catalogWorker.Stop(); err != nil {
			logger.Warn("Error stopping catalog worker", zap.Error(err))
		}
	}

	if err := bus.Close(shutdownCtx); err != nil {
		logger.Warn("Pending index sync events were not drained", zap.Error(err))
	}

	logger.Info("Server exited")
}
