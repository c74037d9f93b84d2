package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog-service/config"
	"catalog-service/internal/api"
	"catalog-service/internal/broker"
	"catalog-service/internal/catalog"
	"catalog-service/internal/redisclient"
	"catalog-service/internal/reviews"
	"catalog-service/internal/service"
	"catalog-service/internal/store"
	"catalog-service/internal/summarizer"
	"catalog-service/internal/summary"
	"catalog-service/internal/util"
	"catalog-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const summaryCacheTTL = 24 * time.Hour

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting catalog service")

	tp, err := util.InitTracer("catalog-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	ctx := context.Background()
	checks := map[string]api.ReadinessCheck{}
	index := catalog.NewIndex()

	var repo reviews.Repository
	if cfg.Database.URL != "" {
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		logger.Info("Database connected")

		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		if err := loadCatalogFromDB(ctx, db, index, cfg.Catalog.SeedFile); err != nil {
			logger.Fatal("Failed to load catalog", zap.Error(err))
		}
		repo = db
		checks["postgres"] = db.Ping
	} else if cfg.Catalog.SeedFile != "" {
		n, err := catalog.LoadSeedFile(index, cfg.Catalog.SeedFile)
		if err != nil {
			logger.Fatal("Failed to seed catalog", zap.Error(err))
		}
		logger.Info("Catalog seeded", zap.Int("products", n))
	}

	reviewStore := reviews.NewStore(index, repo, util.Component("reviews"))
	loaded, err := reviewStore.Load(ctx)
	if err != nil {
		logger.Fatal("Failed to load reviews", zap.Error(err))
	}
	logger.Info("Catalog ready",
		zap.Int("products", index.Len()),
		zap.Int("reviews", loaded))

	var (
		cache       summary.Cache
		idempotency service.IdempotencyStore
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("Redis connected")

		// review versions restart at zero without a database, so cached entries
		// from an earlier process must not be matched
		prefix := "catalog:"
		if repo == nil {
			prefix = fmt.Sprintf("catalog:%s:", uuid.NewString())
		}
		cache = redisClient.NewSummaryCache(prefix, summaryCacheTTL)
		idempotency = redisClient.NewIdempotencyStore(cfg.Business.IdempotencyTTL)
		checks["redis"] = redisClient.Ping
	} else {
		cache = summary.NewMemoryCache()
		idempotency = service.NewMemoryIdempotencyStore(cfg.Business.IdempotencyTTL)
	}

	var sum summary.Summarizer = summarizer.Local{}
	if cfg.Summarizer.URL != "" {
		client, err := summarizer.NewHTTPClient(cfg.Summarizer.URL, cfg.Summarizer.Timeout, util.Component("summarizer"))
		if err != nil {
			logger.Fatal("Failed to configure summarizer", zap.Error(err))
		}
		sum = client
	}

	coordinator := summary.NewCoordinator(reviewStore, sum, cache, cfg.Summarizer.Timeout, util.Component("summary"))

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var (
		publisher service.EventPublisher
		warmer    *worker.SummaryWarmer
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicReviewEvents)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

		if cfg.Kafka.SummaryWarmerEnable {
			consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicReviewEvents, cfg.Kafka.ConsumerGroup)
			warmer = worker.NewSummaryWarmer(consumer, coordinator, cfg.Summarizer.Timeout)
			go func() {
				if err := warmer.Start(workerCtx); err != nil && err != context.Canceled {
					logger.Error("Summary warmer error", zap.Error(err))
				}
			}()
		}
	}

	catalogService := service.NewCatalogService(index, reviewStore, coordinator, publisher, idempotency)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(catalogService, cfg.Catalog.PageSize, checks)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
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
	if warmer != nil {
		if err := warmer.Stop(); err != nil {
			logger.Warn("Error stopping summary warmer", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

// loadCatalogFromDB fills the index from Postgres. An empty products table is
// seeded from seedFile first when one is configured.
func loadCatalogFromDB(ctx context.Context, db *store.Store, index *catalog.Index, seedFile string) error {
	products, err := db.GetProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to read products: %w", err)
	}

	if len(products) == 0 && seedFile != "" {
		seed, err := catalog.ReadSeedFile(seedFile)
		if err != nil {
			return err
		}
		for _, p := range seed {
			p := p
			if err := db.CreateProduct(ctx, &p); err != nil {
				return fmt.Errorf("failed to insert seed product %q: %w", p.Name, err)
			}
			products = append(products, p)
		}
	}

	return index.Add(products...)
}
