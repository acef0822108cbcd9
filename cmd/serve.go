package main

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sentencevault/sentence-service/internal/command"
	"github.com/sentencevault/sentence-service/internal/config"
	"github.com/sentencevault/sentence-service/internal/handler"
	"github.com/sentencevault/sentence-service/internal/migrations"
	"github.com/sentencevault/sentence-service/internal/query"
	"github.com/sentencevault/sentence-service/internal/repository"
	"github.com/sentencevault/sentence-service/shared/events"
	"github.com/sentencevault/sentence-service/shared/middleware"
	redisClient "github.com/sentencevault/sentence-service/shared/redis"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the usage consumer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Database connection (write store)
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		if err := migrations.Up(ctx, db); err != nil {
			return err
		}
	}

	// Redis connection (read model, usage projection and event streaming)
	redis, err := redisClient.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer redis.Close()

	// --- CQRS wiring ---
	publisher := events.NewPublisher(redis.Client, cfg.StreamMaxLen)

	writeRepo := repository.NewAccountWriteRepository(db)
	readRepo := repository.NewAccountReadRepository(writeRepo, redis.Client, cfg.CacheTTL)
	usageRepo := repository.NewUsageRepository(redis.Client)

	accountSvc := command.NewAccountCommandService(writeRepo, readRepo, publisher, cfg.BcryptCost)
	usageSvc := command.NewUsageCommandService(usageRepo)
	usageQuerySvc := query.NewUsageQueryService(usageRepo)

	subscriber := events.NewSubscriber(redis.Client, events.SubscriberConfig{
		Group:    cfg.ConsumerGroup,
		Consumer: cfg.ConsumerName,
		Stream:   events.AccountEventsStream,
		Handler:  usageSvc.HandleAccountEvent,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := middleware.NewHTTPMetrics(registry)

	accountHandler := handler.NewAccountHandler(accountSvc)
	usageHandler := handler.NewUsageHandler(usageQuerySvc)
	healthHandler := handler.NewHealthHandler(map[string]handler.Check{
		"postgres": db.PingContext,
		"redis":    redis.Check,
	}, subscriber)

	// Setup router
	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware(), metrics.Middleware())

	router.POST("/register", accountHandler.Register)
	router.POST("/store", accountHandler.Store)
	router.POST("/get", accountHandler.Retrieve)
	router.GET("/stats", usageHandler.GetUsage)
	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	subscriberDone := make(chan struct{})
	go func() {
		defer close(subscriberDone)
		if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Subscriber stopped: %v", err)
		}
	}()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Sentence service starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Println("Shutting down...")
	}

	cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	select {
	case <-subscriberDone:
	case <-shutdownCtx.Done():
	}
	return nil
}
