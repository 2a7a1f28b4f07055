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

	"charging-service/config"
	"charging-service/internal/api"
	"charging-service/internal/auth"
	"charging-service/internal/broker"
	"charging-service/internal/memstore"
	"charging-service/internal/redisclient"
	"charging-service/internal/service"
	"charging-service/internal/store"
	"charging-service/internal/util"
	"charging-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting charging service")

	if cfg.Observ.TracingEnabled {
		tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
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
	}

	ctx := context.Background()

	var (
		catalog      service.StationRegistry
		ledger       service.ReservationLedger
		transactions service.TransactionStore
		probes       []func(context.Context) error
	)

	switch cfg.Database.Backend {
	case config.BackendPostgres:
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if err := db.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
		logger.Info("Database connected")

		catalog = db.Stations()
		ledger = db.Reservations()
		transactions = db.Transactions()
		probes = append(probes, db.GetDB().PingContext)

	case config.BackendMemory:
		catalog = memstore.NewStations()
		ledger = memstore.NewReservations()
		transactions = memstore.NewTransactions()
		logger.Info("Using in-memory store")

	default:
		logger.Fatal("Unknown store backend", zap.String("backend", cfg.Database.Backend))
	}

	var (
		stations    = catalog
		locker      service.Locker
		handlerOpts = api.Options{AuthRequired: cfg.Auth.Required}
	)

	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		redisClient.SetIdempotencyTTL(time.Duration(cfg.Redis.IdempotencyTTLSeconds) * time.Second)
		logger.Info("Redis connected")

		stations = service.NewAvailabilityRegistry(catalog, redisClient)
		locker = redisClient
		handlerOpts.Idempotency = redisClient
		probes = append(probes, func(ctx context.Context) error {
			return redisClient.GetClient().Ping(ctx).Err()
		})
	} else {
		locker = service.NewKeyedMutex()
	}

	if cfg.Business.SeedStations {
		added, err := service.SeedStations(ctx, stations, service.DefaultStations())
		if err != nil {
			logger.Fatal("Failed to seed stations", zap.Error(err))
		}
		logger.Info("Stations seeded", zap.Int("added", added))
	}

	if registry, ok := stations.(*service.AvailabilityRegistry); ok {
		if err := registry.Sync(ctx, ledger); err != nil {
			logger.Error("Failed to sync availability to Redis", zap.Error(err))
		}
	}

	var eventPublisher service.EventPublisher = broker.NopPublisher{}
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()
		eventPublisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEvents))
	}

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)
	handlerOpts.Tokens = tokens
	handlerOpts.Readiness = func(ctx context.Context) error {
		for _, probe := range probes {
			if err := probe(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	paymentService := service.NewPaymentService(stations, ledger, transactions, locker, eventPublisher, cfg.Business.EstimatedSessionKWh)
	bookingService := service.NewBookingService(stations, ledger, transactions, paymentService, locker, eventPublisher)
	accountService := service.NewAccountService(memstore.NewAccounts(), auth.NewBcryptHasher(cfg.Auth.BcryptCost), tokens)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	reconcileWorker := worker.NewReconcileWorker(
		service.NewReconciler(stations, ledger),
		time.Duration(cfg.Business.ReconcileIntervalSeconds)*time.Second,
	)
	go func() {
		if err := reconcileWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("Reconcile worker error", zap.Error(err))
		}
	}()

	var auditWorker *worker.AuditWorker
	if cfg.Kafka.Enabled {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
		auditWorker = worker.NewAuditWorker(consumer)
		go func() {
			if err := auditWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("Audit worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(bookingService, accountService, handlerOpts)
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

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if auditWorker != nil {
		if err := auditWorker.Stop(); err != nil {
			logger.Warn("Failed to stop audit worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
