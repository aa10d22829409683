package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/campusmart/pkg/config"
	"github.com/example/campusmart/pkg/delivery"
	"github.com/example/campusmart/pkg/discovery"
	"github.com/example/campusmart/pkg/notify"
	"github.com/example/campusmart/pkg/orders"
	"github.com/example/campusmart/pkg/payments"
	"github.com/example/campusmart/pkg/paystack"
	"github.com/example/campusmart/pkg/repository"
	"github.com/example/campusmart/pkg/server"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := newLogger(&cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting marketplace service",
		zap.String("name", cfg.Server.Name),
		zap.Int("port", cfg.Server.Port))

	ctx := context.Background()

	// Storage
	mongoRepo, err := repository.NewMongoRepository(&cfg.MongoDB)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer mongoRepo.Close(ctx)

	if err := mongoRepo.EnsureIndexes(ctx); err != nil {
		logger.Fatal("Failed to ensure MongoDB indexes", zap.Error(err))
	}

	products, err := repository.NewProductRepository(&cfg.MySQL)
	if err != nil {
		logger.Fatal("Failed to connect to MySQL", zap.Error(err))
	}

	redisRepo := repository.NewRedisRepository(&cfg.Redis)
	if err := redisRepo.Ping(ctx); err != nil {
		logger.Warn("Redis connection failed, caching disabled paths will fall through", zap.Error(err))
	} else {
		logger.Info("Redis connected successfully")
	}

	audit := repository.NewAuditTrail(mongoRepo)
	paymentRepo := repository.NewPaymentRepository(mongoRepo, audit)
	orderRepo := repository.NewOrderRepository(mongoRepo, audit)
	cartRepo := repository.NewCartRepository(mongoRepo)
	handoverRepo := repository.NewHandoverRepository(mongoRepo)
	storeRepo := repository.NewStoreRepository(mongoRepo)

	// Notifications
	system := actor.NewActorSystem()
	notifier, err := notify.NewNotifier(system, cfg.SMTP, logger)
	if err != nil {
		logger.Fatal("Failed to start notification actor", zap.Error(err))
	}
	defer notifier.Shutdown()

	// Services
	gateway := paystack.NewClient(&cfg.Paystack)
	materializer := orders.NewMaterializer(orderRepo, cartRepo, products, notifier, logger.Named("materializer"))
	reconciler := payments.NewService(paymentRepo, gateway, materializer, redisRepo, logger.Named("reconciler"))
	checkout := payments.NewCheckout(cartRepo, gateway, paymentRepo, logger.Named("checkout"))
	deliverySvc := delivery.NewService(orderRepo, orderRepo, handoverRepo, products, storeRepo, redisRepo, notifier, logger.Named("delivery"))

	// Service discovery
	registry, err := discovery.NewRegistry(&cfg.Etcd)
	if err != nil {
		logger.Fatal("Failed to connect to etcd", zap.Error(err))
	}
	defer registry.Close()

	instance := &discovery.Instance{
		Name: cfg.Server.Name,
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}
	if err := registry.Register(ctx, instance); err != nil {
		logger.Fatal("Failed to register service", zap.Error(err))
	}
	logger.Info("Service registered in etcd",
		zap.String("name", cfg.Server.Name),
		zap.String("address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)))

	srv := server.New(cfg, logger.Named("http"), checkout, reconciler, orderRepo, materializer, deliverySvc, cartRepo, audit)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("Received shutdown signal")
	case err := <-serverErr:
		logger.Fatal("Server error", zap.Error(err))
	}

	if err := registry.Deregister(ctx, instance); err != nil {
		logger.Error("Failed to deregister service", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}

	logger.Info("Service stopped")
}

func newLogger(cfg *config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = level
	}
	if cfg.Encoding != "" {
		zc.Encoding = cfg.Encoding
	}
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}
	return zc.Build()
}
