package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/config"
	"github.com/fekuna/omnipos-fulfillment-service/internal/metrics"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/broker"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/cache"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/database/postgres"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/logger"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/middleware"

	catRepoPkg "github.com/fekuna/omnipos-fulfillment-service/internal/catalog/repository"
	catUCPkg "github.com/fekuna/omnipos-fulfillment-service/internal/catalog/usecase"

	fulListenerPkg "github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment/listener"
	fulRepoPkg "github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment/repository"
	fulUCPkg "github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment/usecase"

	invRepoPkg "github.com/fekuna/omnipos-fulfillment-service/internal/inventory/repository"
	invUCPkg "github.com/fekuna/omnipos-fulfillment-service/internal/inventory/usecase"

	locRepoPkg "github.com/fekuna/omnipos-fulfillment-service/internal/location/repository"
	locUCPkg "github.com/fekuna/omnipos-fulfillment-service/internal/location/usecase"

	plRepoPkg "github.com/fekuna/omnipos-fulfillment-service/internal/picklist/repository"
	plUCPkg "github.com/fekuna/omnipos-fulfillment-service/internal/picklist/usecase"

	swRepoPkg "github.com/fekuna/omnipos-fulfillment-service/internal/sweep/repository"
	swUCPkg "github.com/fekuna/omnipos-fulfillment-service/internal/sweep/usecase"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load() // Load .env file if it exists
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          cfg.Logger.Encoding,
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}
	if cfg.Server.AppEnv == "development" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = "console"
		logConfig.Level = "debug"
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	// 3. Connect to Database
	db, err := postgres.NewPostgres(&postgres.Config{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer db.Close()
	appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

	// 4. Initialize Repositories
	locRepo := locRepoPkg.NewPGRepository(db)
	invRepo := invRepoPkg.NewPGRepository(db)
	swRepo := swRepoPkg.NewPGRepository(db)
	plRepo := plRepoPkg.NewPGRepository(db)
	catRepo := catRepoPkg.NewPGRepository(db)
	fulRepo := fulRepoPkg.NewPGRepository(db)

	// 5. Initialize Redis
	redisClient, err := cache.NewRedisClient(&cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// 6. Initialize Kafka
	kafkaConsumer := broker.NewConsumer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.OrdersTopic,
		GroupID: cfg.Kafka.GroupID,
	})
	defer kafkaConsumer.Close()

	kafkaProducer := broker.NewProducer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.FulfillmentTopic,
	})
	defer kafkaProducer.Close()
	appLogger.Info("Connected to Kafka",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("orders_topic", cfg.Kafka.OrdersTopic),
		zap.String("fulfillment_topic", cfg.Kafka.FulfillmentTopic),
	)

	// 7. Initialize UseCases
	locUC := locUCPkg.NewLocationUseCase(locRepo, redisClient, invRepo, locUCPkg.Settings{
		BatchSize: cfg.Fulfillment.BulkInsertBatchSize,
		LockTTL:   cfg.Fulfillment.LockTTL,
	}, appLogger)
	invUC := invUCPkg.NewInventoryUseCase(invRepo, locUC, invUCPkg.Settings{
		MaxRetries:   cfg.Fulfillment.AllocationMaxRetries,
		RetryBackoff: cfg.Fulfillment.AllocationRetryBackoff,
	}, appLogger)
	swUC := swUCPkg.NewSweepUseCase(swRepo, invUC, swUCPkg.Settings{
		StartHour:   cfg.Fulfillment.SweepStartHour,
		HorizonDays: cfg.Fulfillment.SweepHorizonDays,
		Location:    cfg.Fulfillment.Location(),
	}, appLogger)
	plUC := plUCPkg.NewPickListUseCase(plRepo, invUC, locUC, appLogger)
	catUC := catUCPkg.NewCatalogUseCase(catRepo, redisClient, cfg.Fulfillment.CatalogCacheTTL, appLogger)
	fulUC := fulUCPkg.NewFulfillmentUseCase(fulRepo, catUC, plUC, swUC, kafkaProducer, fulUCPkg.Settings{
		ClaimTimeout: cfg.Fulfillment.DispatchClaimTimeout,
	}, appLogger)

	// 8. Initialize Listeners
	orderListener := fulListenerPkg.NewOrderListener(kafkaConsumer, fulUC, appLogger)

	// 9. Start gRPC Server
	port := cfg.Server.GRPCPort
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	lis, err := net.Listen("tcp", port)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(middleware.LoggingInterceptor(appLogger)),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Register Reflection
	reflection.Register(grpcServer)

	// 10. Metrics endpoint
	metricsServer := &http.Server{
		Addr:              cfg.Server.MetricsPort,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		orderListener.Start(gCtx)
		return nil
	})

	g.Go(func() error {
		appLogger.Info("Starting gRPC server", zap.String("port", port))
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		appLogger.Info("Starting metrics server", zap.String("port", cfg.Server.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful Shutdown
	g.Go(func() error {
		<-gCtx.Done()
		appLogger.Info("Shutting down server...")
		healthServer.Shutdown()
		grpcServer.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Server stopped with error", zap.Error(err))
		return
	}
	appLogger.Info("Server stopped")
}
