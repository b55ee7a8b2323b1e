package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/article-gen/internal/api/handler"
	"github.com/cuongbtq/article-gen/internal/api/router"
	"github.com/cuongbtq/article-gen/internal/api/service"
	"github.com/cuongbtq/article-gen/internal/api/storage"
	"github.com/cuongbtq/article-gen/internal/api/stream"
	"github.com/cuongbtq/article-gen/internal/config"
	"github.com/cuongbtq/article-gen/internal/lease"
	"github.com/cuongbtq/article-gen/internal/moderation"
	"github.com/cuongbtq/article-gen/internal/progress"
	"github.com/cuongbtq/article-gen/shared/logger"
	"github.com/cuongbtq/article-gen/shared/postgresql"
	"github.com/cuongbtq/article-gen/shared/rabbitmq"
	sharedredis "github.com/cuongbtq/article-gen/shared/redis"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		logger.NewDefault().Error("API service exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	appLogger = appLogger.With(slog.String("service", cfg.App.Name))

	appLogger.Info("Starting API service",
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	rdb, err := initRedis(&cfg.Redis, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	defer rdb.Close()

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	channel := progress.NewRedisChannel(rdb, cfg.Stream.ChannelTTL)
	store := storage.NewStorage(dbClient.GetDB(), appLogger.Logger)

	articleService := service.New(
		store,
		moderation.NewClient(moderation.Config{
			APIKey:  cfg.Moderation.APIKey,
			BaseURL: cfg.Moderation.BaseURL,
			Model:   cfg.Moderation.Model,
			Timeout: cfg.Moderation.Timeout,
		}, appLogger.Logger),
		channel,
		service.NewQueueDispatcher(rabbitClient, appLogger.Logger),
		lease.NewLocker(rdb, cfg.Worker.LeaseTTL),
		service.Config{OutputDir: cfg.Pipeline.OutputDir},
		appLogger.Logger,
	)

	streamer := stream.NewConsumer(store, channel, stream.Config{
		PollInterval: cfg.Stream.PollInterval,
		MaxIdlePolls: cfg.Stream.MaxIdlePolls,
	}, appLogger.Logger)

	r := initRouter(cfg, appLogger.Logger, &handler.Dependencies{
		Logger:    appLogger.Logger,
		Service:   articleService,
		Streamer:  streamer,
		JWTSecret: cfg.Auth.JWTSecret,
		HealthCheck: func(ctx context.Context) error {
			if !rabbitClient.IsConnected() {
				return errors.New("rabbitmq connection is closed")
			}
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis ping: %w", err)
			}
			return dbClient.HealthCheck(ctx)
		},
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := newHTTPServer(addr, r, &cfg.Server)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		appLogger.Error("Server failed", slog.Any("error", err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := shutdown(ctx, srv, articleService.Wait); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// newHTTPServer builds the API server. Request contexts derive from a base
// context that is cancelled when Shutdown starts, so open progress streams
// return instead of holding the drain until the timeout.
func newHTTPServer(addr string, h http.Handler, cfg *config.ServerConfig) *http.Server {
	base, cancelBase := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancelBase)
	return srv
}

// shutdown drains the server, then waits for background dispatches. The wait
// happens even when the drain times out, so admissions finish publishing
// before the broker connection closes.
func shutdown(ctx context.Context, srv *http.Server, waitDispatches func()) error {
	err := srv.Shutdown(ctx)
	waitDispatches()
	return err
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		RetryAttempts:   cfg.RetryAttempts,
		RetryInterval:   cfg.RetryInterval,
	}, logger)
}

func initRedis(cfg *config.RedisConfig, logger *slog.Logger) (*goredis.Client, error) {
	return sharedredis.NewClient(&sharedredis.Config{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	}, logger)
}

// initRabbitMQ initializes the publishing side of the dispatch queue
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, deps *handler.Dependencies) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	logger.Debug("Router configured", slog.String("gin_mode", gin.Mode()))
	return router.SetupRouter(deps)
}
