package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"triarb/internal/api"
	"triarb/internal/api/handlers"
	"triarb/internal/api/middleware"
	"triarb/internal/bot"
	"triarb/internal/config"
	"triarb/internal/exchange"
	"triarb/internal/notify"
	"triarb/internal/repository"
	"triarb/internal/websocket"
	"triarb/pkg/crypto"
	"triarb/pkg/retry"
	"triarb/pkg/utils"
)

// shutdownTimeout - время на завершение запуска и HTTP соединений
const shutdownTimeout = 30 * time.Second

func main() {
	hashToken := flag.String("hash-token", "", "print bcrypt hash for API_TOKEN_HASH and exit")
	flag.Parse()

	if *hashToken != "" {
		hash, err := crypto.HashToken(*hashToken)
		if err != nil {
			log.Fatalf("Failed to hash token: %v", err)
		}
		fmt.Println(hash)
		return
	}

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.InitGlobalLogger(cfg.Logging.LogConfig())
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Биржа
	ex, err := exchange.NewExchange(cfg.Exchange.Name, exchange.BinanceConfig{
		APIKey:          cfg.Exchange.APIKey,
		SecretKey:       cfg.Exchange.SecretKey,
		BaseURL:         cfg.Exchange.BaseURL,
		RecvWindow:      time.Duration(cfg.Exchange.RecvWindow) * time.Millisecond,
		WeightPerSecond: cfg.Exchange.WeightPerSecond,
		OrdersPerSecond: cfg.Exchange.OrdersPerSecond,
		HTTP:            httpClientConfig(cfg.Exchange.RequestTimeout),
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create exchange client", zap.Error(err))
	}
	defer ex.Close()

	// WebSocket hub
	hub := websocket.NewHub(logger, cfg.Server.AllowedOrigins)
	go hub.Run()

	// Балансы
	balances := bot.NewBalanceTracker(ex, cfg.Bot.BalanceUpdateFreq, logger)
	balances.SetObserver(hub.BroadcastBalanceUpdate)

	opts := []bot.Option{bot.WithWebSocketHub(hub)}

	// Журнал запусков (опционально)
	var history handlers.RunHistory
	if cfg.Database.Enabled {
		db, err := initDatabase(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database",
				zap.String("dsn", cfg.Database.DSNWithoutPassword()),
				zap.Error(err),
			)
		}
		defer db.Close()

		repo := repository.NewRunRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		opts = append(opts, bot.WithRecorder(repo))
		history = repo
		logger.Info("Run history enabled", zap.String("dsn", cfg.Database.DSNWithoutPassword()))
	}

	// Рассылка событий в Redis (опционально, без Redis бот работает)
	if cfg.Redis.Enabled {
		client, err := initRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("Redis unavailable, run events will not be published",
				zap.String("addr", cfg.Redis.Addr),
				zap.Error(err),
			)
		} else {
			defer client.Close()
			opts = append(opts, bot.WithPublisher(notify.NewRedisPublisher(client, cfg.Redis.EventChannel, cfg.Redis.SummaryChannel)))
			logger.Info("Run events published to Redis", zap.String("addr", cfg.Redis.Addr))
		}
	}

	engine := bot.NewEngine(cfg.Bot, ex, balances, logger, opts...)
	market := bot.NewMarketChecker(ex, bot.MarketConfig{
		PriceTolerance:     cfg.Bot.PriceTolerance,
		StabilityTolerance: cfg.Bot.StabilityTolerance,
		OrderBookDepth:     cfg.Bot.OrderBookDepth,
	}, logger)

	if err := balances.Start(ctx); err != nil {
		logger.Fatal("Failed to load account balances", zap.Error(err))
	}
	go balances.Run(ctx)

	auth := middleware.NewTokenAuth(cfg.Security.APITokenHash, logger)
	if !auth.Enabled() {
		logger.Warn("API_TOKEN_HASH is not set, API is not protected")
	}

	router := api.SetupRoutes(&api.Dependencies{
		Engine:         engine,
		Market:         market,
		Balances:       balances,
		History:        history,
		WebSocket:      hub.ServeWS,
		Auth:           auth,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", zap.String("addr", server.Addr), zap.Bool("https", cfg.Server.UseHTTPS))
		var err error
		if cfg.Server.UseHTTPS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.Error("Server failed", zap.Error(err))
	}
	stop()

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if snap := engine.Status(); snap.Running {
		logger.Warn("Aborting active run, placed orders stay on the exchange",
			zap.String("run_id", snap.RunID),
			zap.Int("active_orders", len(snap.ActiveOrders)),
		)
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Error("Run did not finish before shutdown timeout", zap.Error(err))
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	hub.Stop()

	logger.Info("Server exited")
}

// httpClientConfig переносит таймаут запроса из конфигурации
func httpClientConfig(timeout time.Duration) exchange.HTTPClientConfig {
	cfg := exchange.DefaultHTTPClientConfig()
	if timeout > 0 {
		cfg.TotalTimeout = timeout
	}
	return cfg
}

// initDatabase создает подключение к базе данных.
// Первое подключение повторяется: контейнер БД может стартовать позже бота.
func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	err = retry.Do(ctx, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}, retry.StartupConfig())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// initRedis создает клиент Redis и проверяет соединение
func initRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	err := retry.Do(ctx, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return client.Ping(pingCtx).Err()
	}, retry.StartupConfig())
	if err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}
