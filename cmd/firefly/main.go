package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Totarae/firefly/internal/auth"
	"github.com/Totarae/firefly/internal/config"
	"github.com/Totarae/firefly/internal/database"
	v2 "github.com/Totarae/firefly/internal/grpc/v2"
	"github.com/Totarae/firefly/internal/handlers"
	"github.com/Totarae/firefly/internal/middleware"
	"github.com/Totarae/firefly/internal/ratelimit"
	"github.com/Totarae/firefly/internal/repositories"
	"github.com/Totarae/firefly/internal/router"
	"github.com/Totarae/firefly/internal/service"
	"github.com/Totarae/firefly/internal/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		stop()
		exitWithError(err)
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "firefly:", err)
	os.Exit(1)
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Инициализация конфигурации",
		zap.String("server_address", cfg.ServerAddress),
		zap.String("base_url", cfg.BaseURL),
		zap.String("mode", cfg.Mode),
		zap.String("auth_strategy", cfg.Auth.Strategy),
		zap.Bool("https", cfg.EnableHTTPS),
	)

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureCodeFactory(ctx); err != nil {
		return fmt.Errorf("failed to initialise code factory: %w", err)
	}

	authenticator, err := newAuthenticator(cfg, logger)
	if err != nil {
		return err
	}

	secret := cfg.SessionSecret
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn("session_secret is not set, sessions will not survive a restart")
	}
	sessions := auth.New(secret, cfg.SessionTTL)

	limiter, closeLimiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	svc := service.NewShortenerService(store, logger, cfg.RecentURLs, cfg.MaxListLimit)
	handler := handlers.NewHandler(svc, sessions, authenticator, logger, cfg.BaseURL)

	r := router.NewRouter(handler, router.Options{
		Auth:           &middleware.Authentication{Sessions: sessions, Authenticator: authenticator, Logger: logger},
		Limiter:        limiter,
		TrustedSubnet:  cfg.Subnet(),
		TrustedProxies: cfg.Proxies(),
		Logger:         logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("Сервер запущен", zap.String("address", cfg.ServerAddress))
		var err error
		if cfg.EnableHTTPS {
			err = httpServer.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCAddress != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddress)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddress, err)
		}
		grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(
			v2.LoggingInterceptor(logger),
			v2.AuthInterceptor(sessions, authenticator, logger),
		))
		v2.RegisterShortenerServer(grpcServer, v2.NewGRPCServer(svc, logger, cfg.BaseURL))
		go func() {
			logger.Info("gRPC сервер запущен", zap.String("address", cfg.GRPCAddress))
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("Получен сигнал завершения, останавливаем сервер")
	case err := <-errCh:
		logger.Error("Сервер остановлен с ошибкой", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("Сервер остановлен")
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	if cfg.Mode == config.ModeDatabase {
		if err := database.Migrate(cfg.DatabaseDSN, cfg.PgMigrationsPath, logger); err != nil {
			return nil, err
		}
		db, err := database.NewDB(ctx, cfg.DatabaseDSN, logger)
		if err != nil {
			return nil, err
		}
		return repositories.NewURLRepository(db), nil
	}

	db, err := database.OpenSQLite(ctx, cfg.FileStoragePath)
	if err != nil {
		return nil, err
	}
	logger.Info("SQLite storage opened", zap.String("path", cfg.FileStoragePath))
	return repositories.NewSQLiteRepository(db, logger), nil
}

func newAuthenticator(cfg *config.Config, logger *zap.Logger) (auth.Authenticator, error) {
	switch cfg.Auth.Strategy {
	case config.StrategyLDAP:
		return auth.NewLDAPAuthenticator(auth.LDAPConfig{
			URL:           cfg.LDAP.URL,
			BaseDN:        cfg.LDAP.BaseDN,
			BindDN:        cfg.LDAP.BindDN,
			BindPassword:  cfg.LDAP.BindPassword,
			UserFilter:    cfg.LDAP.UserFilter,
			UserAttribute: cfg.LDAP.UserAttribute,
		}, logger), nil
	default:
		if cfg.Auth.APIKey == "" {
			return nil, errors.New("authentication.api_key is required for the api_key strategy")
		}
		return auth.NewAPIKeyAuthenticator(cfg.Auth.APIKey)
	}
}

// newLimiter выбирает общий лимитер в Redis или локальный в памяти.
// При rate_limit.rps = 0 ограничение отключено.
func newLimiter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ratelimit.Limiter, func(), error) {
	noop := func() {}
	if cfg.RateLimit.RPS <= 0 {
		return nil, noop, nil
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, noop, fmt.Errorf("invalid redis_url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("Rate limiting through Redis", zap.String("addr", opts.Addr))
		return ratelimit.NewRedis(client, "firefly:ratelimit:", cfg.RateLimit.RPS, cfg.RateLimit.Burst),
			func() { _ = client.Close() }, nil
	}

	local := ratelimit.NewLocal(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	go local.Run(ctx, time.Minute)
	return local, noop, nil
}
