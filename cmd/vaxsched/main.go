package main

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"vaxsched/internal/config"
	"vaxsched/internal/ratelimit"
	"vaxsched/internal/service/accounts"
	"vaxsched/internal/service/booking"
	"vaxsched/internal/store/bunstore"
	"vaxsched/internal/store/postgres"
	"vaxsched/internal/store/sqlite"
	"vaxsched/internal/telemetry"
	"vaxsched/internal/transport/cli"
)

const serviceName = "vaxsched"

func main() {
	// stdout belongs to the command shell.
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	log.Info("starting", slog.String("db_driver", cfg.DatabaseDriver), slog.String("log_level", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: serviceName,
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
	})
	if err != nil {
		log.Error("tracing setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", slog.Any("err", err))
		}
	}()

	db, closeDB, err := openDatabase(log, cfg)
	if err != nil {
		os.Exit(1)
	}
	defer closeDB()

	if cfg.AutoMigrate {
		migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := bunstore.Migrate(migrateCtx, db)
		cancel()
		if err != nil {
			log.Error("schema migration failed", slog.Any("err", err))
			os.Exit(1)
		}
		log.Info("schema ready")
	}

	limiter, closeLimiter, err := loginLimiter(cfg)
	if err != nil {
		log.Error("login limiter setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer closeLimiter()

	accountSvc := accounts.NewService(bunstore.NewAccountRepo(db), limiter)
	bookingSvc := booking.NewService(bunstore.NewLedgerRepo(db))
	handler := cli.NewHandler(accountSvc, bookingSvc, log, cfg.CommandTimeout)

	if err := handler.Run(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("command loop stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("stopped")
}

func openDatabase(log *slog.Logger, cfg config.Config) (*bun.DB, func(), error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
		db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
			log.Error("database connection failed", args...)
			return nil, nil, err
		}
		return db, func() {
			if err := postgres.Close(db); err != nil {
				log.Warn("database close failed", slog.Any("err", err))
			}
		}, nil
	default:
		log.Info("opening database", slog.String("sqlite_path", cfg.SQLitePath))
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			log.Error("database open failed", slog.Any("err", err), slog.String("sqlite_path", cfg.SQLitePath))
			return nil, nil, err
		}
		return db, func() {
			if err := sqlite.Close(db); err != nil {
				log.Warn("database close failed", slog.Any("err", err))
			}
		}, nil
	}
}

// loginLimiter shares the budget through Redis when an address is set and
// keeps it in process otherwise.
func loginLimiter(cfg config.Config) (ratelimit.Limiter, func(), error) {
	if cfg.RedisAddr == "" {
		return ratelimit.NewLocalLimiter(cfg.LoginRatePerMinute, cfg.LoginBurst), func() {}, nil
	}
	attempts := cfg.LoginBurst
	if attempts <= 0 {
		attempts = 1
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	l, err := ratelimit.NewRedisLoginLimiter(client, attempts, time.Minute)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return l, func() { _ = client.Close() }, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
