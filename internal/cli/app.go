package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/triage-ai/sqlgate/internal/auth"
	"github.com/triage-ai/sqlgate/internal/catalog"
	"github.com/triage-ai/sqlgate/internal/config"
	"github.com/triage-ai/sqlgate/internal/dispatch"
	"github.com/triage-ai/sqlgate/internal/executor"
	"github.com/triage-ai/sqlgate/internal/policy"
	"github.com/triage-ai/sqlgate/internal/storage"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app is everything a transport needs, built once from Config.
type app struct {
	cfg        config.Config
	logger     *zap.Logger
	dispatcher *dispatch.Dispatcher
	writer     storage.EventWriter
	closers    []func()
}

func newApp(cfg config.Config, logger *zap.Logger) (*app, error) {
	cat, err := catalog.New()
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}

	provider, err := executor.NewSQLServerProvider(executor.SQLServerConfig{
		Host:     cfg.SQL.Host,
		Port:     cfg.SQL.Port,
		Database: cfg.SQL.Database,
		User:     cfg.SQL.User,
		Password: cfg.SQL.Password,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	// Storage: ClickHouse or LogWriter fallback
	if cfg.ClickHouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer", zap.Error(err))
			a.writer = storage.NewLogWriter(logger)
		} else {
			a.writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		a.writer = storage.NewLogWriter(logger)
	}
	a.closers = append(a.closers, a.writer.Close)

	guard := policy.New(cfg.ReadOnly)
	exec := executor.New(provider, cfg.QueryTimeout, logger)
	a.dispatcher = dispatch.New(cat, guard, exec, a.writer, logger)

	logger.Info("gateway configured",
		zap.String("server", cfg.SQL.Host),
		zap.Int("port", cfg.SQL.Port),
		zap.String("database", cfg.SQL.Database),
		zap.String("policy", guard.Mode()),
		zap.Duration("query_timeout", cfg.QueryTimeout),
	)
	return a, nil
}

// authenticator picks Postgres when a DSN is configured, otherwise the
// static key list.
func (a *app) authenticator(ctx context.Context) (auth.Authenticator, error) {
	if a.cfg.PostgresDSN == "" {
		if len(a.cfg.APIKeys) == 0 {
			a.logger.Warn("no POSTGRES_DSN or api_keys set, accepting any sgk_ key")
		} else {
			a.logger.Info("using static authenticator", zap.Int("keys", len(a.cfg.APIKeys)))
		}
		return auth.NewStaticAuthenticator(a.cfg.APIKeys...), nil
	}

	db, err := openPostgres(ctx, a.cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = db.Close() })

	a.logger.Info("postgres authenticator connected")
	return auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
		DB:       db,
		CacheTTL: a.cfg.AuthCacheTTL,
		Logger:   a.logger,
	}), nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// buildLogger writes JSON to stdout, or to stderr when stdout carries a
// protocol stream.
func buildLogger(level string, toStderr bool) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	output := "stdout"
	if toStderr {
		output = "stderr"
	}
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
