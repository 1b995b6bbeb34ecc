package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"wayfinder/internal/platform/retry"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Postgres wraps DB connectivity. Entity transactions, vote rows and the
// outbox share this handle.
type Postgres struct {
	DB *gorm.DB
}

// ConnectPolicy is the startup retry used while the database comes up.
var ConnectPolicy = retry.Policy{
	MaxAttempts:    6,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     8 * time.Second,
}

// Connect opens the pool and pings it, retrying transient failures with
// backoff. An empty dsn fails immediately.
func Connect(ctx context.Context, dsn string, log *slog.Logger) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	if log == nil {
		log = slog.Default()
	}

	policy := ConnectPolicy
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		log.Warn("postgres connect failed, retrying",
			"event", "postgres_connect_retry",
			"module", "internal/platform/db",
			"layer", "platform",
			"attempt", attempt,
			"backoff", backoff.String(),
			"error", err.Error(),
		)
	}

	return retry.Do(ctx, policy, retry.Always, func(ctx context.Context) (*Postgres, error) {
		return open(ctx, dsn)
	})
}

func open(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve postgres sql db handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{DB: db}, nil
}

func (p *Postgres) Close() error {
	if p == nil || p.DB == nil {
		return nil
	}
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
