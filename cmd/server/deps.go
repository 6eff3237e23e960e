package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"github.com/ecomerse-microservice/orders-microservice/cmd/server/config"
	ordersdb "github.com/ecomerse-microservice/orders-microservice/internal/db/orders"
	"github.com/ecomerse-microservice/orders-microservice/internal/orders"
)

var openOrdersDB = func(driver, dsn string) (*sql.DB, error) {
	return sql.Open(driver, dsn)
}

// buildRedisClient connects and pings Redis per config.
func buildRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, func(), error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DialTimeout != nil {
		opts.DialTimeout = *cfg.DialTimeout
	}
	if cfg.ReadTimeout != nil {
		opts.ReadTimeout = *cfg.ReadTimeout
	}
	if cfg.WriteTimeout != nil {
		opts.WriteTimeout = *cfg.WriteTimeout
	}
	if cfg.PoolSize != nil {
		opts.PoolSize = *cfg.PoolSize
	}
	if cfg.MinIdleConns != nil {
		opts.MinIdleConns = *cfg.MinIdleConns
	}
	if cfg.MaxRetries != nil {
		opts.MaxRetries = *cfg.MaxRetries
	}
	if cfg.TLSConfig != nil {
		opts.TLSConfig = cfg.TLSConfig
	}

	client := redis.NewClient(opts)
	if cfg.EnableOTel {
		if err := redisotel.InstrumentTracing(client); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		if err := redisotel.InstrumentMetrics(client); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
	}

	pingCtx := ctx
	if pingCtx == nil {
		pingCtx = context.Background()
	}
	if cfg.HealthcheckTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(pingCtx, cfg.HealthcheckTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := client.Close(); err != nil {
			slog.Warn("close redis", "error", err)
		}
	}
	return client, cleanup, nil
}

// buildOrderBackends wires the order store and payment session client. With
// DATABASE_URL set they run on Postgres; without it they fall back to the
// in-memory implementations so the service stays usable in development.
func buildOrderBackends(ctx context.Context, paymentCfg config.PaymentConfig) (orders.OrderStore, orders.PaymentClient, func(), error) {
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory order store and payment client")
		return orders.NewInMemoryOrderStore(), orders.NewInMemoryPaymentClient(), func() {}, nil
	}

	db, err := openOrdersDB("pgx", databaseURL)
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := ordersdb.NewPostgresOrderStoreWithSchema(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	payments, err := ordersdb.NewPostgresPaymentClientWithSchema(ctx, db, paymentCfg.RedirectBase)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			slog.Warn("close orders db", "error", err)
		}
	}
	return store, payments, cleanup, nil
}
