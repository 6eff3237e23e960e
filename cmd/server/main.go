package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ecomerse-microservice/orders-microservice/cmd/server/config"
	"github.com/ecomerse-microservice/orders-microservice/internal/adapters/httpapi"
	"github.com/ecomerse-microservice/orders-microservice/internal/catalog"
	"github.com/ecomerse-microservice/orders-microservice/internal/events"
	"github.com/ecomerse-microservice/orders-microservice/internal/observability"
	"github.com/ecomerse-microservice/orders-microservice/internal/orders"
	"github.com/ecomerse-microservice/orders-microservice/internal/realtime"
	"github.com/ecomerse-microservice/orders-microservice/internal/reliability"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	redisCfg, err := config.LoadRedis()
	if err != nil {
		return err
	}
	httpCfg, err := config.LoadHTTP()
	if err != nil {
		return err
	}

	redisClient, closeRedis, err := buildRedisClient(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer closeRedis()

	store, payments, closeBackends, err := buildOrderBackends(ctx, config.LoadPayment())
	if err != nil {
		return err
	}
	defer closeBackends()

	hub := realtime.NewHub()
	go hub.Run(ctx)

	catalogClient := catalog.NewRedisCatalog(redisClient, redisCfg.CatalogKeyPrefix)
	service := orders.NewOrderService(catalogClient, payments, store, hub, nil, nil)

	reconciler := orders.NewReconciler(store, hub, logger)
	consumer := events.NewConsumer(redisClient, redisCfg.Stream, reconciler, reliability.RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}, logger)
	go func() {
		if err := consumer.Run(ctx); err != nil {
			logger.Error("payment event consumer stopped", "error", err)
		}
	}()

	metrics := observability.NewMetrics()
	limiter := reliability.NewRateLimiter(httpCfg.RateLimitInterval, httpCfg.RateLimitBurst, metrics.AddRateLimitWait)

	handler := httpapi.NewHandler(service, hub, logger)
	srv := &http.Server{
		Addr:    httpCfg.Addr,
		Handler: httpapi.NewRouter(handler, limiter, metrics),
	}

	obsSrv, err := startObservabilityServer(metrics, logger)
	if err != nil {
		return err
	}

	logger.Info("order service listening", "addr", httpCfg.Addr)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		metrics.MarkShutdown(metrics.Snapshot().InFlight)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
		if obsSrv != nil {
			_ = obsSrv.Shutdown(shutdownCtx)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func startObservabilityServer(metrics *observability.Metrics, logger *slog.Logger) (*http.Server, error) {
	cfg, err := config.LoadObservability()
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(metrics))

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("observability server error", "error", err)
		}
	}()

	return srv, nil
}
