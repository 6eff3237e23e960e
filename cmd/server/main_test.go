package main

import (
	"context"
	"testing"

	"github.com/ecomerse-microservice/orders-microservice/cmd/server/config"
	"github.com/ecomerse-microservice/orders-microservice/internal/orders"
)

func TestBuildOrderBackendsFallsBackToMemory(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	store, payments, cleanup, err := buildOrderBackends(context.Background(), config.PaymentConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()

	if _, ok := store.(*orders.InMemoryOrderStore); !ok {
		t.Fatalf("expected in-memory store, got %T", store)
	}
	if _, ok := payments.(*orders.InMemoryPaymentClient); !ok {
		t.Fatalf("expected in-memory payment client, got %T", payments)
	}
}

func TestBuildOrderBackendsRejectsBadDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://bad url")

	store, _, cleanup, err := buildOrderBackends(context.Background(), config.PaymentConfig{})
	if err == nil {
		if cleanup != nil {
			cleanup()
		}
		t.Fatalf("expected error for malformed DSN, got store=%v", store)
	}
}

func TestBuildRedisClientRejectsBadURL(t *testing.T) {
	_, _, err := buildRedisClient(context.Background(), config.RedisConfig{URL: "://bad"})
	if err == nil {
		t.Fatalf("expected parse error for malformed redis url")
	}
}
