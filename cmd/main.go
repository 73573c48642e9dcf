package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/davidbz/ember/internal/backend/echo"
	"github.com/davidbz/ember/internal/backend/vllm"
	rediscache "github.com/davidbz/ember/internal/cache/redis"
	"github.com/davidbz/ember/internal/config"
	"github.com/davidbz/ember/internal/domain"
	"github.com/davidbz/ember/internal/http"
	"github.com/davidbz/ember/internal/http/middleware"
	"github.com/davidbz/ember/internal/observability"
)

const (
	shutdownTimeout  = 30 * time.Second
	redisDialTimeout = 5 * time.Second
)

func main() {
	container := buildContainer()

	if err := container.Invoke(run); err != nil {
		log.Fatalf("Failed to run application: %v", err)
	}
}

// run serves until SIGINT or SIGTERM, then drains in-flight requests and
// releases the backend connection.
func run(server *http.Server, backend domain.Backend, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	if err := backend.Close(); err != nil {
		logger.Warn("failed to close backend", zap.Error(err))
	}

	_ = logger.Sync()
	return nil
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}

	// Backend
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (domain.Backend, error) {
		if cfg.UseMockBackend {
			logger.Info("using mock backend")
			return echo.NewBackend(), nil
		}

		logger.Info("using vLLM backend", zap.String("base_url", cfg.Backend.BaseURL))
		return vllm.NewClient(cfg.Backend)
	}); err != nil {
		log.Fatalf("Failed to provide backend: %v", err)
	}

	// Response cache (optional)
	if err := container.Provide(func(cfg *rediscache.Config, logger *zap.Logger) (domain.ResponseCache, error) {
		if !cfg.Enabled {
			return nil, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
		defer cancel()

		client, err := rediscache.NewClient(ctx, *cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create response cache: %w", err)
		}

		logger.Info("response cache enabled",
			zap.String("addr", cfg.Addr),
			zap.Duration("ttl", cfg.TTL),
		)
		return rediscache.NewResponseCache(client, cfg.TTL), nil
	}); err != nil {
		log.Fatalf("Failed to provide response cache: %v", err)
	}

	// Domain Services
	if err := container.Provide(domain.NewRequestMetrics); err != nil {
		log.Fatalf("Failed to provide request metrics: %v", err)
	}
	if err := container.Provide(domain.NewValidator); err != nil {
		log.Fatalf("Failed to provide validator: %v", err)
	}
	if err := container.Provide(domain.NewCatalog); err != nil {
		log.Fatalf("Failed to provide catalog: %v", err)
	}
	if err := container.Provide(domain.NewCostCalculator); err != nil {
		log.Fatalf("Failed to provide cost calculator: %v", err)
	}
	if err := container.Provide(domain.NewGatewayService); err != nil {
		log.Fatalf("Failed to provide gateway service: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(middleware.BuildMiddlewareChain); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(http.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}
