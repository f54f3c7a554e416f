package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-bff/internal/api"
	"marketplace-bff/internal/auth"
	"marketplace-bff/internal/cache"
	"marketplace-bff/internal/config"
	"marketplace-bff/internal/logging"
	"marketplace-bff/internal/marketplace"
	"marketplace-bff/internal/mutation"
	"marketplace-bff/internal/query"
	"marketplace-bff/internal/services"
	"marketplace-bff/internal/session"
	"marketplace-bff/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	config.LoadEnv()
	cfg := config.NewConfig()

	logger := logging.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	slog.Info("Starting API Gateway", "port", cfg.HTTPPort, "env", cfg.AppEnv, "backend", cfg.BackendURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store   query.Store
		owners  marketplace.OwnerIndex
		ledger  session.PromptLedger
		limiter api.RateLimiter = api.NewMemoryLimiter(cfg.InquiryRateLimit, cfg.InquiryRateWindow)
	)

	if cfg.UseRedis() {
		redisClient, err := cache.NewClient(cache.Options{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			RateLimit:  cfg.InquiryRateLimit,
			RateWindow: cfg.InquiryRateWindow,
		}, logger)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		slog.Info("Connected to Redis", "addr", cfg.RedisAddr)

		owners, ledger, limiter = redisClient, redisClient, redisClient
		if cfg.QueryStore == "redis" {
			store = redisClient.QueryStore(cfg.QueryTTL)
		}
	} else if cfg.QueryStore == "redis" {
		slog.Warn("QUERY_STORE=redis needs REDIS_ADDR, falling back to memory")
	}

	serviceClient := services.NewServiceClient(cfg, logger)

	queryCache := query.New(query.Config{
		Store:        store,
		Retry:        cfg.QueryRetry,
		FetchTimeout: cfg.QueryFetchTimeout,
		Ready:        serviceClient.Ready,
	}, logger)
	coordinator := mutation.NewCoordinator(queryCache, serviceClient, logger)
	market := marketplace.New(serviceClient, queryCache, coordinator, owners, logger)
	resolver := session.NewResolver(market, ledger, logger)

	serviceClient.OnReady(func() {
		n := queryCache.RefetchActive()
		slog.Info("Refetching active queries", "count", n)
	})
	go func() {
		if err := serviceClient.WaitReady(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Marketplace service never became ready", "error", err)
		}
	}()

	handler := api.NewHandler(market, resolver, limiter, logger)
	authMiddleware := auth.NewMiddleware(cfg.JWTSecret)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if !serviceClient.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	handler.Routes(mux)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:              serverAddr,
		Handler:           authMiddleware.Identify(telemetry.Middleware(logger, mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
	}()

	slog.Info("Server listening", "addr", serverAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	queryCache.Wait()
}
