package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"marketplace-bff/internal/auth"
	"marketplace-bff/internal/backend"
	"marketplace-bff/internal/config"
	"marketplace-bff/internal/logging"
	"marketplace-bff/internal/telemetry"
)

func main() {
	config.LoadEnv()
	cfg := config.NewConfig()

	logger := logging.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	mux := http.NewServeMux()
	backend.NewHandler(backend.NewStore(), logger).Routes(mux)

	serverAddr := fmt.Sprintf(":%s", cfg.BackendPort)
	srv := &http.Server{
		Addr:              serverAddr,
		Handler:           auth.NewMiddleware(cfg.JWTSecret).Identify(telemetry.Middleware(logger, mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Marketplace service listening", "addr", serverAddr)
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}
