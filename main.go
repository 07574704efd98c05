package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"

	"repochat/packages/ai"
	"repochat/packages/config"
	"repochat/packages/fetcher"
	"repochat/packages/httpapi"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found")
	}

	cfg, err := config.LoadConfig(os.Getenv("REPOCHAT_CONFIG"))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	repoFetcher := fetcher.NewFetcher(cfg.GitHub)

	// A missing API key disables chat but not repository browsing.
	var asker httpapi.Asker
	aiService, err := ai.NewService(cfg.AI)
	switch {
	case err == nil:
		asker = aiService
	case errors.Is(err, ai.ErrMissingAPIKey):
		slog.Warn("GEMINI_API_KEY not set; chat is disabled")
	default:
		slog.Error("Failed to initialize LLM service", "error", err)
		os.Exit(1)
	}

	server := httpapi.NewServer(cfg.Server, repoFetcher, asker)

	slog.Info("Starting server", "addr", cfg.Server.Addr, "model", cfg.AI.Model)
	if err := http.ListenAndServe(cfg.Server.Addr, server.Handler()); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}
