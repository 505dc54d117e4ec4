package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stagecall/voicedemo/internal/agentdir"
	"github.com/stagecall/voicedemo/internal/api"
	"github.com/stagecall/voicedemo/internal/call"
	"github.com/stagecall/voicedemo/internal/config"
	"github.com/stagecall/voicedemo/internal/metrics"
	"github.com/stagecall/voicedemo/internal/mic"
	"github.com/stagecall/voicedemo/internal/resolver"
	"github.com/stagecall/voicedemo/internal/ticker"
	"github.com/stagecall/voicedemo/internal/types"
	"github.com/stagecall/voicedemo/internal/voice"
	"github.com/stagecall/voicedemo/internal/websocket"
	"github.com/stagecall/voicedemo/pkg/middleware"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Msg("starting voicedemo server")

	// Create context for services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Agent directory backing the config endpoint
	store := buildAgentStore(ctx, cfg)

	// Call coordinator and its collaborators
	gate := mic.NewProbeGate(mic.GrantAll(), log.Logger)
	creds := resolver.New(cfg.ConfigAPIURL, cfg.ConfigCacheTTL, log.Logger)
	dialer := voice.NewWSDialer(cfg.VendorWSURL, log.Logger)

	coordinator := call.New(gate, creds, dialer, log.Logger)
	go coordinator.Run(ctx)

	// WebSocket hub fanning coordinator updates out to UI triggers
	hub := websocket.NewHub(log.Logger)
	go hub.Run(ctx)

	// Every state transition reaches every connected trigger
	coordinator.Subscribe(func(snap types.CallSnapshot) {
		data, err := jsonStatus(snap)
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal status message")
			return
		}
		hub.Broadcast(data)
	})

	// Once-per-second elapsed tick for active calls
	durationTicker := ticker.NewTicker(hub, coordinator, 1*time.Second, log.Logger)
	go durationTicker.Start(ctx)

	// Create WebSocket handler
	wsHandler := websocket.NewHandler(hub, cfg, coordinator, store, log.Logger)

	// Agent config and demo endpoints
	agentsHandler := api.NewAgentsHandler(store, log.Logger)

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Register public routes
	r.Get("/health", healthHandler)
	r.Route("/api", func(r chi.Router) {
		r.Get("/agents", agentsHandler.List)
		r.Get("/agents/{agentId}/config", agentsHandler.GetConfig)
		r.Get("/agents/{agentId}/demo", agentsHandler.GetDemo)
	})
	r.Get("/ws", wsHandler.ServeHTTP)

	// Internal routes (not exposed through the site proxy)
	r.Get("/internal/metrics", metrics.Handler)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stop the coordinator and background services; Run tears down any live
	// vendor connection before returning
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// buildAgentStore selects the agent directory backend from configuration
func buildAgentStore(ctx context.Context, cfg *config.Config) agentdir.Store {
	dynamoCfg := agentdir.LoadDynamoConfig()
	if dynamoCfg.Mode != agentdir.DynamoModeNone {
		store, err := agentdir.NewDynamoDBStore(ctx, dynamoCfg, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize DynamoDB agent directory")
		}
		return store
	}

	if cfg.AgentsFile != "" {
		store, err := agentdir.NewMemoryStoreFromFile(cfg.AgentsFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.AgentsFile).Msg("failed to load agents file")
		}
		log.Info().Str("file", cfg.AgentsFile).Msg("agent directory loaded from file")
		return store
	}

	log.Warn().Msg("no agent directory configured, starting with an empty in-memory store")
	return agentdir.NewMemoryStore()
}

// jsonStatus wraps a snapshot in the wire envelope UI triggers expect
func jsonStatus(snap types.CallSnapshot) ([]byte, error) {
	return json.Marshal(types.StatusMessage{Type: types.MsgTypeStatus, Call: snap})
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"voicedemo-backend"}`)
}
