// AstroCare - astronaut wellbeing companion server
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/astrocare/internal/agent"
	"github.com/ashureev/astrocare/internal/api"
	"github.com/ashureev/astrocare/internal/companion"
	"github.com/ashureev/astrocare/internal/config"
	"github.com/ashureev/astrocare/internal/identity"
	"github.com/ashureev/astrocare/internal/middleware"
	"github.com/ashureev/astrocare/internal/socket"
	"github.com/ashureev/astrocare/internal/speech"
	"github.com/ashureev/astrocare/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	persona, err := companion.ResolvePersona(cfg.Persona, cfg.PersonaFile)
	if err != nil {
		slog.Error("Failed to load persona", "persona", cfg.Persona, "file", cfg.PersonaFile, "error", err)
		os.Exit(1)
	}
	slog.Info("Persona loaded", "id", persona.ID, "name", persona.Name)

	// Speech service (optional). Without it the companion is text-only.
	var synth speech.Synthesizer = speech.Unavailable{}
	var rec speech.Recognizer = speech.Unavailable{}
	if cfg.SpeechAddr != "" {
		slog.Info("Attempting to connect to speech service via gRPC", "address", cfg.SpeechAddr)
		grpcSpeech, err := speech.NewGrpcSpeech(cfg.SpeechAddr, logger)
		if err != nil {
			slog.Warn("Failed to connect to speech service, speech features will be disabled", "error", err)
		} else {
			defer grpcSpeech.Close()
			synth, rec = grpcSpeech, grpcSpeech
		}
	} else {
		slog.Info("Speech features disabled (SPEECH_ADDR not set)")
	}

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}

	svc, err := agent.NewService(agent.ServiceConfig{
		Persona:     persona,
		Facts:       cfg.Mission.Facts(),
		ReplyDelay:  cfg.ReplyDelay,
		SessionTTL:  cfg.SessionTTL,
		Synthesizer: synth,
		Recognizer:  rec,
		Log:         conversationLogger,
	})
	if err != nil {
		slog.Error("Failed to initialize companion service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	sm := socket.NewSessionManager()
	agentHandler := agent.NewHandler(svc, agent.HandlerConfig{
		RateLimitRequests: cfg.RateLimit.RequestsPerWindow,
		RateLimitWindow:   cfg.RateLimit.WindowDuration,
		MaxRequestBody:    cfg.MaxRequestBody,
	})
	defer agentHandler.Close()
	healthHandler := api.NewHealthHandler(svc, persona.ID)
	wsHandler := socket.NewWebSocketHandler(svc, sm, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins(), identity.SessionHeaderName))

	// Public routes.
	healthHandler.RegisterHealth(r)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(cfg.IsDevelopment()))
		agentHandler.RegisterRoutes(r)
		r.Get("/ws/companion", wsHandler.ServeHTTP)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sm.Run(ctx, svc.Events())
	svc.StartTTLWorker(ctx, sm.CloseSession)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
