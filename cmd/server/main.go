package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-sd-budget/internal/client"
	"github.com/pesio-ai/be-sd-budget/internal/config"
	"github.com/pesio-ai/be-sd-budget/internal/database"
	"github.com/pesio-ai/be-sd-budget/internal/handler"
	"github.com/pesio-ai/be-sd-budget/internal/middleware"
	"github.com/pesio-ai/be-sd-budget/internal/repository"
	"github.com/pesio-ai/be-sd-budget/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := newLogger(cfg)

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Service Desk Budget Automation (SD-1)")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize repositories
	clientRepo := repository.NewClientRepository(db)
	reconciliationRepo := repository.NewReconciliationRepository(db)
	auditRepo := repository.NewDecisionAuditRepository(db)

	// Initialize the tracker gateway
	jiraClient := client.NewJiraClient(client.Config{
		BaseURL:  cfg.Jira.BaseURL,
		Email:    cfg.Jira.Email,
		APIToken: cfg.Jira.APIToken,
		Timeout:  cfg.JiraTimeout(),
	})
	log.Info().Str("jira_base_url", cfg.Jira.BaseURL).Msg("Tracker gateway initialized")

	// Initialize services
	penaltyService := service.NewPenaltyService(jiraClient, clientRepo, cfg, log)
	decisionService := service.NewDecisionService(jiraClient, clientRepo, auditRepo, cfg, log)
	reconcilerService := service.NewReconcilerService(jiraClient, clientRepo, reconciliationRepo, penaltyService, auditRepo, cfg, log)
	clientService := service.NewClientService(clientRepo, jiraClient, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(decisionService, reconcilerService, penaltyService, clientService, cfg, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Lifecycle automation routes
	mux.HandleFunc("/api/v1/events/issue", httpHandler.IssueEvent)
	mux.HandleFunc("/api/v1/issues/recalculate", httpHandler.RecalculateCosts)

	// Client admin routes
	mux.HandleFunc("/api/v1/clients", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListClients(w, r)
		case http.MethodPost:
			httpHandler.CreateClient(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/clients/get", httpHandler.GetClient)
	mux.HandleFunc("/api/v1/clients/update", httpHandler.UpdateClient)
	mux.HandleFunc("/api/v1/clients/audit", httpHandler.DecisionHistory)
	mux.HandleFunc("/api/v1/request-types", httpHandler.ListRequestTypes)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log)(h)
	h = middleware.Recovery(&log)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(60 * time.Second)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL"))); err == nil && parsed != zerolog.NoLevel {
		level = parsed
	}

	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.Service.Name).
		Str("environment", cfg.Service.Environment).
		Logger()

	if cfg.Service.Environment == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger
}
