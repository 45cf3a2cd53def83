package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/finance-tracker-web/internal/api/handlers"
	"github.com/dvloznov/finance-tracker-web/internal/api/middleware"
	"github.com/dvloznov/finance-tracker-web/internal/cachestore"
	"github.com/dvloznov/finance-tracker-web/internal/config"
	"github.com/dvloznov/finance-tracker-web/internal/jobs/inmemory"
	"github.com/dvloznov/finance-tracker-web/internal/logger"
	"github.com/dvloznov/finance-tracker-web/internal/notify"
	"github.com/dvloznov/finance-tracker-web/internal/telemetry"
	"github.com/dvloznov/finance-tracker-web/internal/transport"
	"github.com/dvloznov/finance-tracker-web/internal/web"
)

// jobRetention is how long finished refetch jobs stay visible under /api/jobs.
const jobRetention = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Flags override the environment
	var (
		port    = flag.String("port", cfg.Server.Port, "HTTP server port")
		apiBase = flag.String("api", cfg.API.BaseURL, "Base URL of the transactions API")
	)
	flag.Parse()

	log := logger.NewWithLevel(cfg.Log.Level)
	ctx := context.Background()

	var metricsHandler http.Handler
	if cfg.Telemetry.Enabled {
		provider, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Telemetry.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize telemetry")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shut down telemetry")
			}
		}()
		metricsHandler = provider.Handler()
	}

	// Mutation outcomes are logged and kept for the page's flash area
	notices := notify.NewRecorder(log, notify.DefaultLimit)

	client := transport.NewClient(strings.TrimRight(*apiBase, "/"), log,
		transport.WithTimeout(cfg.API.Timeout),
		transport.WithNotifier(notices),
	)

	// Refetches after settled mutations go through the job queue
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(inmemory.QueueConfig{
		BufferSize: cfg.Cache.RefetchQueueSize,
		Workers:    cfg.Cache.RefetchWorkers,
	}, jobStore, log)

	store := cachestore.New(client, log, cachestore.Options{
		StaleTime:      cfg.Cache.StaleTime,
		GCTime:         cfg.Cache.GCTime,
		Scheduler:      cachestore.NewQueueScheduler(jobQueue, cfg.Cache.RefetchMaxRetries),
		RefetchRetries: cfg.Cache.RefetchMaxRetries,
	})

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, store.HandleRefetchJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start refetch queue")
	}

	// Drop unused cache entries and old job records
	go func() {
		ticker := time.NewTicker(max(cfg.Cache.GCTime/2, time.Second))
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				collected := store.Collect()
				pruned := jobStore.Prune(time.Now().Add(-jobRetention))
				if collected > 0 || pruned > 0 {
					log.Debug().Int("entries", collected).Int("jobs", pruned).Msg("Garbage collected")
				}
			}
		}
	}()

	format, err := web.NewFormatter(cfg.View.Locale, cfg.View.Currency)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid locale or currency")
	}

	// Initialize handlers
	pageHandler, err := web.NewHandler(store, notices, format, cfg.View.PageSize, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create page handler")
	}
	transactionsHandler := handlers.NewTransactionsHandler(store, cfg.View.PageSize, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	// Create router
	mux := http.NewServeMux()

	// Page endpoints
	mux.HandleFunc("/", pageHandler.Index)
	mux.HandleFunc("/transactions", pageHandler.Transactions)
	mux.HandleFunc("/transactions/", pageHandler.Transactions)
	mux.Handle("/static/", web.Static())

	// Transactions endpoints
	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			transactionsHandler.ListTransactions(w, r)
		case http.MethodPost:
			transactionsHandler.CreateTransaction(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/transactions/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
		if id == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Transaction ID is required")
			return
		}
		if id == "all" {
			if r.Method != http.MethodGet {
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			transactionsHandler.Summary(w, r)
			return
		}
		switch r.Method {
		case http.MethodPatch:
			transactionsHandler.UpdateTransaction(w, r, id)
		case http.MethodDelete:
			transactionsHandler.DeleteTransaction(w, r, id)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	// Apply middleware
	mws := []func(http.Handler) http.Handler{
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logger(log),
		middleware.CORS,
	}
	if cfg.Telemetry.Enabled {
		mws = append([]func(http.Handler) http.Handler{middleware.Telemetry(cfg.Telemetry.ServiceName)}, mws...)
	}
	handler := middleware.Chain(mux, mws...)

	// Create HTTP server
	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, *port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.API.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("api", *apiBase).
			Msg("Starting web server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Settle in-flight mutations before the refetch workers go away
	store.Close()

	cancelWorker()
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping refetch queue")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close refetch queue")
	}

	log.Info().Msg("Server exited")
}
