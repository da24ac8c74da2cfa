package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lorairo/internal/app"
	"lorairo/internal/handlers"
	"lorairo/internal/logging"
	"lorairo/internal/memory"
	"lorairo/internal/metrics"
	"lorairo/internal/middleware"
	"lorairo/internal/startup"

	"github.com/gorilla/mux"
)

func main() {
	startTime := time.Now()

	// Set GOMEMLIMIT before anything large is allocated
	memory.ConfigureFromEnv()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	ctx := context.Background()
	container, err := app.New(ctx, config)
	if err != nil {
		startup.LogFatal("Failed to open project: %v", err)
	}

	if config.MetricsEnabled {
		metrics.InitializeMetrics()
		metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)
		container.Collector.Start()
	}

	h := handlers.New(container)
	router := setupRouter(h, config.MetricsEnabled)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Logger(loggingConfig)(router)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		handleShutdown(srv, container)
		close(done)
	}()

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	<-done
}

func setupRouter(h *handlers.Handlers, metricsEnabled bool) *mux.Router {
	r := mux.NewRouter()
	if metricsEnabled {
		r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
		r.Handle("/metrics", h.MetricsHandler()).Methods("GET")
	}

	// Health and build info
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Search
	api.HandleFunc("/images", h.SearchImages).Methods("GET")
	api.HandleFunc("/images/search", h.SearchImagesJSON).Methods("POST")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")
	api.HandleFunc("/models", h.ListModels).Methods("GET")

	// Images
	api.HandleFunc("/images/{id:[0-9]+}", h.GetImage).Methods("GET")
	api.HandleFunc("/images/{id:[0-9]+}", h.DeleteImage).Methods("DELETE")
	api.HandleFunc("/images/{id:[0-9]+}/thumbnail", h.GetThumbnail).Methods("GET")

	// Annotations
	api.HandleFunc("/images/{id:[0-9]+}/tags", h.SetTags).Methods("PUT")
	api.HandleFunc("/images/{id:[0-9]+}/score", h.SetScore).Methods("PUT")
	api.HandleFunc("/images/{id:[0-9]+}/rating", h.SetRating).Methods("PUT")
	api.HandleFunc("/images/{id:[0-9]+}/captions", h.AddCaption).Methods("POST")
	api.HandleFunc("/annotations", h.ApplyAnnotations).Methods("POST")

	// Page navigation
	api.HandleFunc("/pages", h.StartPaging).Methods("POST")
	api.HandleFunc("/pages/state", h.PageState).Methods("GET")
	api.HandleFunc("/pages/{page:[0-9]+}", h.GetPage).Methods("GET")
	api.HandleFunc("/pages/{action:first|previous|next|last}", h.Navigate).Methods("POST")

	// Tag dictionary
	api.HandleFunc("/tags/resolve", h.ResolveTags).Methods("POST")
	api.HandleFunc("/tags/{id:[0-9]+}", h.GetTag).Methods("GET")

	return r
}

func handleShutdown(srv *http.Server, container *app.Container) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if container.Config.MetricsEnabled {
		startup.LogShutdownStep("Stopping metrics collector")
		container.Collector.Stop()
		startup.LogShutdownStepComplete("Metrics collector stopped")
	}

	startup.LogShutdownStep("Closing project")
	if err := container.Close(); err != nil {
		logging.Warn("Close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Project closed")
	}

	startup.LogShutdownComplete()
}
