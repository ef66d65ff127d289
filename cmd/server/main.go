package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/course-studio/backend/internal/config"
	"github.com/course-studio/backend/internal/courses"
	"github.com/course-studio/backend/internal/database"
	"github.com/course-studio/backend/internal/generator"
	"github.com/course-studio/backend/internal/logger"
	"github.com/course-studio/backend/internal/middleware"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	mode := cfg.ResolveMode()

	// Course lookup is optional; without a database the pipelines run on
	// request-supplied course metadata only.
	var lookup courses.CourseLookup
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("failed to connect to database", "error", err)
		}
		defer db.Close()

		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			log.Fatal("failed to run migrations", "error", err)
		}
		lookup = newCourseLookup(db, cfg)
	}

	backend, err := buildBackend(cfg, mode)
	if err != nil {
		if !generator.IsConfigurationError(err) {
			log.Fatal("failed to build generator backend", "error", err, "mode", mode)
		}
		log.Warn("generator backend not configured, serving mock content", "error", err, "mode", mode)
		mode = generator.ModeMock
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	service := courses.NewService(courses.ServiceConfig{
		Mode:                mode,
		Backend:             backend,
		Lookup:              lookup,
		Logger:              log,
		Metrics:             courses.NewMetrics(reg),
		PlanningEnabled:     cfg.PlanningEnabled,
		PlanningConcurrency: cfg.PlanningConcurrency,
	})
	coursesHandler := courses.NewHandler(service, log)

	// Setup router
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(log))

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","mode":"` + string(service.Mode()) + `"}`))
	}).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Auth(cfg.JWTSecret))
	coursesHandler.RegisterRoutes(api)

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "mode", service.Mode(), "planning", cfg.PlanningEnabled, "auth", cfg.JWTSecret != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

func newCourseLookup(db *sql.DB, cfg *config.Config) courses.CourseLookup {
	return courses.NewCachedLookup(courses.NewStore(db), cfg.CourseCacheSize, cfg.CourseCacheTTL)
}

// buildBackend returns the content generator for live and CLI modes. Mock
// mode needs none; the service carries its own mock.
func buildBackend(cfg *config.Config, mode generator.Mode) (generator.ContentGenerator, error) {
	switch mode {
	case generator.ModeLive:
		primary, err := generator.NewAPIClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		if err != nil {
			return nil, err
		}
		planner, err := generator.NewAPIClient(cfg.AnthropicAPIKey, cfg.AnthropicPlannerModel)
		if err != nil {
			return nil, err
		}
		return generator.NewGenerator(primary, planner, cfg.AnthropicModel), nil
	case generator.ModeCLI:
		return generator.NewGenerator(generator.NewCLIClient(cfg.CLIPath), nil, "claude-cli"), nil
	}
	return nil, nil
}
