package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/signalbrief/trends-pipeline/internal/archive"
	"github.com/signalbrief/trends-pipeline/internal/config"
	"github.com/signalbrief/trends-pipeline/internal/ingest"
	"github.com/signalbrief/trends-pipeline/internal/kvstore"
	"github.com/signalbrief/trends-pipeline/internal/llm"
	"github.com/signalbrief/trends-pipeline/internal/newsletter"
	"github.com/signalbrief/trends-pipeline/internal/pipeline"
	"github.com/signalbrief/trends-pipeline/internal/scheduler"
	"github.com/signalbrief/trends-pipeline/internal/scraper"
	"github.com/signalbrief/trends-pipeline/internal/tasks"
	"github.com/signalbrief/trends-pipeline/internal/trends"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting trends pipeline")

	store := kvstore.NewClient(cfg.KVStoreURL, cfg.KVStoreToken)
	collector := scraper.NewCollector(cfg.ScraperURL, cfg.ScraperToken)
	generator := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)

	var responseArchive trends.Archiver
	if cfg.StorageAccount != "" {
		blobArchive, err := archive.NewAzureArchive(cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			logrus.Fatalf("Failed to initialize response archive: %v", err)
		}
		responseArchive = blobArchive
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		logrus.Fatalf("Failed to open queue database: %v", err)
	}
	defer db.Close()

	queueStore := newsletter.NewStore(db)
	if err := queueStore.EnsureSchema(context.Background()); err != nil {
		logrus.Fatalf("Failed to ensure queue schema: %v", err)
	}

	gate := ingest.NewGate(store, cfg.IngestThrottle)
	extractor := trends.NewExtractor(store, generator, responseArchive)
	pipelineService := pipeline.NewService(collector, gate, extractor, cfg.Categories)

	emailGenerator := newsletter.NewEmailGenerator(extractor, generator, newsletter.SMTPConfig{
		Sender:   cfg.SenderEmail,
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	})
	queueManager := newsletter.NewManager(queueStore, emailGenerator)

	runner := tasks.NewRunner(cfg.TaskWorkers, cfg.TaskQueueSize)

	schedulerService, err := scheduler.NewService(cfg, pipelineService, queueManager)
	if err != nil {
		logrus.Fatalf("Failed to initialize scheduler: %v", err)
	}
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheckHandler).Methods("GET")
	router.HandleFunc("/api/collect/{category}", collectHandler(pipelineService, runner)).Methods("POST")
	router.HandleFunc("/api/trends/{category}", extractHandler(pipelineService)).Methods("POST")
	router.HandleFunc("/api/trends/{category}", latestTrendsHandler(pipelineService)).Methods("GET")
	router.HandleFunc("/api/newsletter/populate", populateHandler(queueManager)).Methods("POST")
	router.HandleFunc("/api/newsletter/process", processHandler(queueManager)).Methods("POST")
	router.HandleFunc("/api/newsletter/cleanup", cleanupHandler(queueManager)).Methods("POST")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schedulerService.Stop()

	if err := runner.Drain(ctx); err != nil {
		logrus.Errorf("Background tasks did not drain cleanly: %v", err)
	}

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

func respondSuccess(w http.ResponseWriter, extra map[string]interface{}) {
	payload := map[string]interface{}{
		"success":   true,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	for k, v := range extra {
		payload[k] = v
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":     message,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}

// collectHandler acknowledges immediately and runs the collect-and-store
// batch in the background; large batches take seconds to minutes.
func collectHandler(p *pipeline.Service, runner *tasks.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := mux.Vars(r)["category"]
		if _, ok := p.Category(category); !ok {
			respondError(w, http.StatusNotFound, fmt.Sprintf("unknown category %q", category))
			return
		}

		submitted := runner.Submit("collect:"+category, func() {
			if _, err := p.Collect(context.Background(), category); err != nil {
				logrus.Errorf("Background collect for category %q failed: %v", category, err)
			}
		})
		if !submitted {
			respondError(w, http.StatusServiceUnavailable, "collector is busy, retry later")
			return
		}

		respondSuccess(w, map[string]interface{}{"category": category, "queued": true})
	}
}

func extractHandler(p *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := mux.Vars(r)["category"]

		result, err := p.Extract(r.Context(), category)
		if err != nil {
			respondError(w, http.StatusBadGateway, err.Error())
			return
		}

		respondSuccess(w, map[string]interface{}{"result": result})
	}
}

func latestTrendsHandler(p *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := mux.Vars(r)["category"]

		result, err := p.Latest(r.Context(), category)
		if err != nil {
			respondError(w, http.StatusBadGateway, err.Error())
			return
		}

		respondSuccess(w, map[string]interface{}{"result": result})
	}
}

type dateRequest struct {
	Date string `json:"date"`
}

// parseDateBody reads an optional {"date":"YYYY-MM-DD"} body, defaulting
// to today.
func parseDateBody(r *http.Request) (time.Time, error) {
	var body dateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Date == "" {
		return time.Now().UTC().Truncate(24 * time.Hour), nil
	}
	return time.Parse("2006-01-02", body.Date)
}

func populateHandler(m *newsletter.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, err := parseDateBody(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid date: %v", err))
			return
		}

		count, err := m.Populate(r.Context(), date)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}

		respondSuccess(w, map[string]interface{}{"queued": count, "date": date.Format("2006-01-02")})
	}
}

func processHandler(m *newsletter.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := m.ProcessOne(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}

		respondSuccess(w, map[string]interface{}{"result": result})
	}
}

func cleanupHandler(m *newsletter.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, err := parseDateBody(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid date: %v", err))
			return
		}

		deleted, err := m.Cleanup(r.Context(), date)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}

		respondSuccess(w, map[string]interface{}{"deleted": deleted, "date": date.Format("2006-01-02")})
	}
}
