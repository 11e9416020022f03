package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"medscan-backend/cmd"
	"medscan-backend/internal/api"
	"medscan-backend/internal/database"
	"medscan-backend/internal/inference"
	"medscan-backend/internal/messaging"
	"medscan-backend/internal/mlops"
	"medscan-backend/internal/storage"
	"medscan-backend/internal/worker"
)

// Single-binary deployment: sqlite database, filesystem object store, and an
// in-process worker wired to an in-memory queue. Useful for development and
// demos without minio, postgres, or rabbitmq.
type LocalConfig struct {
	DatabaseURL     string `env:"DATABASE_URL" envDefault:"local.db"`
	DataDir         string `env:"DATA_DIR" envDefault:"./data"`
	StagingBucket   string `env:"STAGING_BUCKET" envDefault:"platform"`
	DatasetBucket   string `env:"DATASET_BUCKET" envDefault:"datasets"`
	DatasetRoot     string `env:"DATASET_ROOT" envDefault:"vision"`
	JWTSecret       string `env:"JWT_SECRET" envDefault:"local-dev-secret"`
	ModelServiceURL string `env:"MODEL_SERVICE_URL"`
	RagURL          string `env:"RAG_ENDPOINT_URL"`
	APIPort         string `env:"API_PORT" envDefault:"8001"`
}

func main() {
	log.Println("Starting local single-binary server...")

	cmd.LoadEnvFile()

	var cfg LocalConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	store, err := storage.NewLocalObjectStore(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to create local object store: %v", err)
	}

	queue := messaging.NewInMemoryQueue()
	defer queue.Close()

	copier := mlops.NewImageCopier(store, cfg.DatasetBucket, cfg.DatasetRoot, time.Minute)
	metadata := mlops.NewMetadataEmitter(store, cfg.DatasetBucket, cfg.DatasetRoot)
	syncer := mlops.NewSyncer(db, copier, metadata)
	predictor := inference.NewClient(cfg.ModelServiceURL)

	processor := worker.NewTaskProcessor(db, store, predictor, syncer, queue)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go processor.Run(ctx)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	apiHandler := api.NewBackendService(db, store, queue, api.Config{
		JWTSecret:     cfg.JWTSecret,
		StagingBucket: cfg.StagingBucket,
		RagURL:        cfg.RagURL,
	})
	apiHandler.AddRoutes(r)

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("Local server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}
}
