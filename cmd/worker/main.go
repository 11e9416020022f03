package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"medscan-backend/cmd"
	"medscan-backend/internal/database"
	"medscan-backend/internal/inference"
	"medscan-backend/internal/messaging"
	"medscan-backend/internal/mlops"
	"medscan-backend/internal/storage"
	"medscan-backend/internal/worker"
)

type WorkerConfig struct {
	DatabaseURL       string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL       string `env:"RABBITMQ_URL,notEmpty,required"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL,notEmpty,required"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID,notEmpty,required"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY,notEmpty,required"`
	S3Region          string `env:"AWS_REGION,notEmpty,required"`
	DatasetBucket     string `env:"DATASET_BUCKET" envDefault:"datasets"`
	DatasetRoot       string `env:"DATASET_ROOT" envDefault:"vision"`
	ModelServiceURL   string `env:"MODEL_SERVICE_URL,notEmpty,required"`
	CopyTimeoutSecs   int    `env:"COPY_TIMEOUT_SECONDS" envDefault:"60"`
}

func main() {
	log.Println("Starting Worker...")

	cmd.LoadEnvFile()

	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	store, err := storage.NewS3ObjectStore(storage.S3ClientConfig{
		Endpoint:        cfg.S3EndpointURL,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	})
	if err != nil {
		log.Fatalf("Failed to create object store: %v", err)
	}
	if err := store.CreateBucket(context.Background(), cfg.DatasetBucket); err != nil {
		log.Fatalf("Failed to create dataset bucket: %v", err)
	}

	receiver, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer receiver.Close()

	copier := mlops.NewImageCopier(store, cfg.DatasetBucket, cfg.DatasetRoot, time.Duration(cfg.CopyTimeoutSecs)*time.Second)
	metadata := mlops.NewMetadataEmitter(store, cfg.DatasetBucket, cfg.DatasetRoot)
	syncer := mlops.NewSyncer(db, copier, metadata)
	predictor := inference.NewClient(cfg.ModelServiceURL)

	processor := worker.NewTaskProcessor(db, store, predictor, syncer, receiver)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down worker...")
		cancel()
	}()

	log.Println("Worker consuming tasks...")
	processor.Run(ctx)
	log.Println("Worker stopped.")
}
