package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"medscan-backend/cmd"
	"medscan-backend/internal/database"
	"medscan-backend/internal/mlops"
	"medscan-backend/internal/storage"
)

type SweeperConfig struct {
	DatabaseURL       string `env:"DATABASE_URL,notEmpty,required"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL,notEmpty,required"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID,notEmpty,required"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY,notEmpty,required"`
	S3Region          string `env:"AWS_REGION,notEmpty,required"`
	DatasetBucket     string `env:"DATASET_BUCKET" envDefault:"datasets"`
	DatasetRoot       string `env:"DATASET_ROOT" envDefault:"vision"`
	CopyTimeoutSecs   int    `env:"COPY_TIMEOUT_SECONDS" envDefault:"60"`
}

func main() {
	days := flag.Int("days", 7, "retry scans reviewed within this many days")

	// LoadEnvFile calls flag.Parse, so the days flag must be registered first.
	cmd.LoadEnvFile()

	var cfg SweeperConfig
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

	copier := mlops.NewImageCopier(store, cfg.DatasetBucket, cfg.DatasetRoot, time.Duration(cfg.CopyTimeoutSecs)*time.Second)
	metadata := mlops.NewMetadataEmitter(store, cfg.DatasetBucket, cfg.DatasetRoot)
	syncer := mlops.NewSyncer(db, copier, metadata)
	sweeper := mlops.NewSweeper(db, syncer)

	lookback := time.Duration(*days) * 24 * time.Hour
	log.Printf("Sweeping unsynced scans reviewed in the last %d days...", *days)

	stats, err := sweeper.Sweep(context.Background(), lookback)
	if err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}

	log.Printf("Sweep finished: attempted=%d succeeded=%d skipped=%d failed=%d",
		stats.Attempted, stats.Succeeded, stats.Skipped, stats.Failed)

	if stats.Failed > 0 {
		os.Exit(1)
	}
}
