package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"medscan-backend/internal/database"
	"medscan-backend/internal/messaging"
	"medscan-backend/internal/storage"
)

type BackendService struct {
	db        *gorm.DB
	store     storage.ObjectStore
	publisher messaging.Publisher
	rag       *ragClient

	jwtSecret []byte
	tokenTTL  time.Duration

	stagingBucket string
	signedURLTTL  time.Duration
}

type Config struct {
	JWTSecret     string
	TokenTTL      time.Duration
	StagingBucket string
	SignedURLTTL  time.Duration
	RagURL        string
}

func NewBackendService(db *gorm.DB, store storage.ObjectStore, publisher messaging.Publisher, cfg Config) *BackendService {
	tokenTTL := cfg.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	signedURLTTL := cfg.SignedURLTTL
	if signedURLTTL <= 0 {
		signedURLTTL = time.Hour
	}

	return &BackendService{
		db:            db,
		store:         store,
		publisher:     publisher,
		rag:           newRagClient(cfg.RagURL),
		jwtSecret:     []byte(cfg.JWTSecret),
		tokenTTL:      tokenTTL,
		stagingBucket: cfg.StagingBucket,
		signedURLTTL:  signedURLTTL,
	}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", RestHandler(s.Register))
		r.Post("/login", RestHandler(s.Login))
	})

	r.Route("/patient", func(r chi.Router) {
		r.Use(s.requireRole(database.RolePatient))
		r.Post("/scans", RestHandler(s.CreateScan))
		r.Get("/scans", RestHandler(s.ListPatientScans))
		r.Get("/scans/{scan_id}", RestHandler(s.GetPatientScan))
		r.Get("/scans/{scan_id}/report", RestHandler(s.GetReport))
	})

	r.Route("/radiologist", func(r chi.Router) {
		r.Use(s.requireRole(database.RoleRadiologist))
		r.Get("/worklist", RestHandler(s.GetWorklist))
		r.Get("/scans/{scan_id}", RestHandler(s.GetScan))
		r.Post("/scans/{scan_id}/analyze", RestHandler(s.StartAnalysis))
		r.Get("/scans/{scan_id}/predictions", RestHandler(s.GetPredictions))
		r.Post("/scans/{scan_id}/feedback", RestHandler(s.SubmitFeedback))
		r.Get("/scans/{scan_id}/report", RestHandler(s.GetReport))
		r.Get("/scans/{scan_id}/sync-status", RestHandler(s.GetSyncStatus))
	})

	r.Route("/chat", func(r chi.Router) {
		r.Use(s.requireRole(database.RolePatient, database.RoleRadiologist, database.RoleAdmin))
		r.Post("/", RestHandler(s.Chat))
		r.Get("/health", RestHandler(s.ChatHealth))
	})
}
