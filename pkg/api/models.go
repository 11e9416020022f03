package api

import (
	"time"

	"github.com/google/uuid"
)

type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Role      string

	// Patient profile fields, used when Role is "patient".
	AgeYears int
	WeightKg float64
	HeightCm float64
	Gender   string

	// Radiologist profile fields, used when Role is "radiologist".
	LicenseNumber string
	Specialty     string
}

type RegisterResponse struct {
	UserId uuid.UUID
}

type LoginRequest struct {
	Email    string
	Password string
}

type LoginResponse struct {
	Token     string
	UserId    uuid.UUID
	Role      string
	FirstName string
	LastName  string
}

type ScanImage struct {
	Id         uuid.UUID
	DisplayURL string
	ImageOrder int
	Format     string
}

type Scan struct {
	Id         uuid.UUID
	ScanNumber string

	ExaminationType string
	BodyRegion      string
	UrgencyLevel    string

	PresentingSymptoms []string
	CurrentMedications []string
	PreviousSurgeries  []string
	ClinicalNotes      string

	Status string
	Synced bool

	CreatedAt           time.Time
	ReviewCompletedTime *time.Time `json:"ReviewCompletedTime,omitempty"`

	Images []ScanImage
}

type CreateScanResponse struct {
	ScanId     uuid.UUID
	ScanNumber string
}

type Prediction struct {
	Id                 uuid.UUID
	ModelName          string
	PredictedClass     string
	Confidence         float64
	ClassProbabilities map[string]float64
	InferenceTime      time.Time
}

type FeedbackRequest struct {
	FeedbackType string
	Diagnosis    string

	ClinicalNotes      string
	DisagreementReason string
	Confidence         float64
}

type FeedbackResponse struct {
	FeedbackId uuid.UUID
	ScanStatus string
}

type Report struct {
	Title           string
	Indication      string
	Technique       string
	Findings        string
	Impression      string
	Recommendations string

	Diagnosis   string
	Radiologist string
	ReviewedAt  *time.Time `json:"ReviewedAt,omitempty"`
}

type SyncStatus struct {
	ScanId      uuid.UUID
	Synced      bool
	SyncTime    *time.Time `json:"SyncTime,omitempty"`
	SyncedPaths []string
}
