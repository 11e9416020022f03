package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RolePatient     string = "patient"
	RoleRadiologist string = "radiologist"
	RoleAdmin       string = "admin"
)

const (
	ScanPending    string = "pending"
	ScanInProgress string = "in_progress"
	ScanAIAnalyzed string = "ai_analyzed"
	ScanCompleted  string = "completed"
	ScanCancelled  string = "cancelled"
)

const (
	UrgencyRoutine  string = "routine"
	UrgencyUrgent   string = "urgent"
	UrgencyEmergent string = "emergent"
)

const (
	FeedbackAccept          string = "accept"
	FeedbackPartialOverride string = "partial_override"
	FeedbackFullOverride    string = "full_override"
	FeedbackReject          string = "reject"
)

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Email        string `gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Role         string `gorm:"size:20;not null;index"`
	Status       string `gorm:"size:20;default:active"`

	FirstName string `gorm:"size:100;not null"`
	LastName  string `gorm:"size:100;not null"`
	Phone     string `gorm:"size:20"`

	CreatedAt time.Time
	LastLogin sql.NullTime
}

type PatientProfile struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	UserId uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	User   *User     `gorm:"foreignKey:UserId;constraint:OnDelete:CASCADE"`

	// Human-facing identifier, e.g. PT-0042. Used in dataset filenames.
	PatientNumber string `gorm:"size:50;uniqueIndex;not null"`

	AgeYears int
	WeightKg float64
	HeightCm float64
	Gender   string `gorm:"size:50"`

	CreatedAt time.Time
}

type RadiologistProfile struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	UserId uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	User   *User     `gorm:"foreignKey:UserId;constraint:OnDelete:CASCADE"`

	LicenseNumber string `gorm:"size:50"`
	Specialty     string `gorm:"size:100"`

	CreatedAt time.Time
}

type Scan struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	PatientId uuid.UUID       `gorm:"type:uuid;not null;index"`
	Patient   *PatientProfile `gorm:"foreignKey:PatientId;constraint:OnDelete:CASCADE"`

	ScanNumber string `gorm:"size:50;uniqueIndex;not null"`

	ExaminationType string `gorm:"size:20;not null"`
	BodyRegion      string `gorm:"size:20;not null"`
	UrgencyLevel    string `gorm:"size:20;default:routine"`

	PresentingSymptoms datatypes.JSON
	CurrentMedications datatypes.JSON
	PreviousSurgeries  datatypes.JSON
	ClinicalNotes      string

	Status string `gorm:"size:30;not null;index"`

	// Training-dataset sync state. Synced means every eligible image has a
	// recorded destination path; SyncedPaths mirrors those paths.
	Synced      bool `gorm:"default:false;index"`
	SyncTime    sql.NullTime
	SyncedPaths datatypes.JSON

	CreatedAt               time.Time
	AIAnalysisStartedTime   sql.NullTime
	AIAnalysisCompletedTime sql.NullTime
	ReviewCompletedTime     sql.NullTime

	Images []ScanImage `gorm:"foreignKey:ScanId;constraint:OnDelete:CASCADE"`
}

type ScanImage struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ScanId uuid.UUID `gorm:"type:uuid;not null;index"`

	// SourceURI is the authoritative staging object. DatasetURI is empty
	// until the image is synced and is never overwritten afterwards.
	SourceURI  string `gorm:"not null"`
	DisplayURL string
	DatasetURI string

	ImageOrder    int `gorm:"default:1"`
	FileSizeBytes int64
	Format        string `gorm:"size:10"`

	CreatedAt time.Time
}

type RadiologistFeedback struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ScanId        uuid.UUID `gorm:"type:uuid;not null;index"`
	RadiologistId uuid.UUID `gorm:"type:uuid;not null"`

	FeedbackType string `gorm:"size:30;not null"`

	// Diagnosis is the radiologist's ground truth; AIDiagnosis keeps the
	// model's predicted class (possibly a cancer subtype) from the
	// inference step.
	Diagnosis   string `gorm:"size:50;not null"`
	AIDiagnosis string `gorm:"size:50"`

	ClinicalNotes      string
	DisagreementReason string
	Confidence         float64

	CreatedAt time.Time
}

type AIPrediction struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ScanId uuid.UUID `gorm:"type:uuid;not null;index"`

	ModelName          string `gorm:"size:100"`
	PredictedClass     string `gorm:"size:50"`
	Confidence         float64
	ClassProbabilities datatypes.JSON

	InferenceTime time.Time
}
