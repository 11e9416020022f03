package api

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"medscan-backend/internal/database"
	"medscan-backend/internal/reports"
	"medscan-backend/internal/storage"
	"medscan-backend/pkg/api"
)

const maxUploadBytes = 100 << 20

var allowedImageFormats = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".dcm": true,
}

// CreateScan accepts a multipart form with the scan's clinical fields and one
// or more image files, stores the images in the staging bucket, and creates
// the scan in pending state.
func (s *BackendService) CreateScan(r *http.Request) (any, error) {
	user, err := requestUser(r)
	if err != nil {
		return nil, err
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "unable to parse multipart form")
	}

	examType := strings.ToLower(strings.TrimSpace(r.FormValue("examination_type")))
	bodyRegion := strings.ToLower(strings.TrimSpace(r.FormValue("body_region")))
	if examType == "" || bodyRegion == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "examination_type and body_region are required")
	}

	urgency := strings.ToLower(strings.TrimSpace(r.FormValue("urgency_level")))
	if urgency == "" {
		urgency = database.UrgencyRoutine
	}
	switch urgency {
	case database.UrgencyRoutine, database.UrgencyUrgent, database.UrgencyEmergent:
	default:
		return nil, CodedErrorf(http.StatusBadRequest, "invalid urgency_level %q", urgency)
	}

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "at least one image file is required")
	}
	for _, file := range files {
		ext := strings.ToLower(filepath.Ext(file.Filename))
		if !allowedImageFormats[ext] {
			return nil, CodedErrorf(http.StatusBadRequest, "unsupported image format %q", ext)
		}
	}

	ctx := r.Context()

	var patient database.PatientProfile
	if err := s.db.WithContext(ctx).First(&patient, "user_id = ?", user.Id).Error; err != nil {
		slog.Error("error loading patient profile", "user_id", user.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to load patient profile")
	}

	scan := database.Scan{
		Id:                 uuid.New(),
		PatientId:          patient.Id,
		ScanNumber:         newScanNumber(),
		ExaminationType:    examType,
		BodyRegion:         bodyRegion,
		UrgencyLevel:       urgency,
		PresentingSymptoms: database.StringList(splitFormList(r.FormValue("presenting_symptoms"))),
		CurrentMedications: database.StringList(splitFormList(r.FormValue("current_medications"))),
		PreviousSurgeries:  database.StringList(splitFormList(r.FormValue("previous_surgeries"))),
		ClinicalNotes:      r.FormValue("clinical_notes"),
		Status:             database.ScanPending,
	}

	// Upload everything to staging before touching the database so a failed
	// upload never leaves a scan pointing at missing objects.
	images := make([]database.ScanImage, 0, len(files))
	for i, file := range files {
		uri, size, err := s.uploadScanImage(r, file, patient.PatientNumber, scan.Id)
		if err != nil {
			return nil, err
		}
		images = append(images, database.ScanImage{
			Id:            uuid.New(),
			ScanId:        scan.Id,
			SourceURI:     uri,
			ImageOrder:    i + 1,
			FileSizeBytes: size,
			Format:        strings.TrimPrefix(strings.ToLower(filepath.Ext(file.Filename)), "."),
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Create(&scan).Error; err != nil {
			return err
		}
		return txn.Create(&images).Error
	})
	if err != nil {
		slog.Error("error creating scan", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create scan")
	}

	slog.Info("created scan", "scan_id", scan.Id, "patient", patient.PatientNumber, "images", len(images))
	return api.CreateScanResponse{ScanId: scan.Id, ScanNumber: scan.ScanNumber}, nil
}

func (s *BackendService) uploadScanImage(r *http.Request, file *multipart.FileHeader, patientNumber string, scanId uuid.UUID) (string, int64, error) {
	opened, err := file.Open()
	if err != nil {
		return "", 0, CodedErrorf(http.StatusBadRequest, "unable to read uploaded file %q", file.Filename)
	}
	defer opened.Close()

	key := fmt.Sprintf("raw_scans/patients/%s/%s/%s", patientNumber, scanId, path.Base(file.Filename))
	uri := storage.JoinURI(s.stagingBucket, key)

	if err := s.store.PutObject(r.Context(), uri, opened); err != nil {
		slog.Error("error uploading scan image", "uri", uri, "error", err)
		return "", 0, CodedErrorf(http.StatusInternalServerError, "failed to store uploaded image")
	}
	return uri, file.Size, nil
}

func newScanNumber() string {
	return "SCAN-" + strings.ToUpper(uuid.NewString()[:8])
}

func splitFormList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func (s *BackendService) ListPatientScans(r *http.Request) (any, error) {
	user, err := requestUser(r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var patient database.PatientProfile
	if err := s.db.WithContext(ctx).First(&patient, "user_id = ?", user.Id).Error; err != nil {
		slog.Error("error loading patient profile", "user_id", user.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to load patient profile")
	}

	var scans []database.Scan
	if err := s.db.WithContext(ctx).Preload("Images").
		Where("patient_id = ?", patient.Id).
		Order("created_at DESC").
		Find(&scans).Error; err != nil {
		slog.Error("error listing scans", "patient_id", patient.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to list scans")
	}

	results := make([]api.Scan, 0, len(scans))
	for i := range scans {
		results = append(results, s.toApiScan(r, &scans[i]))
	}
	return results, nil
}

func (s *BackendService) GetPatientScan(r *http.Request) (any, error) {
	user, err := requestUser(r)
	if err != nil {
		return nil, err
	}
	scanId, err := URLParamUUID(r, "scan_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var patient database.PatientProfile
	if err := s.db.WithContext(ctx).First(&patient, "user_id = ?", user.Id).Error; err != nil {
		slog.Error("error loading patient profile", "user_id", user.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to load patient profile")
	}

	var scan database.Scan
	err = s.db.WithContext(ctx).Preload("Images").
		First(&scan, "id = ? AND patient_id = ?", scanId, patient.Id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, CodedErrorf(http.StatusNotFound, "scan not found")
	} else if err != nil {
		slog.Error("error loading scan", "scan_id", scanId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to load scan")
	}

	return s.toApiScan(r, &scan), nil
}

// GetReport assembles the patient-facing diagnostic report for a reviewed
// scan. Available to the patient once the radiologist has completed review.
func (s *BackendService) GetReport(r *http.Request) (any, error) {
	user, err := requestUser(r)
	if err != nil {
		return nil, err
	}
	scanId, err := URLParamUUID(r, "scan_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var scan database.Scan
	if err := s.db.WithContext(ctx).First(&scan, "id = ?", scanId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "scan not found")
		}
		slog.Error("error loading scan", "scan_id", scanId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to load scan")
	}

	if user.Role == database.RolePatient {
		var patient database.PatientProfile
		if err := s.db.WithContext(ctx).First(&patient, "user_id = ?", user.Id).Error; err != nil || patient.Id != scan.PatientId {
			return nil, CodedErrorf(http.StatusNotFound, "scan not found")
		}
	}

	if scan.Status != database.ScanCompleted {
		return nil, CodedErrorf(http.StatusConflict, "report is not available until review is complete")
	}

	feedback, err := database.LatestFeedback(ctx, s.db, scanId)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, CodedErrorf(http.StatusConflict, "report is not available until review is complete")
	} else if err != nil {
		slog.Error("error loading feedback", "scan_id", scanId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to load review")
	}

	report := reports.Generate(scan.ExaminationType, feedback.Diagnosis)

	radiologistName := ""
	var radiologist database.RadiologistProfile
	if err := s.db.WithContext(ctx).Preload("User").First(&radiologist, "id = ?", feedback.RadiologistId).Error; err == nil && radiologist.User != nil {
		radiologistName = strings.TrimSpace(radiologist.User.FirstName + " " + radiologist.User.LastName)
	}

	result := api.Report{
		Title:           report.Title,
		Indication:      report.Indication,
		Technique:       report.Technique,
		Findings:        report.Findings,
		Impression:      report.Impression,
		Recommendations: report.Recommendations,
		Diagnosis:       feedback.Diagnosis,
		Radiologist:     radiologistName,
	}
	if scan.ReviewCompletedTime.Valid {
		reviewedAt := scan.ReviewCompletedTime.Time
		result.ReviewedAt = &reviewedAt
	}
	return result, nil
}

func (s *BackendService) toApiScan(r *http.Request, scan *database.Scan) api.Scan {
	images := make([]api.ScanImage, 0, len(scan.Images))
	for _, img := range scan.Images {
		displayURL, err := s.store.SignedURL(r.Context(), img.SourceURI, s.signedURLTTL)
		if err != nil {
			slog.Warn("failed to sign image url", "image_id", img.Id, "error", err)
		}
		images = append(images, api.ScanImage{
			Id:         img.Id,
			DisplayURL: displayURL,
			ImageOrder: img.ImageOrder,
			Format:     img.Format,
		})
	}

	result := api.Scan{
		Id:                 scan.Id,
		ScanNumber:         scan.ScanNumber,
		ExaminationType:    reports.ExamDisplayName(scan.ExaminationType),
		BodyRegion:         reports.CapitalizeForDisplay(scan.BodyRegion),
		UrgencyLevel:       reports.CapitalizeForDisplay(scan.UrgencyLevel),
		PresentingSymptoms: database.DecodeStringList(scan.PresentingSymptoms),
		CurrentMedications: database.DecodeStringList(scan.CurrentMedications),
		PreviousSurgeries:  database.DecodeStringList(scan.PreviousSurgeries),
		ClinicalNotes:      scan.ClinicalNotes,
		Status:             scan.Status,
		Synced:             scan.Synced,
		CreatedAt:          scan.CreatedAt,
		Images:             images,
	}
	if scan.ReviewCompletedTime.Valid {
		reviewedAt := scan.ReviewCompletedTime.Time
		result.ReviewCompletedTime = &reviewedAt
	}
	return result
}
