package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"medscan-backend/internal/database"
	"medscan-backend/internal/messaging"
	"medscan-backend/internal/mlops"
	"medscan-backend/pkg/api"
)

// GetWorklist lists scans awaiting review, most urgent first.
func (s *BackendService) GetWorklist(r *http.Request) (any, error) {
	ctx := r.Context()

	var scans []database.Scan
	err := s.db.WithContext(ctx).Preload("Images").
		Where("status IN ?", []string{database.ScanPending, database.ScanInProgress, database.ScanAIAnalyzed}).
		Order(urgencyOrder).
		Order("created_at ASC").
		Find(&scans).Error
	if err != nil {
		slog.Error("error listing worklist", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to list worklist")
	}

	results := make([]api.Scan, 0, len(scans))
	for i := range scans {
		results = append(results, s.toApiScan(r, &scans[i]))
	}
	return results, nil
}

// urgencyOrder sorts emergent before urgent before routine.
const urgencyOrder = "CASE urgency_level WHEN 'emergent' THEN 0 WHEN 'urgent' THEN 1 ELSE 2 END"

func (s *BackendService) GetScan(r *http.Request) (any, error) {
	scanId, err := URLParamUUID(r, "scan_id")
	if err != nil {
		return nil, err
	}

	scan, err := s.loadScan(r, scanId)
	if err != nil {
		return nil, err
	}
	return s.toApiScan(r, scan), nil
}

func (s *BackendService) loadScan(r *http.Request, scanId uuid.UUID) (*database.Scan, error) {
	var scan database.Scan
	err := s.db.WithContext(r.Context()).Preload("Images").First(&scan, "id = ?", scanId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, CodedErrorf(http.StatusNotFound, "scan not found")
	} else if err != nil {
		slog.Error("error loading scan", "scan_id", scanId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to load scan")
	}
	return &scan, nil
}

// StartAnalysis queues a scan for AI analysis and moves it to in_progress.
func (s *BackendService) StartAnalysis(r *http.Request) (any, error) {
	scanId, err := URLParamUUID(r, "scan_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	scan, err := s.loadScan(r, scanId)
	if err != nil {
		return nil, err
	}
	if scan.Status == database.ScanCompleted || scan.Status == database.ScanCancelled {
		return nil, CodedErrorf(http.StatusConflict, "scan is already %s", scan.Status)
	}
	if len(scan.Images) == 0 {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "scan has no images to analyze")
	}

	if err := database.UpdateScanStatus(ctx, s.db, scanId, database.ScanInProgress); err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to update scan status")
	}

	if err := s.publisher.PublishAnalysisTask(ctx, messaging.AnalysisTaskPayload{ScanId: scanId}); err != nil {
		slog.Error("error publishing analysis task", "scan_id", scanId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue analysis task")
	}

	slog.Info("queued ai analysis", "scan_id", scanId)
	return nil, nil
}

func (s *BackendService) GetPredictions(r *http.Request) (any, error) {
	scanId, err := URLParamUUID(r, "scan_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var predictions []database.AIPrediction
	err = s.db.WithContext(ctx).
		Where("scan_id = ?", scanId).
		Order("inference_time DESC").
		Find(&predictions).Error
	if err != nil {
		slog.Error("error listing predictions", "scan_id", scanId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to list predictions")
	}

	results := make([]api.Prediction, 0, len(predictions))
	for _, p := range predictions {
		var probabilities map[string]float64
		if len(p.ClassProbabilities) > 0 {
			if err := json.Unmarshal(p.ClassProbabilities, &probabilities); err != nil {
				slog.Warn("failed to decode class probabilities", "prediction_id", p.Id, "error", err)
			}
		}
		results = append(results, api.Prediction{
			Id:                 p.Id,
			ModelName:          p.ModelName,
			PredictedClass:     p.PredictedClass,
			Confidence:         p.Confidence,
			ClassProbabilities: probabilities,
			InferenceTime:      p.InferenceTime,
		})
	}
	return results, nil
}

// SubmitFeedback records the radiologist's diagnosis, completes the review,
// and queues the scan for dataset sync. A queue failure does not fail the
// review since the retry sweeper picks up unsynced completed scans.
func (s *BackendService) SubmitFeedback(r *http.Request) (any, error) {
	user, err := requestUser(r)
	if err != nil {
		return nil, err
	}
	scanId, err := URLParamUUID(r, "scan_id")
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest[api.FeedbackRequest](r)
	if err != nil {
		return nil, err
	}

	diagnosis := strings.ToLower(strings.TrimSpace(req.Diagnosis))
	if diagnosis == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "diagnosis is required")
	}
	switch req.FeedbackType {
	case database.FeedbackAccept, database.FeedbackPartialOverride, database.FeedbackFullOverride, database.FeedbackReject:
	default:
		return nil, CodedErrorf(http.StatusBadRequest, "invalid feedback type %q", req.FeedbackType)
	}

	ctx := r.Context()

	scan, err := s.loadScan(r, scanId)
	if err != nil {
		return nil, err
	}
	if scan.Status == database.ScanCancelled {
		return nil, CodedErrorf(http.StatusConflict, "scan is cancelled")
	}

	var radiologist database.RadiologistProfile
	if err := s.db.WithContext(ctx).First(&radiologist, "user_id = ?", user.Id).Error; err != nil {
		slog.Error("error loading radiologist profile", "user_id", user.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to load radiologist profile")
	}

	aiDiagnosis := ""
	if prediction, err := database.LatestPrediction(ctx, s.db, scanId); err == nil {
		aiDiagnosis = prediction.PredictedClass
	}

	feedback := database.RadiologistFeedback{
		Id:                 uuid.New(),
		ScanId:             scanId,
		RadiologistId:      radiologist.Id,
		FeedbackType:       req.FeedbackType,
		Diagnosis:          diagnosis,
		AIDiagnosis:        aiDiagnosis,
		ClinicalNotes:      req.ClinicalNotes,
		DisagreementReason: req.DisagreementReason,
		Confidence:         req.Confidence,
	}

	err = s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Create(&feedback).Error; err != nil {
			return err
		}
		return txn.Model(&database.Scan{Id: scanId}).Updates(map[string]any{
			"status":                database.ScanCompleted,
			"review_completed_time": sql.NullTime{Time: time.Now().UTC(), Valid: true},
		}).Error
	})
	if err != nil {
		slog.Error("error saving feedback", "scan_id", scanId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to save feedback")
	}

	if dataset, ok := mlops.DatasetTypeFor(scan.ExaminationType, scan.BodyRegion); ok && mlops.IsTrainable(diagnosis, dataset) {
		if err := s.publisher.PublishSyncTask(ctx, messaging.SyncTaskPayload{ScanId: scanId}); err != nil {
			slog.Error("failed to queue sync task, sweeper will retry", "scan_id", scanId, "error", err)
		}
	}

	slog.Info("review completed", "scan_id", scanId, "diagnosis", diagnosis, "feedback_type", req.FeedbackType)
	return api.FeedbackResponse{FeedbackId: feedback.Id, ScanStatus: database.ScanCompleted}, nil
}

// GetSyncStatus reports whether a scan's images have landed in the training
// dataset.
func (s *BackendService) GetSyncStatus(r *http.Request) (any, error) {
	scanId, err := URLParamUUID(r, "scan_id")
	if err != nil {
		return nil, err
	}

	scan, err := s.loadScan(r, scanId)
	if err != nil {
		return nil, err
	}

	status := api.SyncStatus{
		ScanId:      scan.Id,
		Synced:      scan.Synced,
		SyncedPaths: database.DecodeStringList(scan.SyncedPaths),
	}
	if scan.SyncTime.Valid {
		syncTime := scan.SyncTime.Time
		status.SyncTime = &syncTime
	}
	return status, nil
}
