package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"medscan-backend/internal/database"
	"medscan-backend/internal/inference"
	"medscan-backend/internal/messaging"
	"medscan-backend/internal/mlops"
	"medscan-backend/internal/storage"
)

// Predictor is the slice of the model-service client the worker needs.
type Predictor interface {
	Predict(ctx context.Context, model, filename string, image []byte) (inference.Prediction, error)
}

// TaskProcessor consumes analysis and sync tasks from the queue and drives
// them to completion. Failed tasks are rejected rather than requeued; the
// retry sweeper re-drives syncs that never landed.
type TaskProcessor struct {
	db        *gorm.DB
	store     storage.ObjectStore
	predictor Predictor
	syncer    *mlops.Syncer
	receiver  messaging.Receiver
}

func NewTaskProcessor(db *gorm.DB, store storage.ObjectStore, predictor Predictor, syncer *mlops.Syncer, receiver messaging.Receiver) *TaskProcessor {
	return &TaskProcessor{db: db, store: store, predictor: predictor, syncer: syncer, receiver: receiver}
}

// Run processes tasks until the context is cancelled or the receiver's task
// channel closes.
func (p *TaskProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.receiver.Tasks():
			if !ok {
				return
			}
			p.processTask(ctx, task)
		}
	}
}

func (p *TaskProcessor) processTask(ctx context.Context, task messaging.Task) {
	var err error

	switch task.Type() {
	case messaging.AnalysisQueue:
		var payload messaging.AnalysisTaskPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("discarding malformed analysis task", "error", err, "body", string(task.Payload()))
			task.Reject()
			return
		}
		err = p.handleAnalysisTask(ctx, payload)

	case messaging.SyncQueue:
		var payload messaging.SyncTaskPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("discarding malformed sync task", "error", err, "body", string(task.Payload()))
			task.Reject()
			return
		}
		err = p.handleSyncTask(ctx, payload)

	default:
		slog.Error("discarding task from unknown queue", "queue", task.Type())
		task.Reject()
		return
	}

	if err != nil {
		slog.Error("task failed", "queue", task.Type(), "error", err)
		if rejectErr := task.Reject(); rejectErr != nil {
			slog.Error("failed to reject task", "queue", task.Type(), "error", rejectErr)
		}
		return
	}
	if ackErr := task.Ack(); ackErr != nil {
		slog.Error("failed to ack task", "queue", task.Type(), "error", ackErr)
	}
}

func (p *TaskProcessor) handleAnalysisTask(ctx context.Context, payload messaging.AnalysisTaskPayload) error {
	slog.Info("running ai analysis", "scan_id", payload.ScanId)

	var scan database.Scan
	if err := p.db.WithContext(ctx).Preload("Images").First(&scan, "id = ?", payload.ScanId).Error; err != nil {
		return fmt.Errorf("loading scan %s: %w", payload.ScanId, err)
	}
	if len(scan.Images) == 0 {
		return fmt.Errorf("scan %s has no images to analyze", payload.ScanId)
	}

	dataset, ok := mlops.DatasetTypeFor(scan.ExaminationType, scan.BodyRegion)
	if !ok {
		// Nothing to do for modalities without a deployed model.
		slog.Info("no model for scan, skipping analysis", "scan_id", payload.ScanId,
			"examination_type", scan.ExaminationType, "body_region", scan.BodyRegion)
		return nil
	}

	if err := p.markAnalysisStarted(ctx, scan.Id); err != nil {
		slog.Warn("failed to record analysis start time", "scan_id", scan.Id, "error", err)
	}

	// The model classifies the primary image; additional views are stored
	// for the radiologist but not analyzed separately.
	primary := scan.Images[0]
	for _, img := range scan.Images[1:] {
		if img.ImageOrder < primary.ImageOrder {
			primary = img
		}
	}

	image, err := p.store.GetObject(ctx, primary.SourceURI)
	if err != nil {
		return fmt.Errorf("fetching image %s: %w", primary.SourceURI, err)
	}

	prediction, err := p.predictor.Predict(ctx, string(dataset), path.Base(primary.SourceURI), image)
	if err != nil {
		return fmt.Errorf("running inference for scan %s: %w", scan.Id, err)
	}

	probabilities, err := json.Marshal(prediction.ClassProbabilities)
	if err != nil {
		return fmt.Errorf("encoding class probabilities: %w", err)
	}

	return p.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		record := database.AIPrediction{
			Id:                 uuid.New(),
			ScanId:             scan.Id,
			ModelName:          prediction.ModelName,
			PredictedClass:     prediction.PredictedClass,
			Confidence:         prediction.Confidence,
			ClassProbabilities: datatypes.JSON(probabilities),
			InferenceTime:      time.Now().UTC(),
		}
		if err := txn.Create(&record).Error; err != nil {
			return fmt.Errorf("saving prediction for scan %s: %w", scan.Id, err)
		}

		updates := map[string]any{
			"status":                     database.ScanAIAnalyzed,
			"ai_analysis_completed_time": sql.NullTime{Time: time.Now().UTC(), Valid: true},
		}
		if err := txn.Model(&database.Scan{Id: scan.Id}).Updates(updates).Error; err != nil {
			return fmt.Errorf("updating scan %s after analysis: %w", scan.Id, err)
		}
		return nil
	})
}

func (p *TaskProcessor) markAnalysisStarted(ctx context.Context, scanId uuid.UUID) error {
	return p.db.WithContext(ctx).Model(&database.Scan{Id: scanId}).
		Update("ai_analysis_started_time", sql.NullTime{Time: time.Now().UTC(), Valid: true}).Error
}

func (p *TaskProcessor) handleSyncTask(ctx context.Context, payload messaging.SyncTaskPayload) error {
	result, err := p.syncer.Sync(ctx, payload.ScanId)
	if err != nil {
		return err
	}

	if result.Skipped {
		slog.Info("sync skipped", "scan_id", payload.ScanId, "reason", result.Message)
	} else {
		slog.Info("sync complete", "scan_id", payload.ScanId,
			"dataset", result.DatasetType, "class", result.ClassFolder, "split", result.Split, "images", len(result.Paths))
	}
	return nil
}
