package database

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StringList marshals a slice into the JSON column format used for
// symptom/medication/surgery lists and synced destination paths.
func StringList(vals []string) datatypes.JSON {
	if vals == nil {
		vals = []string{}
	}
	data, err := json.Marshal(vals)
	if err != nil {
		slog.Error("error marshalling string list", "error", err)
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(data)
}

func DecodeStringList(data datatypes.JSON) []string {
	if len(data) == 0 {
		return nil
	}
	var vals []string
	if err := json.Unmarshal(data, &vals); err != nil {
		slog.Error("error unmarshalling string list", "error", err)
		return nil
	}
	return vals
}

// LatestFeedback returns the most recent radiologist feedback for a scan;
// latest wins when a scan was reviewed more than once.
func LatestFeedback(ctx context.Context, db *gorm.DB, scanId uuid.UUID) (*RadiologistFeedback, error) {
	var feedback RadiologistFeedback
	err := db.WithContext(ctx).
		Where("scan_id = ?", scanId).
		Order("created_at DESC").
		First(&feedback).Error
	if err != nil {
		return nil, err
	}
	return &feedback, nil
}

func LatestPrediction(ctx context.Context, db *gorm.DB, scanId uuid.UUID) (*AIPrediction, error) {
	var prediction AIPrediction
	err := db.WithContext(ctx).
		Where("scan_id = ?", scanId).
		Order("inference_time DESC").
		First(&prediction).Error
	if err != nil {
		return nil, err
	}
	return &prediction, nil
}

func UpdateScanStatus(ctx context.Context, db *gorm.DB, scanId uuid.UUID, status string) error {
	if err := db.WithContext(ctx).Model(&Scan{Id: scanId}).Update("status", status).Error; err != nil {
		slog.Error("error updating scan status", "scan_id", scanId, "status", status, "error", err)
		return err
	}
	return nil
}
