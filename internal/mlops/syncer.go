package mlops

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"medscan-backend/internal/database"
)

var (
	ErrScanNotFound    = errors.New("scan not found")
	ErrPatientNotFound = errors.New("patient profile not found")
	ErrNoImages        = errors.New("scan has no images")
	ErrAllCopiesFailed = errors.New("all image copies failed")
)

// SyncResult reports the outcome of syncing one scan into the training
// dataset. Skipped results are successful no-ops (scan not eligible or
// already synced), not failures.
type SyncResult struct {
	ScanId  uuid.UUID
	Success bool
	Skipped bool
	Message string

	DatasetType DatasetType
	ClassFolder string
	Split       Split
	Paths       []string
}

func skipped(scanId uuid.UUID, msg string) SyncResult {
	return SyncResult{ScanId: scanId, Success: true, Skipped: true, Message: msg}
}

// Syncer moves reviewed scans from staging into the training dataset and
// records the sync state on the scan.
type Syncer struct {
	db       *gorm.DB
	copier   *ImageCopier
	metadata *MetadataEmitter

	now func() time.Time
}

func NewSyncer(db *gorm.DB, copier *ImageCopier, metadata *MetadataEmitter) *Syncer {
	return &Syncer{db: db, copier: copier, metadata: metadata, now: time.Now}
}

// Sync copies every image of a reviewed scan into the dataset layout and
// marks the scan synced. Individual image copy failures are tolerated: the
// scan is marked synced with whatever paths succeeded, and only a scan where
// every copy failed is surfaced as an error.
func (s *Syncer) Sync(ctx context.Context, scanId uuid.UUID) (SyncResult, error) {
	var scan database.Scan
	if err := s.db.WithContext(ctx).Preload("Images").First(&scan, "id = ?", scanId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SyncResult{ScanId: scanId}, fmt.Errorf("%w: %s", ErrScanNotFound, scanId)
		}
		return SyncResult{ScanId: scanId}, fmt.Errorf("loading scan %s: %w", scanId, err)
	}

	if scan.Synced {
		return skipped(scanId, "scan already synced"), nil
	}
	var patient database.PatientProfile
	if err := s.db.WithContext(ctx).Preload("User").First(&patient, "id = ?", scan.PatientId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SyncResult{ScanId: scanId}, fmt.Errorf("%w: patient %s", ErrPatientNotFound, scan.PatientId)
		}
		return SyncResult{ScanId: scanId}, fmt.Errorf("loading patient %s: %w", scan.PatientId, err)
	}

	feedback, err := database.LatestFeedback(ctx, s.db, scanId)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return skipped(scanId, "scan has no review feedback"), nil
	} else if err != nil {
		return SyncResult{ScanId: scanId}, fmt.Errorf("loading feedback for scan %s: %w", scanId, err)
	}

	dataset, ok := DatasetTypeFor(scan.ExaminationType, scan.BodyRegion)
	if !ok {
		return skipped(scanId, fmt.Sprintf("no dataset for %s/%s exams", scan.ExaminationType, scan.BodyRegion)), nil
	}

	aiSubtype := feedback.AIDiagnosis
	if aiSubtype == "" {
		if pred, err := database.LatestPrediction(ctx, s.db, scanId); err == nil {
			aiSubtype = pred.PredictedClass
		}
	}

	classFolder, ok := Classify(feedback.Diagnosis, dataset, aiSubtype)
	if !ok {
		return skipped(scanId, fmt.Sprintf("diagnosis %q is not trainable", feedback.Diagnosis)), nil
	}

	// Checked after eligibility: an ineligible scan without images is a
	// skip, not an error.
	if len(scan.Images) == 0 {
		return SyncResult{ScanId: scanId}, fmt.Errorf("%w: %s", ErrNoImages, scanId)
	}

	split := AssignSplit(scanId)

	// Copy images that do not already have a dataset path. A failure on one
	// image does not abort the rest.
	type copied struct {
		imageId uuid.UUID
		destURI string
	}
	var (
		newCopies []copied
		allPaths  []string
		failures  int
	)
	for _, img := range scan.Images {
		if img.DatasetURI != "" {
			allPaths = append(allPaths, img.DatasetURI)
			continue
		}

		destURI := s.copier.DestinationURI(dataset, split, classFolder, patient.PatientNumber, path.Base(img.SourceURI))
		if err := s.copier.Copy(ctx, img.SourceURI, destURI); err != nil {
			slog.Error("failed to copy scan image", "scan_id", scanId, "image_id", img.Id, "error", err)
			failures++
			continue
		}
		newCopies = append(newCopies, copied{imageId: img.Id, destURI: destURI})
		allPaths = append(allPaths, destURI)
	}

	if len(allPaths) == 0 {
		return SyncResult{ScanId: scanId, DatasetType: dataset, ClassFolder: classFolder, Split: split},
			fmt.Errorf("%w: scan %s", ErrAllCopiesFailed, scanId)
	}

	if failures > 0 {
		slog.Warn("syncing scan with partial image failures", "scan_id", scanId, "copied", len(allPaths), "failed", failures)
	}

	// At least one image landed, so the scan counts as synced. Images that
	// failed keep an empty dataset path and can be re-copied by regenerating
	// the dataset; holding the flag back would make the sweeper re-fail the
	// same scan on every run.
	err = s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		for _, c := range newCopies {
			if err := txn.Model(&database.ScanImage{Id: c.imageId}).Update("dataset_uri", c.destURI).Error; err != nil {
				return fmt.Errorf("recording dataset path for image %s: %w", c.imageId, err)
			}
		}

		updates := map[string]any{
			"synced_paths": database.StringList(allPaths),
			"synced":       true,
			"sync_time":    sql.NullTime{Time: s.now().UTC(), Valid: true},
		}
		if err := txn.Model(&database.Scan{Id: scanId}).Updates(updates).Error; err != nil {
			return fmt.Errorf("updating scan sync state: %w", err)
		}
		return nil
	})
	if err != nil {
		return SyncResult{ScanId: scanId, DatasetType: dataset, ClassFolder: classFolder, Split: split}, err
	}

	// Metadata is a best-effort sidecar. A failure here must not undo or
	// block the sync itself.
	record := ScanMetadata{
		User:        patient.User,
		Patient:     &patient,
		Scan:        &scan,
		ImagePaths:  allPaths,
		ClassFolder: classFolder,
	}
	if artifact, err := s.metadata.Emit(ctx, dataset, []ScanMetadata{record}); err != nil {
		slog.Error("failed to emit metadata csv", "scan_id", scanId, "error", err)
	} else {
		slog.Info("emitted metadata csv", "scan_id", scanId, "artifact", artifact)
	}

	msg := fmt.Sprintf("synced %d of %d images", len(allPaths), len(scan.Images))
	return SyncResult{
		ScanId:      scanId,
		Success:     true,
		Message:     msg,
		DatasetType: dataset,
		ClassFolder: classFolder,
		Split:       split,
		Paths:       allPaths,
	}, nil
}
