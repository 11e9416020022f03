package mlops

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"medscan-backend/internal/database"
)

// SweepStats summarizes one pass of the retry sweeper.
type SweepStats struct {
	Attempted int
	Succeeded int
	Skipped   int
	Failed    int
}

// Sweeper re-drives dataset syncs for reviewed scans that never made it into
// the training dataset, typically after transient storage or queue outages.
type Sweeper struct {
	db     *gorm.DB
	syncer *Syncer

	now func() time.Time
}

func NewSweeper(db *gorm.DB, syncer *Syncer) *Sweeper {
	return &Sweeper{db: db, syncer: syncer, now: time.Now}
}

// Sweep retries every completed, unsynced scan reviewed within the lookback
// window. Failures are logged and counted but do not stop the sweep.
func (s *Sweeper) Sweep(ctx context.Context, lookback time.Duration) (SweepStats, error) {
	cutoff := s.now().UTC().Add(-lookback)

	var scans []database.Scan
	err := s.db.WithContext(ctx).
		Where("status = ? AND synced = ? AND review_completed_time >= ?", database.ScanCompleted, false, cutoff).
		Order("review_completed_time ASC").
		Find(&scans).Error
	if err != nil {
		return SweepStats{}, fmt.Errorf("listing unsynced scans: %w", err)
	}

	stats := SweepStats{Attempted: len(scans)}
	for _, scan := range scans {
		result, err := s.syncer.Sync(ctx, scan.Id)
		switch {
		case err != nil:
			stats.Failed++
			slog.Error("sweep sync failed", "scan_id", scan.Id, "error", err)
		case result.Skipped:
			stats.Skipped++
			slog.Info("sweep skipped scan", "scan_id", scan.Id, "reason", result.Message)
		default:
			stats.Succeeded++
			slog.Info("sweep synced scan", "scan_id", scan.Id,
				"dataset", result.DatasetType, "class", result.ClassFolder, "images", len(result.Paths))
		}
	}

	return stats, nil
}
