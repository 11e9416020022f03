package mlops

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medscan-backend/internal/database"
)

func TestSweepRetriesUnsyncedScans(t *testing.T) {
	f := newTestFixture(t)
	sweeper := NewSweeper(f.db, f.syncer)
	patient := f.createPatient(t, "PT-0100")

	syncable := f.createReviewedScan(t, patient, scanOpts{
		examType:   "xray",
		bodyRegion: "chest",
		images:     []string{"a.png"},
		diagnosis:  "tuberculosis",
	})
	ineligible := f.createReviewedScan(t, patient, scanOpts{
		examType:   "mri",
		bodyRegion: "chest",
		images:     []string{"b.png"},
		diagnosis:  "normal",
	})
	broken := f.createReviewedScan(t, patient, scanOpts{
		examType:   "xray",
		bodyRegion: "chest",
		images:     []string{"c.png"},
		diagnosis:  "normal",
	})
	var img database.ScanImage
	require.NoError(t, f.db.First(&img, "scan_id = ?", broken.Id).Error)
	f.store.failFrom[img.SourceURI] = true

	stats, err := sweeper.Sweep(context.Background(), 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, SweepStats{Attempted: 3, Succeeded: 1, Skipped: 1, Failed: 1}, stats)

	var synced database.Scan
	require.NoError(t, f.db.First(&synced, "id = ?", syncable.Id).Error)
	assert.True(t, synced.Synced)

	var skipped database.Scan
	require.NoError(t, f.db.First(&skipped, "id = ?", ineligible.Id).Error)
	assert.False(t, skipped.Synced)

	// Once everything is synced or permanently ineligible, a second sweep
	// only re-attempts the remaining unsynced scans.
	f.store.failFrom = map[string]bool{}
	stats, err = sweeper.Sweep(context.Background(), 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Attempted)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Failed)
}

func TestSweepHonorsLookback(t *testing.T) {
	f := newTestFixture(t)
	sweeper := NewSweeper(f.db, f.syncer)
	patient := f.createPatient(t, "PT-0101")

	old := f.createReviewedScan(t, patient, scanOpts{
		examType:   "xray",
		bodyRegion: "chest",
		images:     []string{"old.png"},
		diagnosis:  "normal",
	})
	stale := time.Now().UTC().Add(-10 * 24 * time.Hour)
	require.NoError(t, f.db.Model(&database.Scan{Id: old.Id}).
		Update("review_completed_time", sql.NullTime{Time: stale, Valid: true}).Error)

	stats, err := sweeper.Sweep(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, stats.Attempted)
}

func TestSweepIgnoresNonCompletedScans(t *testing.T) {
	f := newTestFixture(t)
	sweeper := NewSweeper(f.db, f.syncer)
	patient := f.createPatient(t, "PT-0102")

	pending := f.createReviewedScan(t, patient, scanOpts{
		examType:   "xray",
		bodyRegion: "chest",
		images:     []string{"p.png"},
		diagnosis:  "normal",
	})
	require.NoError(t, f.db.Model(&database.Scan{Id: pending.Id}).
		Update("status", database.ScanAIAnalyzed).Error)

	stats, err := sweeper.Sweep(context.Background(), 48*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, stats.Attempted)

	var unchanged database.Scan
	require.NoError(t, f.db.First(&unchanged, "id = ?", pending.Id).Error)
	assert.False(t, strings.EqualFold(unchanged.Status, database.ScanCompleted))
}
