package mlops

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medscan-backend/internal/database"
)

func TestSyncTBScan(t *testing.T) {
	f := newTestFixture(t)
	patient := f.createPatient(t, "PT-0001")
	scan := f.createReviewedScan(t, patient, scanOpts{
		examType:   "xray",
		bodyRegion: "chest",
		images:     []string{"front.png", "side.png"},
		diagnosis:  "tuberculosis",
	})

	result, err := f.syncer.Sync(context.Background(), scan.Id)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.Skipped)
	assert.Equal(t, DatasetTB, result.DatasetType)
	assert.Equal(t, "Tuberculosis", result.ClassFolder)
	require.Len(t, result.Paths, 2)

	split := AssignSplit(scan.Id)
	for _, p := range result.Paths {
		assert.True(t, strings.HasPrefix(p, fmt.Sprintf("s3://datasets/vision/tb/%s/Tuberculosis/20260315_PT-0001_", split)), p)
		exists, err := f.store.Exists(context.Background(), p)
		require.NoError(t, err)
		assert.True(t, exists, p)
	}

	var updated database.Scan
	require.NoError(t, f.db.Preload("Images").First(&updated, "id = ?", scan.Id).Error)
	assert.True(t, updated.Synced)
	assert.True(t, updated.SyncTime.Valid)
	assert.ElementsMatch(t, result.Paths, database.DecodeStringList(updated.SyncedPaths))
	for _, img := range updated.Images {
		assert.NotEmpty(t, img.DatasetURI)

		// The staging object must survive the copy.
		exists, err := f.store.Exists(context.Background(), img.SourceURI)
		require.NoError(t, err)
		assert.True(t, exists)
	}

	// A metadata sidecar should have landed under the dataset's metadata tree.
	var metadataURIs []string
	for uri := range f.store.objects {
		if strings.HasPrefix(uri, "s3://datasets/vision/metadata/tb/2026/03/15/") {
			metadataURIs = append(metadataURIs, uri)
		}
	}
	require.Len(t, metadataURIs, 1)
	assert.Contains(t, metadataURIs[0], "tb_patients_20260315_103000.csv")
}

func TestSyncAlreadySynced(t *testing.T) {
	f := newTestFixture(t)
	patient := f.createPatient(t, "PT-0002")
	scan := f.createReviewedScan(t, patient, scanOpts{
		examType:   "ct",
		bodyRegion: "chest",
		images:     []string{"slice1.png"},
		diagnosis:  "adenocarcinoma",
	})

	_, err := f.syncer.Sync(context.Background(), scan.Id)
	require.NoError(t, err)
	copiesAfterFirst := f.store.copyCalls

	result, err := f.syncer.Sync(context.Background(), scan.Id)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, copiesAfterFirst, f.store.copyCalls, "second sync must not copy anything")
}

func TestSyncSkipsIneligibleScans(t *testing.T) {
	f := newTestFixture(t)
	patient := f.createPatient(t, "PT-0003")

	tests := []struct {
		name string
		opts scanOpts
	}{
		{"unsupported modality", scanOpts{examType: "mri", bodyRegion: "chest", images: []string{"a.png"}, diagnosis: "normal"}},
		{"unsupported region", scanOpts{examType: "ct", bodyRegion: "abdomen", images: []string{"a.png"}, diagnosis: "normal"}},
		{"excluded diagnosis", scanOpts{examType: "xray", bodyRegion: "chest", images: []string{"a.png"}, diagnosis: "inconclusive"}},
		{"unknown diagnosis", scanOpts{examType: "xray", bodyRegion: "chest", images: []string{"a.png"}, diagnosis: "pneumonia"}},
		{"no review feedback", scanOpts{examType: "xray", bodyRegion: "chest", images: []string{"a.png"}, noFeedback: true}},
		{"unsupported modality without images", scanOpts{examType: "mri", bodyRegion: "chest", diagnosis: "normal"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scan := f.createReviewedScan(t, patient, tt.opts)

			result, err := f.syncer.Sync(context.Background(), scan.Id)
			require.NoError(t, err)
			assert.True(t, result.Skipped)
			assert.True(t, result.Success)

			var updated database.Scan
			require.NoError(t, f.db.First(&updated, "id = ?", scan.Id).Error)
			assert.False(t, updated.Synced)
		})
	}
	assert.Zero(t, f.store.copyCalls)
}

func TestSyncGenericLungCancerUsesSubtype(t *testing.T) {
	f := newTestFixture(t)
	patient := f.createPatient(t, "PT-0004")
	scan := f.createReviewedScan(t, patient, scanOpts{
		examType:   "ct",
		bodyRegion: "chest",
		images:     []string{"scan.png"},
		diagnosis:  "lung_cancer",
		aiSubtype:  "squamous_cell_carcinoma",
	})

	result, err := f.syncer.Sync(context.Background(), scan.Id)
	require.NoError(t, err)
	assert.Equal(t, DatasetLungCancer, result.DatasetType)
	assert.Equal(t, "squamous_cell_carcinoma", result.ClassFolder)
}

func TestSyncPartialFailureStillSyncs(t *testing.T) {
	f := newTestFixture(t)
	patient := f.createPatient(t, "PT-0005")
	scan := f.createReviewedScan(t, patient, scanOpts{
		examType:   "xray",
		bodyRegion: "chest",
		images:     []string{"front.png", "side.png", "bad.png"},
		diagnosis:  "normal",
	})

	var images []database.ScanImage
	require.NoError(t, f.db.Where("scan_id = ?", scan.Id).Find(&images).Error)
	var badSource string
	for _, img := range images {
		if strings.HasSuffix(img.SourceURI, "bad.png") {
			badSource = img.SourceURI
		}
	}
	f.store.failFrom[badSource] = true

	result, err := f.syncer.Sync(context.Background(), scan.Id)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.Paths, 2)

	// One bad image must not hold the whole scan back: the scan is synced
	// with the paths that succeeded and the failed image keeps no path.
	var updated database.Scan
	require.NoError(t, f.db.Preload("Images").First(&updated, "id = ?", scan.Id).Error)
	assert.True(t, updated.Synced)
	assert.True(t, updated.SyncTime.Valid)
	assert.ElementsMatch(t, result.Paths, database.DecodeStringList(updated.SyncedPaths))
	for _, img := range updated.Images {
		if img.SourceURI == badSource {
			assert.Empty(t, img.DatasetURI)
		} else {
			assert.NotEmpty(t, img.DatasetURI)
		}
	}

	// A re-run is an already-synced skip, not another copy attempt.
	copiesBefore := f.store.copyCalls
	result, err = f.syncer.Sync(context.Background(), scan.Id)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, copiesBefore, f.store.copyCalls)
}

func TestSyncAllCopiesFailed(t *testing.T) {
	f := newTestFixture(t)
	patient := f.createPatient(t, "PT-0006")
	scan := f.createReviewedScan(t, patient, scanOpts{
		examType:   "xray",
		bodyRegion: "chest",
		images:     []string{"a.png", "b.png"},
		diagnosis:  "tuberculosis",
	})

	var images []database.ScanImage
	require.NoError(t, f.db.Where("scan_id = ?", scan.Id).Find(&images).Error)
	for _, img := range images {
		f.store.failFrom[img.SourceURI] = true
	}

	_, err := f.syncer.Sync(context.Background(), scan.Id)
	assert.ErrorIs(t, err, ErrAllCopiesFailed)
}

func TestSyncErrors(t *testing.T) {
	f := newTestFixture(t)

	_, err := f.syncer.Sync(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrScanNotFound)

	patient := f.createPatient(t, "PT-0007")
	scan := f.createReviewedScan(t, patient, scanOpts{
		examType:   "xray",
		bodyRegion: "chest",
		diagnosis:  "normal",
	})
	_, err = f.syncer.Sync(context.Background(), scan.Id)
	assert.ErrorIs(t, err, ErrNoImages)
}
