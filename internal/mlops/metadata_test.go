package mlops

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medscan-backend/internal/database"
)

func TestEmitMetadata(t *testing.T) {
	f := newTestFixture(t)
	patient := f.createPatient(t, "PT-0042")
	scan := f.createReviewedScan(t, patient, scanOpts{
		examType:   "xray",
		bodyRegion: "chest",
		images:     []string{"front.png", "side.png"},
		diagnosis:  "tuberculosis",
	})
	other := f.createReviewedScan(t, patient, scanOpts{
		examType:   "xray",
		bodyRegion: "chest",
		images:     []string{"followup.png"},
		diagnosis:  "tuberculosis",
	})

	emitter := NewMetadataEmitter(f.store, "datasets", "vision")
	emitter.now = f.syncer.now

	require.NoError(t, f.db.First(scan, "id = ?", scan.Id).Error)
	require.NoError(t, f.db.First(other, "id = ?", other.Id).Error)

	paths := []string{
		"s3://datasets/vision/tb/train/Tuberculosis/20260315_PT-0042_front.png",
		"s3://datasets/vision/tb/train/Tuberculosis/20260315_PT-0042_side.png",
	}
	otherPaths := []string{
		"s3://datasets/vision/tb/train/Tuberculosis/20260315_PT-0042_followup.png",
	}
	var user database.User
	require.NoError(t, f.db.First(&user, "id = ?", patient.UserId).Error)

	batch := []ScanMetadata{
		{User: &user, Patient: patient, Scan: scan, ImagePaths: paths, ClassFolder: "Tuberculosis"},
		{User: &user, Patient: patient, Scan: other, ImagePaths: otherPaths, ClassFolder: "Tuberculosis"},
	}

	uri, err := emitter.Emit(context.Background(), DatasetTB, batch)
	require.NoError(t, err)
	assert.Equal(t, "s3://datasets/vision/metadata/tb/2026/03/15/tb_patients_20260315_103000.csv", uri)

	data, err := f.store.GetObject(context.Background(), uri)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)

	allPaths := append(append([]string{}, paths...), otherPaths...)

	assert.Equal(t, metadataHeader, records[0])
	for i, row := range records[1:] {
		assert.Equal(t, "Jordan Kim", row[0])
		assert.Equal(t, "PT-0042", row[1])
		assert.Equal(t, "persistent cough, night sweats", row[2])
		assert.Equal(t, "ibuprofen", row[3])
		assert.Equal(t, "", row[4])
		assert.Equal(t, "47", row[5])
		assert.Equal(t, "70.5", row[6])
		assert.Equal(t, "172", row[7])
		assert.Equal(t, "female", row[8])
		assert.Equal(t, "xray", row[9])
		assert.Equal(t, "chest", row[10])
		assert.Equal(t, "routine", row[11])

		// Image paths are stored bucket-relative.
		assert.Equal(t, allPaths[i][len("s3://datasets/"):], row[12])
		assert.Equal(t, "Tuberculosis", row[13])
	}
}

func TestEmitMetadataNoRows(t *testing.T) {
	f := newTestFixture(t)
	patient := f.createPatient(t, "PT-0043")
	scan := f.createReviewedScan(t, patient, scanOpts{
		examType:   "xray",
		bodyRegion: "chest",
		diagnosis:  "normal",
	})

	emitter := NewMetadataEmitter(f.store, "datasets", "vision")
	var user database.User
	require.NoError(t, f.db.First(&user, "id = ?", patient.UserId).Error)

	batch := []ScanMetadata{
		{User: &user, Patient: patient, Scan: scan, ClassFolder: "Normal"},
	}
	uri, err := emitter.Emit(context.Background(), DatasetTB, batch)
	require.NoError(t, err)
	assert.Empty(t, uri)

	uri, err = emitter.Emit(context.Background(), DatasetTB, nil)
	require.NoError(t, err)
	assert.Empty(t, uri)
}
