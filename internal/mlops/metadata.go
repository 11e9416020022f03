package mlops

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"

	"medscan-backend/internal/database"
	"medscan-backend/internal/storage"
)

var metadataHeader = []string{
	"Patient_Full_Name",
	"Patient_ID",
	"Presenting_Symptoms",
	"Current_Medications",
	"Previous_Relevant_Surgeries",
	"Age_Years",
	"Weight_KG",
	"Height_CM",
	"Gender",
	"Examination_Type",
	"Body_Region",
	"Urgency_Level",
	"Image_Path",
	"Diagnosis_Class",
}

// MetadataEmitter writes per-sync CSV sidecars next to the dataset so model
// training can join images back to the clinical context they came from.
type MetadataEmitter struct {
	store         storage.ObjectStore
	datasetBucket string
	datasetRoot   string

	now func() time.Time
}

func NewMetadataEmitter(store storage.ObjectStore, datasetBucket, datasetRoot string) *MetadataEmitter {
	return &MetadataEmitter{
		store:         store,
		datasetBucket: datasetBucket,
		datasetRoot:   datasetRoot,
		now:           time.Now,
	}
}

// ScanMetadata bundles the clinical context for one synced scan. ImagePaths
// holds the dataset-side URIs produced by the copier; entries without paths
// contribute no rows.
type ScanMetadata struct {
	User        *database.User
	Patient     *database.PatientProfile
	Scan        *database.Scan
	ImagePaths  []string
	ClassFolder string
}

// Emit writes one CSV row per copied image across the batch and returns the
// URI of the written artifact. A batch that yields zero rows produces no
// artifact and no error.
func (m *MetadataEmitter) Emit(ctx context.Context, dataset DatasetType, batch []ScanMetadata) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(metadataHeader); err != nil {
		return "", fmt.Errorf("writing csv header: %w", err)
	}

	rows := 0
	for _, entry := range batch {
		fullName := strings.TrimSpace(entry.User.FirstName + " " + entry.User.LastName)
		symptoms := joinList(entry.Scan.PresentingSymptoms)
		medications := joinList(entry.Scan.CurrentMedications)
		surgeries := joinList(entry.Scan.PreviousSurgeries)

		for _, uri := range entry.ImagePaths {
			_, key, err := storage.ParseURI(uri)
			if err != nil {
				return "", fmt.Errorf("parsing image path %s: %w", uri, err)
			}

			row := []string{
				fullName,
				entry.Patient.PatientNumber,
				symptoms,
				medications,
				surgeries,
				strconv.Itoa(entry.Patient.AgeYears),
				strconv.FormatFloat(entry.Patient.WeightKg, 'f', -1, 64),
				strconv.FormatFloat(entry.Patient.HeightCm, 'f', -1, 64),
				entry.Patient.Gender,
				entry.Scan.ExaminationType,
				entry.Scan.BodyRegion,
				entry.Scan.UrgencyLevel,
				key,
				entry.ClassFolder,
			}
			if err := w.Write(row); err != nil {
				return "", fmt.Errorf("writing csv row: %w", err)
			}
			rows++
		}
	}

	if rows == 0 {
		return "", nil
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flushing csv: %w", err)
	}

	now := m.now()
	key := path.Join(
		m.datasetRoot,
		"metadata",
		string(dataset),
		now.Format("2006"),
		now.Format("01"),
		now.Format("02"),
		fmt.Sprintf("%s_patients_%s.csv", dataset, now.Format("20060102_150405")),
	)
	uri := storage.JoinURI(m.datasetBucket, key)

	if err := m.store.PutObject(ctx, uri, &buf); err != nil {
		return "", fmt.Errorf("uploading metadata csv: %w", err)
	}
	return uri, nil
}

func joinList(raw datatypes.JSON) string {
	return strings.Join(database.DecodeStringList(raw), ", ")
}
