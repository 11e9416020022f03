package mlops

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"medscan-backend/internal/database"
	"medscan-backend/internal/storage"
)

func createDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.GetMigrator(db).Migrate())
	return db
}

// fakeStore is an in-memory object store that counts copies and can be told
// to fail copies from specific sources.
type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	copyCalls int
	failFrom  map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, failFrom: map[string]bool{}}
}

var _ storage.ObjectStore = (*fakeStore)(nil)

func (f *fakeStore) Exists(ctx context.Context, uri string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[uri]
	return ok, nil
}

func (f *fakeStore) Copy(ctx context.Context, src, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copyCalls++
	if f.failFrom[src] {
		return fmt.Errorf("injected copy failure for %s", src)
	}
	data, ok := f.objects[src]
	if !ok {
		return storage.ErrObjectNotFound
	}
	f.objects[dst] = append([]byte(nil), data...)
	return nil
}

func (f *fakeStore) PutObject(ctx context.Context, uri string, data io.Reader) error {
	content, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[uri] = content
	return nil
}

func (f *fakeStore) GetObject(ctx context.Context, uri string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[uri]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}

func (f *fakeStore) SignedURL(ctx context.Context, uri string, ttl time.Duration) (string, error) {
	return uri, nil
}

type testFixture struct {
	db     *gorm.DB
	store  *fakeStore
	syncer *Syncer
}

func newTestFixture(t *testing.T) *testFixture {
	db := createDB(t)
	store := newFakeStore()

	fixedNow := func() time.Time {
		return time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	}

	copier := NewImageCopier(store, "datasets", "vision", time.Minute)
	copier.now = fixedNow
	metadata := NewMetadataEmitter(store, "datasets", "vision")
	metadata.now = fixedNow
	syncer := NewSyncer(db, copier, metadata)
	syncer.now = fixedNow

	return &testFixture{db: db, store: store, syncer: syncer}
}

func (f *testFixture) createPatient(t *testing.T, patientNumber string) *database.PatientProfile {
	user := database.User{
		Id:           uuid.New(),
		Email:        patientNumber + "@example.com",
		PasswordHash: "x",
		Role:         database.RolePatient,
		FirstName:    "Jordan",
		LastName:     "Kim",
	}
	require.NoError(t, f.db.Create(&user).Error)

	patient := database.PatientProfile{
		Id:            uuid.New(),
		UserId:        user.Id,
		PatientNumber: patientNumber,
		AgeYears:      47,
		WeightKg:      70.5,
		HeightCm:      172,
		Gender:        "female",
	}
	require.NoError(t, f.db.Create(&patient).Error)
	return &patient
}

type scanOpts struct {
	examType   string
	bodyRegion string
	images     []string
	diagnosis  string
	aiSubtype  string
	noFeedback bool
}

func (f *testFixture) createReviewedScan(t *testing.T, patient *database.PatientProfile, opts scanOpts) *database.Scan {
	scan := database.Scan{
		Id:                  uuid.New(),
		PatientId:           patient.Id,
		ScanNumber:          fmt.Sprintf("SCAN-%s", uuid.NewString()[:8]),
		ExaminationType:     opts.examType,
		BodyRegion:          opts.bodyRegion,
		UrgencyLevel:        database.UrgencyRoutine,
		PresentingSymptoms:  database.StringList([]string{"persistent cough", "night sweats"}),
		CurrentMedications:  database.StringList([]string{"ibuprofen"}),
		PreviousSurgeries:   database.StringList(nil),
		Status:              database.ScanCompleted,
		ReviewCompletedTime: sql.NullTime{Time: time.Now().UTC(), Valid: true},
	}
	require.NoError(t, f.db.Create(&scan).Error)

	for i, filename := range opts.images {
		srcURI := storage.JoinURI("platform", fmt.Sprintf("raw_scans/patients/%s/%s/%s", patient.PatientNumber, scan.Id, filename))
		require.NoError(t, f.store.PutObject(context.Background(), srcURI, strings.NewReader(filename)))

		img := database.ScanImage{
			Id:         uuid.New(),
			ScanId:     scan.Id,
			SourceURI:  srcURI,
			ImageOrder: i + 1,
			Format:     "png",
		}
		require.NoError(t, f.db.Create(&img).Error)
	}

	if !opts.noFeedback {
		feedback := database.RadiologistFeedback{
			Id:            uuid.New(),
			ScanId:        scan.Id,
			RadiologistId: uuid.New(),
			FeedbackType:  database.FeedbackAccept,
			Diagnosis:     opts.diagnosis,
			AIDiagnosis:   opts.aiSubtype,
			Confidence:    0.9,
		}
		require.NoError(t, f.db.Create(&feedback).Error)
	}

	return &scan
}
