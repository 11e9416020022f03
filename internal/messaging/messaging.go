package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	AnalysisQueue   = "analysis_queue"
	SyncQueue       = "mlops_sync_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

// AnalysisTaskPayload asks a worker to run AI inference on a scan's images.
type AnalysisTaskPayload struct {
	ScanId uuid.UUID
}

// SyncTaskPayload asks a worker to sync a reviewed scan into the training
// dataset.
type SyncTaskPayload struct {
	ScanId uuid.UUID
}

type Publisher interface {
	PublishAnalysisTask(ctx context.Context, payload AnalysisTaskPayload) error

	PublishSyncTask(ctx context.Context, payload SyncTaskPayload) error

	Close()
}

type Receiver interface {
	Tasks() <-chan Task

	Close()
}
