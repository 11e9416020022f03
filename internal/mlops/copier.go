package mlops

import (
	"context"
	"fmt"
	"path"
	"time"

	"medscan-backend/internal/storage"
)

// ImageCopier copies scan images from the staging bucket into the training
// dataset layout using server-side copies.
type ImageCopier struct {
	store         storage.ObjectStore
	datasetBucket string
	datasetRoot   string
	copyTimeout   time.Duration

	now func() time.Time
}

func NewImageCopier(store storage.ObjectStore, datasetBucket, datasetRoot string, copyTimeout time.Duration) *ImageCopier {
	return &ImageCopier{
		store:         store,
		datasetBucket: datasetBucket,
		datasetRoot:   datasetRoot,
		copyTimeout:   copyTimeout,
		now:           time.Now,
	}
}

// DestinationURI builds the dataset-side URI for one image. The filename is
// prefixed with the sync date and the patient number so files from different
// patients never collide inside a class folder.
func (c *ImageCopier) DestinationURI(dataset DatasetType, split Split, classFolder, patientNumber, filename string) string {
	name := fmt.Sprintf("%s_%s_%s", c.now().Format("20060102"), patientNumber, filename)
	key := path.Join(c.datasetRoot, string(dataset), string(split), classFolder, name)
	return storage.JoinURI(c.datasetBucket, key)
}

// Copy performs the server-side copy of a single image and returns the
// destination URI. Re-copying to an existing destination overwrites it, which
// keeps retries idempotent.
func (c *ImageCopier) Copy(ctx context.Context, sourceURI, destURI string) error {
	ctx, cancel := context.WithTimeout(ctx, c.copyTimeout)
	defer cancel()

	if err := c.store.Copy(ctx, sourceURI, destURI); err != nil {
		return fmt.Errorf("copying %s to %s: %w", sourceURI, destURI, err)
	}
	return nil
}
