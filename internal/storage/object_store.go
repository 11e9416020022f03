package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrObjectNotFound is returned when a source object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore abstracts the bucket that holds both the staging area
// (platform uploads) and the training dataset layout. Objects are addressed
// by s3://bucket/key URIs so that full addresses can be persisted in scan
// records and handed between services.
type ObjectStore interface {
	Exists(ctx context.Context, uri string) (bool, error)

	// Copy performs a storage-side copy; object bytes never transit the
	// caller. The source object is left untouched.
	Copy(ctx context.Context, srcURI, dstURI string) error

	PutObject(ctx context.Context, uri string, data io.Reader) error

	GetObject(ctx context.Context, uri string) ([]byte, error)

	SignedURL(ctx context.Context, uri string, ttl time.Duration) (string, error)
}

const uriScheme = "s3://"

func JoinURI(bucket, key string) string {
	return uriScheme + bucket + "/" + strings.TrimPrefix(key, "/")
}

func ParseURI(uri string) (bucket, key string, err error) {
	trimmed, ok := strings.CutPrefix(uri, uriScheme)
	if !ok {
		return "", "", fmt.Errorf("invalid object uri %q: missing %s prefix", uri, uriScheme)
	}

	bucket, key, ok = strings.Cut(trimmed, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid object uri %q: expected %sbucket/key", uri, uriScheme)
	}

	return bucket, key, nil
}
