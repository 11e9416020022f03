package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// LocalObjectStore keeps objects on the filesystem, one directory per
// bucket. It serves the single-process local mode and tests; URIs follow
// the same s3://bucket/key convention as the real store.
type LocalObjectStore struct {
	baseDir string
}

var _ ObjectStore = (*LocalObjectStore)(nil)

func NewLocalObjectStore(dir string) (*LocalObjectStore, error) {
	baseDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", dir, err)
	}

	return &LocalObjectStore{baseDir: baseDir}, nil
}

func (s *LocalObjectStore) fullpath(uri string) (string, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, bucket, filepath.FromSlash(key)), nil
}

func (s *LocalObjectStore) Exists(ctx context.Context, uri string) (bool, error) {
	path, err := s.fullpath(uri)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", uri, err)
	}
	return true, nil
}

func (s *LocalObjectStore) Copy(ctx context.Context, srcURI, dstURI string) error {
	srcPath, err := s.fullpath(srcURI)
	if err != nil {
		return err
	}
	dstPath, err := s.fullpath(dstURI)
	if err != nil {
		return err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, srcURI)
		}
		return fmt.Errorf("failed to open %s: %w", srcURI, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dstPath), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dstURI, err)
	}

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dstURI, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", srcURI, dstURI, err)
	}

	return nil
}

func (s *LocalObjectStore) PutObject(ctx context.Context, uri string, data io.Reader) error {
	path, err := s.fullpath(uri)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", uri, err)
	}

	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", uri, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", uri, err)
	}

	return nil
}

func (s *LocalObjectStore) GetObject(ctx context.Context, uri string) ([]byte, error) {
	path, err := s.fullpath(uri)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, uri)
		}
		return nil, fmt.Errorf("failed to read %s: %w", uri, err)
	}

	return data, nil
}

func (s *LocalObjectStore) SignedURL(ctx context.Context, uri string, ttl time.Duration) (string, error) {
	path, err := s.fullpath(uri)
	if err != nil {
		return "", err
	}
	// No signing locally; a file URL is enough for the local mode UI.
	return "file://" + filepath.ToSlash(path), nil
}
