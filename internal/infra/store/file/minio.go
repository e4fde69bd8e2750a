package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	mio "github.com/you-humble/mybook/internal/libs/minio"

	"github.com/minio/minio-go/v7"
)

// ErrNotFound marks a key that has no object behind it. The processor treats
// missing inputs as skippable, everything else as transient.
var ErrNotFound = errors.New("object not found")

// Object is a stored object opened for reading.
type Object struct {
	Content     io.ReadCloser
	Size        int64
	ContentType string
}

type minioStore struct {
	db       *minio.Client
	bucket   string
	basePath string
}

// NewMinIOStore connects one store instance to one bucket; the input and
// output sides of the pipeline each get their own.
func NewMinIOStore(ctx context.Context, cfg mio.Config) (*minioStore, error) {
	mioClient, err := mio.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	basePath := strings.Trim(cfg.BasePath, "/")
	if basePath != "" {
		basePath += "/"
	}

	return &minioStore{
		db:       mioClient,
		bucket:   cfg.Bucket,
		basePath: basePath,
	}, nil
}

// Save stores the object under key, recording its declared content type so
// the processor can classify it later.
func (s *minioStore) Save(ctx context.Context, reader io.Reader, key string, size int64, contentType string) (int64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	objectName, err := s.objectName(key)
	if err != nil {
		return 0, err
	}

	putSize := size
	if putSize <= 0 {
		putSize = -1
	}

	info, err := s.db.PutObject(ctx, s.bucket, objectName, reader, putSize, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return 0, fmt.Errorf("put object: %w", err)
	}

	return info.Size, nil
}

func (s *minioStore) Open(ctx context.Context, key string) (Object, error) {
	select {
	case <-ctx.Done():
		return Object{}, ctx.Err()
	default:
	}

	objectName, err := s.objectName(key)
	if err != nil {
		return Object{}, err
	}

	obj, err := s.db.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return Object{}, fmt.Errorf("get object: %w", err)
	}

	st, err := obj.Stat()
	if err != nil {
		obj.Close()
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return Object{}, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return Object{}, fmt.Errorf("stat object: %w", err)
	}

	return Object{
		Content:     obj,
		Size:        st.Size,
		ContentType: st.ContentType,
	}, nil
}

func (s *minioStore) Delete(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	objectName, err := s.objectName(key)
	if err != nil {
		return err
	}

	err = s.db.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		var merr minio.ErrorResponse
		if errors.As(err, &merr) && merr.Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("remove object: %w", err)
	}

	return nil
}

// CleanupOlderThan removes objects last modified before now-maxAge. Inputs
// are deleted right after processing, so this only catches leftovers of jobs
// that never finished.
func (s *minioStore) CleanupOlderThan(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)

	opts := minio.ListObjectsOptions{
		Prefix:    s.basePath,
		Recursive: true,
	}

	for objectInfo := range s.db.ListObjects(ctx, s.bucket, opts) {
		if objectInfo.Err != nil {
			continue
		}

		if !objectInfo.LastModified.Before(cutoff) {
			continue
		}

		err := s.db.RemoveObject(ctx, s.bucket, objectInfo.Key, minio.RemoveObjectOptions{})
		if err != nil {
			return fmt.Errorf("remove old object %s: %w", objectInfo.Key, err)
		}
	}

	return nil
}

func (s *minioStore) objectName(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty object key")
	}

	clean := path.Clean(key)
	if strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid object key: %s", key)
	}

	clean = strings.TrimLeft(clean, "/")

	return s.basePath + clean, nil
}
