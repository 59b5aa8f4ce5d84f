package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

const gcsPublicHost = "https://storage.googleapis.com"

// GCSStore keeps assets as objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	clock  func() time.Time
	logger *zap.Logger
}

// GCSConfig configures a GCSStore. Client is optional; when nil one is created from
// the application default credentials.
type GCSConfig struct {
	Client *storage.Client
	Bucket string
	Clock  func() time.Time
	Logger *zap.Logger
}

func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("assets: gcs bucket is required")
	}
	client := cfg.Client
	if client == nil {
		created, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("assets: gcs client: %w", err)
		}
		client = created
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GCSStore{client: client, bucket: bucket, clock: clock, logger: logger}, nil
}

func (s *GCSStore) Put(ctx context.Context, upload Upload) (Asset, error) {
	if err := Validate(upload); err != nil {
		return Asset{}, err
	}
	key, err := objectKey(upload.Kind, upload.Filename, s.clock())
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	writer := s.client.Bucket(s.bucket).Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(writeCtx)
	writer.ContentType = mediaType(upload.ContentType)
	writer.CacheControl = "public, max-age=3600"

	written, copyErr := io.Copy(writer, limitedBody(upload))
	if copyErr != nil {
		// Cancelling before Close aborts the upload instead of committing a partial object.
		cancel()
		_ = writer.Close()
		if errors.Is(copyErr, ErrInvalidUpload) {
			return Asset{}, copyErr
		}
		s.logger.Error("gcs upload failed", zap.String("bucket", s.bucket), zap.String("key", key), zap.Error(copyErr))
		return Asset{}, fmt.Errorf("%w: %v", ErrStorage, copyErr)
	}
	if err := writer.Close(); err != nil {
		s.logger.Error("gcs upload failed", zap.String("bucket", s.bucket), zap.String("key", key), zap.Error(err))
		return Asset{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return Asset{
		Key:         key,
		URL:         PublicObjectURL(s.bucket, key),
		ContentType: writer.ContentType,
		Size:        written,
	}, nil
}

// Delete removes the object for key. Missing objects are not an error.
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

// PublicObjectURL returns the public URL of an object in bucket.
func PublicObjectURL(bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", gcsPublicHost, bucket, key)
}
