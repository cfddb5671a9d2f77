package blobsink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// Sink stores completed transfers in a gocloud blob bucket. Keys are
// opaque remote IDs so the bucket layout never leaks source structure.
type Sink struct {
	bucket    *blob.Bucket
	prefix    string
	signedTTL time.Duration
	logger    *slog.Logger
}

// Open opens a bucket by URL (s3://, file://, mem://).
func Open(ctx context.Context, bucketURL, prefix string, signedTTL time.Duration, logger *slog.Logger) (*Sink, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	return NewWithBucket(bucket, prefix, signedTTL, logger), nil
}

// NewWithBucket wraps an already-open bucket.
func NewWithBucket(bucket *blob.Bucket, prefix string, signedTTL time.Duration, logger *slog.Logger) *Sink {
	if signedTTL <= 0 {
		signedTTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{bucket: bucket, prefix: prefix, signedTTL: signedTTL, logger: logger}
}

// Close releases the underlying bucket.
func (s *Sink) Close() error {
	return s.bucket.Close()
}

func (s *Sink) key(remoteID string) string {
	return path.Join(s.prefix, remoteID)
}

// NewRemoteID returns a fresh opaque object identifier.
func NewRemoteID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// Upload copies a fully staged file into the bucket under a fresh remote
// ID. The write is aborted on any copy error, so a failed upload leaves
// no partial object behind.
func (s *Sink) Upload(ctx context.Context, stagingPath, displayName string) (string, error) {
	in, err := os.Open(stagingPath)
	if err != nil {
		return "", fmt.Errorf("open staged file: %w", err)
	}
	defer in.Close()

	remoteID := NewRemoteID()
	contentType := mime.TypeByExtension(filepath.Ext(displayName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w, err := s.bucket.NewWriter(wctx, s.key(remoteID), &blob.WriterOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"display_name": displayName,
		},
	})
	if err != nil {
		return "", fmt.Errorf("bucket writer: %w", err)
	}

	if _, err := io.Copy(w, in); err != nil {
		cancel() // abort the write, nothing is committed
		_ = w.Close()
		return "", fmt.Errorf("copy to bucket: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("commit to bucket: %w", err)
	}
	s.logger.Debug("object stored", "remote_id", remoteID, "name", displayName)
	return remoteID, nil
}

// Exists reports whether the remote object is still present.
func (s *Sink) Exists(ctx context.Context, remoteID string) (bool, error) {
	return s.bucket.Exists(ctx, s.key(remoteID))
}

// SignedURL returns a time-limited direct URL for the object. Drivers
// without signing support return an error; callers fall back to Stream.
func (s *Sink) SignedURL(ctx context.Context, remoteID string) (string, error) {
	return s.bucket.SignedURL(ctx, s.key(remoteID), &blob.SignedURLOptions{Expiry: s.signedTTL})
}

// Stream opens the stored object for reading.
func (s *Sink) Stream(ctx context.Context, remoteID string) (io.ReadCloser, error) {
	return s.bucket.NewReader(ctx, s.key(remoteID), nil)
}

// Attributes reports the stored object's size and content type.
func (s *Sink) Attributes(ctx context.Context, remoteID string) (size int64, contentType string, err error) {
	attrs, err := s.bucket.Attributes(ctx, s.key(remoteID))
	if err != nil {
		return 0, "", err
	}
	return attrs.Size, attrs.ContentType, nil
}
