// Package archive stores raw fetched documents in MinIO object storage so a
// harvest can be replayed or audited later.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"regexp"
	"strings"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/config"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/connector"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
)

const (
	defaultRegion        = "us-east-1"
	codeBucketOwnedByYou = "BucketAlreadyOwnedByYou"
)

// objectStore is the subset of *minio.Client the archiver uses.
type objectStore interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64,
		opts miniogo.PutObjectOptions) (miniogo.UploadInfo, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts miniogo.MakeBucketOptions) error
}

// Archiver writes raw bodies to a bucket, keyed by source and content hash.
// Re-archiving an identical body overwrites the same object.
type Archiver struct {
	store  objectStore
	bucket string
	log    logger.Logger
	now    func() time.Time
}

var _ connector.Archiver = (*Archiver)(nil)

// New connects to MinIO. It returns (nil, nil) when archiving is disabled.
func New(cfg config.MinIOConfig, log logger.Logger) (*Archiver, error) {
	if !cfg.Enabled {
		log.Info("MinIO archiving disabled")
		return nil, nil
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: defaultRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	log.Info("MinIO archiver initialized",
		logger.String("endpoint", cfg.Endpoint),
		logger.String("bucket", cfg.Bucket),
	)
	return newArchiver(client, cfg.Bucket, log), nil
}

func newArchiver(store objectStore, bucket string, log logger.Logger) *Archiver {
	return &Archiver{store: store, bucket: bucket, log: log, now: time.Now}
}

// EnsureBucket creates the bucket if it does not exist.
func (a *Archiver) EnsureBucket(ctx context.Context) error {
	exists, err := a.store.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}

	err = a.store.MakeBucket(ctx, a.bucket, miniogo.MakeBucketOptions{Region: defaultRegion})
	if err != nil && miniogo.ToErrorResponse(err).Code != codeBucketOwnedByYou {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	a.log.Info("Created archive bucket", logger.String("bucket", a.bucket))
	return nil
}

// Archive implements connector.Archiver.
func (a *Archiver) Archive(ctx context.Context, sourceID, contentType string, body []byte) error {
	if len(body) == 0 {
		return errors.New("empty body")
	}

	key := ObjectKey(sourceID, contentType, body)
	_, err := a.store.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)),
		miniogo.PutObjectOptions{
			ContentType: contentType,
			UserMetadata: map[string]string{
				"source-id":  sourceID,
				"fetched-at": a.now().UTC().Format(time.RFC3339),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	a.log.Debug("Archived raw document",
		logger.SourceID(sourceID),
		logger.String("object_key", key),
		logger.Int("size", len(body)),
	)
	return nil
}

// HealthCheck verifies the bucket is reachable.
func (a *Archiver) HealthCheck(ctx context.Context) error {
	exists, err := a.store.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", a.bucket)
	}
	return nil
}

// ObjectKey returns "<source>/<sha256 of body>.<ext>".
func ObjectKey(sourceID, contentType string, body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("%s/%s.%s", sanitizeSourceID(sourceID), hex.EncodeToString(sum[:]), extension(contentType))
}

func extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "bin"
	}
	switch {
	case strings.HasSuffix(mediaType, "json"):
		return "json"
	case strings.HasSuffix(mediaType, "xml"):
		return "xml"
	case mediaType == "text/html":
		return "html"
	case strings.HasPrefix(mediaType, "text/"):
		return "txt"
	default:
		return "bin"
	}
}

var invalidKeyChars = regexp.MustCompile(`[^a-z0-9_-]+`)

func sanitizeSourceID(sourceID string) string {
	s := strings.Trim(invalidKeyChars.ReplaceAllString(strings.ToLower(sourceID), "_"), "_")
	if s == "" {
		return "unknown"
	}
	return s
}
