package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/facturaIA/fiscal-extractor/internal/models"
)

var ErrNoStorage = errors.New("object storage not available")

// ObjectStore is the subset of *minio.Client the archive uses
type ObjectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

var _ ObjectStore = (*minio.Client)(nil)

// Archive keeps the raw OCR text of every extraction
type Archive struct {
	client ObjectStore
	bucket string
	now    func() time.Time
}

// NewArchive wraps an object store
func NewArchive(client ObjectStore, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket, now: time.Now}
}

// Init connects to MinIO using cfg, falling back to MINIO_* environment
// variables, and checks that the bucket exists
func Init(cfg models.StorageConfig) (*Archive, error) {
	endpoint := firstNonEmpty(cfg.Endpoint, os.Getenv("MINIO_ENDPOINT"))
	if endpoint == "" {
		return nil, ErrNoStorage
	}
	accessKey := firstNonEmpty(cfg.AccessKey, os.Getenv("MINIO_ACCESS_KEY"))
	secretKey := firstNonEmpty(cfg.SecretKey, os.Getenv("MINIO_SECRET_KEY"))
	bucket := firstNonEmpty(cfg.Bucket, os.Getenv("MINIO_BUCKET"), "ocr-text")
	useSSL := cfg.UseSSL || os.Getenv("MINIO_USE_SSL") == "true"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	// Verify bucket exists
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", bucket)
	}

	return NewArchive(client, bucket), nil
}

// ObjectName builds the archive path: {user}/YYYY/MM/{name}.txt
func ObjectName(userID, name string, at time.Time) string {
	return fmt.Sprintf("%s/%d/%02d/%s.txt",
		userID,
		at.Year(),
		at.Month(),
		name,
	)
}

// ArchiveText uploads the OCR text and returns its bucket-qualified path
func (a *Archive) ArchiveText(ctx context.Context, userID, name, text string) (string, error) {
	if a == nil || a.client == nil {
		return "", ErrNoStorage
	}

	objectName := ObjectName(userID, name, a.now())
	_, err := a.client.PutObject(ctx, a.bucket, objectName, strings.NewReader(text), int64(len(text)), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive text: %w", err)
	}

	// Return the full path for storage in DB
	return fmt.Sprintf("%s/%s", a.bucket, objectName), nil
}

// PresignedURL generates a temporary download link for an archived text
func (a *Archive) PresignedURL(ctx context.Context, objectPath string) (string, error) {
	if a == nil || a.client == nil {
		return "", ErrNoStorage
	}

	u, err := a.client.PresignedGetObject(ctx, a.bucket, a.objectName(objectPath), 24*time.Hour, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return u.String(), nil
}

// Delete removes an archived text
func (a *Archive) Delete(ctx context.Context, objectPath string) error {
	if a == nil || a.client == nil {
		return ErrNoStorage
	}
	return a.client.RemoveObject(ctx, a.bucket, a.objectName(objectPath), minio.RemoveObjectOptions{})
}

// objectName strips the bucket prefix if present
func (a *Archive) objectName(objectPath string) string {
	return strings.TrimPrefix(objectPath, a.bucket+"/")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
