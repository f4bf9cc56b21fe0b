package s3storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOClient wraps the MinIO client for voice artifact storage
type MinIOClient struct {
	client     *minio.Client
	bucketName string
}

// NewMinIOClient creates a new MinIO client and ensures bucket exists
func NewMinIOClient(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinIOClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	mc := &MinIOClient{
		client:     client,
		bucketName: bucketName,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := mc.ensureBucket(ctx); err != nil {
		return nil, err
	}

	return mc, nil
}

// ensureBucket creates the bucket if it doesn't exist
func (m *MinIOClient) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = m.client.MakeBucket(ctx, m.bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// Upload pushes a local audio artifact into the bucket and returns its
// remote URL. Objects are keyed by chat and record so a retried upload of
// the same record overwrites instead of accumulating.
func (m *MinIOClient) Upload(ctx context.Context, localURI, chatID, recordID string) (string, error) {
	ext := filepath.Ext(localURI)
	if ext == "" {
		ext = ".opus"
	}

	objectName := fmt.Sprintf("voice/%s/%s%s", chatID, recordID, ext)

	file, err := os.Open(localURI)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat artifact: %w", err)
	}

	_, err = m.client.PutObject(
		ctx,
		m.bucketName,
		objectName,
		file,
		stat.Size(),
		minio.PutObjectOptions{
			ContentType: contentTypeForExt(ext),
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to upload to minio: %w", err)
	}

	return fmt.Sprintf("%s/%s/%s", m.client.EndpointURL(), m.bucketName, objectName), nil
}

// Remove deletes an uploaded artifact given the URL Upload returned
func (m *MinIOClient) Remove(ctx context.Context, remoteURL string) error {
	objectName, err := m.objectFromURL(remoteURL)
	if err != nil {
		return err
	}

	if err := m.client.RemoveObject(ctx, m.bucketName, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

// GetPresignedURL generates a short-lived download link for playback
func (m *MinIOClient) GetPresignedURL(ctx context.Context, remoteURL string, expiry time.Duration) (string, error) {
	objectName, err := m.objectFromURL(remoteURL)
	if err != nil {
		return "", err
	}

	signed, err := m.client.PresignedGetObject(ctx, m.bucketName, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned url: %w", err)
	}

	return signed.String(), nil
}

// objectFromURL recovers the object name from a URL built by Upload
func (m *MinIOClient) objectFromURL(remoteURL string) (string, error) {
	parsed, err := url.Parse(remoteURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse remote url: %w", err)
	}

	prefix := "/" + m.bucketName + "/"
	if !strings.HasPrefix(parsed.Path, prefix) {
		return "", fmt.Errorf("url %s does not belong to bucket %s", remoteURL, m.bucketName)
	}

	return strings.TrimPrefix(parsed.Path, prefix), nil
}

func contentTypeForExt(ext string) string {
	switch strings.TrimPrefix(ext, ".") {
	case "mp3":
		return "audio/mpeg"
	case "ogg":
		return "audio/ogg"
	case "wav":
		return "audio/wav"
	case "m4a":
		return "audio/mp4"
	default:
		return "audio/opus"
	}
}
