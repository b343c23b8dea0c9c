package artifacts

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MirrorConfig addresses an S3-compatible bucket.
type MirrorConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Prefix    string
}

func (c MirrorConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("mirror endpoint is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return fmt.Errorf("mirror bucket is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("mirror access key and secret key are required")
	}
	return nil
}

// Uploader is the subset of *minio.Client the mirror needs.
type Uploader interface {
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Mirror copies local artifacts to object storage after they are written.
type Mirror struct {
	client Uploader
	bucket string
	prefix string
	logger *log.Logger
}

// NewMinioClient builds a client for cfg.
func NewMinioClient(cfg MirrorConfig) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	client, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("create minio client %q: %w", cfg.Endpoint, err)
	}
	return client, nil
}

// NewMirror wraps client. A nil logger discards output.
func NewMirror(client Uploader, cfg MirrorConfig, logger *log.Logger) *Mirror {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Mirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
	}
}

// ObjectName maps a store-relative artifact name to its bucket key.
func (m *Mirror) ObjectName(name string) string {
	name = strings.TrimLeft(strings.ReplaceAll(name, "\\", "/"), "/")
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

// Upload copies the local file at localPath to the key derived from name.
func (m *Mirror) Upload(ctx context.Context, name, localPath, contentType string) (minio.UploadInfo, error) {
	if m == nil || m.client == nil {
		return minio.UploadInfo{}, fmt.Errorf("mirror not configured")
	}
	object := m.ObjectName(name)
	info, err := m.client.FPutObject(ctx, m.bucket, object, localPath, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return info, fmt.Errorf("mirror %q to %s/%s: %w", localPath, m.bucket, object, err)
	}
	m.logger.Printf("mirrored %s to %s/%s (%d bytes)", localPath, m.bucket, object, info.Size)
	return info, nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
