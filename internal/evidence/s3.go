package evidence

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/roach88/parity/internal/ir"
)

// S3Config configures the object store upload.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// objectClient is the subset of *minio.Client the sink uses.
type objectClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3 uploads each run's pack under <Prefix>/<run-id>/.
type S3 struct {
	client objectClient
	bucket string
	prefix string
	region string
	logger *slog.Logger

	initOnce sync.Once
	initErr  error
}

// NewS3 creates an S3 sink for any S3-compatible endpoint.
func NewS3(cfg S3Config, logger *slog.Logger) (*S3, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return newS3(client, cfg.Bucket, cfg.Prefix, region, logger), nil
}

func newS3(client objectClient, bucket, prefix, region string, logger *slog.Logger) *S3 {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &S3{
		client: client,
		bucket: strings.TrimSpace(bucket),
		prefix: strings.Trim(prefix, "/"),
		region: region,
		logger: logger,
	}
}

func (s *S3) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// Key returns the object key of one pack file.
func (s *S3) Key(runID, name string) string {
	return path.Join(s.prefix, runID, name)
}

// Record implements Sink.
func (s *S3) Record(ctx context.Context, o ir.RunOutcome) error {
	p, err := BuildPack(o)
	if err != nil {
		return err
	}
	return s.Upload(ctx, p)
}

// Upload puts every file of p.
func (s *S3) Upload(ctx context.Context, p Pack) error {
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("evidence: ensure bucket: %w", err)
	}
	for _, f := range p.Files {
		key := s.Key(p.RunID, f.Name)
		_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(f.Content), int64(len(f.Content)), minio.PutObjectOptions{
			ContentType: f.ContentType,
		})
		if err != nil {
			return fmt.Errorf("evidence: upload %s: %w", key, err)
		}
	}
	s.logger.Info("evidence uploaded", "run_id", p.RunID, "bucket", s.bucket, "files", len(p.Files))
	return nil
}
