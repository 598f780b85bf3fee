package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"tcforge/internal/config"
)

// ErrS3NotConfigured is returned when an s3:// location is used without storage settings.
var ErrS3NotConfigured = errors.New("s3 storage not configured")

// ObjectStore is the part of S3 the fetch and mirror commands use.
type ObjectStore interface {
	Download(ctx context.Context, bucket, key, dest string) error
	Upload(ctx context.Context, key, path string) error
	List(ctx context.Context, prefix string) ([]Object, error)
}

// Object is one listed object.
type Object struct {
	Key  string
	Size int64
}

// S3Client wraps the S3 client for any S3 compatible store (R2, MinIO, AWS).
type S3Client struct {
	Client *s3.Client
	Bucket string
}

var _ ObjectStore = (*S3Client)(nil)

// NewS3Client initializes a client from the S3_* settings.
func NewS3Client(ctx context.Context, cfg config.S3Config, debug bool) (*S3Client, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("%w (S3_BUCKET, S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY)", ErrS3NotConfigured)
	}

	options := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		awsconfig.WithRegion(cfg.Region),
	}
	if debug {
		options = append(options, awsconfig.WithClientLogMode(aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3Client{Client: client, Bucket: cfg.Bucket}, nil
}

// Download streams bucket/key into dest via a temp file.
func (c *S3Client) Download(ctx context.Context, bucket, key, dest string) error {
	output, err := c.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 get s3://%s/%s: %w", bucket, key, err)
	}
	defer output.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".part.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpName)
	}()
	if _, err := io.Copy(tmp, output.Body); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dest)
}

// Upload puts the file at path under key in the configured bucket.
func (c *S3Client) Upload(ctx context.Context, key, path string) error {
	if c.Bucket == "" {
		return fmt.Errorf("%w: S3_BUCKET is empty", ErrS3NotConfigured)
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	_, err = c.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.Bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentType(key)),
	})
	return err
}

// List returns the objects of the configured bucket under prefix.
func (c *S3Client) List(ctx context.Context, prefix string) ([]Object, error) {
	if c.Bucket == "" {
		return nil, fmt.Errorf("%w: S3_BUCKET is empty", ErrS3NotConfigured)
	}
	var objects []Object
	paginator := s3.NewListObjectsV2Paginator(c.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.Bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			objects = append(objects, Object{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}
	return objects, nil
}

func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".gz"), strings.HasSuffix(key, ".tgz"):
		return "application/gzip"
	case strings.HasSuffix(key, ".xz"):
		return "application/x-xz"
	case strings.HasSuffix(key, ".bz2"):
		return "application/x-bzip2"
	case strings.HasSuffix(key, ".zst"):
		return "application/zstd"
	case strings.HasSuffix(key, ".zip"):
		return "application/zip"
	}
	return "application/octet-stream"
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedTransport, raw)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}
