package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/gobelinus/review-system-microservice-sub000/internal/logger"
)

// S3Config holds configuration for S3-compatible storage
type S3Config struct {
	Endpoint  string // empty for AWS S3
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	PageSize  int // max keys per listing page
	MaxPages  int // page budget per listing; bounds memory
}

// S3Storage implements ObjectStorage for S3-compatible services
type S3Storage struct {
	client   *s3.Client
	bucket   string
	pageSize int
	maxPages int
	logger   *logger.Logger
}

// NewS3Storage creates a new S3-compatible storage client.
// Parameters:
//   - cfg: storage configuration including endpoint, credentials, and bucket.
//   - log: logger instance; nil uses the default logger.
// Returns:
//   - *S3Storage: initialized storage client.
//   - error: non-nil if the AWS config cannot be loaded.
func NewS3Storage(cfg *S3Config, log *logger.Logger) (*S3Storage, error) {
	if log == nil {
		log = logger.GetDefault()
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1" // Default region for S3-compatible services
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			scheme := "http"
			if cfg.UseSSL {
				scheme = "https"
			}
			o.BaseEndpoint = aws.String(fmt.Sprintf("%s://%s", scheme, normalizeEndpoint(cfg.Endpoint)))
			o.UsePathStyle = true // Use path-style for S3-compatible services
		}
	})

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 10
	}

	return &S3Storage{
		client:   client,
		bucket:   cfg.Bucket,
		pageSize: pageSize,
		maxPages: maxPages,
		logger:   log,
	}, nil
}

// normalizeEndpoint removes protocol prefix and path from endpoint
func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	if idx := strings.Index(endpoint, "/"); idx != -1 {
		endpoint = endpoint[:idx]
	}
	return strings.TrimSuffix(endpoint, "/")
}

// List enumerates objects under the prefix using ListObjectsV2 pagination.
// The result is capped at pageSize*maxPages keys; hitting the cap is logged
// and the listing returns what was collected so far. Any transport error
// fails the whole listing, partial pages are never silently dropped.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - prefix: key prefix to list under.
// Returns:
//   - []ObjectInfo: object metadata for every key under the prefix.
//   - error: non-nil if any listing page fails.
func (s *S3Storage) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(int32(s.pageSize)),
	})

	pages := 0
	for paginator.HasMorePages() {
		if pages >= s.maxPages {
			s.logger.WithFields(logger.Fields{
				"prefix":    prefix,
				"max_pages": s.maxPages,
				"collected": len(objects),
			}).Warn("Listing cap reached, truncating result set")
			break
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %q: %w", prefix, err)
		}
		pages++

		for _, obj := range page.Contents {
			info := ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: obj.LastModified,
				Fingerprint:  strings.Trim(aws.ToString(obj.ETag), `"`),
			}
			objects = append(objects, info)
		}
	}

	return objects, nil
}

// Download opens a streaming reader over an object's content.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - key: object key to download.
// Returns:
//   - io.ReadCloser: streaming body; caller closes it.
//   - error: ErrObjectNotFound for missing keys, wrapped transport error otherwise.
func (s *S3Storage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("download %q: %w", key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to download object %q: %w", key, err)
	}
	return result.Body, nil
}

// Exists checks if an object exists in storage.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - key: object key to probe.
// Returns:
//   - bool: true if the object exists.
//   - error: non-nil for transport failures other than not-found.
func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}
