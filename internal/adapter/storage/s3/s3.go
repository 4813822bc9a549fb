// Package s3 stores evidence files in an S3 bucket and reads them back by
// object URL.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/miporis/compliance-evaluator/internal/config"
)

// Store implements domain.BlobStore.
type Store struct {
	client     *awss3.Client
	uploader   *manager.Uploader
	bucket     string
	publicRead bool
}

// New loads AWS credentials from the environment and builds a Store for
// cfg.S3Bucket. S3_ENDPOINT points the client at an S3-compatible service.
func New(ctx context.Context, cfg config.Config) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithHTTPClient(&http.Client{
			Timeout:   2 * time.Minute,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("op=s3.New: %w", err)
	}
	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		o.UsePathStyle = cfg.S3UsePathStyle
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
	})
	return NewWithClient(client, cfg.S3Bucket, cfg.S3PublicRead), nil
}

// NewWithClient builds a Store around an existing client.
func NewWithClient(client *awss3.Client, bucket string, publicRead bool) *Store {
	return &Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		bucket:     bucket,
		publicRead: publicRead,
	}
}

// Put uploads data under key and returns the object URL.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	in := &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}
	if s.publicRead {
		in.ACL = types.ObjectCannedACLPublicRead
	}
	out, err := s.uploader.Upload(ctx, in)
	if err != nil {
		return "", fmt.Errorf("op=s3.put key=%s: %w", key, err)
	}
	return out.Location, nil
}

// Get downloads the object behind an URL previously returned by Put.
func (s *Store) Get(ctx context.Context, objectURL string) ([]byte, error) {
	key, err := KeyFromURL(objectURL, s.bucket)
	if err != nil {
		return nil, fmt.Errorf("op=s3.get: %w", err)
	}
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("op=s3.get key=%s: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("op=s3.get key=%s: %w", key, err)
	}
	return data, nil
}

// Ping checks that the bucket is reachable with the configured credentials.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

// KeyFromURL extracts the object key from a virtual-hosted or path-style
// object URL.
func KeyFromURL(objectURL, bucket string) (string, error) {
	u, err := url.Parse(objectURL)
	if err != nil {
		return "", fmt.Errorf("parse object url: %w", err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if !strings.HasPrefix(u.Host, bucket+".") {
		key = strings.TrimPrefix(key, bucket+"/")
	}
	if key == "" {
		return "", fmt.Errorf("object url %q has no key", objectURL)
	}
	return key, nil
}
