package blobstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	// MemoryEndpoint selects the in-process object store.
	MemoryEndpoint = "memory://"

	maxDeleteBatch = 1000
)

// ErrBucketRequired is returned when no bucket is configured.
var ErrBucketRequired = errors.New("s3 bucket is not configured; set s3.bucket")

// S3Options configures the S3-compatible endpoint.
type S3Options struct {
	EndpointURL     string
	Region          string
	APIVersion      string
	UseSSL          bool
	Verify          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

// S3ObjectStore talks to an S3-compatible endpoint.
type S3ObjectStore struct {
	client *s3.Client
	bucket string
}

// NewObjectStore builds the configured ObjectStore. The memory endpoint
// returns a fresh MemoryObjectStore.
func NewObjectStore(ctx context.Context, opts S3Options, logger *slog.Logger) (ObjectStore, error) {
	if strings.TrimSpace(opts.EndpointURL) == MemoryEndpoint {
		return NewMemoryObjectStore(), nil
	}
	return NewS3ObjectStore(ctx, opts, logger)
}

// NewS3ObjectStore resolves credentials and endpoint settings into a client.
func NewS3ObjectStore(ctx context.Context, opts S3Options, logger *slog.Logger) (*S3ObjectStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return nil, ErrBucketRequired
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if region := strings.TrimSpace(opts.Region); region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	if opts.AccessKeyID != "" || opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	httpClient, err := httpClientForVerify(opts.Verify)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		loadOpts = append(loadOpts, awsconfig.WithHTTPClient(httpClient))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	endpoint := endpointWithScheme(opts.EndpointURL, opts.UseSSL)
	if v := strings.TrimSpace(opts.APIVersion); v != "" {
		logger.Debug("s3 api_version is fixed by the client library", "requested", v)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3ObjectStore{client: client, bucket: bucket}, nil
}

// Bucket returns the configured bucket name.
func (s *S3ObjectStore) Bucket() string {
	return s.bucket
}

func (s *S3ObjectStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("get %s: %w", key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3ObjectStore) PutObject(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *S3ObjectStore) DeleteObjects(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(keys))
		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}
		_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete %d objects: %w", len(objects), err)
		}
	}
	return nil
}

func endpointWithScheme(raw string, useSSL bool) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Contains(raw, "://") {
		return raw
	}
	if useSSL {
		return "https://" + raw
	}
	return "http://" + raw
}

// httpClientForVerify maps the verify setting to an HTTP client. Empty or true
// keeps the default client, false disables certificate checks, anything else
// is a path to a CA bundle.
func httpClientForVerify(verify string) (*http.Client, error) {
	verify = strings.TrimSpace(verify)
	if verify == "" {
		return nil, nil
	}
	if parsed, err := strconv.ParseBool(verify); err == nil {
		if parsed {
			return nil, nil
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicitly configured
		return &http.Client{Transport: transport}, nil
	}

	pem, err := os.ReadFile(verify)
	if err != nil {
		return nil, fmt.Errorf("read s3 CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", verify)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	return &http.Client{Transport: transport}, nil
}
