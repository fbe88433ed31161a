// Package s3 implements the storage provider contract against any
// S3-compatible object store (AWS, MinIO). Each file gets its own key prefix
// and each encrypted chunk becomes one object under it.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/chunkvault/internal/provider"
	"github.com/dmitrijs2005/chunkvault/internal/shared"
)

const (
	Platform = "s3"

	defaultMaxChunkSize = 64 * 1024 * 1024
	minChunkSize        = 1024

	validateTimeout = 30 * time.Second
)

// test seams, after the pattern used for the presign client
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

func init() {
	provider.Register(Platform, func(config json.RawMessage, skipValidation bool) (provider.Provider, error) {
		return New(config, skipValidation)
	})
}

// Config is the platform-specific configuration payload.
type Config struct {
	Endpoint        string `json:"endpoint,omitempty"` // MinIO-style override
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	KeyPrefix       string `json:"key_prefix,omitempty"`
	MaxChunkSize    int    `json:"max_chunk_size,omitempty"`
}

// api is the subset of the S3 client the provider uses; *s3.Client satisfies it.
type api interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type Provider struct {
	cfg    Config
	client api
}

// New parses and statically validates the config, builds the S3 client and
// (unless skipValidation) checks the bucket is reachable.
func New(config json.RawMessage, skipValidation bool) (*Provider, error) {
	var cfg Config
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrInvalidConfig, err)
	}
	if cfg.MaxChunkSize == 0 {
		cfg.MaxChunkSize = defaultMaxChunkSize
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	awsCfg, err := loadDefaultAWSConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrInvalidConfig, err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	p := &Provider{cfg: cfg, client: client}

	if !skipValidation {
		ctx, cancel := context.WithTimeout(context.Background(), validateTimeout)
		defer cancel()
		if err := p.ValidateConfig(ctx); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func validate(cfg Config) error {
	if cfg.Bucket == "" {
		return fmt.Errorf("%w: bucket is required", provider.ErrInvalidConfig)
	}
	if cfg.Region == "" {
		return fmt.Errorf("%w: region is required", provider.ErrInvalidConfig)
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return fmt.Errorf("%w: credentials are required", provider.ErrInvalidConfig)
	}
	if cfg.MaxChunkSize < minChunkSize {
		return fmt.Errorf("%w: max_chunk_size %d below minimum %d",
			provider.ErrInvalidConfig, cfg.MaxChunkSize, minChunkSize)
	}
	return nil
}

// classify maps SDK errors onto the storage error taxonomy.
func classify(err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", provider.ErrNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%w: %v", provider.ErrNotFound, err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %v", provider.ErrUnauthorized, err)
		case "SlowDown", "RequestLimitExceeded", "TooManyRequests":
			return fmt.Errorf("%w: %v", provider.ErrRateLimited, err)
		}
	}

	return fmt.Errorf("%w: %v", provider.ErrTransient, err)
}

// PrepareStorage reserves a fresh key prefix for the file. No remote call is
// needed; object stores have no container concept beyond the bucket.
func (p *Provider) PrepareStorage(ctx context.Context, meta provider.FileInfo) (provider.Context, error) {
	suffix, err := shared.MakeRandHexString(8)
	if err != nil {
		return nil, err
	}

	parts := []string{}
	if p.cfg.KeyPrefix != "" {
		parts = append(parts, strings.Trim(p.cfg.KeyPrefix, "/"))
	}
	parts = append(parts, meta.ID+"-"+suffix)

	return provider.Context{"key_prefix": strings.Join(parts, "/")}, nil
}

// UploadChunk stores one encrypted payload as an object under the file's prefix.
func (p *Provider) UploadChunk(ctx context.Context, payload []byte, sctx provider.Context) (provider.ChunkRef, error) {
	prefix := sctx["key_prefix"]
	if prefix == "" {
		return nil, fmt.Errorf("%w: storage context missing key_prefix", provider.ErrInvalidConfig)
	}

	key := prefix + "/" + uuid.New().String() + ".enc"

	out, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return nil, classify(err)
	}

	ref := provider.ChunkRef{"key": key}
	if out.ETag != nil {
		ref["etag"] = *out.ETag
	}
	return ref, nil
}

// DownloadChunk retrieves the object behind ref.
func (p *Provider) DownloadChunk(ctx context.Context, ref provider.ChunkRef, sctx provider.Context) ([]byte, error) {
	key := ref["key"]
	if key == "" {
		return nil, fmt.Errorf("%w: chunk ref missing key", provider.ErrNotFound)
	}

	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify(err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read object: %v", provider.ErrTransient, err)
	}
	return data, nil
}

// DeleteChunk removes the object behind ref. S3 deletes are idempotent, so a
// missing object is already a success.
func (p *Provider) DeleteChunk(ctx context.Context, ref provider.ChunkRef, sctx provider.Context) error {
	key := ref["key"]
	if key == "" {
		return fmt.Errorf("%w: chunk ref missing key", provider.ErrNotFound)
	}

	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		classified := classify(err)
		if errors.Is(classified, provider.ErrNotFound) {
			return nil
		}
		return classified
	}
	return nil
}

// MaxChunkSize returns the plaintext segment bound for this configuration.
func (p *Provider) MaxChunkSize() int {
	return p.cfg.MaxChunkSize
}

// ValidateConfig checks the bucket exists and the credentials can see it.
func (p *Provider) ValidateConfig(ctx context.Context) error {
	_, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(p.cfg.Bucket),
	})
	if err != nil {
		classified := classify(err)
		if errors.Is(classified, provider.ErrNotFound) || errors.Is(classified, provider.ErrUnauthorized) {
			return fmt.Errorf("%w: bucket %q not reachable: %v", provider.ErrInvalidConfig, p.cfg.Bucket, err)
		}
		return classified
	}
	return nil
}
