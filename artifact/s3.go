package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/hazyhaar/originality/docpipe"
	"github.com/hazyhaar/originality/pathsafe"
)

// MaxObjectSize caps downloads from S3.
const MaxObjectSize int64 = 256 << 20

// S3Config configures the S3 backend. Credentials come from the standard AWS
// chain (environment, shared config, instance role).
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
	// Endpoint targets an S3-compatible service (MinIO, R2). Setting it
	// forces path-style addressing.
	Endpoint string `yaml:"endpoint"`
}

// S3Backend stores artifacts as objects under Prefix in Bucket.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Backend loads the default AWS configuration and builds a client.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("artifact: s3 bucket is required")
	}
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("artifact: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3BackendWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3BackendWithClient wraps an existing client.
func NewS3BackendWithClient(client *s3.Client, bucket, prefix string) *S3Backend {
	return &S3Backend{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (b *S3Backend) key(rel string) string {
	if b.prefix == "" {
		return rel
	}
	return path.Join(b.prefix, rel)
}

// Resolve returns the s3:// URI of rel.
func (b *S3Backend) Resolve(rel string) string {
	return "s3://" + b.bucket + "/" + b.key(rel)
}

// objectKey extracts the key from a resolved URI. A bare key is accepted too.
func (b *S3Backend) objectKey(resolved string) (string, error) {
	rest, ok := strings.CutPrefix(resolved, "s3://")
	if !ok {
		return strings.TrimPrefix(resolved, "/"), nil
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket != b.bucket {
		return "", fmt.Errorf("artifact: object %q is outside bucket %q", resolved, b.bucket)
	}
	return key, nil
}

func (b *S3Backend) Write(ctx context.Context, rel string, data []byte) error {
	key := b.key(rel)
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(docpipe.MimeType(rel)),
	})
	if err != nil {
		return &IOError{Op: "put", Path: b.Resolve(rel), Err: err}
	}
	return nil
}

func (b *S3Backend) Read(ctx context.Context, resolved string) ([]byte, error) {
	key, err := b.objectKey(resolved)
	if err != nil {
		return nil, err
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, &IOError{Op: "get", Path: resolved, Err: err}
	}
	defer out.Body.Close()
	data, err := pathsafe.LimitedReadAll(out.Body, MaxObjectSize)
	if err != nil {
		return nil, &IOError{Op: "get", Path: resolved, Err: err}
	}
	return data, nil
}

func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
