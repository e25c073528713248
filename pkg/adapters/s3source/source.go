// Package s3source opens media stored in Amazon S3 (s3://bucket/key).
package s3source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/user/playcore/pkg/ports"
)

const scheme = "s3://"

// Config holds the S3 connection settings. Empty fields fall back to the
// AWS_DEFAULT_REGION, AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY variables.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // optional, for S3-compatible stores
}

// Source implements ports.ByteSource for S3 objects.
type Source struct {
	client s3iface.S3API
	log    ports.Logger
}

// New creates a Source with its own AWS session.
func New(cfg Config, log ports.Logger) (*Source, error) {
	if cfg.Region == "" {
		cfg.Region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if cfg.AccessKeyID == "" {
		cfg.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if cfg.SecretAccessKey == "" {
		cfg.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	if cfg.Region == "" {
		return nil, errors.New("missing S3 region (AWS_DEFAULT_REGION)")
	}

	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create AWS session: %w", err)
	}
	return NewWithClient(s3.New(sess), log), nil
}

// NewWithClient creates a Source around an existing client.
func NewWithClient(client s3iface.S3API, log ports.Logger) *Source {
	return &Source{client: client, log: log}
}

// Handles accepts s3:// URLs.
func (s *Source) Handles(location string) bool {
	return strings.HasPrefix(location, scheme)
}

// Open starts downloading the object. The body streams; nothing is
// buffered here.
func (s *Source) Open(ctx context.Context, location string) (io.ReadCloser, int64, error) {
	bucket, key, err := ParseLocation(location)
	if err != nil {
		return nil, 0, err
	}
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	if s.log != nil {
		s.log.Debug("Opened s3://%s/%s (%d bytes)", bucket, key, size)
	}
	return out.Body, size, nil
}

// ParseLocation splits s3://bucket/key.
func ParseLocation(location string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(location, scheme)
	if !ok {
		return "", "", fmt.Errorf("not an s3 location: %s", location)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("s3 location needs a bucket and an object key: %s", location)
	}
	return bucket, key, nil
}

var _ ports.ByteSource = (*Source)(nil)
