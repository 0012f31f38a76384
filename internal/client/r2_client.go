package client

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/coachcall/api/internal/config"
	"github.com/coachcall/api/internal/model"
)

const (
	defaultSignedURLTTL = 5 * time.Minute
	// SigV4 presigned URLs are rejected past seven days.
	maxSignedURLTTL = 7 * 24 * time.Hour
)

// StorageClient is the object store holding call recordings and exported reports
type StorageClient interface {
	GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	IsConfigured() bool
}

// R2Client signs recording downloads and stores generated reports in a
// Cloudflare R2 bucket through its S3 API.
type R2Client struct {
	s3Client   *s3.Client
	presigner  *s3.PresignClient
	bucketName string
	publicURL  string
}

func NewR2Client(cfg *config.R2Config) (*R2Client, error) {
	if cfg.AccountID == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("R2 configuration incomplete")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("R2 bucket name is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &R2Client{
		s3Client:   s3Client,
		presigner:  s3.NewPresignClient(s3Client),
		bucketName: cfg.BucketName,
		publicURL:  strings.TrimRight(cfg.PublicURL, "/"),
	}, nil
}

// Upload stores body under key. Reports are marked as attachments so a
// browser downloads them instead of rendering them.
func (c *R2Client) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	key = c.objectKey(key)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if disposition := attachmentDisposition(key); disposition != "" {
		input.ContentDisposition = aws.String(disposition)
	}

	if _, err := c.s3Client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return c.objectURL(key), nil
}

// GetSignedURL presigns a GET for a recording or report. Recordings are
// served with the MIME type of their extension since uploads often carry
// application/octet-stream. A zero expiry means five minutes.
func (c *R2Client) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	key = c.objectKey(key)
	if key == "" {
		return "", fmt.Errorf("empty object key")
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	}
	if format := model.DetectAudioFormat(key, ""); format.MIMEType != "application/octet-stream" {
		input.ResponseContentType = aws.String(format.MIMEType)
	}
	if disposition := attachmentDisposition(key); disposition != "" {
		input.ResponseContentDisposition = aws.String(disposition)
	}

	req, err := c.presigner.PresignGetObject(ctx, input, s3.WithPresignExpires(clampTTL(expiry)))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}

// objectKey accepts paths as stored on a call: with a leading slash or the
// bucket name in front.
func (c *R2Client) objectKey(key string) string {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	return strings.TrimPrefix(key, c.bucketName+"/")
}

func (c *R2Client) objectURL(key string) string {
	if c.publicURL != "" {
		return c.publicURL + "/" + key
	}
	return "r2://" + c.bucketName + "/" + key
}

func (c *R2Client) IsConfigured() bool {
	return c != nil && c.s3Client != nil && c.bucketName != ""
}

func clampTTL(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return defaultSignedURLTTL
	case d > maxSignedURLTTL:
		return maxSignedURLTTL
	}
	return d
}

// attachmentDisposition is set for exported reports only.
func attachmentDisposition(key string) string {
	if !strings.EqualFold(path.Ext(key), ".xlsx") {
		return ""
	}
	return fmt.Sprintf(`attachment; filename="%s"`, path.Base(key))
}
