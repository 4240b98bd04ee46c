package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// videoContentType is set on published objects so browsers stream the
// composed video instead of downloading it.
const videoContentType = "video/mp4"

// S3Config holds the delivery bucket configuration.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: custom S3-compatible endpoint
	AccessKeyID     string // Optional: static credentials
	SecretAccessKey string // Optional: static credentials
}

// S3Storage wraps LocalStorage with composed-video delivery through S3.
// Working media never leaves local disk; only the final video is
// published.
type S3Storage struct {
	*LocalStorage
	client *s3.Client
	bucket string
	region string
}

// NewS3Storage creates an S3Storage over the given working directory and
// delivery bucket.
func NewS3Storage(workDir string, cfg S3Config) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("S3 bucket is required")
	}

	local, err := NewLocalStorage(workDir)
	if err != nil {
		return nil, err
	}

	configOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Storage{
		LocalStorage: local,
		client:       s3.NewFromConfig(awsCfg, clientOpts...),
		bucket:       cfg.Bucket,
		region:       cfg.Region,
	}, nil
}

// videoKey returns the bucket key the composed video is published under.
func videoKey(uploadID string) string {
	return fmt.Sprintf("uploads/%s/video.mp4", uploadID)
}

// PublishVideo uploads the composed video under the upload's key and
// returns the public object URL.
func (s *S3Storage) PublishVideo(ctx context.Context, uploadID string, data io.Reader) (string, error) {
	key := videoKey(uploadID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(videoContentType),
	})
	if err != nil {
		return "", fmt.Errorf("publish video: %w", err)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
}
