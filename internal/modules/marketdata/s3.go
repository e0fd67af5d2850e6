package marketdata

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3Config configures access to an S3 (or S3-compatible) object store.
type S3Config struct {
	Region          string
	Endpoint        string // Optional custom endpoint, e.g. Cloudflare R2 or MinIO
	AccessKeyID     string // Optional; falls back to the default credential chain
	SecretAccessKey string
}

// S3Loader downloads CSV panels from s3://bucket/key locators.
type S3Loader struct {
	downloader *manager.Downloader
	log        zerolog.Logger
}

// NewS3Loader builds an S3 client from cfg and the default AWS configuration chain.
func NewS3Loader(ctx context.Context, cfg S3Config, log zerolog.Logger) (*S3Loader, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Loader{
		downloader: manager.NewDownloader(client),
		log:        log.With().Str("loader", "s3").Logger(),
	}, nil
}

// parseS3Locator splits s3://bucket/key into its parts.
func parseS3Locator(locator string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(locator, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 locator")
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("expected s3://bucket/key")
	}
	return bucket, key, nil
}

// Load downloads the object and parses it as CSV.
func (l *S3Loader) Load(ctx context.Context, locator string) (*PricePanel, error) {
	bucket, key, err := parseS3Locator(locator)
	if err != nil {
		return nil, &SourceUnavailableError{Locator: locator, Err: err}
	}

	buf := manager.NewWriteAtBuffer([]byte{})
	n, err := l.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &SourceUnavailableError{Locator: locator, Err: err}
	}

	panel, err := ParseCSV(bytes.NewReader(buf.Bytes()), locator)
	if err != nil {
		return nil, err
	}

	l.log.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Int64("bytes", n).
		Int("rows", panel.Rows()).
		Msg("Downloaded price panel")
	return panel, nil
}
