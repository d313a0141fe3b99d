package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// PutObjectAPI is the part of the S3 client the archiver needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// s3Archiver uploads gzipped records to an S3 bucket.
type s3Archiver struct {
	client PutObjectAPI
	bucket string
	logger zerolog.Logger
}

// NewS3Archiver creates an archiver for bucket using the default AWS
// credential chain.
func NewS3Archiver(ctx context.Context, bucket, region string, logger zerolog.Logger) (Archiver, error) {
	logger = logger.With().Str("component", "s3-webhook-archive").Logger()

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		logger.Error().Err(err).Msg("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	logger.Info().
		Str("bucket", bucket).
		Str("region", region).
		Msg("S3 archive initialised")

	return NewS3ArchiverWithClient(s3.NewFromConfig(cfg), bucket, logger), nil
}

// NewS3ArchiverWithClient creates an archiver around an existing client.
func NewS3ArchiverWithClient(client PutObjectAPI, bucket string, logger zerolog.Logger) Archiver {
	return &s3Archiver{
		client: client,
		bucket: bucket,
		logger: logger,
	}
}

// Archive uploads the record to key. The key must already carry any prefix.
func (a *s3Archiver) Archive(ctx context.Context, key string, rec Record) error {
	data, err := compress(rec)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(data),
		ContentLength:   aws.Int64(int64(len(data))),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
		Metadata: map[string]string{
			"received-at": rec.ReceivedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if rec.Signature != "" {
		input.Metadata["paymongo-signature"] = rec.Signature
	}

	if _, err := a.client.PutObject(ctx, input); err != nil {
		a.logger.Error().
			Err(err).
			Str("bucket", a.bucket).
			Str("key", key).
			Msg("failed to put object to S3")
		return fmt.Errorf("failed to put object to S3 (bucket=%s, key=%s): %w", a.bucket, key, err)
	}

	a.logger.Debug().
		Str("bucket", a.bucket).
		Str("key", key).
		Int("bytes", len(data)).
		Msg("webhook archived to S3")

	return nil
}
