// Package archive uploads finished simulation and tuning reports to S3 so
// they survive local database rotation.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/config"
)

// ObjectPutter is the slice of the S3 client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver writes JSON reports to a bucket. A nil Archiver (disabled
// config) is safe to call; uploads become no-ops.
type Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
	log    zerolog.Logger
}

// New builds an archiver from config. Returns nil when archiving is
// disabled, which callers treat as a no-op sink.
func New(ctx context.Context, cfg config.S3Config, log zerolog.Logger) (*Archiver, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive enabled but no bucket configured")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Archiver{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		log:    log.With().Str("component", "archive").Logger(),
	}, nil
}

// NewWithClient builds an archiver around an existing client.
func NewWithClient(client ObjectPutter, bucket, prefix string, log zerolog.Logger) *Archiver {
	return &Archiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
		log:    log.With().Str("component", "archive").Logger(),
	}
}

// Upload stores a report as JSON under <prefix>/<kind>/<runID>.json.
func (a *Archiver) Upload(ctx context.Context, kind, runID string, report any) error {
	if a == nil {
		return nil
	}

	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report %s: %w", runID, err)
	}

	key := path.Join(a.prefix, kind, runID+".json")
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload report %s to s3://%s/%s: %w", runID, a.bucket, key, err)
	}

	a.log.Info().
		Str("runId", runID).
		Str("key", key).
		Int("bytes", len(payload)).
		Msg("Report archived")
	return nil
}
