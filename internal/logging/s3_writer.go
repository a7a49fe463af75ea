package logging

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"acadgen/internal/utils"
)

// S3Writer writes batches of generation logs to S3 as gzipped JSON Lines.
type S3Writer struct {
	client  *s3.Client
	bucket  string
	prefix  string
	podName string
	logger  *utils.Logger
}

// NewS3Writer creates a new S3 writer
func NewS3Writer(ctx context.Context, bucket, region, prefix, podName string) (*S3Writer, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Writer{
		client:  s3.NewFromConfig(cfg),
		bucket:  bucket,
		prefix:  prefix,
		podName: podName,
		logger:  utils.NewLogger("s3-writer"),
	}, nil
}

// objectKey builds a date-partitioned key, unique per pod and batch.
// Example: logs/2026/08/29/orchestrator-0-20260829-143022-123456789.jsonl.gz
func (w *S3Writer) objectKey(now time.Time) string {
	return fmt.Sprintf("%s%04d/%02d/%02d/%s-%s-%d.jsonl.gz",
		w.prefix,
		now.Year(),
		now.Month(),
		now.Day(),
		w.podName,
		now.Format("20060102-150405"),
		now.Nanosecond(),
	)
}

// WriteBatch uploads records as one object and returns the S3 key.
func (w *S3Writer) WriteBatch(ctx context.Context, records []*GenerationLog) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	encoder := json.NewEncoder(gz)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			w.logger.Error("Failed to encode record", "error", err)
		}
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("failed to compress batch: %w", err)
	}

	key := w.objectKey(time.Now())
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(w.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentType:     aws.String("application/x-ndjson"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	w.logger.Info("Wrote batch to S3", "key", key, "count", len(records), "bytes", buf.Len())
	return key, nil
}
