package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/younsl/autoprotect/internal/models"
)

// S3API is the subset of S3 used by the sink
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink collects the run's records and uploads them as one JSONL object on Close.
// The object is written with If-None-Match so an existing run log is never overwritten.
type S3Sink struct {
	client  S3API
	bucket  string
	key     string
	buf     bytes.Buffer
	records int
}

// NewS3Sink creates a sink storing prefix/YYYY/MM/DD/<runID>.jsonl
func NewS3Sink(client S3API, bucket, prefix, runID string, started time.Time) *S3Sink {
	return &S3Sink{
		client: client,
		bucket: bucket,
		key:    ObjectKey(prefix, runID, started),
	}
}

// ObjectKey returns the object key for a run
func ObjectKey(prefix, runID string, started time.Time) string {
	return path.Join(prefix, started.UTC().Format("2006/01/02"), runID+".jsonl")
}

// Key returns the object key this sink writes
func (s *S3Sink) Key() string {
	return s.key
}

func (s *S3Sink) Write(_ context.Context, record models.AuditRecord) error {
	if err := json.NewEncoder(&s.buf).Encode(record); err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	s.records++
	return nil
}

func (s *S3Sink) Close(ctx context.Context) error {
	if s.records == 0 {
		return nil
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(s.buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		return fmt.Errorf("upload audit log s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}
