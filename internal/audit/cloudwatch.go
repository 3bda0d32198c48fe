package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/younsl/autoprotect/internal/models"
)

const (
	// Events per PutLogEvents call, well below the service limit of 10,000
	cloudWatchBatchSize = 500
	// PutLogEvents payload limit; each event counts its message plus a fixed overhead
	cloudWatchBatchBytes    = 1 << 20
	cloudWatchEventOverhead = 26
	// Events held while puts keep failing; the oldest are dropped beyond this
	cloudWatchMaxBuffered = 4 * cloudWatchBatchSize
)

// CloudWatchLogsAPI is the subset of CloudWatch Logs used by the sink
type CloudWatchLogsAPI interface {
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// CloudWatchLogsSink ships records to a log stream named after the run ID
type CloudWatchLogsSink struct {
	client   CloudWatchLogsAPI
	group    string
	stream   string
	created  bool
	buffered []types.InputLogEvent
	dropped  int
}

// NewCloudWatchLogsSink creates a sink writing to group/stream. The log group must exist.
func NewCloudWatchLogsSink(client CloudWatchLogsAPI, group, stream string) *CloudWatchLogsSink {
	return &CloudWatchLogsSink{client: client, group: group, stream: stream}
}

func (s *CloudWatchLogsSink) Write(ctx context.Context, record models.AuditRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	s.buffered = append(s.buffered, types.InputLogEvent{
		Message:   aws.String(string(body)),
		Timestamp: aws.Int64(record.Timestamp.UnixMilli()),
	})
	if over := len(s.buffered) - cloudWatchMaxBuffered; over > 0 {
		s.dropped += over
		s.buffered = append(s.buffered[:0], s.buffered[over:]...)
	}
	if len(s.buffered) >= cloudWatchBatchSize {
		return s.flush(ctx)
	}
	return nil
}

func (s *CloudWatchLogsSink) Close(ctx context.Context) error {
	return s.flush(ctx)
}

func (s *CloudWatchLogsSink) ensureStream(ctx context.Context) error {
	if s.created {
		return nil
	}
	_, err := s.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(s.group),
		LogStreamName: aws.String(s.stream),
	})
	if err != nil {
		var exists *types.ResourceAlreadyExistsException
		if !errors.As(err, &exists) {
			return fmt.Errorf("create log stream %s/%s: %w", s.group, s.stream, err)
		}
	}
	s.created = true
	return nil
}

func (s *CloudWatchLogsSink) flush(ctx context.Context) error {
	if len(s.buffered) == 0 {
		return nil
	}
	if err := s.ensureStream(ctx); err != nil {
		return err
	}

	// PutLogEvents rejects batches that are not in chronological order
	sort.SliceStable(s.buffered, func(i, j int) bool {
		return aws.ToInt64(s.buffered[i].Timestamp) < aws.ToInt64(s.buffered[j].Timestamp)
	})

	for len(s.buffered) > 0 {
		n := batchLen(s.buffered)
		_, err := s.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
			LogGroupName:  aws.String(s.group),
			LogStreamName: aws.String(s.stream),
			LogEvents:     s.buffered[:n],
		})
		if err != nil {
			return fmt.Errorf("put log events to %s/%s: %w", s.group, s.stream, err)
		}
		s.buffered = s.buffered[n:]
	}
	s.buffered = nil

	if s.dropped > 0 {
		err := fmt.Errorf("%d audit events dropped from %s/%s after failed puts", s.dropped, s.group, s.stream)
		s.dropped = 0
		return err
	}
	return nil
}

// batchLen returns how many leading events fit in one PutLogEvents call
func batchLen(events []types.InputLogEvent) int {
	size := 0
	for i, e := range events {
		size += len(aws.ToString(e.Message)) + cloudWatchEventOverhead
		if i == cloudWatchBatchSize || (i > 0 && size > cloudWatchBatchBytes) {
			return i
		}
	}
	return len(events)
}
