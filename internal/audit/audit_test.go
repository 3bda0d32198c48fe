package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/younsl/autoprotect/internal/models"
)

func decode(t *testing.T, r io.Reader) []models.AuditRecord {
	t.Helper()
	var out []models.AuditRecord
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		var rec models.AuditRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		out = append(out, rec)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestLoggerStampsRecords(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("run-1", true, nil, NewJSONLSink(&buf))
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	l.Record(context.Background(), models.AuditRecord{
		Function: "orders",
		Region:   "us-east-1",
		Verdict:  models.VerdictEligible,
		Outcome:  models.OutcomeDryRunSimulated,
	})
	require.NoError(t, l.Close(context.Background()))

	records := decode(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "run-1", records[0].RunID)
	assert.True(t, records[0].DryRun)
	assert.True(t, fixed.Equal(records[0].Timestamp))
	assert.Equal(t, models.RecordKindFunction, records[0].Kind)
	assert.Equal(t, 1, l.Count())
}

func TestLoggerConcurrentRecords(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("run-1", false, nil, NewJSONLSink(&buf))

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record(context.Background(), models.AuditRecord{
				Function: "fn",
				Region:   "us-east-1",
				MemoryMB: int32(i),
			})
		}()
	}
	wg.Wait()

	assert.Len(t, decode(t, &buf), 50, "one intact line per record")
	assert.Equal(t, 50, l.Count())
}

type failingSink struct {
	writeErr error
	closeErr error
	writes   int
}

func (s *failingSink) Write(context.Context, models.AuditRecord) error {
	s.writes++
	return s.writeErr
}

func (s *failingSink) Close(context.Context) error {
	return s.closeErr
}

func TestLoggerSinkFailureDoesNotStopOtherSinks(t *testing.T) {
	var buf bytes.Buffer
	writeErr := errors.New("disk full")
	closeErr := errors.New("flush failed")
	bad := &failingSink{writeErr: writeErr, closeErr: closeErr}

	l := NewLogger("run-1", false, nil, bad, NewJSONLSink(&buf))
	l.Record(context.Background(), models.AuditRecord{Function: "a", Region: "us-east-1"})
	l.Record(context.Background(), models.AuditRecord{Function: "b", Region: "us-east-1"})

	err := l.Close(context.Background())
	assert.ErrorIs(t, err, writeErr)
	assert.ErrorIs(t, err, closeErr)
	assert.Equal(t, 2, bad.writes)
	assert.Len(t, decode(t, &buf), 2)
}

func TestJSONLFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	for _, runID := range []string{"run-1", "run-2"} {
		sink, err := OpenJSONLFile(path)
		require.NoError(t, err)
		l := NewLogger(runID, false, nil, sink)
		l.Record(context.Background(), models.AuditRecord{Function: "orders", Region: "us-east-1"})
		require.NoError(t, l.Close(context.Background()))
	}

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records := decode(t, f)
	require.Len(t, records, 2)
	assert.Equal(t, "run-1", records[0].RunID)
	assert.Equal(t, "run-2", records[1].RunID)
}

func TestOpenJSONLFileError(t *testing.T) {
	_, err := OpenJSONLFile(filepath.Join(t.TempDir(), "missing", "audit.jsonl"))
	assert.Error(t, err)
}

type fakeLogs struct {
	createErr error
	putErr    error
	creates   int
	attempts  []int
	batches   [][]types.InputLogEvent
}

func (f *fakeLogs) CreateLogStream(context.Context, *cloudwatchlogs.CreateLogStreamInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error) {
	f.creates++
	return &cloudwatchlogs.CreateLogStreamOutput{}, f.createErr
}

func (f *fakeLogs) PutLogEvents(_ context.Context, params *cloudwatchlogs.PutLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error) {
	f.attempts = append(f.attempts, len(params.LogEvents))
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.batches = append(f.batches, append([]types.InputLogEvent(nil), params.LogEvents...))
	return &cloudwatchlogs.PutLogEventsOutput{}, nil
}

func TestCloudWatchLogsSink(t *testing.T) {
	client := &fakeLogs{createErr: &types.ResourceAlreadyExistsException{Message: aws.String("exists")}}
	sink := NewCloudWatchLogsSink(client, "/autoprotect/audit", "run-1")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, sink.Write(context.Background(), models.AuditRecord{Function: "b", Timestamp: base.Add(time.Second)}))
	require.NoError(t, sink.Write(context.Background(), models.AuditRecord{Function: "a", Timestamp: base}))
	assert.Empty(t, client.batches, "buffered until close")

	require.NoError(t, sink.Close(context.Background()))
	require.Len(t, client.batches, 1)
	batch := client.batches[0]
	require.Len(t, batch, 2)
	assert.Less(t, aws.ToInt64(batch[0].Timestamp), aws.ToInt64(batch[1].Timestamp))
	assert.Contains(t, aws.ToString(batch[0].Message), `"function":"a"`)
	assert.Equal(t, 1, client.creates)
}

func TestCloudWatchLogsSinkFlushesFullBatches(t *testing.T) {
	client := &fakeLogs{}
	sink := NewCloudWatchLogsSink(client, "/autoprotect/audit", "run-1")

	for range cloudWatchBatchSize + 1 {
		require.NoError(t, sink.Write(context.Background(), models.AuditRecord{Function: "fn", Timestamp: time.Now()}))
	}
	require.Len(t, client.batches, 1)

	require.NoError(t, sink.Close(context.Background()))
	require.Len(t, client.batches, 2)
	assert.Len(t, client.batches[1], 1)
	assert.Equal(t, 1, client.creates)
}

func TestCloudWatchLogsSinkCreateFailure(t *testing.T) {
	client := &fakeLogs{createErr: &types.ResourceNotFoundException{Message: aws.String("no group")}}
	sink := NewCloudWatchLogsSink(client, "/missing", "run-1")

	require.NoError(t, sink.Write(context.Background(), models.AuditRecord{Function: "fn", Timestamp: time.Now()}))
	assert.Error(t, sink.Close(context.Background()))
	assert.Empty(t, client.batches)
}

func TestCloudWatchLogsSinkRetriesInBoundedBatches(t *testing.T) {
	client := &fakeLogs{putErr: &types.ServiceUnavailableException{Message: aws.String("unavailable")}}
	sink := NewCloudWatchLogsSink(client, "/autoprotect/audit", "run-1")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	written := cloudWatchMaxBuffered + 5
	for i := range written {
		// Writes past a full batch retry the put and report its failure
		_ = sink.Write(context.Background(), models.AuditRecord{
			Function:  fmt.Sprintf("fn-%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
		})
	}
	require.NotEmpty(t, client.attempts)
	assert.Empty(t, client.batches)

	client.putErr = nil
	err := sink.Close(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "5 audit events dropped")

	for _, n := range client.attempts {
		assert.LessOrEqual(t, n, cloudWatchBatchSize)
	}

	delivered := 0
	for _, batch := range client.batches {
		delivered += len(batch)
	}
	assert.Equal(t, cloudWatchMaxBuffered, delivered)
	assert.Contains(t, aws.ToString(client.batches[0][0].Message), `"function":"fn-5"`, "oldest events are dropped first")

	require.NoError(t, sink.Close(context.Background()), "nothing left to send")
}

func TestBatchLenHonorsPayloadLimit(t *testing.T) {
	big := strings.Repeat("x", 300<<10)
	events := make([]types.InputLogEvent, 5)
	for i := range events {
		events[i] = types.InputLogEvent{Message: aws.String(big), Timestamp: aws.Int64(int64(i))}
	}
	assert.Equal(t, 3, batchLen(events))

	small := make([]types.InputLogEvent, cloudWatchBatchSize+20)
	for i := range small {
		small[i] = types.InputLogEvent{Message: aws.String("{}"), Timestamp: aws.Int64(int64(i))}
	}
	assert.Equal(t, cloudWatchBatchSize, batchLen(small))
	assert.Equal(t, 1, batchLen(events[:1]))
}

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, params)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink(t *testing.T) {
	client := &fakeS3{}
	started := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	sink := NewS3Sink(client, "audit-bucket", "autoprotect", "run-1", started)

	require.NoError(t, sink.Write(context.Background(), models.AuditRecord{Function: "a"}))
	require.NoError(t, sink.Write(context.Background(), models.AuditRecord{Function: "b"}))
	assert.Empty(t, client.inputs, "uploaded once on close")

	require.NoError(t, sink.Close(context.Background()))
	require.Len(t, client.inputs, 1)

	in := client.inputs[0]
	assert.Equal(t, "audit-bucket", aws.ToString(in.Bucket))
	assert.Equal(t, "autoprotect/2026/03/01/run-1.jsonl", aws.ToString(in.Key))
	assert.Equal(t, "*", aws.ToString(in.IfNoneMatch))
	assert.Len(t, decode(t, bytes.NewReader(client.bodies[0])), 2)
}

func TestS3SinkSkipsEmptyRun(t *testing.T) {
	client := &fakeS3{}
	sink := NewS3Sink(client, "audit-bucket", "", "run-1", time.Now())

	require.NoError(t, sink.Close(context.Background()))
	assert.Empty(t, client.inputs)
}

func TestObjectKey(t *testing.T) {
	local := time.Date(2026, 3, 2, 1, 0, 0, 0, time.FixedZone("KST", 9*3600))
	assert.Equal(t, "2026/03/01/run-1.jsonl", ObjectKey("", "run-1", local), "dates are UTC")
}
