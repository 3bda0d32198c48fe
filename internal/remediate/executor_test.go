package remediate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/younsl/autoprotect/internal/config"
	"github.com/younsl/autoprotect/internal/fakelambda"
	"github.com/younsl/autoprotect/internal/models"
	awsclient "github.com/younsl/autoprotect/pkg/aws"
)

const (
	region  = "us-east-1"
	wrapper = "/opt/defender/wrapper"
)

type fixture struct {
	fleet  *fakelambda.Server
	client *awsclient.LambdaClient
	cfg    config.Config
	d      models.FunctionDescriptor
}

func setup(t *testing.T) fixture {
	t.Helper()
	fleet := fakelambda.New(region)
	fleet.Add(fakelambda.Spec{
		Name:        "orders",
		MemoryMB:    512,
		Layers:      []string{"arn:aws:lambda:us-east-1:999999999999:layer:otel:4"},
		Environment: map[string]string{"TABLE": "orders"},
		Tags:        map[string]string{"team": "checkout"},
	})

	cfg := config.Default()
	cfg.Regions = []string{region}
	cfg.Protection.LayerARN = fleet.LayerARN("defender", 7)
	cfg.Protection.WrapperVariable.Value = wrapper

	client := awsclient.NewLambdaClientWithAPI(region, fleet, fleet, nil)
	d, err := client.Describe(context.Background(), "orders")
	require.NoError(t, err)

	return fixture{fleet: fleet, client: client, cfg: cfg, d: d}
}

func TestApply(t *testing.T) {
	f := setup(t)

	result := NewExecutor(f.client, false, time.Second, nil).Apply(context.Background(), f.d, f.cfg.Protection)

	require.Equal(t, models.OutcomeApplied, result.Outcome, "err: %v", result.Err)
	assert.Empty(t, result.Cause)

	spec, _ := f.fleet.Function("orders")
	assert.Equal(t, []string{
		"arn:aws:lambda:us-east-1:999999999999:layer:otel:4",
		f.cfg.Protection.LayerARN,
	}, spec.Layers)
	assert.Equal(t, map[string]string{
		"TABLE":                       "orders",
		config.DefaultWrapperVariable: wrapper,
	}, spec.Environment)
	assert.Equal(t, map[string]string{
		"team":                         "checkout",
		f.cfg.Protection.MarkerTag.Key: f.cfg.Protection.MarkerTag.Value,
	}, spec.Tags)
}

func TestApplyDryRunIsFaithfulPreview(t *testing.T) {
	dry := setup(t)
	wet := setup(t)

	preview := NewExecutor(dry.client, true, time.Second, nil).Apply(context.Background(), dry.d, dry.cfg.Protection)
	applied := NewExecutor(wet.client, false, time.Second, nil).Apply(context.Background(), wet.d, wet.cfg.Protection)

	assert.Equal(t, models.OutcomeDryRunSimulated, preview.Outcome)
	assert.Zero(t, dry.fleet.MutationCount())
	assert.Equal(t, applied.Change, preview.Change)
}

func TestApplyFailures(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		err       error
		wantCause string
	}{
		{name: "throttled", operation: "UpdateFunctionConfiguration", err: fakelambda.APIError("TooManyRequestsException"), wantCause: awsclient.CauseThrottled},
		{name: "access denied", operation: "UpdateFunctionConfiguration", err: fakelambda.APIError("AccessDeniedException"), wantCause: awsclient.CauseAccessDenied},
		{name: "conflict", operation: "UpdateFunctionConfiguration", err: fakelambda.APIError("ResourceConflictException"), wantCause: awsclient.CauseConflict},
		{name: "tagging denied", operation: "TagResource", err: fakelambda.APIError("AccessDeniedException"), wantCause: awsclient.CauseAccessDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			f.fleet.Fail(tt.operation, "orders", tt.err)

			result := NewExecutor(f.client, false, time.Second, nil).Apply(context.Background(), f.d, f.cfg.Protection)

			assert.Equal(t, models.OutcomeFailed, result.Outcome)
			assert.Equal(t, tt.wantCause, result.Cause)
			assert.Error(t, result.Err)
			assert.Equal(t, 1, f.fleet.Calls(tt.operation), "no retry within the run")
		})
	}
}

func TestApplyStaleRevision(t *testing.T) {
	f := setup(t)
	f.fleet.Mutate("orders", func(s *fakelambda.Spec) { s.TimeoutSeconds = 120 })

	result := NewExecutor(f.client, false, time.Second, nil).Apply(context.Background(), f.d, f.cfg.Protection)

	assert.Equal(t, models.OutcomeFailed, result.Outcome)
	assert.Equal(t, awsclient.CausePreconditionFailed, result.Cause)
	assert.Empty(t, f.fleet.TagCalls(), "no tag after a failed update")
}

func TestApplyOnlyTagsWhenConfigurationPresent(t *testing.T) {
	f := setup(t)
	f.d.Layers = append(f.d.Layers, f.cfg.Protection.LayerARN)
	f.d.Environment[config.DefaultWrapperVariable] = wrapper

	result := NewExecutor(f.client, false, time.Second, nil).Apply(context.Background(), f.d, f.cfg.Protection)

	assert.Equal(t, models.OutcomeApplied, result.Outcome)
	assert.Empty(t, f.fleet.Updates())
	assert.Len(t, f.fleet.TagCalls(), 1)
}

type recordingMutator struct {
	ctxErr error
}

func (m *recordingMutator) UpdateConfiguration(ctx context.Context, _ models.FunctionDescriptor, _ models.Change) error {
	m.ctxErr = ctx.Err()
	return nil
}

func (m *recordingMutator) Tag(context.Context, string, map[string]string) error {
	return nil
}

func TestApplyOutlivesCanceledRun(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mutator := &recordingMutator{}
	result := NewExecutor(mutator, false, time.Second, nil).Apply(ctx, f.d, f.cfg.Protection)

	assert.Equal(t, models.OutcomeApplied, result.Outcome)
	assert.False(t, errors.Is(mutator.ctxErr, context.Canceled))
	assert.NoError(t, mutator.ctxErr)
}
