package aws

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdaTypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/younsl/autoprotect/internal/config"
	"github.com/younsl/autoprotect/internal/models"
	"github.com/younsl/autoprotect/internal/protection"
)

// LambdaAPI is the subset of the Lambda control plane the engine consumes
type LambdaAPI interface {
	ListFunctions(ctx context.Context, params *lambda.ListFunctionsInput, optFns ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error)
	ListTags(ctx context.Context, params *lambda.ListTagsInput, optFns ...func(*lambda.Options)) (*lambda.ListTagsOutput, error)
	GetFunction(ctx context.Context, params *lambda.GetFunctionInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error)
	GetFunctionConfiguration(ctx context.Context, params *lambda.GetFunctionConfigurationInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionConfigurationOutput, error)
	UpdateFunctionConfiguration(ctx context.Context, params *lambda.UpdateFunctionConfigurationInput, optFns ...func(*lambda.Options)) (*lambda.UpdateFunctionConfigurationOutput, error)
	TagResource(ctx context.Context, params *lambda.TagResourceInput, optFns ...func(*lambda.Options)) (*lambda.TagResourceOutput, error)
	ListProvisionedConcurrencyConfigs(ctx context.Context, params *lambda.ListProvisionedConcurrencyConfigsInput, optFns ...func(*lambda.Options)) (*lambda.ListProvisionedConcurrencyConfigsOutput, error)
	GetFunctionConcurrency(ctx context.Context, params *lambda.GetFunctionConcurrencyInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionConcurrencyOutput, error)
	ListAliases(ctx context.Context, params *lambda.ListAliasesInput, optFns ...func(*lambda.Options)) (*lambda.ListAliasesOutput, error)
}

// CloudWatchAPI is the metrics API used by deep inspection
type CloudWatchAPI interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

// LambdaClient reads and updates the functions of one region
type LambdaClient struct {
	api      LambdaAPI
	cwClient CloudWatchAPI
	region   string
	logger   *slog.Logger
}

// NewLambdaClient creates a LambdaClient from a region config
func NewLambdaClient(cfg aws.Config, logger *slog.Logger) *LambdaClient {
	return NewLambdaClientWithAPI(cfg.Region, lambda.NewFromConfig(cfg), cloudwatch.NewFromConfig(cfg), logger)
}

// NewLambdaClientWithAPI creates a LambdaClient over existing API clients
func NewLambdaClientWithAPI(region string, api LambdaAPI, cw CloudWatchAPI, logger *slog.Logger) *LambdaClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &LambdaClient{
		api:      api,
		cwClient: cw,
		region:   region,
		logger:   logger.With("region", region),
	}
}

// Region returns the client's region
func (c *LambdaClient) Region() string {
	return c.region
}

// Discover lazily enumerates every function in the region, following continuation
// markers to the end. Excluded and already protected functions are classified here so
// they never reach assessment. A listing failure yields a *DiscoveryError and ends the
// sequence; functions already yielded stay valid.
func (c *LambdaClient) Discover(ctx context.Context, cfg config.Config) iter.Seq2[models.Discovery, error] {
	return func(yield func(models.Discovery, error) bool) {
		paginator := lambda.NewListFunctionsPaginator(c.api, &lambda.ListFunctionsInput{})

		page := 0
		for paginator.HasMorePages() {
			page++
			output, err := paginator.NextPage(ctx)
			if err != nil {
				yield(models.Discovery{}, &DiscoveryError{Region: c.region, Page: page, Err: err})
				return
			}

			c.logger.Debug("listed functions page", "page", page, "count", len(output.Functions))

			for _, function := range output.Functions {
				if !yield(c.classify(ctx, function, cfg), nil) {
					return
				}
			}
		}
	}
}

// classify builds the descriptor and applies exclusion and protection filters.
// Exclusion wins over everything and needs no extra API call.
func (c *LambdaClient) classify(ctx context.Context, function lambdaTypes.FunctionConfiguration, cfg config.Config) models.Discovery {
	descriptor := toDescriptor(c.region, function, nil)

	if cfg.IsExcluded(descriptor.Name, descriptor.ARN) {
		return models.Discovery{Descriptor: descriptor, State: models.DiscoveryExcluded}
	}

	tags, err := c.api.ListTags(ctx, &lambda.ListTagsInput{Resource: function.FunctionArn})
	if err != nil {
		return models.Discovery{
			Descriptor: descriptor,
			State:      models.DiscoveryCandidate,
			Err:        fmt.Errorf("error listing tags for %s: %w", descriptor.Name, err),
		}
	}
	descriptor.Tags = tags.Tags

	if protection.IsProtected(descriptor, cfg.Protection) {
		return models.Discovery{Descriptor: descriptor, State: models.DiscoveryAlreadyProtected}
	}

	return models.Discovery{Descriptor: descriptor, State: models.DiscoveryCandidate}
}

// Describe re-reads the current configuration and tags of a function
func (c *LambdaClient) Describe(ctx context.Context, name string) (models.FunctionDescriptor, error) {
	output, err := c.api.GetFunction(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(name)})
	if err != nil {
		return models.FunctionDescriptor{}, fmt.Errorf("error getting function %s: %w", name, err)
	}
	if output.Configuration == nil {
		return models.FunctionDescriptor{}, fmt.Errorf("function %s returned no configuration", name)
	}
	return toDescriptor(c.region, *output.Configuration, output.Tags), nil
}

// UpdateConfiguration writes the full layer list and environment in one call.
// The revision ID makes the update fail if the function changed after it was read.
func (c *LambdaClient) UpdateConfiguration(ctx context.Context, d models.FunctionDescriptor, change models.Change) error {
	input := &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(d.Name),
		Layers:       change.Layers,
		Environment:  &lambdaTypes.Environment{Variables: change.Environment},
	}
	if d.RevisionID != "" {
		input.RevisionId = aws.String(d.RevisionID)
	}

	if _, err := c.api.UpdateFunctionConfiguration(ctx, input); err != nil {
		return fmt.Errorf("error updating function configuration for %s: %w", d.Name, err)
	}
	return nil
}

// Tag sets resource tags on a function
func (c *LambdaClient) Tag(ctx context.Context, functionARN string, tags map[string]string) error {
	if len(tags) == 0 {
		return nil
	}
	_, err := c.api.TagResource(ctx, &lambda.TagResourceInput{
		Resource: aws.String(functionARN),
		Tags:     tags,
	})
	if err != nil {
		return fmt.Errorf("error tagging %s: %w", functionARN, err)
	}
	return nil
}
