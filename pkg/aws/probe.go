package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwTypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdaTypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/younsl/autoprotect/internal/config"
	"github.com/younsl/autoprotect/internal/models"
	"github.com/younsl/autoprotect/internal/protection"
)

const (
	namespaceLambda          = "AWS/Lambda"
	metricThrottles          = "Throttles"
	metricConcurrentExecs    = "ConcurrentExecutions"
	latestVersion            = "$LATEST"
	minMetricPeriodInSeconds = 60
)

// Probe gathers the runtime signals used by deep inspection. Any failure makes the
// signals unusable: the caller must treat the function as inconclusive rather than safe.
func (c *LambdaClient) Probe(ctx context.Context, d models.FunctionDescriptor, cfg config.Config) (models.RuntimeSignals, error) {
	var signals models.RuntimeSignals

	pc, err := c.api.ListProvisionedConcurrencyConfigs(ctx, &lambda.ListProvisionedConcurrencyConfigsInput{
		FunctionName: aws.String(d.Name),
	})
	if err != nil {
		return signals, fmt.Errorf("error listing provisioned concurrency for %s: %w", d.Name, err)
	}
	signals.ProvisionedConcurrency = len(pc.ProvisionedConcurrencyConfigs) > 0

	concurrency, err := c.api.GetFunctionConcurrency(ctx, &lambda.GetFunctionConcurrencyInput{
		FunctionName: aws.String(d.Name),
	})
	if err != nil {
		return signals, fmt.Errorf("error getting reserved concurrency for %s: %w", d.Name, err)
	}
	if concurrency.ReservedConcurrentExecutions != nil {
		signals.ReservedConcurrency = *concurrency.ReservedConcurrentExecutions
	}

	if c.cwClient == nil {
		return signals, fmt.Errorf("cloudwatch client not configured for %s", c.region)
	}

	throttles, err := c.metricStatistic(ctx, d.Name, metricThrottles, cwTypes.StatisticSum, cfg.Inspection.ThrottleLookback)
	if err != nil {
		return signals, err
	}
	signals.Throttles = throttles

	if signals.ReservedConcurrency > 0 {
		peak, err := c.metricStatistic(ctx, d.Name, metricConcurrentExecs, cwTypes.StatisticMaximum, cfg.Inspection.ConcurrencyLookback)
		if err != nil {
			return signals, err
		}
		signals.PeakConcurrency = peak
	}

	if cfg.Inspection.AliasAudit {
		signals.UnprotectedAliases = c.unprotectedAliases(ctx, d, cfg)
	}

	return signals, nil
}

// metricStatistic aggregates a Lambda metric over the lookback window as a single datapoint
func (c *LambdaClient) metricStatistic(ctx context.Context, functionName, metric string, stat cwTypes.Statistic, lookback time.Duration) (float64, error) {
	endTime := time.Now()
	startTime := endTime.Add(-lookback)

	period := int32(lookback.Seconds())
	period -= period % minMetricPeriodInSeconds
	if period < minMetricPeriodInSeconds {
		period = minMetricPeriodInSeconds
	}

	output, err := c.cwClient.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(namespaceLambda),
		MetricName: aws.String(metric),
		Dimensions: []cwTypes.Dimension{
			{
				Name:  aws.String("FunctionName"),
				Value: aws.String(functionName),
			},
		},
		StartTime:  aws.Time(startTime),
		EndTime:    aws.Time(endTime),
		Period:     aws.Int32(period),
		Statistics: []cwTypes.Statistic{stat},
	})
	if err != nil {
		return 0, fmt.Errorf("error getting %s metric for %s: %w", metric, functionName, err)
	}

	var value float64
	for _, datapoint := range output.Datapoints {
		switch stat {
		case cwTypes.StatisticSum:
			value += aws.ToFloat64(datapoint.Sum)
		case cwTypes.StatisticMaximum:
			value = max(value, aws.ToFloat64(datapoint.Maximum))
		}
	}
	return value, nil
}

// unprotectedAliases lists aliases whose published version lacks protection.
// Published versions are immutable, so this is reported, never fixed.
func (c *LambdaClient) unprotectedAliases(ctx context.Context, d models.FunctionDescriptor, cfg config.Config) []string {
	var result []string

	paginator := lambda.NewListAliasesPaginator(c.api, &lambda.ListAliasesInput{FunctionName: aws.String(d.Name)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			c.logger.Warn("alias audit failed", "function", d.Name, "error", err)
			return result
		}

		for _, alias := range page.Aliases {
			version := aws.ToString(alias.FunctionVersion)
			if version == "" || version == latestVersion {
				continue
			}

			out, err := c.api.GetFunctionConfiguration(ctx, &lambda.GetFunctionConfigurationInput{
				FunctionName: aws.String(d.Name),
				Qualifier:    aws.String(version),
			})
			if err != nil {
				c.logger.Warn("alias audit failed", "function", d.Name, "alias", aws.ToString(alias.Name), "error", err)
				continue
			}

			published := toDescriptor(c.region, lambdaTypes.FunctionConfiguration{
				FunctionName: out.FunctionName,
				Layers:       out.Layers,
				Environment:  out.Environment,
			}, nil)
			if !protection.HasSecurityLayer(published, cfg.Protection) || !protection.HasWrapper(published, cfg.Protection) {
				result = append(result, fmt.Sprintf("%s->%s", aws.ToString(alias.Name), version))
			}
		}
	}

	return result
}
