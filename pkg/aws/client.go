package aws

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"golang.org/x/time/rate"

	"github.com/younsl/autoprotect/internal/version"
	"github.com/younsl/autoprotect/pkg/utils"
)

// ClientOptions controls retries and rate limiting shared by every client of a run
type ClientOptions struct {
	Limiter     *rate.Limiter // Shared token bucket; nil disables client-side limiting
	Stats       *CallStats    // Call counters; nil disables recording
	MaxAttempts int           // Attempts per call including the first, retried only on transient errors
	MaxBackoff  time.Duration // Upper bound of the exponential backoff between attempts
}

// LoadRegionConfig loads the default credential chain for a region with the standard
// retryer (exponential backoff on throttling and transient transport errors) and the
// shared rate limiter installed on every operation.
func LoadRegionConfig(ctx context.Context, region string, opts ClientOptions) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithAppID(version.Get().AppID()),
		config.WithRetryer(func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				if opts.MaxAttempts > 0 {
					o.MaxAttempts = opts.MaxAttempts
				}
				if opts.MaxBackoff > 0 {
					o.MaxBackoff = opts.MaxBackoff
				}
			})
		}),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config for region %s: %w", region, err)
	}

	if opts.Limiter != nil || opts.Stats != nil {
		cfg.APIOptions = append(cfg.APIOptions, callMiddleware(region, opts.Limiter, opts.Stats))
	}

	return cfg, nil
}

// DefaultRegion resolves the region to scan when none is configured:
// AWS_REGION, AWS_DEFAULT_REGION, EC2 instance metadata, then us-east-1.
func DefaultRegion(ctx context.Context) string {
	for _, name := range []string{"AWS_REGION", "AWS_DEFAULT_REGION"} {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	client := imds.New(imds.Options{})
	out, err := client.GetRegion(ctx, &imds.GetRegionInput{})
	if err == nil && out.Region != "" {
		return out.Region
	}

	return utils.GetDefaultRegion()
}
