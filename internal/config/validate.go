package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/go-playground/validator/v10"
	"github.com/younsl/autoprotect/pkg/utils"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the relations between fields
func (c Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	}

	t := c.Thresholds
	if t.TimeoutBufferSeconds >= t.PlatformTimeoutCeilingSeconds {
		problems = append(problems, fmt.Sprintf("thresholds: timeout buffer %ds must be below platform ceiling %ds",
			t.TimeoutBufferSeconds, t.PlatformTimeoutCeilingSeconds))
	}

	for _, region := range c.Regions {
		if !utils.IsValidRegion(region) {
			problems = append(problems, fmt.Sprintf("regions: unknown region %q", region))
			continue
		}
		if err := validateLayerARN(c.Protection.LayerARNFor(region), region); err != nil {
			problems = append(problems, fmt.Sprintf("protection: %v", err))
		}
	}

	if c.Protection.MarkerTag.Key == "" && c.Protection.MarkerTag.Value != "" {
		problems = append(problems, "protection.markerTag: value set without a key")
	}
	if strings.HasPrefix(strings.ToLower(c.Protection.MarkerTag.Key), "aws:") {
		problems = append(problems, "protection.markerTag: keys with the aws: prefix are reserved")
	}
	if c.Protection.PolicyVariable != "" && c.Protection.PolicyVariable == c.Protection.WrapperVariable.Name {
		problems = append(problems, "protection.policyVariable: must differ from the wrapper variable")
	}

	a := c.Audit
	if !a.Stdout && a.File == "" && a.CloudWatchLogGroup == "" && a.S3Bucket == "" {
		problems = append(problems, "audit: at least one sink (stdout, file, cloudWatchLogGroup, s3Bucket) is required")
	}
	if a.Region != "" && !utils.IsValidRegion(a.Region) {
		problems = append(problems, fmt.Sprintf("audit.region: unknown region %q", a.Region))
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// validateLayerARN requires a Lambda layer version ARN in the same region as the functions
func validateLayerARN(layerARN, region string) error {
	if layerARN == "" {
		return fmt.Errorf("no security layer ARN for region %s", region)
	}
	parsed, err := arn.Parse(layerARN)
	if err != nil {
		return fmt.Errorf("layer ARN %q: %w", layerARN, err)
	}
	if parsed.Service != "lambda" || !strings.HasPrefix(parsed.Resource, "layer:") {
		return fmt.Errorf("layer ARN %q is not a Lambda layer", layerARN)
	}
	if strings.Count(parsed.Resource, ":") != 2 {
		return fmt.Errorf("layer ARN %q has no version", layerARN)
	}
	if parsed.Region != region {
		return fmt.Errorf("layer ARN %q is in %s, functions are in %s", layerARN, parsed.Region, region)
	}
	return nil
}
