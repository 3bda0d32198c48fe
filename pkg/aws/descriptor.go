package aws

import (
	"maps"

	lambdaTypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/younsl/autoprotect/internal/models"
	"github.com/younsl/autoprotect/pkg/utils"
)

// toDescriptor converts an SDK function configuration into a descriptor.
// Missing fields stay at their zero value so the risk engine reports them as inconclusive.
func toDescriptor(region string, fc lambdaTypes.FunctionConfiguration, tags map[string]string) models.FunctionDescriptor {
	d := models.FunctionDescriptor{
		Name:           utils.SafeDeref(fc.FunctionName),
		ARN:            utils.SafeDeref(fc.FunctionArn),
		Region:         region,
		PackageType:    string(fc.PackageType),
		Runtime:        string(fc.Runtime),
		MemoryMB:       utils.SafeDerefInt32(fc.MemorySize),
		TimeoutSeconds: utils.SafeDerefInt32(fc.Timeout),
		CodeSizeBytes:  fc.CodeSize,
		RevisionID:     utils.SafeDeref(fc.RevisionId),
		Environment:    map[string]string{},
		Tags:           map[string]string{},
	}

	if len(fc.Architectures) > 0 {
		d.Architecture = string(fc.Architectures[0])
	}

	for _, layer := range fc.Layers {
		if layer.Arn != nil {
			d.Layers = append(d.Layers, *layer.Arn)
		}
	}

	if fc.Environment != nil {
		maps.Copy(d.Environment, fc.Environment.Variables)
		if e := fc.Environment.Error; e != nil {
			d.EnvironmentError = utils.SafeDeref(e.ErrorCode)
			if msg := utils.SafeDeref(e.Message); msg != "" {
				d.EnvironmentError += ": " + msg
			}
			if d.EnvironmentError == "" {
				d.EnvironmentError = "unreadable"
			}
		}
	}
	maps.Copy(d.Tags, tags)

	if fc.SnapStart != nil && fc.SnapStart.ApplyOn == lambdaTypes.SnapStartApplyOnPublishedVersions {
		d.SnapStart = true
	}
	if fc.VpcConfig != nil && len(fc.VpcConfig.SubnetIds) > 0 {
		d.VPC = true
	}

	return d
}

