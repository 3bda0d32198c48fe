// Package protection defines what "protected" means for a function and
// computes the configuration change that makes it so.
package protection

import (
	"slices"
	"strings"

	"github.com/younsl/autoprotect/internal/config"
	"github.com/younsl/autoprotect/internal/models"
	"github.com/younsl/autoprotect/pkg/utils"
)

// LayerName strips the version from a layer version ARN.
// arn:aws:lambda:us-east-1:123456789012:layer:defender:7 -> arn:aws:lambda:us-east-1:123456789012:layer:defender
func LayerName(layerARN string) string {
	if strings.Count(layerARN, ":") < 7 {
		return layerARN
	}
	return layerARN[:strings.LastIndexByte(layerARN, ':')]
}

// HasSecurityLayer reports whether any version of the security layer is attached
func HasSecurityLayer(d models.FunctionDescriptor, p config.Protection) bool {
	want := LayerName(p.LayerARNFor(d.Region))
	for _, layer := range d.Layers {
		if LayerName(layer) == want {
			return true
		}
		for _, match := range p.LayerNameMatch {
			if match != "" && strings.Contains(layer, match) {
				return true
			}
		}
	}
	return false
}

// HasWrapper reports whether the wrapper variable is set to the configured value
func HasWrapper(d models.FunctionDescriptor, p config.Protection) bool {
	v, ok := d.Environment[p.WrapperVariable.Name]
	return ok && v == p.WrapperVariable.Value
}

// HasMarker reports whether the protection marker tag is present
func HasMarker(d models.FunctionDescriptor, p config.Protection) bool {
	switch {
	case p.MarkerTag.Key == "":
		return false
	case p.MarkerTag.Value == "":
		return utils.HasTag(d.Tags, p.MarkerTag.Key)
	}
	return utils.HasTagWithValue(d.Tags, p.MarkerTag.Key, p.MarkerTag.Value)
}

// IsProtected is true when the marker tag is set, or both the layer and the wrapper are in place.
// A half-applied change (layer without wrapper) is not protected and gets completed on the next run.
func IsProtected(d models.FunctionDescriptor, p config.Protection) bool {
	if HasMarker(d, p) {
		return true
	}
	return HasSecurityLayer(d, p) && HasWrapper(d, p)
}

// Plan computes the change for a function: layer appended (never replaced), variables
// merged into the existing environment and the marker tag set.
func Plan(d models.FunctionDescriptor, p config.Protection) models.Change {
	change := models.Change{
		Layers: slices.Clone(d.Layers),
	}

	if !HasSecurityLayer(d, p) {
		layer := p.LayerARNFor(d.Region)
		change.Layers = append(change.Layers, layer)
		change.AddedLayer = layer
	}

	added := make(map[string]string, 2)
	if d.Environment[p.WrapperVariable.Name] != p.WrapperVariable.Value {
		added[p.WrapperVariable.Name] = p.WrapperVariable.Value
		change.AddedVariables = append(change.AddedVariables, p.WrapperVariable.Name)
	}
	if p.PolicyVariable != "" {
		if _, ok := d.Environment[p.PolicyVariable]; !ok {
			added[p.PolicyVariable] = d.Name
			change.AddedVariables = append(change.AddedVariables, p.PolicyVariable)
		}
	}
	change.Environment = utils.MergeTags(d.Environment, added)

	if p.MarkerTag.Key != "" && !HasMarker(d, p) {
		change.Tags = map[string]string{p.MarkerTag.Key: p.MarkerTag.Value}
	}

	return change
}

// EnvironmentSize is the byte size Lambda counts against the 4 KB quota
func EnvironmentSize(env map[string]string) int {
	size := 0
	for k, v := range env {
		size += len(k) + len(v)
	}
	return size
}
