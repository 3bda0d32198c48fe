package risk

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/younsl/autoprotect/internal/config"
	"github.com/younsl/autoprotect/internal/models"
	"github.com/younsl/autoprotect/internal/protection"
)

// DefaultChecks returns the checks in priority order. The first five are the core
// platform constraints; the rest guard against unreadable state, quota and stability failures.
func DefaultChecks() []Check {
	return []Check{
		{Reason: models.ReasonPackageType, Eval: checkPackageType},
		{Reason: models.ReasonArchitecture, Eval: checkArchitecture},
		{Reason: models.ReasonRuntime, Eval: checkRuntime},
		{Reason: models.ReasonMemory, Eval: checkMemory},
		{Reason: models.ReasonTimeout, Eval: checkTimeout},
		{Reason: models.ReasonEnvironment, Eval: checkEnvironmentReadable},
		{Reason: models.ReasonLayerCount, Eval: checkLayerCount},
		{Reason: models.ReasonCodeSize, Eval: checkCodeSize},
		{Reason: models.ReasonEnvironmentSize, Eval: checkEnvironmentSize},
		{Reason: models.ReasonWrapperConflict, Eval: checkWrapperConflict},
		{Reason: models.ReasonSnapStart, Eval: checkSnapStart},
		{Reason: models.ReasonProvisionedConcurrency, Eval: checkProvisionedConcurrency},
		{Reason: models.ReasonThrottled, Eval: checkThrottles},
		{Reason: models.ReasonConcurrencySaturation, Eval: checkConcurrencySaturation},
	}
}

// Container images cannot take layers; the agent must be built into the image
func checkPackageType(d models.FunctionDescriptor, _ config.Config) error {
	if d.PackageType == "" {
		return missing("package type")
	}
	if d.PackageType != models.PackageTypeZip {
		return fmt.Errorf("deployed as %s package, instrument at image build time", d.PackageType)
	}
	return nil
}

// The layer ships native binaries for a single instruction set
func checkArchitecture(d models.FunctionDescriptor, cfg config.Config) error {
	if d.Architecture == "" {
		return missing("architecture")
	}
	if d.Architecture != cfg.Protection.Architecture {
		return fmt.Errorf("architecture %s not supported by the security layer (requires %s)",
			d.Architecture, cfg.Protection.Architecture)
	}
	return nil
}

func checkRuntime(d models.FunctionDescriptor, cfg config.Config) error {
	if d.Runtime == "" {
		return missing("runtime")
	}
	if !cfg.Protection.SupportsRuntime(d.Runtime) {
		return fmt.Errorf("runtime %s does not support the exec wrapper", d.Runtime)
	}
	return nil
}

// The agent has a fixed memory overhead
func checkMemory(d models.FunctionDescriptor, cfg config.Config) error {
	if d.MemoryMB <= 0 {
		return missing("memory size")
	}
	if d.MemoryMB <= cfg.Thresholds.MinMemoryMB {
		return fmt.Errorf("memory %dMB at or below minimum %dMB, risk of OOM",
			d.MemoryMB, cfg.Thresholds.MinMemoryMB)
	}
	return nil
}

func checkTimeout(d models.FunctionDescriptor, cfg config.Config) error {
	if d.TimeoutSeconds <= 0 {
		return missing("timeout")
	}
	limit := cfg.Thresholds.TimeoutLimit()
	if d.TimeoutSeconds >= limit {
		return fmt.Errorf("timeout %ds at or above %ds (ceiling %ds minus buffer %ds)",
			d.TimeoutSeconds, limit, cfg.Thresholds.PlatformTimeoutCeilingSeconds, cfg.Thresholds.TimeoutBufferSeconds)
	}
	return nil
}

// The update replaces the whole variable set, so it needs the current variables in full
func checkEnvironmentReadable(d models.FunctionDescriptor, _ config.Config) error {
	if d.EnvironmentError != "" {
		return missing("environment (" + d.EnvironmentError + ")")
	}
	return nil
}

// An attached security layer is reused, so only a new attachment needs a free slot
func checkLayerCount(d models.FunctionDescriptor, cfg config.Config) error {
	if protection.HasSecurityLayer(d, cfg.Protection) {
		return nil
	}
	if len(d.Layers) >= cfg.Thresholds.MaxLayers {
		return fmt.Errorf("%d layers attached, maximum is %d", len(d.Layers), cfg.Thresholds.MaxLayers)
	}
	return nil
}

func checkCodeSize(d models.FunctionDescriptor, cfg config.Config) error {
	if d.PackageType == models.PackageTypeZip && d.CodeSizeBytes <= 0 {
		return missing("code size")
	}
	total := d.CodeSizeBytes
	if !protection.HasSecurityLayer(d, cfg.Protection) {
		total += cfg.Protection.LayerSizeBytes
	}
	if total > cfg.Thresholds.CodeSizeCeilingBytes {
		return fmt.Errorf("code size with layer %s exceeds ceiling %s",
			humanize.IBytes(uint64(total)), humanize.IBytes(uint64(cfg.Thresholds.CodeSizeCeilingBytes)))
	}
	return nil
}

// Lambda rejects the update outright when variables exceed the quota
func checkEnvironmentSize(d models.FunctionDescriptor, cfg config.Config) error {
	planned := protection.Plan(d, cfg.Protection)
	size := protection.EnvironmentSize(planned.Environment)
	if size > cfg.Thresholds.MaxEnvironmentBytes {
		return fmt.Errorf("environment would be %s, quota is %s",
			humanize.Bytes(uint64(size)), humanize.Bytes(uint64(cfg.Thresholds.MaxEnvironmentBytes)))
	}
	return nil
}

// Another extension already owns the entry point
func checkWrapperConflict(d models.FunctionDescriptor, cfg config.Config) error {
	name := cfg.Protection.WrapperVariable.Name
	current, ok := d.Environment[name]
	if ok && current != "" && current != cfg.Protection.WrapperVariable.Value {
		return fmt.Errorf("%s already set to %q", name, current)
	}
	return nil
}

// Configuration changes on SnapStart functions only take effect after publishing a version
func checkSnapStart(d models.FunctionDescriptor, _ config.Config) error {
	if d.SnapStart {
		return errors.New("SnapStart enabled, layer changes require version publishing")
	}
	return nil
}

func deepSignals(d models.FunctionDescriptor, cfg config.Config) (*models.RuntimeSignals, error) {
	if !cfg.Inspection.Deep {
		return nil, nil
	}
	if d.Signals == nil {
		return nil, missing("runtime signals")
	}
	return d.Signals, nil
}

// Changing layers recycles every provisioned instance
func checkProvisionedConcurrency(d models.FunctionDescriptor, cfg config.Config) error {
	signals, err := deepSignals(d, cfg)
	if signals == nil {
		return err
	}
	if signals.ProvisionedConcurrency {
		return errors.New("provisioned concurrency configured, update would re-provision warm instances")
	}
	return nil
}

func checkThrottles(d models.FunctionDescriptor, cfg config.Config) error {
	signals, err := deepSignals(d, cfg)
	if signals == nil {
		return err
	}
	if signals.Throttles > 0 {
		return fmt.Errorf("%s throttles in the last %s",
			humanize.Comma(int64(signals.Throttles)), shortDuration(cfg.Inspection.ThrottleLookback))
	}
	return nil
}

// Added latency pushes a function near its reserved concurrency into throttling
func checkConcurrencySaturation(d models.FunctionDescriptor, cfg config.Config) error {
	signals, err := deepSignals(d, cfg)
	if signals == nil {
		return err
	}
	if signals.ReservedConcurrency <= 0 {
		return nil
	}
	limit := float64(signals.ReservedConcurrency) * cfg.Inspection.ConcurrencyHeadroom
	if signals.PeakConcurrency > limit {
		return fmt.Errorf("peak concurrency %.0f of %d reserved exceeds %.0f%% headroom",
			signals.PeakConcurrency, signals.ReservedConcurrency, cfg.Inspection.ConcurrencyHeadroom*100)
	}
	return nil
}

func shortDuration(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return d.String()
}
