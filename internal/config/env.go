package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Environment variable prefix
const envPrefix = "AUTOPROTECT_"

// loadEnv overrides file values with AUTOPROTECT_* variables.
// Malformed values are rejected instead of silently ignored.
func loadEnv(cfg *Config, getenv func(string) string) error {
	var errs []string

	lookup := func(name string) (string, bool) {
		v := strings.TrimSpace(getenv(envPrefix + name))
		return v, v != ""
	}
	setInt32 := func(name string, dst *int32) {
		if v, ok := lookup(name); ok {
			n, err := strconv.ParseInt(v, 10, 32)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", envPrefix, name, err))
				return
			}
			*dst = int32(n)
		}
	}
	setInt := func(name string, dst *int) {
		if v, ok := lookup(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	setInt64 := func(name string, dst *int64) {
		if v, ok := lookup(name); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	setBool := func(name string, dst *bool) {
		if v, ok := lookup(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", envPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if v, ok := lookup(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", envPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	setString := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	setList := func(name string, dst *[]string) {
		if v, ok := lookup(name); ok {
			*dst = splitList(v)
		}
	}

	// Thresholds
	setInt32("MIN_MEMORY_MB", &cfg.Thresholds.MinMemoryMB)
	setInt32("TIMEOUT_BUFFER_SECONDS", &cfg.Thresholds.TimeoutBufferSeconds)
	setInt32("PLATFORM_TIMEOUT_CEILING_SECONDS", &cfg.Thresholds.PlatformTimeoutCeilingSeconds)
	setInt("MAX_LAYERS", &cfg.Thresholds.MaxLayers)
	setInt64("CODE_SIZE_CEILING_BYTES", &cfg.Thresholds.CodeSizeCeilingBytes)
	setInt("MAX_ENVIRONMENT_BYTES", &cfg.Thresholds.MaxEnvironmentBytes)

	// Scope
	setList("REGIONS", &cfg.Regions)
	setBool("DRY_RUN", &cfg.DryRun)
	if v, ok := lookup("EXCLUSIONS"); ok {
		cfg.Exclusions = append(cfg.Exclusions, splitList(v)...)
	}
	setString("EXCLUSION_FILE", &cfg.ExclusionFile)

	// Protection artifacts
	setString("LAYER_ARN", &cfg.Protection.LayerARN)
	setString("WRAPPER_NAME", &cfg.Protection.WrapperVariable.Name)
	setString("WRAPPER_VALUE", &cfg.Protection.WrapperVariable.Value)
	setString("POLICY_VARIABLE", &cfg.Protection.PolicyVariable)
	setString("MARKER_TAG_KEY", &cfg.Protection.MarkerTag.Key)
	setString("MARKER_TAG_VALUE", &cfg.Protection.MarkerTag.Value)

	// Concurrency
	setInt("WORKERS", &cfg.Concurrency.WorkersPerRegion)
	setDuration("RUN_BUDGET", &cfg.Concurrency.RunBudget)

	// Inspection
	setBool("DEEP_INSPECTION", &cfg.Inspection.Deep)

	// Sinks
	setString("AUDIT_FILE", &cfg.Audit.File)
	setString("AUDIT_LOG_GROUP", &cfg.Audit.CloudWatchLogGroup)
	setString("AUDIT_S3_BUCKET", &cfg.Audit.S3Bucket)
	setString("PUSHGATEWAY_URL", &cfg.Metrics.PushgatewayURL)
	setString("LOG_LEVEL", &cfg.Log.Level)
	setString("LOG_FORMAT", &cfg.Log.Format)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// splitList splits a comma separated value, dropping empty items
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
