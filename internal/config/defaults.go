package config

import "time"

// Default values
const (
	DefaultMinMemoryMB            = 256
	DefaultTimeoutBufferSeconds   = 30
	DefaultPlatformTimeoutSeconds = 900       // Lambda hard limit (15 minutes)
	DefaultMaxLayers              = 5         // Lambda layer limit per function
	DefaultCodeSizeCeilingBytes   = 262144000 // 250 MB unzipped, including layers
	DefaultMaxEnvironmentBytes    = 4096      // Lambda environment variable quota
	DefaultArchitecture           = "x86_64"
	DefaultWrapperVariable        = "AWS_LAMBDA_EXEC_WRAPPER"
)

// DefaultRuntimes are the managed runtimes that honor AWS_LAMBDA_EXEC_WRAPPER
var DefaultRuntimes = []string{
	"python3.8", "python3.9", "python3.10", "python3.11", "python3.12",
	"nodejs16.x", "nodejs18.x", "nodejs20.x",
}

// Default returns the built-in configuration. DryRun is on so an unconfigured run never mutates.
func Default() Config {
	return Config{
		Thresholds: Thresholds{
			MinMemoryMB:                   DefaultMinMemoryMB,
			TimeoutBufferSeconds:          DefaultTimeoutBufferSeconds,
			PlatformTimeoutCeilingSeconds: DefaultPlatformTimeoutSeconds,
			MaxLayers:                     DefaultMaxLayers,
			CodeSizeCeilingBytes:          DefaultCodeSizeCeilingBytes,
			MaxEnvironmentBytes:           DefaultMaxEnvironmentBytes,
		},
		DryRun: true,
		Protection: Protection{
			Architecture: DefaultArchitecture,
			Runtimes:     append([]string(nil), DefaultRuntimes...),
			WrapperVariable: Variable{
				Name: DefaultWrapperVariable,
			},
			MarkerTag: Tag{
				Key:   "security:auto-protected",
				Value: "true",
			},
		},
		Concurrency: Concurrency{
			WorkersPerRegion:  8,
			RequestsPerSecond: 10,
			Burst:             5,
			MaxAttempts:       5,
			MaxBackoff:        20 * time.Second,
			RunBudget:         14 * time.Minute,
			MutationTimeout:   30 * time.Second,
		},
		Inspection: Inspection{
			ThrottleLookback:    24 * time.Hour,
			ConcurrencyLookback: time.Hour,
			ConcurrencyHeadroom: 0.8,
		},
		Audit: Audit{
			Stdout: true,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}
