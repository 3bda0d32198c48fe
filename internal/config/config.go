package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the immutable snapshot of thresholds and flags for one run.
// It is loaded once and passed by value; nothing mutates it after Load returns.
type Config struct {
	Thresholds    Thresholds    `yaml:"thresholds"`
	Regions       []string      `yaml:"regions" validate:"required,min=1,unique,dive,required"`
	DryRun        bool          `yaml:"dryRun"`
	Exclusions    []string      `yaml:"exclusions"`
	ExclusionFile string        `yaml:"exclusionFile,omitempty"`
	Protection    Protection    `yaml:"protection"`
	Concurrency   Concurrency   `yaml:"concurrency"`
	Inspection    Inspection    `yaml:"inspection"`
	Audit         Audit         `yaml:"audit"`
	Metrics       Metrics       `yaml:"metrics"`
	Log           Log           `yaml:"log"`
	excluded      map[string]struct{}
}

// Thresholds are the numeric limits used by the risk checks
type Thresholds struct {
	MinMemoryMB                   int32 `yaml:"minMemoryMB" validate:"gt=0"`
	TimeoutBufferSeconds          int32 `yaml:"timeoutBufferSeconds" validate:"gte=0"`
	PlatformTimeoutCeilingSeconds int32 `yaml:"platformTimeoutCeilingSeconds" validate:"gt=0"`
	MaxLayers                     int   `yaml:"maxLayers" validate:"gt=0"`
	CodeSizeCeilingBytes          int64 `yaml:"codeSizeCeilingBytes" validate:"gt=0"`
	MaxEnvironmentBytes           int   `yaml:"maxEnvironmentBytes" validate:"gt=0"`
}

// TimeoutLimit is the exclusive upper bound for a function timeout
func (t Thresholds) TimeoutLimit() int32 {
	return t.PlatformTimeoutCeilingSeconds - t.TimeoutBufferSeconds
}

// Variable is a single environment variable
type Variable struct {
	Name  string `yaml:"name" validate:"required"`
	Value string `yaml:"value" validate:"required"`
}

// Tag is a single resource tag
type Tag struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"` // Empty matches any value of Key
}

// Protection describes the security layer and the artifacts attached with it
type Protection struct {
	LayerARN          string            `yaml:"layerArn"`
	RegionalLayerARNs map[string]string `yaml:"regionalLayerArns,omitempty"`
	LayerNameMatch    []string          `yaml:"layerNameMatch,omitempty"`
	LayerSizeBytes    int64             `yaml:"layerSizeBytes" validate:"gte=0"`
	Architecture      string            `yaml:"architecture" validate:"required"`
	Runtimes          []string          `yaml:"runtimes" validate:"required,min=1"`
	WrapperVariable   Variable          `yaml:"wrapperVariable"`
	PolicyVariable    string            `yaml:"policyVariable,omitempty"`
	MarkerTag         Tag               `yaml:"markerTag"`
}

// LayerARNFor returns the security layer ARN to attach in the given region
func (p Protection) LayerARNFor(region string) string {
	if arn, ok := p.RegionalLayerARNs[region]; ok && arn != "" {
		return arn
	}
	return p.LayerARN
}

// SupportsRuntime reports whether the injection mechanism works on the runtime
func (p Protection) SupportsRuntime(runtime string) bool {
	return slices.Contains(p.Runtimes, runtime)
}

// Concurrency bounds parallelism, API rate and the run budget
type Concurrency struct {
	WorkersPerRegion  int           `yaml:"workersPerRegion" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond" validate:"gt=0"`
	Burst             int           `yaml:"burst" validate:"gt=0"`
	MaxAttempts       int           `yaml:"maxAttempts" validate:"gt=0"`
	MaxBackoff        time.Duration `yaml:"maxBackoff" validate:"gt=0"`
	RunBudget         time.Duration `yaml:"runBudget" validate:"gt=0"`
	MutationTimeout   time.Duration `yaml:"mutationTimeout" validate:"gt=0"`
}

// Inspection enables the checks that need extra API calls
type Inspection struct {
	Deep                bool          `yaml:"deep"`
	ThrottleLookback    time.Duration `yaml:"throttleLookback" validate:"gt=0"`
	ConcurrencyLookback time.Duration `yaml:"concurrencyLookback" validate:"gt=0"`
	ConcurrencyHeadroom float64       `yaml:"concurrencyHeadroom" validate:"gt=0,lte=1"`
	AliasAudit          bool          `yaml:"aliasAudit"`
}

// Audit selects the audit sinks
type Audit struct {
	File               string `yaml:"file,omitempty"`
	Stdout             bool   `yaml:"stdout"`
	CloudWatchLogGroup string `yaml:"cloudWatchLogGroup,omitempty"`
	S3Bucket           string `yaml:"s3Bucket,omitempty"`
	S3Prefix           string `yaml:"s3Prefix,omitempty"`
	Region             string `yaml:"region,omitempty"`
}

// Metrics configures the Prometheus Pushgateway export
type Metrics struct {
	PushgatewayURL string `yaml:"pushgatewayURL,omitempty" validate:"omitempty,url"`
}

// Log configures operational logging
type Log struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text dev"`
}

// ConfigurationError is fatal: the run aborts before any assessment
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Overrides carries CLI flags; nil fields are not applied
type Overrides struct {
	Regions    []string
	DryRun     *bool
	Exclusions []string
	Workers    *int
	LogLevel   *string
	LogFormat  *string
}

// Option customizes Load
type Option func(*loadOptions)

type loadOptions struct {
	overrides     Overrides
	defaultRegion func() string
	getenv        func(string) string
}

// WithOverrides applies CLI flag values after the file and environment
func WithOverrides(o Overrides) Option {
	return func(lo *loadOptions) { lo.overrides = o }
}

// WithDefaultRegion resolves a region when none is configured
func WithDefaultRegion(fn func() string) Option {
	return func(lo *loadOptions) { lo.defaultRegion = fn }
}

// WithGetenv replaces os.Getenv, used by tests
func WithGetenv(fn func(string) string) Option {
	return func(lo *loadOptions) { lo.getenv = fn }
}

// Load builds the configuration with priority: flags > env > file > defaults
func Load(path string, opts ...Option) (Config, error) {
	lo := loadOptions{getenv: os.Getenv}
	for _, opt := range opts {
		opt(&lo)
	}

	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, &ConfigurationError{Err: fmt.Errorf("load config file %s: %w", path, err)}
		}
	}

	if err := loadEnv(&cfg, lo.getenv); err != nil {
		return Config{}, &ConfigurationError{Err: err}
	}

	applyOverrides(&cfg, lo.overrides)

	if len(cfg.Regions) == 0 && lo.defaultRegion != nil {
		if region := lo.defaultRegion(); region != "" {
			cfg.Regions = []string{region}
		}
	}

	if cfg.ExclusionFile != "" {
		ids, err := readExclusionFile(cfg.ExclusionFile)
		if err != nil {
			return Config{}, &ConfigurationError{Err: fmt.Errorf("read exclusion file: %w", err)}
		}
		cfg.Exclusions = append(cfg.Exclusions, ids...)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, &ConfigurationError{Err: err}
	}

	cfg.excluded = make(map[string]struct{}, len(cfg.Exclusions))
	for _, id := range cfg.Exclusions {
		cfg.excluded[strings.TrimSpace(id)] = struct{}{}
	}

	return cfg, nil
}

// IsExcluded reports whether any of the identifiers (name, ARN) is in the exclusion set
func (c Config) IsExcluded(ids ...string) bool {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if c.excluded == nil {
			if slices.Contains(c.Exclusions, id) {
				return true
			}
			continue
		}
		if _, ok := c.excluded[id]; ok {
			return true
		}
	}
	return false
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty document keeps the defaults
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

func applyOverrides(cfg *Config, o Overrides) {
	if len(o.Regions) > 0 {
		cfg.Regions = o.Regions
	}
	if o.DryRun != nil {
		cfg.DryRun = *o.DryRun
	}
	if len(o.Exclusions) > 0 {
		cfg.Exclusions = append(cfg.Exclusions, o.Exclusions...)
	}
	if o.Workers != nil {
		cfg.Concurrency.WorkersPerRegion = *o.Workers
	}
	if o.LogLevel != nil {
		cfg.Log.Level = *o.LogLevel
	}
	if o.LogFormat != nil {
		cfg.Log.Format = *o.LogFormat
	}
}

// readExclusionFile reads one identifier per line, ignoring blanks and # comments
func readExclusionFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line != "" {
			ids = append(ids, line)
		}
	}
	return ids, scanner.Err()
}
