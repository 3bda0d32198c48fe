package models

// Lambda package types
const (
	PackageTypeZip   = "Zip"
	PackageTypeImage = "Image"
)

// FunctionDescriptor is a point-in-time snapshot of one Lambda function's configuration.
// It is rebuilt from the control plane on every run and never cached across runs.
type FunctionDescriptor struct {
	Name             string            // Function name
	ARN              string            // Unqualified function ARN
	Region           string            // AWS region
	PackageType      string            // Zip or Image
	Architecture     string            // Instruction set (x86_64, arm64)
	Runtime          string            // Managed runtime identifier (e.g., python3.12)
	MemoryMB         int32             // Configured memory in MB
	TimeoutSeconds   int32             // Configured timeout in seconds
	CodeSizeBytes    int64             // Deployment package size in bytes
	Layers           []string          // Attached layer version ARNs, in order
	Environment      map[string]string // Environment variables
	EnvironmentError string            // Set when Lambda could not return the variables (e.g. KMS decrypt denied)
	Tags             map[string]string // Resource tags
	RevisionID       string            // Revision used for optimistic concurrency on update
	SnapStart        bool              // SnapStart applies to published versions
	VPC              bool              // Attached to VPC subnets
	Signals          *RuntimeSignals   // Collected only during deep inspection
}

// RuntimeSignals holds operational signals gathered from the control plane and CloudWatch
type RuntimeSignals struct {
	ProvisionedConcurrency bool     // Any provisioned concurrency config exists
	Throttles              float64  // Throttles within the lookback window
	ReservedConcurrency    int32    // Reserved concurrent executions, 0 if unset
	PeakConcurrency        float64  // Max ConcurrentExecutions within the lookback window
	UnprotectedAliases     []string // Aliases pointing at published versions without protection
}

// Identifier returns the name used for exclusion matching and audit records
func (d FunctionDescriptor) Identifier() string {
	return d.Name
}

// DiscoveryState is the first transition of a discovered function
type DiscoveryState string

const (
	DiscoveryCandidate        DiscoveryState = "Candidate"
	DiscoveryAlreadyProtected DiscoveryState = "AlreadyProtected"
	DiscoveryExcluded         DiscoveryState = "Excluded"
)

// Discovery is one element of the catalog sequence for a region
type Discovery struct {
	Descriptor FunctionDescriptor
	State      DiscoveryState
	Err        error // Per-function read failure (e.g. tags unavailable)
}
