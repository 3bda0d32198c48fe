package models

// Verdict is the eligibility decision for a single function
type Verdict string

const (
	VerdictEligible         Verdict = "Eligible"
	VerdictSkipped          Verdict = "Skipped"
	VerdictAlreadyProtected Verdict = "AlreadyProtected"
	VerdictExcluded         Verdict = "Excluded"
)

// SkipReason names the first blocking check
type SkipReason string

const (
	ReasonPackageType            SkipReason = "package-type"
	ReasonArchitecture           SkipReason = "architecture"
	ReasonRuntime                SkipReason = "runtime"
	ReasonMemory                 SkipReason = "memory"
	ReasonTimeout                SkipReason = "timeout"
	ReasonEnvironment            SkipReason = "environment"
	ReasonLayerCount             SkipReason = "layer-count"
	ReasonCodeSize               SkipReason = "code-size"
	ReasonEnvironmentSize        SkipReason = "environment-size"
	ReasonWrapperConflict        SkipReason = "wrapper-conflict"
	ReasonSnapStart              SkipReason = "snapstart"
	ReasonProvisionedConcurrency SkipReason = "provisioned-concurrency"
	ReasonThrottled              SkipReason = "throttled"
	ReasonConcurrencySaturation  SkipReason = "concurrency-saturation"
	ReasonInconclusive           SkipReason = "inconclusive"
)

// AssessmentResult is the output of the risk engine
type AssessmentResult struct {
	Verdict Verdict
	Reason  SkipReason // Set only when Verdict is Skipped
	Detail  string     // Human readable explanation
}

// Eligible reports whether the function may be remediated
func (r AssessmentResult) Eligible() bool {
	return r.Verdict == VerdictEligible
}

// Outcome is the terminal state of an eligible function
type Outcome string

const (
	OutcomeApplied         Outcome = "Applied"
	OutcomeAlreadyCurrent  Outcome = "AlreadyCurrent"
	OutcomeFailed          Outcome = "Failed"
	OutcomeDryRunSimulated Outcome = "DryRunSimulated"
)

// Change is the configuration delta the executor applies
type Change struct {
	Layers         []string          `json:"layers"`                   // Full layer list after the change
	Environment    map[string]string `json:"-"`                        // Full variable map after the change, values may be secrets
	AddedLayer     string            `json:"addedLayer,omitempty"`     // Empty when the layer was already attached
	AddedVariables []string          `json:"addedVariables,omitempty"` // Keys written by the change
	Tags           map[string]string `json:"tags,omitempty"`           // Marker tags to set
}
