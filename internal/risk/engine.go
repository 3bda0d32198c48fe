// Package risk decides whether a function can be instrumented without breaking it.
//
// Assess is pure: it reads only the descriptor and the configuration and performs no I/O.
// Checks run in a fixed order and the first failing check is the reported reason, so the
// same descriptor always produces the same audit entry.
package risk

import (
	"errors"
	"fmt"

	"github.com/younsl/autoprotect/internal/config"
	"github.com/younsl/autoprotect/internal/models"
)

// Check is one do-no-harm predicate. Eval returns nil when the function passes,
// an *InconclusiveError when a required field is missing, and any other error
// describing why the function fails.
type Check struct {
	Reason models.SkipReason
	Eval   func(d models.FunctionDescriptor, cfg config.Config) error
}

// InconclusiveError reports a descriptor field the engine needs but does not have
type InconclusiveError struct {
	Field string
}

func (e *InconclusiveError) Error() string {
	return fmt.Sprintf("descriptor is missing %s", e.Field)
}

func missing(field string) error {
	return &InconclusiveError{Field: field}
}

// Engine evaluates an ordered list of checks
type Engine struct {
	checks []Check
}

// NewEngine returns an engine with the default check order
func NewEngine() *Engine {
	return &Engine{checks: DefaultChecks()}
}

// NewEngineWithChecks returns an engine evaluating the given checks in order
func NewEngineWithChecks(checks []Check) *Engine {
	return &Engine{checks: checks}
}

// Assess evaluates the checks in order and stops at the first failure
func (e *Engine) Assess(d models.FunctionDescriptor, cfg config.Config) models.AssessmentResult {
	for _, check := range e.checks {
		err := check.Eval(d, cfg)
		if err == nil {
			continue
		}

		var inconclusive *InconclusiveError
		if errors.As(err, &inconclusive) {
			return Skipped(models.ReasonInconclusive, fmt.Sprintf("%s check: %v", check.Reason, err))
		}
		return Skipped(check.Reason, err.Error())
	}

	return models.AssessmentResult{Verdict: models.VerdictEligible}
}

// Assess runs the default engine
func Assess(d models.FunctionDescriptor, cfg config.Config) models.AssessmentResult {
	return defaultEngine.Assess(d, cfg)
}

var defaultEngine = NewEngine()

// Skipped builds a skipped result
func Skipped(reason models.SkipReason, detail string) models.AssessmentResult {
	return models.AssessmentResult{
		Verdict: models.VerdictSkipped,
		Reason:  reason,
		Detail:  detail,
	}
}
