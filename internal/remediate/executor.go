// Package remediate applies the protection change to a function
package remediate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/younsl/autoprotect/internal/config"
	"github.com/younsl/autoprotect/internal/models"
	"github.com/younsl/autoprotect/internal/protection"
	awsclient "github.com/younsl/autoprotect/pkg/aws"
)

// Mutator writes function configuration and tags
type Mutator interface {
	UpdateConfiguration(ctx context.Context, d models.FunctionDescriptor, change models.Change) error
	Tag(ctx context.Context, functionARN string, tags map[string]string) error
}

// Result is the terminal state of one remediation attempt
type Result struct {
	Outcome models.Outcome
	Change  models.Change
	Cause   string // Failure cause, empty unless Outcome is Failed
	Err     error
}

// Executor applies changes, or only computes them in dry-run mode
type Executor struct {
	mutator Mutator
	dryRun  bool
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecutor creates an Executor. timeout bounds each mutation.
func NewExecutor(mutator Mutator, dryRun bool, timeout time.Duration, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{mutator: mutator, dryRun: dryRun, timeout: timeout, logger: logger}
}

// Apply computes the change for the descriptor returned by the guard and applies it.
// Dry-run returns the same change with DryRunSimulated and makes no write call.
//
// Mutations run on a context detached from run cancellation so an in-flight update
// is never abandoned halfway; only the per-mutation timeout bounds it. There are no
// retries here beyond the SDK retryer: a failed function is picked up by the next run.
func (e *Executor) Apply(ctx context.Context, d models.FunctionDescriptor, p config.Protection) Result {
	change := protection.Plan(d, p)

	if e.dryRun {
		return Result{Outcome: models.OutcomeDryRunSimulated, Change: change}
	}

	mctx := context.WithoutCancel(ctx)
	if e.timeout > 0 {
		var cancel context.CancelFunc
		mctx, cancel = context.WithTimeout(mctx, e.timeout)
		defer cancel()
	}

	if change.AddedLayer != "" || len(change.AddedVariables) > 0 {
		if err := e.mutator.UpdateConfiguration(mctx, d, change); err != nil {
			return failed(change, err)
		}
		e.logger.Debug("updated function configuration", "function", d.Name, "layers", len(change.Layers))
	}

	if len(change.Tags) > 0 {
		if err := e.mutator.Tag(mctx, d.ARN, change.Tags); err != nil {
			return failed(change, fmt.Errorf("configuration updated but marker tag not set: %w", err))
		}
	}

	return Result{Outcome: models.OutcomeApplied, Change: change}
}

func failed(change models.Change, err error) Result {
	return Result{
		Outcome: models.OutcomeFailed,
		Change:  change,
		Cause:   awsclient.Classify(err),
		Err:     err,
	}
}
