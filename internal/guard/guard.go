// Package guard re-reads a function right before it is changed and re-verifies
// that the change is still safe and still needed.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/younsl/autoprotect/internal/config"
	"github.com/younsl/autoprotect/internal/models"
	"github.com/younsl/autoprotect/internal/protection"
	"github.com/younsl/autoprotect/internal/risk"
)

// Describer reads the current state of a function
type Describer interface {
	Describe(ctx context.Context, name string) (models.FunctionDescriptor, error)
}

// Decision is what the guard allows the executor to do
type Decision string

const (
	DecisionProceed        Decision = "proceed"
	DecisionAlreadyCurrent Decision = "already-current"
	DecisionSkip           Decision = "skip"
	DecisionFailed         Decision = "failed"
)

// Result carries the decision and the fresh descriptor the executor must use
type Result struct {
	Decision   Decision
	Descriptor models.FunctionDescriptor
	Assessment models.AssessmentResult // Set when Decision is DecisionSkip
	Changed    bool                    // Configuration differs from the discovery snapshot
	Err        error                   // Set when Decision is DecisionFailed
}

// Guard is the idempotency and freshness check run before every mutation
type Guard struct {
	describer Describer
	engine    *risk.Engine
	logger    *slog.Logger
}

// New creates a Guard
func New(describer Describer, engine *risk.Engine, logger *slog.Logger) *Guard {
	if engine == nil {
		engine = risk.NewEngine()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{describer: describer, engine: engine, logger: logger}
}

// Verify re-fetches the function and decides whether the planned change still applies.
// A function that gained protection since discovery is AlreadyCurrent. The fresh
// descriptor is always re-assessed, so an edit that made it unsafe turns into a skip.
func (g *Guard) Verify(ctx context.Context, snapshot models.FunctionDescriptor, cfg config.Config) Result {
	fresh, err := g.describer.Describe(ctx, snapshot.Name)
	if err != nil {
		return Result{Decision: DecisionFailed, Descriptor: snapshot, Err: err}
	}
	// Deep inspection signals are not part of the control plane read
	fresh.Signals = snapshot.Signals

	if protection.IsProtected(fresh, cfg.Protection) {
		return Result{Decision: DecisionAlreadyCurrent, Descriptor: fresh}
	}

	changed := Changed(snapshot, fresh)
	if changed {
		g.logger.Info("function changed since discovery",
			"function", fresh.Name,
			"revision_before", snapshot.RevisionID,
			"revision_after", fresh.RevisionID)
	}

	assessment := g.engine.Assess(fresh, cfg)
	if !assessment.Eligible() {
		if changed {
			assessment.Detail = fmt.Sprintf("changed since discovery: %s", assessment.Detail)
		}
		return Result{Decision: DecisionSkip, Descriptor: fresh, Assessment: assessment, Changed: changed}
	}

	return Result{Decision: DecisionProceed, Descriptor: fresh, Changed: changed}
}

// Changed compares the fields the risk checks and the change plan depend on.
// Matching revision IDs short-circuit the comparison.
func Changed(before, after models.FunctionDescriptor) bool {
	if before.RevisionID != "" && before.RevisionID == after.RevisionID {
		return false
	}
	return before.PackageType != after.PackageType ||
		before.Architecture != after.Architecture ||
		before.Runtime != after.Runtime ||
		before.MemoryMB != after.MemoryMB ||
		before.TimeoutSeconds != after.TimeoutSeconds ||
		before.CodeSizeBytes != after.CodeSizeBytes ||
		before.SnapStart != after.SnapStart ||
		!slices.Equal(before.Layers, after.Layers) ||
		before.EnvironmentError != after.EnvironmentError ||
		!maps.Equal(before.Environment, after.Environment)
}
