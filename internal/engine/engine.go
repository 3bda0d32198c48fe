// Package engine runs one protection pass over the fleet: discover, assess,
// guard, remediate and audit, for every configured region.
package engine

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/younsl/autoprotect/internal/audit"
	"github.com/younsl/autoprotect/internal/config"
	"github.com/younsl/autoprotect/internal/guard"
	"github.com/younsl/autoprotect/internal/metrics"
	"github.com/younsl/autoprotect/internal/models"
	"github.com/younsl/autoprotect/internal/remediate"
	"github.com/younsl/autoprotect/internal/risk"
)

// RegionClient is the control plane of one region
type RegionClient interface {
	guard.Describer
	remediate.Mutator
	Region() string
	Discover(ctx context.Context, cfg config.Config) iter.Seq2[models.Discovery, error]
	Probe(ctx context.Context, d models.FunctionDescriptor, cfg config.Config) (models.RuntimeSignals, error)
}

// ClientFactory creates the client for a region
type ClientFactory func(ctx context.Context, region string) (RegionClient, error)

// Deps are the collaborators of a run
type Deps struct {
	Clients  ClientFactory
	Audit    *audit.Logger
	Metrics  *metrics.Recorder        // Optional
	Risk     *risk.Engine             // Defaults to the standard check order
	Logger   *slog.Logger             // Defaults to slog.Default()
	RunID    string                   // Generated when empty
	OnRecord func(models.AuditRecord) // Optional progress callback
	Now      func() time.Time
}

type runner struct {
	cfg     config.Config
	deps    Deps
	logger  *slog.Logger
	summary *collector
}

// Run executes one pass. Per-function and per-region failures are recorded in the
// audit log and the summary; Run only returns an error when it cannot start.
//
// The run is bounded by cfg.Concurrency.RunBudget. When the budget runs out no new
// function is dispatched; functions already past the guard finish their mutation.
func Run(ctx context.Context, cfg config.Config, deps Deps) (*RunSummary, error) {
	if deps.Clients == nil {
		return nil, errors.New("engine: no client factory")
	}
	if deps.Audit == nil {
		return nil, errors.New("engine: no audit logger")
	}
	if deps.Risk == nil {
		deps.Risk = risk.NewEngine()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.RunID == "" {
		deps.RunID = uuid.NewString()
	}

	r := &runner{
		cfg:     cfg,
		deps:    deps,
		logger:  deps.Logger.With("run_id", deps.RunID),
		summary: newCollector(deps.RunID, cfg.DryRun, deps.Now()),
	}

	r.logger.Info("starting protection run",
		"regions", cfg.Regions,
		"dry_run", cfg.DryRun,
		"deep_inspection", cfg.Inspection.Deep,
		"workers_per_region", cfg.Concurrency.WorkersPerRegion)

	runCtx, cancel := context.WithTimeout(ctx, cfg.Concurrency.RunBudget)
	defer cancel()

	// Regions are isolated: a failing region returns nil so the others keep going
	var g errgroup.Group
	for _, region := range cfg.Regions {
		g.Go(func() error {
			r.runRegion(runCtx, region)
			return nil
		})
	}
	_ = g.Wait()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		r.summary.budgetExhausted()
		r.logger.Warn("run budget exhausted, remaining functions are deferred to the next run",
			"budget", cfg.Concurrency.RunBudget)
	}

	summary := r.summary.finish(deps.Now())
	if deps.Metrics != nil {
		deps.Metrics.ObserveRun(summary.Finished.Sub(summary.Started), summary.Finished)
	}

	r.logger.Info("protection run finished",
		"functions", summary.Total(),
		"applied", summary.Outcomes[models.OutcomeApplied],
		"simulated", summary.Outcomes[models.OutcomeDryRunSimulated],
		"failed", summary.Outcomes[models.OutcomeFailed],
		"region_failures", summary.RegionFailures,
		"deferred", summary.Deferred,
		"duration", summary.Finished.Sub(summary.Started).Round(time.Millisecond))

	return summary, nil
}

func (r *runner) runRegion(ctx context.Context, region string) {
	logger := r.logger.With("region", region)

	client, err := r.deps.Clients(ctx, region)
	if err != nil {
		r.regionFailure(ctx, region, err)
		return
	}

	executor := remediate.NewExecutor(client, r.cfg.DryRun, r.cfg.Concurrency.MutationTimeout, logger)
	g := guard.New(client, r.deps.Risk, logger)

	var workers errgroup.Group
	workers.SetLimit(r.cfg.Concurrency.WorkersPerRegion)

	dispatched := 0
	for discovery, err := range client.Discover(ctx, r.cfg) {
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			r.regionFailure(ctx, region, err)
			break
		}
		dispatched++
		workers.Go(func() error {
			r.process(ctx, client, g, executor, discovery)
			return nil
		})
	}
	_ = workers.Wait()

	logger.Debug("region finished", "functions", dispatched)
}

func (r *runner) regionFailure(ctx context.Context, region string, err error) {
	r.logger.Error("region discovery failed, skipping the rest of the region", "region", region, "error", err)
	if r.deps.Metrics != nil {
		r.deps.Metrics.DiscoveryError(region)
	}
	r.summary.regionFailure()
	r.record(ctx, models.AuditRecord{
		Kind:    models.RecordKindRegion,
		Region:  region,
		Outcome: models.OutcomeFailed,
		Reason:  "discovery",
		Detail:  err.Error(),
	})
}

// record is the single exit point of every terminal state
func (r *runner) record(ctx context.Context, rec models.AuditRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.deps.Now().UTC()
	}
	// Audit writes outlive the run budget
	r.deps.Audit.Record(context.WithoutCancel(ctx), rec)
	r.summary.add(rec)

	if m := r.deps.Metrics; m != nil && rec.Kind != models.RecordKindRegion {
		m.Decision(rec.Region, string(rec.Verdict), reasonLabel(rec))
		if rec.Outcome != "" {
			cause := ""
			if rec.Outcome == models.OutcomeFailed {
				cause = rec.Reason
			}
			m.Remediation(rec.Region, string(rec.Outcome), cause)
		}
	}
	if r.deps.OnRecord != nil {
		r.deps.OnRecord(rec)
	}
}

func reasonLabel(rec models.AuditRecord) string {
	if rec.Verdict == models.VerdictSkipped {
		return rec.Reason
	}
	return ""
}
