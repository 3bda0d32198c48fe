package engine

import (
	"context"
	"fmt"

	"github.com/younsl/autoprotect/internal/guard"
	"github.com/younsl/autoprotect/internal/models"
	"github.com/younsl/autoprotect/internal/remediate"
	"github.com/younsl/autoprotect/internal/risk"
	awsclient "github.com/younsl/autoprotect/pkg/aws"
)

// process drives one function to its terminal state and records it exactly once
func (r *runner) process(ctx context.Context, client RegionClient, g *guard.Guard, executor *remediate.Executor, discovery models.Discovery) {
	d := discovery.Descriptor
	rec := newRecord(d)

	switch discovery.State {
	case models.DiscoveryExcluded:
		rec.Verdict = models.VerdictExcluded
		r.record(ctx, rec)
		return
	case models.DiscoveryAlreadyProtected:
		rec.Verdict = models.VerdictAlreadyProtected
		r.record(ctx, rec)
		return
	}

	if discovery.Err != nil {
		// Without tags the marker cannot be checked
		r.record(ctx, skipped(rec, risk.Skipped(models.ReasonInconclusive, discovery.Err.Error())))
		return
	}

	// Signals are only probed for functions that pass the static checks
	shallow := r.cfg
	shallow.Inspection.Deep = false
	assessment := r.deps.Risk.Assess(d, shallow)
	if assessment.Eligible() && r.cfg.Inspection.Deep {
		signals, err := client.Probe(ctx, d, r.cfg)
		if err != nil {
			assessment = risk.Skipped(models.ReasonInconclusive, fmt.Sprintf("deep inspection: %v", err))
		} else {
			d.Signals = &signals
			assessment = r.deps.Risk.Assess(d, r.cfg)
		}
	}
	rec.Advisories = advisories(d)

	if !assessment.Eligible() {
		r.record(ctx, skipped(rec, assessment))
		return
	}

	if ctx.Err() != nil {
		r.summary.deferred()
		return
	}

	rec.Verdict = models.VerdictEligible
	verified := g.Verify(ctx, d, r.cfg)
	switch verified.Decision {
	case guard.DecisionFailed:
		rec.Outcome = models.OutcomeFailed
		rec.Reason = awsclient.Classify(verified.Err)
		rec.Detail = verified.Err.Error()
		r.record(ctx, rec)
		return
	case guard.DecisionAlreadyCurrent:
		rec.Outcome = models.OutcomeAlreadyCurrent
		r.record(ctx, rec)
		return
	case guard.DecisionSkip:
		r.record(ctx, skipped(rec, verified.Assessment))
		return
	}

	result := executor.Apply(ctx, verified.Descriptor, r.cfg.Protection)
	rec.Outcome = result.Outcome
	change := result.Change
	rec.Change = &change
	if result.Outcome == models.OutcomeFailed {
		rec.Reason = result.Cause
		rec.Detail = result.Err.Error()
	}
	r.record(ctx, rec)
}

func newRecord(d models.FunctionDescriptor) models.AuditRecord {
	return models.AuditRecord{
		Kind:       models.RecordKindFunction,
		Function:   d.Identifier(),
		ARN:        d.ARN,
		Region:     d.Region,
		Runtime:    d.Runtime,
		MemoryMB:   d.MemoryMB,
		TimeoutSec: d.TimeoutSeconds,
	}
}

func skipped(rec models.AuditRecord, a models.AssessmentResult) models.AuditRecord {
	rec.Verdict = models.VerdictSkipped
	rec.Reason = string(a.Reason)
	rec.Detail = a.Detail
	return rec
}

// advisories never block remediation
func advisories(d models.FunctionDescriptor) []string {
	var out []string
	if d.VPC {
		out = append(out, "vpc: function runs in a VPC, the agent needs egress to its console")
	}
	if d.Signals != nil {
		for _, alias := range d.Signals.UnprotectedAliases {
			out = append(out, fmt.Sprintf("alias %s points to an unprotected published version", alias))
		}
	}
	return out
}
