package engine

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/younsl/autoprotect/internal/models"
)

// RunSummary aggregates the terminal states of one run
type RunSummary struct {
	RunID           string
	DryRun          bool
	Started         time.Time
	Finished        time.Time
	Records         []models.AuditRecord // Sorted by region, kind and function
	Verdicts        map[models.Verdict]int
	Outcomes        map[models.Outcome]int
	Reasons         map[string]int // Skip reasons and failure causes
	RegionFailures  int
	Deferred        int // Assessed but not started before the budget ran out
	BudgetExhausted bool
}

// Total is the number of function records
func (s *RunSummary) Total() int {
	total := 0
	for _, n := range s.Verdicts {
		total += n
	}
	return total
}

type collector struct {
	mu      sync.Mutex
	summary RunSummary
}

func newCollector(runID string, dryRun bool, started time.Time) *collector {
	return &collector{summary: RunSummary{
		RunID:    runID,
		DryRun:   dryRun,
		Started:  started,
		Verdicts: make(map[models.Verdict]int),
		Outcomes: make(map[models.Outcome]int),
		Reasons:  make(map[string]int),
	}}
}

func (c *collector) add(rec models.AuditRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.summary.Records = append(c.summary.Records, rec)
	if rec.Kind == models.RecordKindRegion {
		return
	}
	c.summary.Verdicts[rec.Verdict]++
	if rec.Outcome != "" {
		c.summary.Outcomes[rec.Outcome]++
	}
	if rec.Reason != "" {
		c.summary.Reasons[rec.Reason]++
	}
}

func (c *collector) regionFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary.RegionFailures++
}

func (c *collector) deferred() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary.Deferred++
}

func (c *collector) budgetExhausted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary.BudgetExhausted = true
}

func (c *collector) finish(finished time.Time) *RunSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.summary
	s.Finished = finished
	s.Records = slices.Clone(c.summary.Records)
	slices.SortFunc(s.Records, func(a, b models.AuditRecord) int {
		return cmp.Or(
			cmp.Compare(a.Region, b.Region),
			cmp.Compare(a.Kind, b.Kind),
			cmp.Compare(a.Function, b.Function),
		)
	})
	return &s
}
