package formatter

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/younsl/autoprotect/internal/models"
	"github.com/younsl/autoprotect/pkg/utils"
)

type regionCounts struct {
	functions int
	eligible  int
	skipped   int
	failed    int
	discovery bool // Listing failed
}

// PrintRegionTable prints per-region totals
func PrintRegionTable(out io.Writer, records []models.AuditRecord) {
	counts := make(map[string]*regionCounts)
	for _, r := range records {
		c, ok := counts[r.Region]
		if !ok {
			c = &regionCounts{}
			counts[r.Region] = c
		}
		if r.Kind == models.RecordKindRegion {
			c.discovery = true
			continue
		}
		c.functions++
		switch {
		case r.Outcome == models.OutcomeFailed:
			c.failed++
		case r.Verdict == models.VerdictEligible:
			c.eligible++
		case r.Verdict == models.VerdictSkipped:
			c.skipped++
		}
	}
	if len(counts) == 0 {
		return
	}

	fmt.Fprintln(out, "\n## Regions")
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "REGION\tNAME\tFUNCTIONS\tELIGIBLE\tSKIPPED\tFAILED\tDISCOVERY")
	for _, region := range slices.Sorted(maps.Keys(counts)) {
		c := counts[region]
		discovery := "complete"
		if c.discovery {
			discovery = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			region,
			utils.GetRegionDescriptiveName(region),
			c.functions, c.eligible, c.skipped, c.failed,
			discovery,
		)
	}
	w.Flush()
}
