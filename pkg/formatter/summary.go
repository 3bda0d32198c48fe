package formatter

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/younsl/autoprotect/internal/models"
)

// Summary is the aggregate printed after the decision table
type Summary struct {
	RunID           string
	DryRun          bool
	Verdicts        map[models.Verdict]int
	Outcomes        map[models.Outcome]int
	Reasons         map[string]int
	RegionFailures  int
	Deferred        int
	BudgetExhausted bool
}

var (
	verdictOrder = []models.Verdict{
		models.VerdictEligible,
		models.VerdictSkipped,
		models.VerdictAlreadyProtected,
		models.VerdictExcluded,
	}
	outcomeOrder = []models.Outcome{
		models.OutcomeApplied,
		models.OutcomeDryRunSimulated,
		models.OutcomeAlreadyCurrent,
		models.OutcomeFailed,
	}
)

// PrintSummary prints counts by verdict, outcome and reason
func PrintSummary(out io.Writer, s Summary) {
	mode := "apply"
	if s.DryRun {
		mode = "dry-run"
	}
	fmt.Fprintf(out, "\n## Run Summary (%s, run %s)\n", mode, s.RunID)

	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "VERDICT\tCOUNT")
	for _, v := range verdictOrder {
		fmt.Fprintf(w, "%s\t%d\n", v, s.Verdicts[v])
	}
	w.Flush()

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "OUTCOME\tCOUNT")
	for _, o := range outcomeOrder {
		fmt.Fprintf(w, "%s\t%d\n", o, s.Outcomes[o])
	}
	w.Flush()

	if len(s.Reasons) > 0 {
		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "REASON\tCOUNT")
		for _, reason := range slices.Sorted(maps.Keys(s.Reasons)) {
			fmt.Fprintf(w, "%s\t%d\n", reason, s.Reasons[reason])
		}
		w.Flush()
	}

	if s.RegionFailures > 0 {
		fmt.Fprintf(out, "\n%d region(s) could not be enumerated, see the audit log\n", s.RegionFailures)
	}
	if s.BudgetExhausted {
		fmt.Fprintf(out, "\nRun budget exhausted: %d assessed function(s) deferred to the next run\n", s.Deferred)
	}
}
