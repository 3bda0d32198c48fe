package formatter

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/younsl/autoprotect/internal/models"
)

// PrintDecisionTable prints one row per audit record of the run
func PrintDecisionTable(out io.Writer, records []models.AuditRecord, started time.Time, elapsed time.Duration) {
	printTimestamp(out, started, elapsed)

	if len(records) == 0 {
		fmt.Fprintln(out, "No Lambda functions found.")
		return
	}

	// kubectl style spacing
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "FUNCTION\tREGION\tRUNTIME\tMEMORY\tTIMEOUT\tVERDICT\tOUTCOME\tREASON")

	for _, r := range records {
		name := r.Function
		if r.Kind == models.RecordKindRegion {
			name = "(region)"
		}

		memory := "-"
		if r.MemoryMB > 0 {
			memory = humanize.IBytes(uint64(r.MemoryMB) * humanize.MiByte)
		}
		timeout := "-"
		if r.TimeoutSec > 0 {
			timeout = (time.Duration(r.TimeoutSec) * time.Second).String()
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateString(name, 50),
			r.Region,
			orDash(r.Runtime),
			memory,
			timeout,
			orDash(string(r.Verdict)),
			orDash(string(r.Outcome)),
			orDash(r.Reason),
		)
	}

	w.Flush()
}

// PrintAdvisories lists non-blocking warnings attached to records
func PrintAdvisories(out io.Writer, records []models.AuditRecord) {
	var lines []string
	for _, r := range records {
		for _, advisory := range r.Advisories {
			lines = append(lines, fmt.Sprintf("%s (%s): %s", r.Function, r.Region, advisory))
		}
	}
	if len(lines) == 0 {
		return
	}

	fmt.Fprintln(out, "\n## Advisories")
	fmt.Fprintln(out, strings.Join(lines, "\n"))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
