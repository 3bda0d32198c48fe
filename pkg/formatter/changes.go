package formatter

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/younsl/autoprotect/internal/models"
	"github.com/younsl/autoprotect/pkg/utils"
)

// PrintChanges lists the change applied, or previewed in dry-run, for every function
func PrintChanges(out io.Writer, records []models.AuditRecord, dryRun bool) {
	var rows []models.AuditRecord
	for _, r := range records {
		if r.Change != nil && r.Outcome != models.OutcomeFailed {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return
	}

	if dryRun {
		fmt.Fprintln(out, "\n## Planned Changes (dry-run, nothing was modified)")
	} else {
		fmt.Fprintln(out, "\n## Applied Changes")
	}

	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "FUNCTION\tREGION\tLAYER\tVARIABLES\tTAGS")
	for _, r := range rows {
		c := r.Change
		tags := make([]string, 0, len(c.Tags))
		for _, k := range utils.SortedKeys(c.Tags) {
			tags = append(tags, k+"="+c.Tags[k])
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncateString(r.Function, 50),
			r.Region,
			orDash(layerSuffix(c.AddedLayer)),
			orDash(strings.Join(c.AddedVariables, ",")),
			orDash(strings.Join(tags, ",")),
		)
	}
	w.Flush()
}

// layerSuffix keeps the "name:version" part of a layer ARN
func layerSuffix(arn string) string {
	parts := strings.Split(arn, ":")
	if len(parts) < 2 {
		return arn
	}
	return strings.Join(parts[len(parts)-2:], ":")
}
