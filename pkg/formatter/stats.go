package formatter

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	awsclient "github.com/younsl/autoprotect/pkg/aws"
)

// PrintAPIStats prints the AWS API calls made during the run
func PrintAPIStats(out io.Writer, stats []awsclient.CallStat) {
	if len(stats) == 0 {
		return
	}

	fmt.Fprintln(out, "\n## AWS API Call Statistics")

	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "REGION\tOPERATION\tAPI CALLS\tSUCCESS\tFAILURE\tTHROTTLED\tSUCCESS RATE")

	var total int
	for _, s := range stats {
		calls := s.Success + s.Failure
		total += calls

		successRate := 0.0
		if calls > 0 {
			successRate = float64(s.Success) / float64(calls) * 100.0
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%.1f%%\n",
			s.Region,
			s.Operation,
			humanize.Comma(int64(calls)),
			s.Success,
			s.Failure,
			s.Throttled,
			successRate,
		)
	}
	fmt.Fprintf(w, "Total:\t\t%s\t\t\t\t\n", humanize.Comma(int64(total)))

	w.Flush()
}
