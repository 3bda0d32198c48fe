package formatter

import (
	"fmt"
	"io"
	"time"
)

// printTimestamp prints the run start time and duration
func printTimestamp(w io.Writer, started time.Time, elapsed time.Duration) {
	fmt.Fprintf(w, "Run completed at %s (took %.2fs)\n", started.Format("2006-01-02 15:04:05"), elapsed.Seconds())
}

// truncateString truncates a string to the given max length and adds "..." if necessary
func truncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	return string(runes[:maxLength-3]) + "..."
}
