package formatter

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/younsl/autoprotect/internal/models"
	awsclient "github.com/younsl/autoprotect/pkg/aws"
)

func records() []models.AuditRecord {
	return []models.AuditRecord{
		{
			Kind:       models.RecordKindFunction,
			Function:   "orders",
			Region:     "us-east-1",
			Runtime:    "python3.12",
			MemoryMB:   512,
			TimeoutSec: 60,
			Verdict:    models.VerdictEligible,
			Outcome:    models.OutcomeDryRunSimulated,
			Advisories: []string{"vpc: function runs in a VPC"},
			Change: &models.Change{
				AddedLayer:     "arn:aws:lambda:us-east-1:123456789012:layer:defender:7",
				AddedVariables: []string{"AWS_LAMBDA_EXEC_WRAPPER"},
				Tags:           map[string]string{"security:auto-protected": "true"},
			},
		},
		{
			Kind:     models.RecordKindFunction,
			Function: "small",
			Region:   "us-east-1",
			MemoryMB: 128,
			Verdict:  models.VerdictSkipped,
			Reason:   "memory",
		},
		{
			Kind:    models.RecordKindRegion,
			Region:  "eu-west-1",
			Outcome: models.OutcomeFailed,
			Reason:  "discovery",
		},
	}
}

func TestPrintDecisionTable(t *testing.T) {
	var buf bytes.Buffer
	PrintDecisionTable(&buf, records(), time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), 1500*time.Millisecond)
	out := buf.String()

	assert.Contains(t, out, "Run completed at 2026-03-01 12:00:00 (took 1.50s)")
	assert.Contains(t, out, "512 MiB")
	assert.Contains(t, out, "1m0s")
	assert.Contains(t, out, "(region)")
	assert.Contains(t, out, "DryRunSimulated")
}

func TestPrintDecisionTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	PrintDecisionTable(&buf, nil, time.Now(), time.Second)
	assert.Contains(t, buf.String(), "No Lambda functions found.")
}

func TestPrintChanges(t *testing.T) {
	var buf bytes.Buffer
	PrintChanges(&buf, records(), true)
	out := buf.String()

	assert.Contains(t, out, "dry-run, nothing was modified")
	assert.Contains(t, out, "defender:7")
	assert.Contains(t, out, "security:auto-protected=true")
	assert.NotContains(t, out, "small")
}

func TestPrintRegionTable(t *testing.T) {
	var buf bytes.Buffer
	PrintRegionTable(&buf, records())
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

	assert.Len(t, lines, 4)
	assert.Contains(t, lines[2], "EU (Ireland)")
	assert.Contains(t, lines[2], "failed")
	assert.Contains(t, lines[3], "US East (N. Virginia)")
	assert.Contains(t, lines[3], "complete")
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, Summary{
		RunID:           "run-1",
		DryRun:          true,
		Verdicts:        map[models.Verdict]int{models.VerdictEligible: 1, models.VerdictSkipped: 1},
		Outcomes:        map[models.Outcome]int{models.OutcomeDryRunSimulated: 1},
		Reasons:         map[string]int{"memory": 1},
		RegionFailures:  1,
		Deferred:        3,
		BudgetExhausted: true,
	})
	out := buf.String()

	assert.Contains(t, out, "dry-run, run run-1")
	assert.Contains(t, out, "1 region(s) could not be enumerated")
	assert.Contains(t, out, "3 assessed function(s) deferred")
}

func TestPrintAPIStats(t *testing.T) {
	var buf bytes.Buffer
	PrintAPIStats(&buf, []awsclient.CallStat{{
		Region:     "us-east-1",
		Operation:  "Lambda:ListTags",
		CallCounts: awsclient.CallCounts{Success: 1200, Failure: 0},
	}})

	assert.Contains(t, buf.String(), "1,200")
	assert.Contains(t, buf.String(), "100.0%")
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmnop", 10))
}
