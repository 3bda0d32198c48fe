package models

import "time"

// Audit record kinds
const (
	RecordKindFunction = "function"
	RecordKindRegion   = "region"
)

// AuditRecord is one append-only entry of the audit log
type AuditRecord struct {
	RunID      string    `json:"runId"`
	Timestamp  time.Time `json:"timestamp"`
	Kind       string    `json:"kind"`
	Function   string    `json:"function,omitempty"`
	ARN        string    `json:"arn,omitempty"`
	Region     string    `json:"region"`
	Verdict    Verdict   `json:"verdict,omitempty"`
	Outcome    Outcome   `json:"outcome,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	DryRun     bool      `json:"dryRun"`
	Change     *Change   `json:"change,omitempty"`
	Advisories []string  `json:"advisories,omitempty"`
	Runtime    string    `json:"runtime,omitempty"`
	MemoryMB   int32     `json:"memoryMB,omitempty"`
	TimeoutSec int32     `json:"timeoutSeconds,omitempty"`
}
