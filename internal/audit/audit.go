// Package audit writes the append-only record of every decision and change.
//
// Each function reaching a terminal state produces exactly one record. Records are
// fanned out to every configured sink; a sink failure is logged and reported on Close
// but never stops the run.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/younsl/autoprotect/internal/models"
)

// Sink stores audit records
type Sink interface {
	Write(ctx context.Context, record models.AuditRecord) error
	Close(ctx context.Context) error
}

// Logger stamps records with the run identity and writes them to the sinks
type Logger struct {
	mu     sync.Mutex
	runID  string
	dryRun bool
	sinks  []Sink
	logger *slog.Logger
	now    func() time.Time
	errs   []error
	count  int
}

// NewLogger creates a Logger for one run
func NewLogger(runID string, dryRun bool, logger *slog.Logger, sinks ...Sink) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		runID:  runID,
		dryRun: dryRun,
		sinks:  sinks,
		logger: logger,
		now:    time.Now,
	}
}

// Record writes one record. Safe for concurrent use.
func (l *Logger) Record(ctx context.Context, record models.AuditRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record.RunID = l.runID
	record.DryRun = l.dryRun
	if record.Timestamp.IsZero() {
		record.Timestamp = l.now().UTC()
	}
	if record.Kind == "" {
		record.Kind = models.RecordKindFunction
	}

	l.log(ctx, record)

	for _, sink := range l.sinks {
		if err := sink.Write(ctx, record); err != nil {
			l.logger.Error("audit sink write failed", "sink", fmt.Sprintf("%T", sink), "error", err)
			l.errs = append(l.errs, err)
		}
	}
	l.count++
}

// Count returns the number of records written
func (l *Logger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Close flushes buffered sinks and returns every sink error seen during the run
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, sink := range l.sinks {
		if err := sink.Close(ctx); err != nil {
			l.errs = append(l.errs, err)
		}
	}
	return errors.Join(l.errs...)
}

func (l *Logger) log(ctx context.Context, r models.AuditRecord) {
	level := slog.LevelInfo
	switch {
	case r.Outcome == models.OutcomeFailed:
		level = slog.LevelError
	case r.Verdict == models.VerdictAlreadyProtected, r.Verdict == models.VerdictExcluded:
		level = slog.LevelDebug
	}

	attrs := []any{
		"region", r.Region,
		"verdict", r.Verdict,
	}
	if r.Function != "" {
		attrs = append(attrs, "function", r.Function)
	}
	if r.Outcome != "" {
		attrs = append(attrs, "outcome", r.Outcome)
	}
	if r.Reason != "" {
		attrs = append(attrs, "reason", r.Reason)
	}
	if r.Detail != "" {
		attrs = append(attrs, "detail", r.Detail)
	}
	if len(r.Advisories) > 0 {
		attrs = append(attrs, "advisories", r.Advisories)
	}
	l.logger.Log(ctx, level, "audit", attrs...)
}
