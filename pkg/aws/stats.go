package aws

import (
	"sort"
	"sync"
)

// CallCounts are the results of calls to one API operation in one region
type CallCounts struct {
	Success   int
	Failure   int
	Throttled int
}

// CallStats tracks API call results by region and operation. Safe for concurrent use.
type CallStats struct {
	mu    sync.RWMutex
	stats map[string]map[string]*CallCounts // region -> operation -> counts
}

// NewCallStats creates an empty stats tracker
func NewCallStats() *CallStats {
	return &CallStats{stats: make(map[string]map[string]*CallCounts)}
}

// Record counts one call result
func (s *CallStats) Record(region, operation string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ops, ok := s.stats[region]
	if !ok {
		ops = make(map[string]*CallCounts)
		s.stats[region] = ops
	}
	counts, ok := ops[operation]
	if !ok {
		counts = &CallCounts{}
		ops[operation] = counts
	}

	switch {
	case err == nil:
		counts.Success++
	case Classify(err) == CauseThrottled:
		counts.Throttled++
		counts.Failure++
	default:
		counts.Failure++
	}
}

// CallStat is a flattened row of CallStats
type CallStat struct {
	Region    string
	Operation string
	CallCounts
}

// Snapshot returns a copy of the statistics sorted by region and operation
func (s *CallStats) Snapshot() []CallStat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []CallStat
	for region, ops := range s.stats {
		for op, counts := range ops {
			rows = append(rows, CallStat{Region: region, Operation: op, CallCounts: *counts})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Region != rows[j].Region {
			return rows[i].Region < rows[j].Region
		}
		return rows[i].Operation < rows[j].Operation
	})
	return rows
}
