package model

import "time"

// RunReport is the end-of-run aggregation: every degraded error is counted
// here by kind, alongside per-source success rates and per-entity failures.
type RunReport struct {
	RunID        string    `json:"run_id"`
	Query        string    `json:"query"`
	ContractID   string    `json:"contract_id"`
	ContractHash string    `json:"contract_hash"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`

	Phases  []PhaseReport `json:"phases"`
	Sources []SourceStat  `json:"sources"` // sorted by source id

	Counts ErrorCounts `json:"error_counts"`

	Records  int             `json:"records"`  // extracted records across all sources
	Groups   int             `json:"groups"`   // dedup groups
	Entities []string        `json:"entities"` // upserted slugs, sorted
	Failures []EntityFailure `json:"failures,omitempty"`
}

// PhaseReport summarizes one executed phase.
type PhaseReport struct {
	Phase     int           `json:"phase"`
	Sources   []string      `json:"sources"` // sorted
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// SourceStat tracks one source's outcomes across the run.
type SourceStat struct {
	SourceID  string `json:"source_id"`
	Fetches   int    `json:"fetches"`
	Successes int    `json:"successes"`
	Timeouts  int    `json:"timeouts"`
	Errors    int    `json:"errors"`
	Records   int    `json:"records"`
	Duplicate bool   `json:"duplicate,omitempty"` // payload matched a cached content hash
}

// ErrorCounts buckets degraded errors by taxonomy kind. Contract errors
// never appear here: they abort the run before a report exists.
type ErrorCounts struct {
	Source      int `json:"source"`
	Rule        int `json:"rule"`
	Extraction  int `json:"extraction"`
	Persistence int `json:"persistence"`
}

// EntityFailure reports a per-entity finalization failure. These are fatal
// for the entity, not for the run.
type EntityFailure struct {
	Slug  string `json:"slug,omitempty"`
	Name  string `json:"name,omitempty"`
	Error string `json:"error"`
}
