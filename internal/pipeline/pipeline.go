// Package pipeline drives a query through the full resolution sequence:
// feature extraction, planning, phased fetching, record annotation,
// grouping, merging, and finalization into the entity store.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lens/internal/cache"
	"lens/internal/classify"
	"lens/internal/contract"
	"lens/internal/dedupe"
	"lens/internal/features"
	"lens/internal/mapping"
	"lens/internal/merge"
	"lens/internal/model"
	"lens/internal/modules"
	"lens/internal/plan"
	"lens/internal/source"
	"lens/internal/store"
	"lens/internal/worker"
)

// State is the run lifecycle. Transitions only move forward; a contract
// problem surfaces before a run exists, so Aborted covers context
// cancellation and store-level failure only.
type State string

const (
	StatePlanned   State = "planned"
	StateExecuting State = "executing"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// Runner owns one configured pipeline. Safe to reuse across runs; each Run
// call is independent apart from the shared budget ledger and store.
type Runner struct {
	ec       contract.ExecutionContext
	registry *source.Registry
	planner  *plan.Planner
	orch     *Orchestrator
	mapper   *mapping.Engine
	modules  *modules.Engine
	matcher  *dedupe.Matcher
	merger   *merge.Engine
	store    *store.Store
	logger   *zap.Logger

	mu    sync.Mutex
	state State
}

// Options collects the pieces a Runner needs beyond the contract.
type Options struct {
	Registry *source.Registry
	Fetchers source.FetcherSet
	Ledger   *source.BudgetLedger
	Pool     *worker.Pool
	Cache    cache.Cache  // optional
	Store    *store.Store // required
	Modules  *modules.Engine
	Logger   *zap.Logger
}

// NewRunner builds a runner for one validated contract.
func NewRunner(ec contract.ExecutionContext, opts Options) (*Runner, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("pipeline: nil source registry")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("pipeline: nil entity store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ledger := opts.Ledger
	if ledger == nil {
		ledger = source.NewBudgetLedger(0)
	}
	pool := opts.Pool
	if pool == nil {
		pool = worker.NewPool(8)
	}
	mods := opts.Modules
	if mods == nil {
		mods = modules.NewEngine(nil, logger)
	}
	return &Runner{
		ec:       ec,
		registry: opts.Registry,
		planner:  plan.NewPlanner(opts.Registry, ledger),
		orch:     NewOrchestrator(opts.Registry, opts.Fetchers, ledger, pool, opts.Cache, opts.Store, logger),
		mapper:   mapping.NewEngine(logger),
		modules:  mods,
		matcher:  dedupe.NewMatcher(),
		merger:   merge.NewEngine(),
		store:    opts.Store,
		logger:   logger,
	}, nil
}

// State returns the current run state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Plan computes the dry-run plan for a query without fetching anything.
func (r *Runner) Plan(query string) (*plan.Plan, features.Features, error) {
	f := features.Extract(query, r.ec.Contract.Doc.Vocabulary)
	p, err := r.planner.Build(r.ec, f)
	return p, f, err
}

// Run executes the full pipeline for one query and returns the report.
// Per-source and per-entity failures degrade into the report; only context
// cancellation aborts the run.
func (r *Runner) Run(ctx context.Context, query string) (*model.RunReport, error) {
	report := &model.RunReport{
		RunID:        uuid.NewString(),
		Query:        query,
		ContractID:   r.ec.ContractID,
		ContractHash: r.ec.ContractHash,
		StartedAt:    time.Now().UTC(),
	}
	r.setState(StatePlanned)

	p, f, err := r.Plan(query)
	if err != nil {
		r.setState(StateAborted)
		return report, err
	}
	r.logger.Info("plan built",
		zap.String("run", report.RunID),
		zap.Int("phases", len(p.Phases)),
		zap.Int("sources", p.SourceCount()),
		zap.Bool("geo_intent", f.HasGeoIntent))

	r.setState(StateExecuting)
	outcome, err := r.orch.Execute(ctx, p, query)
	if outcome != nil {
		report.Phases = outcome.Phases
		report.Sources = outcome.Sources
		report.Records = len(outcome.Records)
		report.Counts.Source = outcome.SourceErrors
		report.Counts.Extraction = outcome.ExtractionErrors
		report.Counts.Persistence = outcome.PersistErrors
	}
	if err != nil {
		r.setState(StateAborted)
		report.FinishedAt = time.Now().UTC()
		return report, err
	}

	annotated := r.annotate(ctx, outcome.Records, report)
	groups := r.matcher.Group(outcome.Records)
	report.Groups = len(groups)

	r.resolve(ctx, annotated, groups, report)

	report.FinishedAt = time.Now().UTC()
	r.setState(StateCompleted)
	r.logger.Info("run completed",
		zap.String("run", report.RunID),
		zap.Int("records", report.Records),
		zap.Int("groups", report.Groups),
		zap.Int("entities", len(report.Entities)))
	return report, nil
}

// annotate runs mapping, classification, and modules over every record.
// Records are processed in id order so rule-error counts and generative
// calls happen in a fixed sequence.
func (r *Runner) annotate(ctx context.Context, records []model.ExtractedRecord, report *model.RunReport) map[string]*model.AnnotatedRecord {
	ordered := append([]model.ExtractedRecord(nil), records...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	out := make(map[string]*model.AnnotatedRecord, len(ordered))
	for i := range ordered {
		rec := ordered[i]
		dims, mapRes := r.mapper.Apply(r.ec, &rec)
		report.Counts.Rule += mapRes.RuleErrors

		ann := &model.AnnotatedRecord{
			Record:     rec,
			Dimensions: dims,
			Class:      classify.Classify(&rec),
		}
		modRes := r.modules.Apply(ctx, r.ec, ann)
		report.Counts.Rule += modRes.RuleErrors
		report.Counts.Extraction += modRes.ExtractionErrors

		out[rec.ID] = ann
	}
	return out
}

// resolve merges each dedup group and upserts the result. A failure in one
// group is recorded and skipped; the rest of the groups still land.
func (r *Runner) resolve(ctx context.Context, annotated map[string]*model.AnnotatedRecord, groups []model.DedupGroup, report *model.RunReport) {
	now := time.Now().UTC()

	for _, group := range groups {
		members := make([]merge.Member, 0, len(group.RecordIDs))
		for _, id := range group.RecordIDs {
			ann, ok := annotated[id]
			if !ok {
				continue
			}
			spec, _ := r.registry.Get(ann.Record.SourceID)
			members = append(members, merge.Member{
				Ann:      ann,
				Trust:    spec.Trust,
				Priority: spec.Priority,
			})
		}
		if len(members) == 0 {
			continue
		}

		merged := r.merger.Merge(members)
		entity, created, err := r.store.Upsert(ctx, merged, now)
		if err != nil {
			report.Counts.Persistence++
			report.Failures = append(report.Failures, model.EntityFailure{
				Name:  merged.Name,
				Error: err.Error(),
			})
			r.logger.Warn("entity upsert failed",
				zap.String("name", merged.Name),
				zap.Error(err))
			continue
		}
		report.Entities = append(report.Entities, entity.Slug)
		r.logger.Debug("entity upserted",
			zap.String("slug", entity.Slug),
			zap.Bool("created", created),
			zap.Int("members", len(members)))
	}
	sort.Strings(report.Entities)
}

// Finalize is exported for the single-source extract command: it annotates,
// groups, merges, and upserts an already-decoded record set.
func (r *Runner) Finalize(ctx context.Context, records []model.ExtractedRecord, report *model.RunReport) {
	annotated := r.annotate(ctx, records, report)
	groups := r.matcher.Group(records)
	report.Groups = len(groups)
	r.resolve(ctx, annotated, groups, report)
}
