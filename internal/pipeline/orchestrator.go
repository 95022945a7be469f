package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"lens/internal/cache"
	"lens/internal/model"
	"lens/internal/plan"
	"lens/internal/source"
	"lens/internal/store"
	"lens/internal/worker"
)

// Orchestrator executes a plan phase by phase. Each phase is a hard
// barrier: every fetch task settles (success, error, or timeout) before the
// next phase starts. Task failures degrade to "no data from that source";
// they never abort the run.
type Orchestrator struct {
	registry *source.Registry
	fetchers source.FetcherSet
	ledger   *source.BudgetLedger
	pool     *worker.Pool
	cache    cache.Cache  // nil disables payload caching
	store    *store.Store // nil disables artifact persistence
	logger   *zap.Logger
}

// NewOrchestrator wires the fetch machinery together.
func NewOrchestrator(registry *source.Registry, fetchers source.FetcherSet, ledger *source.BudgetLedger, pool *worker.Pool, artifactCache cache.Cache, st *store.Store, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		registry: registry,
		fetchers: fetchers,
		ledger:   ledger,
		pool:     pool,
		cache:    artifactCache,
		store:    st,
		logger:   logger,
	}
}

// ExecuteOutcome aggregates everything the fetch phases produced.
type ExecuteOutcome struct {
	Records []model.ExtractedRecord
	Phases  []model.PhaseReport
	Sources []model.SourceStat // sorted by source id

	SourceErrors     int
	ExtractionErrors int
	PersistErrors    int
}

// Execute runs every phase of the plan in order. Within a phase sources run
// concurrently on the pool; record order in the outcome follows the plan's
// source order, never completion order.
func (o *Orchestrator) Execute(ctx context.Context, p *plan.Plan, query string) (*ExecuteOutcome, error) {
	outcome := &ExecuteOutcome{}
	stats := make(map[string]*model.SourceStat)

	for _, phase := range p.Phases {
		if err := ctx.Err(); err != nil {
			return outcome, fmt.Errorf("phase %d: %w", phase.Index, err)
		}

		tasks := make([]worker.Task, 0, len(phase.Sources))
		for _, id := range phase.Sources {
			spec, ok := o.registry.Get(id)
			if !ok {
				continue
			}
			tasks = append(tasks, &fetchTask{orch: o, spec: spec, query: query})
		}

		started := time.Now()
		results := o.pool.ExecuteAll(ctx, tasks)
		report := model.PhaseReport{
			Phase:   phase.Index,
			Sources: phase.Sources,
			Elapsed: time.Since(started),
		}

		for _, res := range results {
			stat := stats[res.TaskID()]
			if stat == nil {
				stat = &model.SourceStat{SourceID: res.TaskID()}
				stats[res.TaskID()] = stat
			}
			stat.Fetches++

			fr, ok := res.(*fetchResult)
			if !ok || fr.err != nil {
				report.Failed++
				o.noteFailure(stat, outcome, res)
				continue
			}

			report.Succeeded++
			stat.Successes++
			stat.Records += len(fr.records)
			if fr.duplicate {
				stat.Duplicate = true
			}
			outcome.ExtractionErrors += fr.extractionErrors
			outcome.PersistErrors += fr.persistErrors
			outcome.Records = append(outcome.Records, fr.records...)
		}
		outcome.Phases = append(outcome.Phases, report)
	}

	ids := make([]string, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		outcome.Sources = append(outcome.Sources, *stats[id])
	}
	return outcome, nil
}

func (o *Orchestrator) noteFailure(stat *model.SourceStat, outcome *ExecuteOutcome, res worker.Result) {
	err := res.Err()
	outcome.SourceErrors++
	if errors.Is(err, context.DeadlineExceeded) {
		stat.Timeouts++
	} else {
		stat.Errors++
	}
	o.logger.Warn("source fetch failed",
		zap.String("source", res.TaskID()),
		zap.Error(err))
}

// fetchTask fetches, caches, persists, and decodes one source's payload.
type fetchTask struct {
	orch  *Orchestrator
	spec  source.Spec
	query string
}

func (t *fetchTask) ID() string { return t.spec.ID }

// fetchResult settles a fetch task. err covers fetch-level failure only;
// decode and persistence problems degrade into their counters with
// whatever records survived.
type fetchResult struct {
	sourceID  string
	records   []model.ExtractedRecord
	duplicate bool
	err       error

	extractionErrors int
	persistErrors    int
}

func (r *fetchResult) TaskID() string { return r.sourceID }
func (r *fetchResult) Err() error     { return r.err }

func (t *fetchTask) Execute(ctx context.Context) worker.Result {
	o := t.orch
	res := &fetchResult{sourceID: t.spec.ID}

	artifact, fromCache := t.cachedArtifact()
	if artifact == nil {
		if !o.ledger.Charge(t.spec) {
			res.err = fmt.Errorf("source %s: budget exhausted", t.spec.ID)
			return res
		}
		fetcher, ok := o.fetchers[t.spec.ID]
		if !ok {
			res.err = fmt.Errorf("source %s: no fetcher registered", t.spec.ID)
			return res
		}
		fetchCtx := ctx
		if t.spec.Timeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(ctx, t.spec.Timeout)
			defer cancel()
		}
		var err error
		artifact, err = fetcher.Fetch(fetchCtx, t.query)
		if err != nil {
			res.err = fmt.Errorf("source %s: %w", t.spec.ID, err)
			return res
		}
		if o.cache != nil {
			_ = o.cache.Set(cache.ArtifactKey(t.spec.ID, t.query), artifact.Payload, 0)
		}
	}

	// Artifact persistence happens before extraction so a decode crash
	// never loses the raw payload.
	res.duplicate = t.persist(ctx, artifact, fromCache, res)

	records, err := source.NewDecoder(t.spec).Decode(artifact)
	if err != nil {
		o.logger.Warn("decode failed",
			zap.String("source", t.spec.ID),
			zap.Error(err))
		res.extractionErrors++
		return res
	}
	res.records = records
	return res
}

func (t *fetchTask) cachedArtifact() (*model.RawArtifact, bool) {
	if t.orch.cache == nil {
		return nil, false
	}
	payload, ok := t.orch.cache.Get(cache.ArtifactKey(t.spec.ID, t.query))
	if !ok {
		return nil, false
	}
	a := model.NewRawArtifact(t.spec.ID, t.query, payload, time.Now())
	return &a, true
}

// persist writes the artifact unless an identical payload was already
// stored for this source+query. Returns whether it was a duplicate.
func (t *fetchTask) persist(ctx context.Context, artifact *model.RawArtifact, fromCache bool, res *fetchResult) bool {
	o := t.orch
	seenKey := cache.SeenKey(t.spec.ID, t.query, artifact.ContentHash)
	if o.cache != nil {
		if _, seen := o.cache.Get(seenKey); seen {
			return true
		}
	}
	if o.store != nil {
		dup, err := o.store.HasArtifact(ctx, t.spec.ID, t.query, artifact.ContentHash)
		if err != nil {
			o.logger.Warn("artifact lookup failed", zap.String("source", t.spec.ID), zap.Error(err))
			res.persistErrors++
		} else if dup {
			if o.cache != nil {
				_ = o.cache.Set(seenKey, []byte{1}, 0)
			}
			return true
		}
		if err := o.store.SaveArtifact(ctx, *artifact); err != nil {
			o.logger.Warn("artifact persist failed", zap.String("source", t.spec.ID), zap.Error(err))
			res.persistErrors++
		}
	}
	if o.cache != nil {
		_ = o.cache.Set(seenKey, []byte{1}, 0)
	}
	return fromCache
}
