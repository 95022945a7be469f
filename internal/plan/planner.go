// Package plan turns query features, contract routing rules, and the
// source registry into an ordered, phased task plan.
package plan

import (
	"fmt"
	"sort"
	"strings"

	"lens/internal/contract"
	"lens/internal/features"
	"lens/internal/source"
)

// Plan is the ordered list of phases the orchestrator executes. Source
// ordering within a phase is lexicographic by id; it is never derived from
// map iteration.
type Plan struct {
	Phases []Phase `json:"phases"`
}

// Phase holds the sources to fetch concurrently before the next barrier.
type Phase struct {
	Index   int      `json:"phase"`
	Sources []string `json:"sources"` // sorted ids
}

// SourceCount returns the total number of planned fetch tasks.
func (p *Plan) SourceCount() int {
	n := 0
	for _, phase := range p.Phases {
		n += len(phase.Sources)
	}
	return n
}

// Planner evaluates routing triggers against features.
type Planner struct {
	registry *source.Registry
	ledger   *source.BudgetLedger
}

// NewPlanner creates a planner over a source registry and budget ledger.
func NewPlanner(registry *source.Registry, ledger *source.BudgetLedger) *Planner {
	return &Planner{registry: registry, ledger: ledger}
}

// Build selects triggered sources, drops unaffordable ones, and groups the
// remainder into ascending phases. Deterministic for fixed inputs.
func (p *Planner) Build(ec contract.ExecutionContext, f features.Features) (*Plan, error) {
	triggered := make(map[string]bool)
	for _, rule := range ec.Contract.Doc.RoutingRules {
		if evalTrigger(rule.Trigger, f) {
			triggered[rule.Source] = true
		}
	}

	byPhase := make(map[int][]string)
	for _, id := range p.registry.IDs() {
		if !triggered[id] {
			continue
		}
		spec, ok := p.registry.Get(id)
		if !ok {
			// Gate 3 makes this unreachable; a defect, not a filter.
			return nil, fmt.Errorf("plan: triggered source %q not in registry", id)
		}
		if spec.Cost > 0 && !p.ledger.CanAfford(spec) {
			continue
		}
		byPhase[spec.Phase] = append(byPhase[spec.Phase], id)
	}

	phases := make([]int, 0, len(byPhase))
	for phase := range byPhase {
		phases = append(phases, phase)
	}
	sort.Ints(phases)

	plan := &Plan{}
	for _, phase := range phases {
		ids := byPhase[phase]
		sort.Strings(ids)
		plan.Phases = append(plan.Phases, Phase{Index: phase, Sources: ids})
	}
	return plan, nil
}

// evalTrigger evaluates one routing predicate against the features.
func evalTrigger(t contract.Trigger, f features.Features) bool {
	switch t.Kind {
	case "always":
		return true
	case "keyword":
		return f.MatchedList(t.List)
	case "location":
		return f.HasGeoIntent
	case "category":
		return f.LooksLikeCategory
	case "all":
		for _, sub := range t.All {
			if !evalTrigger(sub, f) {
				return false
			}
		}
		return len(t.All) > 0
	}
	return false
}

// Render prints a dry-run plan for the CLI.
func (p *Plan) Render() string {
	if len(p.Phases) == 0 {
		return "plan: no sources triggered\n"
	}
	var b strings.Builder
	for _, phase := range p.Phases {
		fmt.Fprintf(&b, "phase %d: %s\n", phase.Index, strings.Join(phase.Sources, ", "))
	}
	return b.String()
}
