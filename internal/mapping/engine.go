// Package mapping applies contract mapping rules to record primitives,
// populating the four canonical dimension arrays. The engine treats every
// emitted value as an opaque token.
package mapping

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"lens/internal/contract"
	"lens/internal/model"
)

// defaultEvidenceFields is the evidence surface used when a rule declares
// no source fields of its own.
var defaultEvidenceFields = []string{"name", "description", "raw_categories"}

// Engine evaluates mapping rules. Stateless apart from the contract's
// pre-compiled patterns.
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates a mapping engine.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Result counts degraded rule evaluations for the run report.
type Result struct {
	RuleErrors int
}

// Apply runs every mapping rule against the record and returns the
// resulting dimensions: deduplicated, lexicographically sorted, never
// null. A rule contributes at most once; distinct rules may stack onto the
// same dimension.
func (e *Engine) Apply(ec contract.ExecutionContext, rec *model.ExtractedRecord) (model.CanonicalDimensions, Result) {
	var res Result
	collected := make(map[string]map[string]bool) // dimension -> value set

	for _, rule := range ec.Contract.Doc.MappingRules {
		re := ec.Contract.Pattern(rule.ID)
		if re == nil {
			// Gate 5 compiled every pattern; a miss is a defect.
			e.logger.Warn("mapping rule without compiled pattern",
				zap.String("rule", rule.ID))
			res.RuleErrors++
			continue
		}

		evidence := EvidenceString(rec, rule.SourceFields)
		if evidence == "" {
			continue
		}
		if !re.MatchString(evidence) {
			continue
		}

		if collected[rule.Dimension] == nil {
			collected[rule.Dimension] = make(map[string]bool)
		}
		collected[rule.Dimension][rule.Value] = true
	}

	var dims model.CanonicalDimensions
	for _, name := range model.DimensionNames() {
		values := make([]string, 0, len(collected[name]))
		for v := range collected[name] {
			values = append(values, v)
		}
		sort.Strings(values)
		dims.Set(name, values)
	}
	return dims, res
}

// EvidenceString assembles the evidence surface for a rule: the declared
// source fields joined in declaration order, or the default field list.
func EvidenceString(rec *model.ExtractedRecord, sourceFields []string) string {
	fields := sourceFields
	if len(fields) == 0 {
		fields = defaultEvidenceFields
	}
	parts := make([]string, 0, len(fields))
	for _, name := range fields {
		if v := rec.Field(name); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.ToLower(strings.Join(parts, "\n"))
}
