// Package modules attaches namespaced structured records to entities and
// populates their fields via declarative rules. Deterministic extractors
// always run first; the generative capability fills only what they left
// unset, in at most one batched call per module per record.
package modules

import (
	"context"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"lens/internal/contract"
	"lens/internal/llm"
	"lens/internal/model"
)

// Engine evaluates module triggers and field rules.
type Engine struct {
	provider llm.Provider // nil disables generative fill
	logger   *zap.Logger
}

// NewEngine creates a module engine. provider may be nil.
func NewEngine(provider llm.Provider, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{provider: provider, logger: logger}
}

// Result counts degraded evaluations for the run report.
type Result struct {
	RuleErrors       int
	ExtractionErrors int
}

// Apply attaches every triggered module to the annotated record and runs
// its field rules. The record's primitives are read-only here; only
// Modules and ModuleConfidence are written.
func (e *Engine) Apply(ctx context.Context, ec contract.ExecutionContext, ann *model.AnnotatedRecord) Result {
	var res Result
	for _, mod := range ec.Contract.Doc.ModuleDefinitions {
		if !Triggered(mod.Trigger, ann) {
			continue
		}
		if ann.Modules == nil {
			ann.Modules = make(map[string]any)
		}
		tree, _ := ann.Modules[mod.Namespace].(map[string]any)
		if tree == nil {
			tree = make(map[string]any)
		}
		e.applyFields(ctx, ec, mod, ann, tree, &res)
		ann.Modules[mod.Namespace] = tree
	}
	return res
}

// Triggered reports whether the entity's dimension values intersect the
// module's required set, subject to the optional entity-class condition.
func Triggered(t contract.ModuleTrigger, ann *model.AnnotatedRecord) bool {
	if t.EntityClass != "" && string(ann.Class) != t.EntityClass {
		return false
	}
	have := ann.Dimensions.Get(t.Dimension)
	for _, want := range t.Values {
		for _, v := range have {
			if v == want {
				return true
			}
		}
	}
	return false
}

// applyFields runs deterministic rules first, then one batched generative
// call for fields still unset whose applicability conditions hold.
func (e *Engine) applyFields(ctx context.Context, ec contract.ExecutionContext, mod contract.ModuleDef, ann *model.AnnotatedRecord, tree map[string]any, res *Result) {
	var generative []contract.FieldRule

	for _, rule := range mod.Fields {
		switch rule.Kind {
		case "pattern", "number", "lookup":
			value, ok := e.evalDeterministic(ec, rule, &ann.Record)
			if !ok {
				continue
			}
			value = applyNormalizers(value, rule.Normalize)
			if model.IsMissing(value) {
				continue
			}
			writePath(tree, rule.Path, value)
			e.noteConfidence(ann, mod.Namespace, rule)
		case "generative":
			generative = append(generative, rule)
		default:
			e.logger.Warn("unknown field rule kind",
				zap.String("module", mod.Namespace),
				zap.String("rule", rule.ID),
				zap.String("kind", rule.Kind))
			res.RuleErrors++
		}
	}

	if e.provider == nil || len(generative) == 0 {
		return
	}

	var specs []llm.FieldSpec
	byPath := make(map[string]contract.FieldRule)
	for _, rule := range generative {
		if _, set := readPath(tree, rule.Path); set {
			continue
		}
		if !applicable(rule.ApplyIf, ann) {
			continue
		}
		specs = append(specs, llm.FieldSpec{Path: rule.Path, Type: rule.Type, Hint: rule.Hint})
		byPath[rule.Path] = rule
	}
	if len(specs) == 0 {
		return
	}

	resp, err := e.provider.Extract(ctx, llm.ExtractRequest{
		Module: mod.Namespace,
		Text:   generativeEvidence(&ann.Record),
		Fields: specs,
	})
	if err != nil {
		// The module proceeds with its deterministic fields only.
		e.logger.Warn("generative extraction failed",
			zap.String("module", mod.Namespace),
			zap.Error(err))
		res.ExtractionErrors++
		return
	}

	for path, value := range resp.Fields {
		rule, requested := byPath[path]
		if !requested {
			// Providers validate their responses, but a field this batch
			// never asked for must not overwrite deterministic output.
			continue
		}
		value = applyNormalizers(value, rule.Normalize)
		if model.IsMissing(value) {
			continue
		}
		writePath(tree, path, value)
		e.noteConfidence(ann, mod.Namespace, rule)
	}
}

// evalDeterministic evaluates a pattern, number, or lookup rule. A rule
// that fails to match simply contributes nothing.
func (e *Engine) evalDeterministic(ec contract.ExecutionContext, rule contract.FieldRule, rec *model.ExtractedRecord) (any, bool) {
	switch rule.Kind {
	case "pattern":
		re := ec.Contract.Pattern(rule.ID)
		if re == nil {
			return nil, false
		}
		evidence := fieldEvidence(rec, rule.SourceFields)
		m := re.FindStringSubmatch(evidence)
		if len(m) > 1 {
			return m[1], true
		}
		if len(m) == 1 {
			return m[0], true
		}
		return nil, false
	case "number":
		re := ec.Contract.Pattern(rule.ID)
		if re == nil {
			return nil, false
		}
		evidence := fieldEvidence(rec, rule.SourceFields)
		m := re.FindStringSubmatch(evidence)
		capture := ""
		if len(m) > 1 {
			capture = m[1]
		} else if len(m) == 1 {
			capture = m[0]
		}
		if capture == "" {
			return nil, false
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(capture, ",", ""), 64)
		if err != nil {
			return nil, false
		}
		return f, true
	case "lookup":
		field := rule.LookupField
		if field == "" {
			field = "name"
		}
		key := strings.ToLower(strings.TrimSpace(rec.Field(field)))
		if v, ok := rule.Lookup[key]; ok {
			return v, true
		}
		return nil, false
	}
	return nil, false
}

func (e *Engine) noteConfidence(ann *model.AnnotatedRecord, namespace string, rule contract.FieldRule) {
	conf := rule.Confidence
	if conf == 0 {
		conf = 1 // deterministic rules default to full confidence
	}
	if ann.ModuleConfidence == nil {
		ann.ModuleConfidence = make(map[string]float64)
	}
	ann.ModuleConfidence[namespace+"."+rule.Path] = conf
}

// applicable evaluates a generative rule's applicability condition against
// the entity's dimensions.
func applicable(cond *contract.Condition, ann *model.AnnotatedRecord) bool {
	if cond == nil {
		return true
	}
	have := ann.Dimensions.Get(cond.Dimension)
	for _, want := range cond.Values {
		for _, v := range have {
			if v == want {
				return true
			}
		}
	}
	return false
}

func fieldEvidence(rec *model.ExtractedRecord, sourceFields []string) string {
	fields := sourceFields
	if len(fields) == 0 {
		fields = []string{"name", "description", "raw_categories"}
	}
	parts := make([]string, 0, len(fields))
	for _, name := range fields {
		if v := rec.Field(name); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "\n")
}

// generativeEvidence is the full primitive surface handed to the provider.
func generativeEvidence(rec *model.ExtractedRecord) string {
	var b strings.Builder
	add := func(label, value string) {
		if value != "" {
			b.WriteString(label)
			b.WriteString(": ")
			b.WriteString(value)
			b.WriteString("\n")
		}
	}
	add("name", rec.Name)
	add("description", rec.Description)
	add("street", rec.Street)
	add("city", rec.City)
	add("postcode", rec.Postcode)
	add("country", rec.Country)
	add("categories", strings.Join(rec.RawCategories, ", "))
	return b.String()
}

// writePath writes a value at a dot path, creating intermediate objects.
// A non-object intermediate is overwritten; the declared paths own the
// tree shape.
func writePath(tree map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	cur := tree
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

// readPath reads a value at a dot path; the bool reports presence.
func readPath(tree map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	cur := any(tree)
	for _, part := range parts {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// applyNormalizers runs the fixed post-extraction pipeline in declaration
// order. Unknown names are ignored.
func applyNormalizers(value any, names []string) any {
	for _, name := range names {
		switch name {
		case "lowercase":
			if s, ok := value.(string); ok {
				value = strings.ToLower(s)
			}
		case "uppercase":
			if s, ok := value.(string); ok {
				value = strings.ToUpper(s)
			}
		case "trim":
			if s, ok := value.(string); ok {
				value = strings.TrimSpace(s)
			}
		case "titlecase":
			if s, ok := value.(string); ok {
				value = titleCase(s)
			}
		case "round":
			if f, ok := value.(float64); ok {
				value = math.Round(f)
			}
		case "wrap_list":
			switch t := value.(type) {
			case []any:
				// already a list
			case nil:
			default:
				value = []any{t}
			}
		}
	}
	return value
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
