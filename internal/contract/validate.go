package contract

import (
	"fmt"
	"regexp"
	"sort"

	"lens/internal/model"
)

// Validation gates, in execution order. Each is a hard abort on first
// failure; there is no partial-validity mode.
const (
	GateSections    = 1 // required top-level sections present
	GateRegistry    = 2 // canonical reference integrity
	GateSources     = 3 // routing rules reference known sources
	GateUniqueness  = 4 // rule ids and registry keys unique
	GatePatterns    = 5 // all patterns compile
	GateCoverage    = 6 // every dimension has at least one registered value
	GateNoFallback  = 7 // structural: any failure above already aborted
)

// GateError identifies the failing gate and the offending reference.
type GateError struct {
	Gate int
	Ref  string
	Err  error
}

func (e *GateError) Error() string {
	return fmt.Sprintf("contract validation gate %d failed (%s): %v", e.Gate, e.Ref, e.Err)
}

func (e *GateError) Unwrap() error { return e.Err }

// validate runs gates 2-6 (gate 1 runs during Load, gate 7 is the
// fail-fast structure itself) and materializes the registry index and
// compiled patterns on success.
func validate(c *Contract, sourceIDs []string) error {
	if err := checkRegistryIntegrity(c); err != nil {
		return err
	}
	if err := checkSourceRefs(c, sourceIDs); err != nil {
		return err
	}
	if err := checkUniqueness(c); err != nil {
		return err
	}
	if err := compilePatterns(c); err != nil {
		return err
	}
	if err := checkCoverage(c); err != nil {
		return err
	}
	return nil
}

// checkRegistryIntegrity builds the registry index and verifies every value
// referenced by a mapping rule, module trigger, or applicability condition
// is declared (gate 2). Duplicate registry keys also fail here.
func checkRegistryIntegrity(c *Contract) error {
	c.Registry = make(map[string]RegistryEntry, len(c.Doc.CanonicalRegistry))
	dims := make(map[string]bool)
	for _, name := range model.DimensionNames() {
		dims[name] = true
	}
	for _, entry := range c.Doc.CanonicalRegistry {
		if entry.Value == "" {
			return &GateError{Gate: GateRegistry, Ref: "canonical_registry",
				Err: fmt.Errorf("registry entry with empty value")}
		}
		if !dims[entry.Dimension] {
			return &GateError{Gate: GateRegistry, Ref: entry.Value,
				Err: fmt.Errorf("registry entry declares unknown dimension %q", entry.Dimension)}
		}
		if _, dup := c.Registry[entry.Value]; dup {
			return &GateError{Gate: GateRegistry, Ref: entry.Value,
				Err: fmt.Errorf("duplicate registry key")}
		}
		c.Registry[entry.Value] = entry
	}

	for _, rule := range c.Doc.MappingRules {
		if !dims[rule.Dimension] {
			return &GateError{Gate: GateRegistry, Ref: rule.ID,
				Err: fmt.Errorf("mapping rule targets unknown dimension %q", rule.Dimension)}
		}
		if _, ok := c.Registry[rule.Value]; !ok {
			return &GateError{Gate: GateRegistry, Ref: rule.ID,
				Err: fmt.Errorf("mapping rule references undeclared canonical value %q", rule.Value)}
		}
	}
	for _, mod := range c.Doc.ModuleDefinitions {
		if !dims[mod.Trigger.Dimension] {
			return &GateError{Gate: GateRegistry, Ref: mod.Namespace,
				Err: fmt.Errorf("module trigger uses unknown dimension %q", mod.Trigger.Dimension)}
		}
		for _, v := range mod.Trigger.Values {
			if _, ok := c.Registry[v]; !ok {
				return &GateError{Gate: GateRegistry, Ref: mod.Namespace,
					Err: fmt.Errorf("module trigger references undeclared canonical value %q", v)}
			}
		}
		for _, field := range mod.Fields {
			if field.ApplyIf == nil {
				continue
			}
			if !dims[field.ApplyIf.Dimension] {
				return &GateError{Gate: GateRegistry, Ref: field.ID,
					Err: fmt.Errorf("apply_if uses unknown dimension %q", field.ApplyIf.Dimension)}
			}
			for _, v := range field.ApplyIf.Values {
				if _, ok := c.Registry[v]; !ok {
					return &GateError{Gate: GateRegistry, Ref: field.ID,
						Err: fmt.Errorf("apply_if references undeclared canonical value %q", v)}
				}
			}
		}
	}
	return nil
}

// checkSourceRefs verifies every routing rule targets a registered source
// (gate 3).
func checkSourceRefs(c *Contract, sourceIDs []string) error {
	known := make(map[string]bool, len(sourceIDs))
	for _, id := range sourceIDs {
		known[id] = true
	}
	for _, rule := range c.Doc.RoutingRules {
		if !known[rule.Source] {
			return &GateError{Gate: GateSources, Ref: rule.ID,
				Err: fmt.Errorf("routing rule references unknown source %q", rule.Source)}
		}
		if err := checkTrigger(c, rule.Trigger, rule.ID); err != nil {
			return err
		}
	}
	return nil
}

// checkTrigger validates trigger kinds and vocabulary-list references.
func checkTrigger(c *Contract, t Trigger, ruleID string) error {
	switch t.Kind {
	case "always", "location", "category":
		return nil
	case "keyword":
		if _, ok := c.Doc.Vocabulary.Keywords[t.List]; !ok {
			return &GateError{Gate: GateSources, Ref: ruleID,
				Err: fmt.Errorf("keyword trigger references unknown vocabulary list %q", t.List)}
		}
		return nil
	case "all":
		if len(t.All) == 0 {
			return &GateError{Gate: GateSources, Ref: ruleID,
				Err: fmt.Errorf("conjunction trigger with no members")}
		}
		for _, sub := range t.All {
			if err := checkTrigger(c, sub, ruleID); err != nil {
				return err
			}
		}
		return nil
	default:
		return &GateError{Gate: GateSources, Ref: ruleID,
			Err: fmt.Errorf("unknown trigger kind %q", t.Kind)}
	}
}

// checkUniqueness enforces unique ids across routing, mapping, and field
// rules, and unique module namespaces (gate 4).
func checkUniqueness(c *Contract) error {
	seen := make(map[string]string)
	record := func(id, where string) error {
		if id == "" {
			return &GateError{Gate: GateUniqueness, Ref: where,
				Err: fmt.Errorf("rule with empty id")}
		}
		if prev, dup := seen[id]; dup {
			return &GateError{Gate: GateUniqueness, Ref: id,
				Err: fmt.Errorf("duplicate rule id (first declared in %s)", prev)}
		}
		seen[id] = where
		return nil
	}
	for _, rule := range c.Doc.RoutingRules {
		if err := record(rule.ID, "routing_rules"); err != nil {
			return err
		}
	}
	for _, rule := range c.Doc.MappingRules {
		if err := record(rule.ID, "mapping_rules"); err != nil {
			return err
		}
	}
	namespaces := make(map[string]bool)
	for _, mod := range c.Doc.ModuleDefinitions {
		if mod.Namespace == "" {
			return &GateError{Gate: GateUniqueness, Ref: "module_definitions",
				Err: fmt.Errorf("module with empty namespace")}
		}
		if namespaces[mod.Namespace] {
			return &GateError{Gate: GateUniqueness, Ref: mod.Namespace,
				Err: fmt.Errorf("duplicate module namespace")}
		}
		namespaces[mod.Namespace] = true
		for _, field := range mod.Fields {
			if err := record(field.ID, "module "+mod.Namespace); err != nil {
				return err
			}
		}
	}
	return nil
}

// compilePatterns compiles every regex-style pattern once (gate 5). The
// compiled set is reused by the mapping and field-rule engines.
func compilePatterns(c *Contract) error {
	c.Patterns = make(map[string]*regexp.Regexp)
	compile := func(id, pattern string) error {
		if pattern == "" {
			return nil
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return &GateError{Gate: GatePatterns, Ref: id,
				Err: fmt.Errorf("pattern does not compile: %w", err)}
		}
		c.Patterns[id] = re
		return nil
	}
	for _, rule := range c.Doc.MappingRules {
		if rule.Pattern == "" {
			return &GateError{Gate: GatePatterns, Ref: rule.ID,
				Err: fmt.Errorf("mapping rule with empty pattern")}
		}
		if err := compile(rule.ID, rule.Pattern); err != nil {
			return err
		}
	}
	for _, mod := range c.Doc.ModuleDefinitions {
		for _, field := range mod.Fields {
			if (field.Kind == "pattern" || field.Kind == "number") && field.Pattern == "" {
				return &GateError{Gate: GatePatterns, Ref: field.ID,
					Err: fmt.Errorf("%s field rule with empty pattern", field.Kind)}
			}
			if err := compile(field.ID, field.Pattern); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkCoverage requires at least one registered value per dimension
// (gate 6, "smoke coverage").
func checkCoverage(c *Contract) error {
	counts := make(map[string]int)
	for _, entry := range c.Doc.CanonicalRegistry {
		counts[entry.Dimension]++
	}
	names := model.DimensionNames()
	sort.Strings(names)
	for _, dim := range names {
		if counts[dim] == 0 {
			return &GateError{Gate: GateCoverage, Ref: dim,
				Err: fmt.Errorf("dimension has no registered values")}
		}
	}
	return nil
}
