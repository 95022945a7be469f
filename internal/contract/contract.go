// Package contract holds the interpretation-contract model: vocabulary,
// routing rules, mapping rules, module definitions, and the canonical value
// registry. The kernel interprets these as data; it carries no domain
// vocabulary of its own.
package contract

import "regexp"

// Document is the parsed contract file. All five top-level sections are
// required; Load rejects a document missing any of them.
type Document struct {
	Vocabulary        Vocabulary      `yaml:"vocabulary" json:"vocabulary"`
	RoutingRules      []RoutingRule   `yaml:"routing_rules" json:"routing_rules"`
	MappingRules      []MappingRule   `yaml:"mapping_rules" json:"mapping_rules"`
	ModuleDefinitions []ModuleDef     `yaml:"module_definitions" json:"module_definitions"`
	CanonicalRegistry []RegistryEntry `yaml:"canonical_registry" json:"canonical_registry"`
}

// Vocabulary supplies every term the kernel is allowed to recognize in a
// query. Lists are named so routing triggers can reference them.
type Vocabulary struct {
	Keywords        map[string][]string `yaml:"keywords" json:"keywords"`
	GeoIndicators   []string            `yaml:"geo_indicators" json:"geo_indicators"`
	CategoryMarkers []string            `yaml:"category_markers" json:"category_markers"`
}

// RoutingRule selects a source when its trigger matches the query features.
type RoutingRule struct {
	ID      string  `yaml:"id" json:"id"`
	Source  string  `yaml:"source" json:"source"`
	Trigger Trigger `yaml:"trigger" json:"trigger"`
}

// Trigger is a routing predicate over query features.
//
// Kinds: "always", "keyword" (a named vocabulary list matched), "location"
// (geographic intent present), "category" (category-search signal), and
// "all" (conjunction of nested triggers).
type Trigger struct {
	Kind string    `yaml:"kind" json:"kind"`
	List string    `yaml:"list,omitempty" json:"list,omitempty"`
	All  []Trigger `yaml:"all,omitempty" json:"all,omitempty"`
}

// MappingRule emits one (dimension, value) pair when its pattern matches
// the evidence string built from its source fields.
type MappingRule struct {
	ID           string   `yaml:"id" json:"id"`
	Pattern      string   `yaml:"pattern" json:"pattern"`
	Dimension    string   `yaml:"dimension" json:"dimension"`
	Value        string   `yaml:"value" json:"value"`
	Confidence   float64  `yaml:"confidence" json:"confidence"`
	SourceFields []string `yaml:"source_fields,omitempty" json:"source_fields,omitempty"`
}

// ModuleDef declares a namespaced structured module: the trigger that
// attaches it and the field rules that populate it.
type ModuleDef struct {
	Namespace string        `yaml:"namespace" json:"namespace"`
	Trigger   ModuleTrigger `yaml:"trigger" json:"trigger"`
	Fields    []FieldRule   `yaml:"fields" json:"fields"`
}

// ModuleTrigger attaches a module when the entity's dimension values
// intersect the required set, optionally gated on entity class.
type ModuleTrigger struct {
	Dimension   string   `yaml:"dimension" json:"dimension"`
	Values      []string `yaml:"values" json:"values"`
	EntityClass string   `yaml:"entity_class,omitempty" json:"entity_class,omitempty"`
}

// FieldRule populates one dot-path inside a module tree.
//
// Kinds: "pattern" (regex capture), "number" (regex capture parsed as a
// number), "lookup" (table keyed on a primitive field), "generative"
// (filled by the batched extraction call when still unset and applicable).
type FieldRule struct {
	ID           string            `yaml:"id" json:"id"`
	Path         string            `yaml:"path" json:"path"`
	Kind         string            `yaml:"kind" json:"kind"`
	Pattern      string            `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	SourceFields []string          `yaml:"source_fields,omitempty" json:"source_fields,omitempty"`
	Lookup       map[string]string `yaml:"lookup,omitempty" json:"lookup,omitempty"`
	LookupField  string            `yaml:"lookup_field,omitempty" json:"lookup_field,omitempty"`
	ApplyIf      *Condition        `yaml:"apply_if,omitempty" json:"apply_if,omitempty"`
	Normalize    []string          `yaml:"normalize,omitempty" json:"normalize,omitempty"`
	Confidence   float64           `yaml:"confidence,omitempty" json:"confidence,omitempty"`
	Type         string            `yaml:"type,omitempty" json:"type,omitempty"`   // generative: "string", "number", "bool", "list"
	Hint         string            `yaml:"hint,omitempty" json:"hint,omitempty"`   // generative: one-line field description
}

// Condition gates a generative field rule on the entity's dimension values.
type Condition struct {
	Dimension string   `yaml:"dimension" json:"dimension"`
	Values    []string `yaml:"values" json:"values"`
}

// RegistryEntry declares one canonical value and its display metadata.
// Every value referenced by a mapping rule or module trigger must resolve
// to exactly one entry.
type RegistryEntry struct {
	Value     string `yaml:"value" json:"value"`
	Dimension string `yaml:"dimension" json:"dimension"`
	Label     string `yaml:"label,omitempty" json:"label,omitempty"`
}

// Contract is the materialized, validated form of a Document: immutable,
// content-hashed, with every pattern pre-compiled.
type Contract struct {
	ID   string
	Hash string
	Doc  Document

	// registry index: value -> entry
	Registry map[string]RegistryEntry

	// compiled patterns keyed by rule id (mapping and field rules share
	// the namespace; gate 4 guarantees ids are unique across both)
	Patterns map[string]*regexp.Regexp
}

// Pattern returns the compiled pattern for a rule id, or nil.
func (c *Contract) Pattern(ruleID string) *regexp.Regexp {
	return c.Patterns[ruleID]
}

// RegistryHas reports whether a value is declared in the canonical registry.
func (c *Contract) RegistryHas(value string) bool {
	_, ok := c.Registry[value]
	return ok
}
