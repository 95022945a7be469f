// Package source holds the source registry, the fetch capability, and the
// decoders that turn raw payloads into extracted records. The kernel only
// ever sees a source through its registry metadata and the Fetcher
// interface.
package source

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Spec describes one registered source: the only facts about a source the
// kernel may consult. Merge decisions use trust and priority exclusively;
// source ids never appear in conditionals.
type Spec struct {
	ID         string        `yaml:"id" json:"id"`
	Trust      float64       `yaml:"trust" json:"trust"` // 0-1 reliability weight
	Cost       float64       `yaml:"cost" json:"cost"`   // per-call cost, 0 = free
	Priority   int           `yaml:"priority" json:"priority"`
	Phase      int           `yaml:"phase" json:"phase"` // 0 = discovery, ascending
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	DailyLimit int           `yaml:"daily_limit" json:"daily_limit"` // 0 = unlimited
	RatePerSec float64       `yaml:"rate_per_sec" json:"rate_per_sec"`

	// Reference HTTP fetcher configuration. Sources backed by custom
	// Fetcher implementations may leave these empty.
	Endpoint string      `yaml:"endpoint,omitempty" json:"endpoint,omitempty"` // URL template, {query} substituted
	Decoder  DecoderSpec `yaml:"decoder,omitempty" json:"decoder,omitempty"`
}

// DecoderSpec declares, as data, how a source's payload maps onto record
// primitives. Kind "json" walks dot paths; kind "text" yields a single
// record whose description is the payload text.
type DecoderSpec struct {
	Kind    string `yaml:"kind" json:"kind"` // "json" or "text"
	Records string `yaml:"records,omitempty" json:"records,omitempty"` // dot path to the record array, "" = root

	// Fields maps primitive names (name, description, street, city,
	// postcode, country, phone, email, website, latitude, longitude,
	// categories, start_time, end_time) to dot paths within one record.
	Fields map[string]string `yaml:"fields,omitempty" json:"fields,omitempty"`

	ExternalID   string `yaml:"external_id,omitempty" json:"external_id,omitempty"` // dot path to the source-native key
	ExternalIDNS string `yaml:"external_id_ns,omitempty" json:"external_id_ns,omitempty"` // id namespace, defaults to the source id; shared namespaces (e.g. "osm") match across sources
	GeoPrecision string `yaml:"geo_precision,omitempty" json:"geo_precision,omitempty"`
	NamePattern  string `yaml:"name_pattern,omitempty" json:"name_pattern,omitempty"` // text kind: capture group 1 names the record
}

// Registry is the read-only set of registered sources, shared by reference
// across all concurrent tasks after bootstrap.
type Registry struct {
	specs map[string]Spec
}

// LoadRegistry reads a source registry YAML file ("sources:" list).
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source registry: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry parses source registry bytes.
func ParseRegistry(data []byte) (*Registry, error) {
	var doc struct {
		Sources []Spec `yaml:"sources"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse source registry: %w", err)
	}
	return NewRegistry(doc.Sources)
}

// NewRegistry builds a registry from specs, rejecting duplicates and
// out-of-range trust values.
func NewRegistry(specs []Spec) (*Registry, error) {
	r := &Registry{specs: make(map[string]Spec, len(specs))}
	for _, spec := range specs {
		if spec.ID == "" {
			return nil, fmt.Errorf("source registry: spec with empty id")
		}
		if _, dup := r.specs[spec.ID]; dup {
			return nil, fmt.Errorf("source registry: duplicate source id %q", spec.ID)
		}
		if spec.Trust < 0 || spec.Trust > 1 {
			return nil, fmt.Errorf("source registry: source %q trust %v out of [0,1]", spec.ID, spec.Trust)
		}
		if spec.Timeout == 0 {
			spec.Timeout = 15 * time.Second
		}
		r.specs[spec.ID] = spec
	}
	return r, nil
}

// Get returns the spec for a source id.
func (r *Registry) Get(id string) (Spec, bool) {
	spec, ok := r.specs[id]
	return spec, ok
}

// IDs returns all registered source ids in lexicographic order. Every
// ordered walk of the registry goes through here so map iteration order
// never leaks into output.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.specs))
	for id := range r.specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered sources.
func (r *Registry) Len() int { return len(r.specs) }
