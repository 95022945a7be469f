package model

import "time"

// DedupGroup is a set of extracted-record ids believed to denote one real
// entity, tagged with the matching tier that produced the grouping.
type DedupGroup struct {
	RecordIDs []string `json:"record_ids"` // sorted
	Tier      int      `json:"tier"`       // 1..4, lower is stronger
}

// Provenance records where a merged entity's data came from.
type Provenance struct {
	ContributingSources []string           `json:"contributing_sources"` // sorted, unioned across upserts
	ExternalIDs         map[string]string  `json:"external_ids,omitempty"`
	PrimarySource       string             `json:"primary_source,omitempty"`
	FieldConfidence     map[string]float64 `json:"field_confidence,omitempty"`
}

// MergedEntity is the single conflict-resolved record produced for one
// DedupGroup: primitives, canonical dimensions, module trees, provenance.
type MergedEntity struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	GeoPrecision string   `json:"geo_precision,omitempty"`

	Street   string `json:"street,omitempty"`
	City     string `json:"city,omitempty"`
	Postcode string `json:"postcode,omitempty"`
	Country  string `json:"country,omitempty"`

	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Website string `json:"website,omitempty"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	Class      EntityClass         `json:"entity_class"`
	Dimensions CanonicalDimensions `json:"dimensions"`
	Modules    map[string]any      `json:"modules,omitempty"`

	Provenance Provenance `json:"provenance"`
}

// Entity is the persisted form of a MergedEntity: keyed by a stable slug,
// mutated only through the idempotent upsert, never deleted implicitly.
type Entity struct {
	Slug      string       `json:"slug"`
	Merged    MergedEntity `json:"entity"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// IsMissing implements the shared missingness definition: nil, empty
// string, empty array, and empty object all count as "no value". Every
// merge strategy and the upsert contract use this one definition.
func IsMissing(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	case *float64:
		return t == nil
	case *time.Time:
		return t == nil
	}
	return false
}
