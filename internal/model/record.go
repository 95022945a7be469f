package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RawArtifact is the immutable record of one fetch result. Artifacts are
// write-once and deduplicated by content hash per source+query.
type RawArtifact struct {
	SourceID    string    `json:"source_id"`
	Query       string    `json:"query"`
	Payload     []byte    `json:"payload"`
	ContentHash string    `json:"content_hash"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// NewRawArtifact builds an artifact and stamps its content hash.
func NewRawArtifact(sourceID, query string, payload []byte, fetchedAt time.Time) RawArtifact {
	return RawArtifact{
		SourceID:    sourceID,
		Query:       query,
		Payload:     payload,
		ContentHash: HashBytes(payload),
		FetchedAt:   fetchedAt.UTC(),
	}
}

// HashBytes returns the hex sha256 of the given bytes.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ExtractedRecord holds schema primitives decoded from a single artifact.
// It must never carry canonical dimension values or module data; those are
// attached later on an AnnotatedRecord. Contract tests enforce the boundary.
type ExtractedRecord struct {
	ID       string `json:"id"`
	SourceID string `json:"source_id"`

	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	GeoPrecision string  `json:"geo_precision,omitempty"` // "exact", "approximate", "locality"
	GeoDecimals  int     `json:"geo_decimals,omitempty"`  // decimal places in the source representation

	Street   string `json:"street,omitempty"`
	City     string `json:"city,omitempty"`
	Postcode string `json:"postcode,omitempty"`
	Country  string `json:"country,omitempty"`

	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Website string `json:"website,omitempty"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	RawCategories []string          `json:"raw_categories,omitempty"`
	ExternalIDs   map[string]string `json:"external_ids,omitempty"`
}

// Field returns a primitive field by name for evidence-surface assembly.
// Unknown names return the empty string.
func (r *ExtractedRecord) Field(name string) string {
	switch name {
	case "name":
		return r.Name
	case "description":
		return r.Description
	case "street":
		return r.Street
	case "city":
		return r.City
	case "postcode":
		return r.Postcode
	case "country":
		return r.Country
	case "phone":
		return r.Phone
	case "email":
		return r.Email
	case "website":
		return r.Website
	case "raw_categories":
		out := ""
		for i, c := range r.RawCategories {
			if i > 0 {
				out += " "
			}
			out += c
		}
		return out
	}
	return ""
}

// HasGeoAnchor reports whether the record carries any geographic anchor.
func (r *ExtractedRecord) HasGeoAnchor() bool {
	if r.Latitude != nil && r.Longitude != nil {
		return true
	}
	return r.Street != "" || r.City != "" || r.Postcode != ""
}

// CanonicalDimensions are the four fixed, multi-valued classification
/// arrays. Values are opaque tokens: never null, deduplicated, and kept in
// lexicographic order.
type CanonicalDimensions struct {
	Activities []string `json:"activities"`
	Roles      []string `json:"roles"`
	PlaceTypes []string `json:"place_types"`
	Access     []string `json:"access"`
}

// DimensionNames lists the fixed dimension identifiers in canonical order.
func DimensionNames() []string {
	return []string{"access", "activities", "place_types", "roles"}
}

// Get returns the values of the named dimension.
func (d *CanonicalDimensions) Get(name string) []string {
	switch name {
	case "activities":
		return d.Activities
	case "roles":
		return d.Roles
	case "place_types":
		return d.PlaceTypes
	case "access":
		return d.Access
	}
	return nil
}

// Set replaces the values of the named dimension.
func (d *CanonicalDimensions) Set(name string, values []string) {
	switch name {
	case "activities":
		d.Activities = values
	case "roles":
		d.Roles = values
	case "place_types":
		d.PlaceTypes = values
	case "access":
		d.Access = values
	}
}

// EntityClass is the deterministic structural classification of a record.
type EntityClass string

const (
	ClassPlace        EntityClass = "place"
	ClassEvent        EntityClass = "event"
	ClassOrganization EntityClass = "organization"
	ClassPerson       EntityClass = "person"
	ClassThing        EntityClass = "thing"
)

// AnnotatedRecord is an ExtractedRecord with its second-phase attachments:
// canonical dimensions, module data, and entity class. The primitive record
// itself stays untouched.
type AnnotatedRecord struct {
	Record     ExtractedRecord     `json:"record"`
	Dimensions CanonicalDimensions `json:"dimensions"`
	Modules    map[string]any      `json:"modules,omitempty"` // namespace -> nested tree

	// ModuleConfidence maps "namespace.dot.path" to the confidence of the
	// rule that populated the leaf; consulted by the merge tie-break.
	ModuleConfidence map[string]float64 `json:"module_confidence,omitempty"`

	Class EntityClass `json:"entity_class"`
}
