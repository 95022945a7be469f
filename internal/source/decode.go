package source

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"lens/internal/model"
)

// Decoder turns one RawArtifact into extracted records using only the
// data-driven field paths declared in the source's DecoderSpec. It never
// produces canonical dimension values or module data; those belong to the
// rule engines.
type Decoder struct {
	spec Spec
}

// NewDecoder builds the decoder for a source spec.
func NewDecoder(spec Spec) *Decoder {
	return &Decoder{spec: spec}
}

// Decode extracts primitive records from the artifact payload.
func (d *Decoder) Decode(artifact *model.RawArtifact) ([]model.ExtractedRecord, error) {
	switch d.spec.Decoder.Kind {
	case "", "json":
		return d.decodeJSON(artifact)
	case "text":
		return d.decodeText(artifact)
	default:
		return nil, fmt.Errorf("source %s: unknown decoder kind %q", d.spec.ID, d.spec.Decoder.Kind)
	}
}

func (d *Decoder) decodeJSON(artifact *model.RawArtifact) ([]model.ExtractedRecord, error) {
	var root any
	if err := json.Unmarshal(artifact.Payload, &root); err != nil {
		return nil, fmt.Errorf("source %s: decode payload: %w", d.spec.ID, err)
	}

	items := root
	if path := d.spec.Decoder.Records; path != "" {
		items = walkPath(root, path)
	}

	var rawRecords []any
	switch t := items.(type) {
	case []any:
		rawRecords = t
	case map[string]any:
		rawRecords = []any{t}
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("source %s: records path yields %T, want array or object", d.spec.ID, items)
	}

	records := make([]model.ExtractedRecord, 0, len(rawRecords))
	for i, raw := range rawRecords {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		rec := d.decodeOne(obj, artifact, i)
		if rec.Name == "" && rec.Description == "" {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (d *Decoder) decodeOne(obj map[string]any, artifact *model.RawArtifact, index int) model.ExtractedRecord {
	rec := model.ExtractedRecord{
		SourceID:     d.spec.ID,
		GeoPrecision: d.spec.Decoder.GeoPrecision,
		ExternalIDs:  map[string]string{},
	}
	get := func(field string) any {
		path, ok := d.spec.Decoder.Fields[field]
		if !ok {
			return nil
		}
		return walkPath(obj, path)
	}

	rec.Name = asString(get("name"))
	rec.Description = asString(get("description"))
	rec.Street = asString(get("street"))
	rec.City = asString(get("city"))
	rec.Postcode = asString(get("postcode"))
	rec.Country = asString(get("country"))
	rec.Phone = asString(get("phone"))
	rec.Email = asString(get("email"))
	rec.Website = asString(get("website"))

	if lat, decimals, ok := asCoordinate(get("latitude")); ok {
		if lon, lonDecimals, ok := asCoordinate(get("longitude")); ok {
			rec.Latitude = &lat
			rec.Longitude = &lon
			rec.GeoDecimals = min(decimals, lonDecimals)
		}
	}

	rec.RawCategories = asStringList(get("categories"))
	if t := asTime(get("start_time")); t != nil {
		rec.StartTime = t
	}
	if t := asTime(get("end_time")); t != nil {
		rec.EndTime = t
	}

	nativeID := ""
	if path := d.spec.Decoder.ExternalID; path != "" {
		if id := asString(walkPath(obj, path)); id != "" {
			ns := d.spec.Decoder.ExternalIDNS
			if ns == "" {
				ns = d.spec.ID
			}
			rec.ExternalIDs[ns] = id
			nativeID = id
		}
	}

	rec.ID = recordID(d.spec.ID, nativeID, artifact.ContentHash, index)
	return rec
}

// decodeText yields a single record whose description is the payload text.
// A name_pattern capture can pull a record name out of the text.
func (d *Decoder) decodeText(artifact *model.RawArtifact) ([]model.ExtractedRecord, error) {
	text := strings.TrimSpace(string(artifact.Payload))
	if text == "" {
		return nil, nil
	}
	rec := model.ExtractedRecord{
		SourceID:    d.spec.ID,
		Description: text,
		ExternalIDs: map[string]string{},
	}
	if d.spec.Decoder.NamePattern != "" {
		re, err := regexp.Compile(d.spec.Decoder.NamePattern)
		if err != nil {
			return nil, fmt.Errorf("source %s: name_pattern: %w", d.spec.ID, err)
		}
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			rec.Name = strings.TrimSpace(m[1])
		}
	}
	rec.ID = recordID(d.spec.ID, "", artifact.ContentHash, 0)
	return []model.ExtractedRecord{rec}, nil
}

// recordID builds a stable record identifier: the native key when the
// source supplies one, otherwise the artifact hash plus position.
func recordID(sourceID, nativeID, contentHash string, index int) string {
	if nativeID != "" {
		return sourceID + "/" + nativeID
	}
	return fmt.Sprintf("%s/%s#%d", sourceID, contentHash[:12], index)
}

// walkPath resolves a dot path ("a.b.c") against decoded JSON.
func walkPath(v any, path string) any {
	cur := v
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = obj[part]
		if !ok {
			return nil
		}
	}
	return cur
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func asStringList(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := asString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		return []string{strings.TrimSpace(t)}
	}
	return nil
}

// asCoordinate parses a coordinate and reports how many decimal places the
// source representation carried; the merge engine uses that as precision
// metadata.
func asCoordinate(v any) (float64, int, bool) {
	switch t := v.(type) {
	case float64:
		s := strconv.FormatFloat(t, 'f', -1, 64)
		return t, decimalPlaces(s), true
	case string:
		s := strings.TrimSpace(t)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, 0, false
		}
		return f, decimalPlaces(s), true
	}
	return 0, 0, false
}

func decimalPlaces(s string) int {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

func asTime(v any) *time.Time {
	s := asString(v)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
