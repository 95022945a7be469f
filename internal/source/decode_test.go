package source

import (
	"reflect"
	"testing"
	"time"

	"lens/internal/model"
)

func jsonSpec() Spec {
	return Spec{
		ID: "courtfinder",
		Decoder: DecoderSpec{
			Kind:    "json",
			Records: "data.results",
			Fields: map[string]string{
				"name":        "title",
				"description": "summary",
				"latitude":    "geo.lat",
				"longitude":   "geo.lon",
				"city":        "address.town",
				"categories":  "tags",
				"start_time":  "starts",
			},
			ExternalID:   "id",
			GeoPrecision: "exact",
		},
	}
}

func artifact(spec Spec, payload string) *model.RawArtifact {
	a := model.NewRawArtifact(spec.ID, "padel", []byte(payload), time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC))
	return &a
}

func TestDecode_JSONRecords(t *testing.T) {
	payload := `{"data":{"results":[
		{"id":"c7","title":"Meadows Padel","summary":"Courts on the Meadows",
		 "geo":{"lat":55.9410,"lon":-3.1920},"address":{"town":"Edinburgh"},
		 "tags":["sports","padel"],"starts":"2026-09-12T19:00:00Z"},
		{"id":"c8","title":"Leith Padel","geo":{"lat":"55.976","lon":"-3.171"}}
	]}}`

	spec := jsonSpec()
	records, err := NewDecoder(spec).Decode(artifact(spec, payload))
	if err != nil {
		t.Fatalf("Expected decode to succeed, got %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}

	rec := records[0]
	if rec.ID != "courtfinder/c7" {
		t.Errorf("Expected native-key record id, got %q", rec.ID)
	}
	if rec.Name != "Meadows Padel" || rec.City != "Edinburgh" {
		t.Errorf("Unexpected fields: %+v", rec)
	}
	if rec.Latitude == nil || *rec.Latitude != 55.9410 {
		t.Errorf("Expected latitude 55.9410, got %v", rec.Latitude)
	}
	if rec.GeoPrecision != "exact" {
		t.Errorf("Expected spec-level geo precision, got %q", rec.GeoPrecision)
	}
	if !reflect.DeepEqual(rec.RawCategories, []string{"sports", "padel"}) {
		t.Errorf("Expected categories, got %v", rec.RawCategories)
	}
	if rec.StartTime == nil || !rec.StartTime.Equal(time.Date(2026, 9, 12, 19, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected parsed start time, got %v", rec.StartTime)
	}
	if rec.ExternalIDs["courtfinder"] != "c7" {
		t.Errorf("Expected external id under the source namespace, got %v", rec.ExternalIDs)
	}

	// String coordinates carry their printed decimal precision.
	if records[1].GeoDecimals != 3 {
		t.Errorf("Expected 3 decimal places, got %d", records[1].GeoDecimals)
	}
}

func TestDecode_RecordIDStableForAnonymousRecords(t *testing.T) {
	spec := Spec{ID: "webdirectory", Decoder: DecoderSpec{Kind: "json", Fields: map[string]string{"name": "n"}}}
	payload := `[{"n":"Alpha"},{"n":"Beta"}]`

	first, err := NewDecoder(spec).Decode(artifact(spec, payload))
	if err != nil {
		t.Fatalf("Expected decode to succeed, got %v", err)
	}
	second, _ := NewDecoder(spec).Decode(artifact(spec, payload))
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("Expected stable ids across decodes, got %q vs %q", first[i].ID, second[i].ID)
		}
	}
	if first[0].ID == first[1].ID {
		t.Error("Expected distinct ids per record position")
	}
}

func TestDecode_SkipsEmptyRecords(t *testing.T) {
	spec := Spec{ID: "webdirectory", Decoder: DecoderSpec{Kind: "json", Fields: map[string]string{"name": "n"}}}
	payload := `[{"n":"Alpha"},{"other":"x"}]`
	records, err := NewDecoder(spec).Decode(artifact(spec, payload))
	if err != nil {
		t.Fatalf("Expected decode to succeed, got %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected nameless record to be dropped, got %d records", len(records))
	}
}

func TestDecode_Text(t *testing.T) {
	spec := Spec{ID: "townpage", Decoder: DecoderSpec{
		Kind:        "text",
		NamePattern: `^(.+?) \|`,
	}}
	records, err := NewDecoder(spec).Decode(artifact(spec, "Meadows Padel | open daily, four courts"))
	if err != nil {
		t.Fatalf("Expected decode to succeed, got %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected one text record, got %d", len(records))
	}
	if records[0].Name != "Meadows Padel" {
		t.Errorf("Expected name from pattern capture, got %q", records[0].Name)
	}
	if records[0].Description == "" {
		t.Error("Expected payload text as description")
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	spec := Spec{ID: "x", Decoder: DecoderSpec{Kind: "xml"}}
	if _, err := NewDecoder(spec).Decode(artifact(spec, "<x/>")); err == nil {
		t.Error("Expected error for unknown decoder kind")
	}
}
