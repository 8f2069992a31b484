package plugins

import (
	"testing"

	xerrors "habitkit/internal/errors"
	"habitkit/pkg/plugin"
)

func fields(pairs map[string]plugin.Value) *plugin.FieldMap {
	fm := plugin.NewFieldMap()
	for id, v := range pairs {
		fm.Set(id, v)
	}
	return fm
}

func TestCatalogDeclarations(t *testing.T) {
	seen := map[string]bool{}
	for _, p := range Catalog() {
		if seen[p.ID()] {
			t.Fatalf("duplicate plugin id %q", p.ID())
		}
		seen[p.ID()] = true
		if p.TrustLevel() != plugin.TrustOfficial {
			t.Errorf("%s: bundled plugin must be official", p.ID())
		}
		if !p.SupportsManualEntry() {
			t.Errorf("%s: bundled plugin must support manual entry", p.ID())
		}
		if err := p.QuickAddSchema().Validate(); err != nil {
			t.Errorf("%s: invalid quick-add schema: %v", p.ID(), err)
		}
		if !p.Manifest().Requests(plugin.CapabilityCollectData) {
			t.Errorf("%s: manifest must request collect-data", p.ID())
		}
		if len(p.ExportHeaders()) == 0 {
			t.Errorf("%s: no export headers declared", p.ID())
		}
	}
	if len(seen) != 5 {
		t.Fatalf("catalog size = %d, want 5", len(seen))
	}
}

func TestWaterRejectsOversizedEntry(t *testing.T) {
	w := NewWater()
	fm := fields(map[string]plugin.Value{"amount": plugin.Number(2500)})

	result := w.Validate(fm)
	if result.OK() {
		t.Fatal("2500ml should not validate")
	}
	if result.Message != "Maximum single entry is 2000ml" {
		t.Fatalf("message = %q", result.Message)
	}

	if _, err := w.CreateManualEntry(fm); xerrors.CodeOf(err) != xerrors.CodeValidationFailure {
		t.Fatalf("CreateManualEntry error = %v, want validation failure", err)
	}
}

func TestWaterRecordCarriesUnit(t *testing.T) {
	w := NewWater()
	fm := fields(map[string]plugin.Value{"amount": plugin.Number(250)})

	rec, err := w.CreateManualEntry(fm)
	if err != nil {
		t.Fatalf("CreateManualEntry: %v", err)
	}
	if got, _ := rec.Values["amount"].(float64); got != 250 {
		t.Fatalf("amount = %v", rec.Values["amount"])
	}
	if got, _ := rec.Values["unit"].(string); got != "ml" {
		t.Fatalf("unit = %v, want %q", rec.Values["unit"], "ml")
	}
	if _, ok := fm.Get("unit"); ok {
		t.Fatal("unit must be stamped onto a copy, not the caller's field map")
	}
}

func TestWaterLargeAmountWarnsButSaves(t *testing.T) {
	w := NewWater()
	fm := fields(map[string]plugin.Value{"amount": plugin.Number(1800)})

	result := w.Validate(fm)
	if !result.OK() || !result.IsWarning() {
		t.Fatalf("1800ml should warn without blocking, got %+v", result)
	}

	rec, err := w.CreateManualEntry(fm)
	if err != nil {
		t.Fatalf("CreateManualEntry: %v", err)
	}
	if rec.PluginID != "water" || rec.Type != "water_entry" {
		t.Fatalf("unexpected envelope: %+v", rec)
	}
	if got, _ := rec.Values["amount"].(float64); got != 1800 {
		t.Fatalf("amount = %v", rec.Values["amount"])
	}
	if rec.Metadata["schema_version"] != plugin.SchemaVersion {
		t.Fatalf("metadata = %v", rec.Metadata)
	}
}

func TestMoodRequiresEmotion(t *testing.T) {
	m := NewMood()

	result := m.Validate(plugin.NewFieldMap())
	if result.OK() {
		t.Fatal("missing emotion should not validate")
	}
	if result.Message != "Please pick an emotion" {
		t.Fatalf("message = %q", result.Message)
	}

	fm := fields(map[string]plugin.Value{"emotion": plugin.Option("happy", "Happy")})
	if result := m.Validate(fm); !result.OK() {
		t.Fatalf("emotion alone should validate, got %+v", result)
	}
}

func TestSleepDurationDerivation(t *testing.T) {
	cases := []struct {
		bed, wake float64
		minutes   int
		label     string
	}{
		{23, 7, 480, "Normal"},
		{22, 8, 600, "Long"},
		{1, 6, 300, "Short"},
		{9, 17, 480, "Normal"},
	}
	s := NewSleep()
	for _, tc := range cases {
		fm := fields(map[string]plugin.Value{
			"bed_hour":  plugin.Number(tc.bed),
			"wake_hour": plugin.Number(tc.wake),
		})
		rec, err := s.CreateManualEntry(fm)
		if err != nil {
			t.Fatalf("bed %v wake %v: %v", tc.bed, tc.wake, err)
		}
		if got, _ := rec.Values["duration_minutes"].(int); got != tc.minutes {
			t.Errorf("bed %v wake %v: minutes = %v, want %d", tc.bed, tc.wake, rec.Values["duration_minutes"], tc.minutes)
		}
		if got, _ := rec.Values["duration_label"].(string); got != tc.label {
			t.Errorf("bed %v wake %v: label = %v, want %q", tc.bed, tc.wake, rec.Values["duration_label"], tc.label)
		}
	}
}

func TestSleepValidation(t *testing.T) {
	s := NewSleep()

	if result := s.Validate(plugin.NewFieldMap()); result.OK() {
		t.Fatal("missing hours should not validate")
	}

	same := fields(map[string]plugin.Value{
		"bed_hour":  plugin.Number(8),
		"wake_hour": plugin.Number(8),
	})
	if result := s.Validate(same); result.OK() {
		t.Fatal("identical bed and wake hours should not validate")
	}

	short := fields(map[string]plugin.Value{
		"bed_hour":  plugin.Number(2),
		"wake_hour": plugin.Number(5),
	})
	result := s.Validate(short)
	if !result.OK() || !result.IsWarning() {
		t.Fatalf("three hour night should warn, got %+v", result)
	}
	if _, err := s.CreateManualEntry(short); err != nil {
		t.Fatalf("warning must not block the entry: %v", err)
	}
}

func TestMedicationValidation(t *testing.T) {
	m := NewMedication()

	cases := []struct {
		name string
		fm   *plugin.FieldMap
	}{
		{"missing name", fields(map[string]plugin.Value{
			"dose": plugin.Number(200), "unit": plugin.Option("mg", "mg"),
		})},
		{"missing dose", fields(map[string]plugin.Value{
			"name": plugin.Text("ibuprofen"), "unit": plugin.Option("mg", "mg"),
		})},
		{"zero dose", fields(map[string]plugin.Value{
			"name": plugin.Text("ibuprofen"), "dose": plugin.Number(0), "unit": plugin.Option("mg", "mg"),
		})},
		{"missing unit", fields(map[string]plugin.Value{
			"name": plugin.Text("ibuprofen"), "dose": plugin.Number(200),
		})},
	}
	for _, tc := range cases {
		if result := m.Validate(tc.fm); result.OK() {
			t.Errorf("%s: should not validate", tc.name)
		}
	}

	fm := fields(map[string]plugin.Value{
		"name": plugin.Text("ibuprofen"),
		"dose": plugin.Number(200),
		"unit": plugin.Option("mg", "mg"),
	})
	rec, err := m.CreateManualEntry(fm)
	if err != nil {
		t.Fatalf("CreateManualEntry: %v", err)
	}
	row := m.ExportRow(rec)
	if row["name"] != "ibuprofen" || row["dose"] != "200" || row["unit"] != "mg" {
		t.Fatalf("export row = %v", row)
	}
}

func TestExerciseLongSessionWarns(t *testing.T) {
	e := NewExercise()
	fm := fields(map[string]plugin.Value{
		"activity": plugin.Option("running", "Running"),
		"duration": plugin.Duration(320),
	})
	result := e.Validate(fm)
	if !result.OK() || !result.IsWarning() {
		t.Fatalf("320 minute session should warn, got %+v", result)
	}
}

// Export rows must never introduce columns the headers do not declare; the
// CSV writer refuses such rows.
func TestExportRowsStayWithinHeaders(t *testing.T) {
	samples := map[string]*plugin.FieldMap{
		"water": fields(map[string]plugin.Value{
			"amount": plugin.Number(500), "note": plugin.Text("after run"),
		}),
		"mood": fields(map[string]plugin.Value{
			"emotion": plugin.Option("calm", "Calm"), "intensity": plugin.Scale(3, "Okay"),
		}),
		"sleep": fields(map[string]plugin.Value{
			"bed_hour": plugin.Number(23), "wake_hour": plugin.Number(7), "quality": plugin.Scale(4, "Good"),
		}),
		"exercise": fields(map[string]plugin.Value{
			"activity": plugin.Option("cycling", "Cycling"), "duration": plugin.Duration(45),
		}),
		"medication": fields(map[string]plugin.Value{
			"name": plugin.Text("vitamin d"), "dose": plugin.Number(1), "unit": plugin.Option("pills", "pills"),
		}),
	}
	for _, p := range Catalog() {
		fm, ok := samples[p.ID()]
		if !ok {
			t.Fatalf("no sample fields for %s", p.ID())
		}
		rec, err := p.CreateManualEntry(fm)
		if err != nil {
			t.Fatalf("%s: CreateManualEntry: %v", p.ID(), err)
		}
		declared := map[string]bool{}
		for _, h := range p.ExportHeaders() {
			declared[h] = true
		}
		for col := range p.ExportRow(rec) {
			if !declared[col] {
				t.Errorf("%s: export row column %q not declared in headers", p.ID(), col)
			}
		}
	}
}
