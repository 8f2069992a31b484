package plugins

import (
	"fmt"

	xerrors "habitkit/internal/errors"
	"habitkit/pkg/plugin"
)

// Water tracks fluid intake in millilitres.
type Water struct {
	base
}

// NewWater declares the water tracker.
func NewWater() *Water {
	return &Water{base: base{
		id:      "water",
		typeTag: "water_entry",
		meta: plugin.Metadata{
			Name:         "Water",
			Description:  "Track how much you drink through the day",
			Version:      "1.0.0",
			Category:     "nutrition",
			Tags:         []string{"hydration", "drink"},
			Shape:        plugin.ShapeCumulative,
			PrimaryInput: plugin.KindSlider,
			ExportFormat: "csv",
			Sensitivity:  plugin.SensitivityNormal,
			Aliases:      []string{"hydration"},
			Triggers:     []string{"drank", "water"},
		},
		manifest: plugin.SecurityManifest{
			Capabilities: []plugin.Capability{
				plugin.CapabilityCollectData,
				plugin.CapabilityReadOwnData,
				plugin.CapabilityLocalStorage,
				plugin.CapabilityExportData,
			},
			Sensitivity: plugin.SensitivityNormal,
			Scope:       plugin.ScopeOwnData,
			Retention:   plugin.RetentionUserControlled,
		},
		schema: plugin.QuickAddConfig{
			Title: "Log water",
			Stages: []plugin.InputStage{
				{
					ID:       "amount",
					Title:    "How much?",
					Kind:     plugin.KindSlider,
					Required: true,
					Min:      0,
					Max:      3000,
					Step:     50,
					Unit:     "ml",
					Presets: []plugin.SliderPreset{
						{Label: "Glass", Value: 250},
						{Label: "Bottle", Value: 500},
						{Label: "Large bottle", Value: 750},
						{Label: "Custom", Value: plugin.CustomPresetSentinel},
					},
				},
				{ID: "note", Title: "Note", Kind: plugin.KindText, MaxLen: 200},
			},
		},
	}}
}

// Validate caps a single entry at 2000ml and flags unusually large amounts.
func (p *Water) Validate(fields *plugin.FieldMap) plugin.ValidationResult {
	v, ok := fields.Get("amount")
	if !ok {
		return plugin.Invalid("amount is required")
	}
	amount, isNum := v.AsNumber()
	if !isNum {
		return plugin.Invalid("amount must be a number")
	}
	if amount <= 0 {
		return plugin.Invalid("Amount must be greater than zero")
	}
	if amount > 2000 {
		return plugin.Invalid("Maximum single entry is 2000ml")
	}
	if amount > 1500 {
		return plugin.Warn(fmt.Sprintf("%.0fml is a lot in one go", amount))
	}
	return plugin.Valid()
}

// CreateManualEntry stamps the measurement unit onto the values, then builds
// the record after re-validating. Consumers of the stored record see the unit
// next to the amount instead of having to consult the schema.
func (p *Water) CreateManualEntry(fields *plugin.FieldMap) (*plugin.DataRecord, error) {
	result := p.Validate(fields)
	if !result.OK() {
		return nil, xerrors.New(xerrors.CodeValidationFailure, result.Message,
			xerrors.WithMetadata("plugin_id", p.ID()))
	}
	enriched := fields.Clone()
	enriched.Set("unit", plugin.Text("ml"))
	return plugin.Assemble(p.ID(), p.typeTag, enriched, plugin.SourceManual), nil
}

// ExportHeaders declares the CSV layout.
func (p *Water) ExportHeaders() []string {
	return []string{"timestamp", "amount_ml", "note"}
}

// ExportRow maps a record onto the CSV columns.
func (p *Water) ExportRow(rec *plugin.DataRecord) map[string]string {
	row := map[string]string{
		"timestamp": formatTimestamp(rec.Timestamp),
	}
	if amount, ok := numberValue(rec.Values, "amount"); ok {
		row["amount_ml"] = fmt.Sprintf("%.0f", amount)
	}
	if note := stringValue(rec.Values, "note"); note != "" {
		row["note"] = note
	}
	return row
}
