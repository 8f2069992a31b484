package plugins

import (
	"fmt"

	"habitkit/pkg/plugin"
)

// Medication logs doses taken. It requests show-notifications for reminder
// support on top of the usual collection capabilities.
type Medication struct {
	base
}

// NewMedication declares the medication tracker.
func NewMedication() *Medication {
	return &Medication{base: base{
		id:      "medication",
		typeTag: "medication_entry",
		meta: plugin.Metadata{
			Name:         "Medication",
			Description:  "Log medication and supplement doses",
			Version:      "1.0.0",
			Category:     "health",
			Tags:         []string{"medication", "dose"},
			Shape:        plugin.ShapeOccurrence,
			PrimaryInput: plugin.KindText,
			ExportFormat: "csv",
			Sensitivity:  plugin.SensitivitySensitive,
			Triggers:     []string{"took", "medication", "pill"},
		},
		manifest: plugin.SecurityManifest{
			Capabilities: []plugin.Capability{
				plugin.CapabilityCollectData,
				plugin.CapabilityReadOwnData,
				plugin.CapabilityLocalStorage,
				plugin.CapabilityExportData,
				plugin.CapabilityShowNotifications,
			},
			Sensitivity: plugin.SensitivitySensitive,
			Scope:       plugin.ScopeOwnData,
			Retention:   plugin.RetentionUserControlled,
		},
		schema: plugin.QuickAddConfig{
			Title: "Log medication",
			Stages: []plugin.InputStage{
				{ID: "name", Title: "Medication", Kind: plugin.KindText, Required: true, MinLen: 2, MaxLen: 100},
				{ID: "dose", Title: "Dose", Kind: plugin.KindNumber, Required: true, Min: 0.1, Max: 10000},
				{
					ID:       "unit",
					Title:    "Unit",
					Kind:     plugin.KindChoice,
					Required: true,
					Options: []plugin.ChoiceOption{
						{Label: "mg", Value: "mg"},
						{Label: "ml", Value: "ml"},
						{Label: "pills", Value: "pills"},
						{Label: "drops", Value: "drops"},
					},
				},
			},
		},
	}}
}

// Validate requires a complete name/dose/unit triple.
func (p *Medication) Validate(fields *plugin.FieldMap) plugin.ValidationResult {
	if !fields.Has("name") {
		return plugin.Invalid("Medication name is required")
	}
	v, ok := fields.Get("dose")
	if !ok {
		return plugin.Invalid("Dose is required")
	}
	if dose, _ := v.AsNumber(); dose <= 0 {
		return plugin.Invalid("Dose must be greater than zero")
	}
	if !fields.Has("unit") {
		return plugin.Invalid("Dose unit is required")
	}
	return plugin.Valid()
}

// CreateManualEntry builds the record after re-validating.
func (p *Medication) CreateManualEntry(fields *plugin.FieldMap) (*plugin.DataRecord, error) {
	return buildEntry(p, p.typeTag, fields)
}

// ExportHeaders declares the CSV layout.
func (p *Medication) ExportHeaders() []string {
	return []string{"timestamp", "name", "dose", "unit"}
}

// ExportRow maps a record onto the CSV columns.
func (p *Medication) ExportRow(rec *plugin.DataRecord) map[string]string {
	row := map[string]string{
		"timestamp": formatTimestamp(rec.Timestamp),
		"name":      stringValue(rec.Values, "name"),
		"unit":      stringValue(rec.Values, "unit"),
	}
	if dose, ok := numberValue(rec.Values, "dose"); ok {
		row["dose"] = fmt.Sprintf("%g", dose)
	}
	return row
}
