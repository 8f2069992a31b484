package plugins

import (
	"strconv"

	"habitkit/pkg/plugin"
)

// Exercise tracks workouts: an activity, its length and how hard it felt.
type Exercise struct {
	base
}

// NewExercise declares the exercise tracker.
func NewExercise() *Exercise {
	return &Exercise{base: base{
		id:      "exercise",
		typeTag: "exercise_entry",
		meta: plugin.Metadata{
			Name:         "Exercise",
			Description:  "Log workouts and activity",
			Version:      "1.0.0",
			Category:     "fitness",
			Tags:         []string{"workout", "activity"},
			Shape:        plugin.ShapeDuration,
			PrimaryInput: plugin.KindChoice,
			ExportFormat: "csv",
			Sensitivity:  plugin.SensitivityNormal,
			Related:      []string{"sleep"},
			Triggers:     []string{"ran", "workout", "exercised"},
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
			Title: "Log exercise",
			Stages: []plugin.InputStage{
				{
					ID:       "activity",
					Title:    "What did you do?",
					Kind:     plugin.KindChoice,
					Required: true,
					Options: []plugin.ChoiceOption{
						{Label: "Walk", Value: "walk"},
						{Label: "Run", Value: "run"},
						{Label: "Cycle", Value: "cycle"},
						{Label: "Swim", Value: "swim"},
						{Label: "Gym", Value: "gym"},
						{Label: "Yoga", Value: "yoga"},
					},
				},
				{ID: "duration", Title: "For how long?", Kind: plugin.KindDuration, Required: true},
				{
					ID:    "intensity",
					Title: "How hard was it?",
					Kind:  plugin.KindScale,
					Options: []plugin.ChoiceOption{
						{Label: "Light", Value: "1"},
						{Label: "Moderate", Value: "2"},
						{Label: "Hard", Value: "3"},
					},
				},
			},
		},
	}}
}

// Validate rejects empty workouts and flags marathon-length sessions.
func (p *Exercise) Validate(fields *plugin.FieldMap) plugin.ValidationResult {
	if !fields.Has("activity") {
		return plugin.Invalid("Pick an activity")
	}
	v, ok := fields.Get("duration")
	if !ok {
		return plugin.Invalid("Duration is required")
	}
	minutes, _ := v.AsMinutes()
	if minutes <= 0 {
		return plugin.Invalid("Duration must be longer than zero minutes")
	}
	if minutes > 300 {
		return plugin.Warn("Over five hours logged in one session")
	}
	return plugin.Valid()
}

// CreateManualEntry builds the record after re-validating.
func (p *Exercise) CreateManualEntry(fields *plugin.FieldMap) (*plugin.DataRecord, error) {
	return buildEntry(p, p.typeTag, fields)
}

// ExportHeaders declares the CSV layout.
func (p *Exercise) ExportHeaders() []string {
	return []string{"timestamp", "activity", "duration_minutes", "intensity"}
}

// ExportRow maps a record onto the CSV columns.
func (p *Exercise) ExportRow(rec *plugin.DataRecord) map[string]string {
	row := map[string]string{
		"timestamp": formatTimestamp(rec.Timestamp),
		"activity":  stringValue(rec.Values, "activity"),
	}
	if minutes, ok := numberValue(rec.Values, "duration"); ok {
		row["duration_minutes"] = strconv.Itoa(int(minutes))
	}
	if intensity, ok := numberValue(rec.Values, "intensity"); ok {
		row["intensity"] = strconv.Itoa(int(intensity))
	}
	return row
}
