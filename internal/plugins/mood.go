package plugins

import (
	"strconv"

	"habitkit/pkg/plugin"
)

// Mood records how the user feels: a required emotion plus an optional
// intensity rating. Its manifest deliberately omits export-data, so mood
// entries stay on the device and the export pipeline skips them.
type Mood struct {
	base
}

// NewMood declares the mood tracker.
func NewMood() *Mood {
	return &Mood{base: base{
		id:      "mood",
		typeTag: "mood_entry",
		meta: plugin.Metadata{
			Name:         "Mood",
			Description:  "Capture how you are feeling",
			Version:      "1.0.0",
			Category:     "mental",
			Tags:         []string{"wellbeing", "emotion"},
			Shape:        plugin.ShapeOccurrence,
			PrimaryInput: plugin.KindChoice,
			Sensitivity:  plugin.SensitivityPrivate,
			Triggers:     []string{"feeling", "mood"},
		},
		manifest: plugin.SecurityManifest{
			Capabilities: []plugin.Capability{
				plugin.CapabilityCollectData,
				plugin.CapabilityReadOwnData,
				plugin.CapabilityLocalStorage,
			},
			Sensitivity: plugin.SensitivityPrivate,
			Scope:       plugin.ScopeOwnData,
			Retention:   plugin.RetentionUserControlled,
		},
		schema: plugin.QuickAddConfig{
			Title: "Log mood",
			Stages: []plugin.InputStage{
				{
					ID:       "emotion",
					Title:    "How do you feel?",
					Kind:     plugin.KindCarousel,
					Required: true,
					Options: []plugin.ChoiceOption{
						{Label: "Happy", Value: "happy", Icon: "😊"},
						{Label: "Calm", Value: "calm", Icon: "😌"},
						{Label: "Tired", Value: "tired", Icon: "🥱"},
						{Label: "Anxious", Value: "anxious", Icon: "😰"},
						{Label: "Sad", Value: "sad", Icon: "😢"},
						{Label: "Angry", Value: "angry", Icon: "😠"},
					},
				},
				{
					ID:    "intensity",
					Title: "How strong is it?",
					Kind:  plugin.KindScale,
					Options: []plugin.ChoiceOption{
						{Label: "Barely", Value: "1"},
						{Label: "Mild", Value: "2"},
						{Label: "Moderate", Value: "3"},
						{Label: "Strong", Value: "4"},
						{Label: "Overwhelming", Value: "5"},
					},
				},
				{ID: "note", Title: "What's going on?", Kind: plugin.KindText, MaxLen: 500},
			},
		},
	}}
}

// Validate requires the emotion; everything else is optional.
func (p *Mood) Validate(fields *plugin.FieldMap) plugin.ValidationResult {
	if !fields.Has("emotion") {
		return plugin.Invalid("Please pick an emotion")
	}
	return plugin.Valid()
}

// CreateManualEntry builds the record after re-validating.
func (p *Mood) CreateManualEntry(fields *plugin.FieldMap) (*plugin.DataRecord, error) {
	return buildEntry(p, p.typeTag, fields)
}

// ExportHeaders declares the CSV layout. Export is gated off by the manifest,
// but the contract stays complete for a future opt-in.
func (p *Mood) ExportHeaders() []string {
	return []string{"timestamp", "emotion", "intensity", "note"}
}

// ExportRow maps a record onto the CSV columns.
func (p *Mood) ExportRow(rec *plugin.DataRecord) map[string]string {
	row := map[string]string{
		"timestamp": formatTimestamp(rec.Timestamp),
		"emotion":   stringValue(rec.Values, "emotion"),
	}
	if intensity, ok := numberValue(rec.Values, "intensity"); ok {
		row["intensity"] = strconv.Itoa(int(intensity))
	}
	if note := stringValue(rec.Values, "note"); note != "" {
		row["note"] = note
	}
	return row
}
