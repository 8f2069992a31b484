package plugins

import (
	"fmt"
	"strconv"

	xerrors "habitkit/internal/errors"
	"habitkit/pkg/plugin"
)

// Sleep records one night: bed hour, wake hour and an optional quality
// rating, all on a single composite screen. The duration and its label are
// derived at entry time, so a 23:00 bed and 07:00 wake become 8h "Normal".
type Sleep struct {
	base
}

const (
	sleepNormalMinHours = 7
	sleepNormalMaxHours = 9
)

// NewSleep declares the sleep tracker.
func NewSleep() *Sleep {
	return &Sleep{base: base{
		id:      "sleep",
		typeTag: "sleep_entry",
		meta: plugin.Metadata{
			Name:         "Sleep",
			Description:  "Track your nights and sleep quality",
			Version:      "1.0.0",
			Category:     "rest",
			Tags:         []string{"sleep", "rest"},
			Shape:        plugin.ShapeDuration,
			PrimaryInput: plugin.KindComposite,
			ExportFormat: "csv",
			Sensitivity:  plugin.SensitivityNormal,
			Triggers:     []string{"slept", "sleep"},
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
			Title: "Log sleep",
			Stages: []plugin.InputStage{
				{
					ID:    "night",
					Title: "Last night",
					Kind:  plugin.KindComposite,
					Inputs: []plugin.InputStage{
						{ID: "bed_hour", Title: "Went to bed", Kind: plugin.KindNumber, Required: true, Min: 0, Max: 23},
						{ID: "wake_hour", Title: "Woke up", Kind: plugin.KindNumber, Required: true, Min: 0, Max: 23},
						{ID: "quality", Title: "Quality", Kind: plugin.KindScale, Options: []plugin.ChoiceOption{
							{Label: "Awful", Value: "1"},
							{Label: "Poor", Value: "2"},
							{Label: "Okay", Value: "3"},
							{Label: "Good", Value: "4"},
							{Label: "Great", Value: "5"},
						}},
					},
				},
			},
		},
	}}
}

// sleepHours folds the bed/wake pair into a duration, wrapping midnight.
func sleepHours(bed, wake float64) float64 {
	hours := wake - bed
	if hours <= 0 {
		hours += 24
	}
	return hours
}

// durationLabel buckets the slept hours.
func durationLabel(hours float64) string {
	switch {
	case hours < sleepNormalMinHours:
		return "Short"
	case hours > sleepNormalMaxHours:
		return "Long"
	default:
		return "Normal"
	}
}

// Validate checks the bed/wake pair and warns on very short nights.
func (p *Sleep) Validate(fields *plugin.FieldMap) plugin.ValidationResult {
	bedValue, okBed := fields.Get("bed_hour")
	wakeValue, okWake := fields.Get("wake_hour")
	if !okBed || !okWake {
		return plugin.Invalid("Bed and wake times are both required")
	}
	bed, _ := bedValue.AsNumber()
	wake, _ := wakeValue.AsNumber()
	if bed == wake {
		return plugin.Invalid("Bed and wake times cannot be the same")
	}
	if sleepHours(bed, wake) < 4 {
		return plugin.Warn("Less than four hours of sleep recorded")
	}
	return plugin.Valid()
}

// CreateManualEntry derives the duration fields, then builds the record.
func (p *Sleep) CreateManualEntry(fields *plugin.FieldMap) (*plugin.DataRecord, error) {
	result := p.Validate(fields)
	if !result.OK() {
		return nil, xerrors.New(xerrors.CodeValidationFailure, result.Message,
			xerrors.WithMetadata("plugin_id", p.ID()))
	}
	bedValue, _ := fields.Get("bed_hour")
	wakeValue, _ := fields.Get("wake_hour")
	bed, _ := bedValue.AsNumber()
	wake, _ := wakeValue.AsNumber()
	hours := sleepHours(bed, wake)

	enriched := fields.Clone()
	enriched.Set("duration_minutes", plugin.Duration(int(hours*60)))
	enriched.Set("duration_label", plugin.Text(durationLabel(hours)))
	return plugin.Assemble(p.ID(), p.typeTag, enriched, plugin.SourceManual), nil
}

// ExportHeaders declares the CSV layout.
func (p *Sleep) ExportHeaders() []string {
	return []string{"timestamp", "bed_hour", "wake_hour", "duration_minutes", "duration_label", "quality"}
}

// ExportRow maps a record onto the CSV columns.
func (p *Sleep) ExportRow(rec *plugin.DataRecord) map[string]string {
	row := map[string]string{
		"timestamp":      formatTimestamp(rec.Timestamp),
		"duration_label": stringValue(rec.Values, "duration_label"),
	}
	if bed, ok := numberValue(rec.Values, "bed_hour"); ok {
		row["bed_hour"] = fmt.Sprintf("%.0f", bed)
	}
	if wake, ok := numberValue(rec.Values, "wake_hour"); ok {
		row["wake_hour"] = fmt.Sprintf("%.0f", wake)
	}
	if minutes, ok := numberValue(rec.Values, "duration_minutes"); ok {
		row["duration_minutes"] = strconv.Itoa(int(minutes))
	}
	if quality, ok := numberValue(rec.Values, "quality"); ok {
		row["quality"] = strconv.Itoa(int(quality))
	}
	return row
}
