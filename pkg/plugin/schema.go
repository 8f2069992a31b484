package plugin

import (
	"errors"
	"fmt"
)

// InputKind identifies which widget family collects a stage's value. The core
// has no dependency on what actually renders a given kind.
type InputKind string

const (
	KindText      InputKind = "text"
	KindNumber    InputKind = "number"
	KindChoice    InputKind = "choice"
	KindCarousel  InputKind = "carousel"
	KindSlider    InputKind = "slider"
	KindDuration  InputKind = "duration"
	KindScale     InputKind = "scale"
	KindComposite InputKind = "composite"
)

// ChoiceOption is one selectable entry of a choice, carousel or scale stage.
type ChoiceOption struct {
	Label string `yaml:"label" json:"label"`
	Value string `yaml:"value" json:"value"`
	Icon  string `yaml:"icon,omitempty" json:"icon,omitempty"`
}

// SliderPreset is one quick-pick value offered by a slider stage. A negative
// Value is the "Custom" sentinel: selecting it defers to a secondary free
// numeric input instead of being stored literally.
type SliderPreset struct {
	Label string  `yaml:"label" json:"label"`
	Value float64 `yaml:"value" json:"value"`
}

// CustomPresetSentinel is the preset value plugins use to mark the
// "enter your own amount" slot of a slider stage.
const CustomPresetSentinel float64 = -1

// InputStage is one unit of a plugin's quick-add schema: a single field, or a
// composite group of sub-fields shown together on one screen. Stages are
// declared statically by each plugin and read-only at runtime.
type InputStage struct {
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	Kind     InputKind    `json:"kind"`
	Required bool         `json:"required"`
	Default  *Value       `json:"-"`
	Min      float64      `json:"min,omitempty"`
	Max      float64      `json:"max,omitempty"`
	Step     float64      `json:"step,omitempty"`
	MinLen   int          `json:"min_len,omitempty"`
	MaxLen   int          `json:"max_len,omitempty"`
	Unit     string       `json:"unit,omitempty"`
	Options  []ChoiceOption `json:"options,omitempty"`
	Presets  []SliderPreset `json:"presets,omitempty"`
	Inputs   []InputStage   `json:"inputs,omitempty"`
}

// OptionFor returns the declared option matching a raw value.
func (s InputStage) OptionFor(value string) (ChoiceOption, bool) {
	for _, opt := range s.Options {
		if opt.Value == value {
			return opt, true
		}
	}
	return ChoiceOption{}, false
}

// HasCustomPreset reports whether the slider stage declares a custom sentinel.
func (s InputStage) HasCustomPreset() bool {
	for _, p := range s.Presets {
		if p.Value == CustomPresetSentinel {
			return true
		}
	}
	return false
}

// QuickAddConfig is the declarative schema driving the generic quick-add
// interpreter. Stages are walked strictly in order; there is no branching.
type QuickAddConfig struct {
	Title  string       `json:"title"`
	Stages []InputStage `json:"stages"`
}

// Validate checks that the schema is internally consistent: at least one
// stage, unique non-empty field ids, bounds that make sense for the kind, and
// composite stages carrying sub-inputs.
func (c QuickAddConfig) Validate() error {
	if len(c.Stages) == 0 {
		return errors.New("quick-add schema declares no stages")
	}
	seen := make(map[string]struct{}, len(c.Stages))
	for _, stage := range c.Stages {
		if err := validateStage(stage, seen); err != nil {
			return err
		}
	}
	return nil
}

func validateStage(stage InputStage, seen map[string]struct{}) error {
	if stage.ID == "" {
		return errors.New("input stage id cannot be empty")
	}
	if _, dup := seen[stage.ID]; dup {
		return fmt.Errorf("duplicate input stage id %q", stage.ID)
	}
	seen[stage.ID] = struct{}{}
	switch stage.Kind {
	case KindChoice, KindCarousel, KindScale:
		if len(stage.Options) == 0 {
			return fmt.Errorf("stage %q of kind %s declares no options", stage.ID, stage.Kind)
		}
	case KindNumber, KindSlider:
		if stage.Max != 0 && stage.Min > stage.Max {
			return fmt.Errorf("stage %q min %v exceeds max %v", stage.ID, stage.Min, stage.Max)
		}
	case KindComposite:
		if len(stage.Inputs) == 0 {
			return fmt.Errorf("composite stage %q declares no sub-inputs", stage.ID)
		}
		for _, sub := range stage.Inputs {
			if sub.Kind == KindComposite {
				return fmt.Errorf("composite stage %q nests another composite", stage.ID)
			}
			if err := validateStage(sub, seen); err != nil {
				return err
			}
		}
	case KindText, KindDuration:
	default:
		return fmt.Errorf("stage %q has unknown input kind %q", stage.ID, stage.Kind)
	}
	return nil
}
