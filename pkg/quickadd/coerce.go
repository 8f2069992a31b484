// Package quickadd implements the generic guided-entry interpreter: it walks a
// plugin's declared input stages, coerces and validates one value per stage,
// and hands the accumulated field map to the owning plugin on completion.
package quickadd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"habitkit/pkg/plugin"
)

// Coercion errors. Malformed input is an explicit typed failure, never a
// silently dropped value: a string arriving where a number was declared is
// reported, not swallowed into a missing field.
var (
	ErrMalformedInput = errors.New("malformed input")
	ErrOutOfRange     = errors.New("value out of range")
	ErrNotAnOption    = errors.New("value not in declared option list")
	ErrEmptyValue     = errors.New("no value entered")
)

// Coerce converts a raw UI value into the typed variant declared by the
// stage's input kind. ErrEmptyValue signals an optional stage being skipped.
func Coerce(stage plugin.InputStage, raw any) (plugin.Value, error) {
	switch stage.Kind {
	case plugin.KindText:
		return coerceText(stage, raw)
	case plugin.KindNumber:
		return coerceNumber(stage, raw)
	case plugin.KindSlider:
		return coerceSlider(stage, raw)
	case plugin.KindChoice, plugin.KindCarousel:
		return coerceChoice(stage, raw)
	case plugin.KindDuration:
		return coerceDuration(stage, raw)
	case plugin.KindScale:
		return coerceScale(stage, raw)
	default:
		return plugin.Value{}, fmt.Errorf("%w: stage %s has no coercion for kind %s", ErrMalformedInput, stage.ID, stage.Kind)
	}
}

func coerceText(stage plugin.InputStage, raw any) (plugin.Value, error) {
	s, ok := raw.(string)
	if !ok {
		return plugin.Value{}, fmt.Errorf("%w: field %s wants text, got %T", ErrMalformedInput, stage.ID, raw)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		if stage.Required {
			return plugin.Value{}, fmt.Errorf("%w: field %s cannot be blank", ErrEmptyValue, stage.ID)
		}
		return plugin.Value{}, ErrEmptyValue
	}
	if stage.MinLen > 0 && len(s) < stage.MinLen {
		return plugin.Value{}, fmt.Errorf("%w: field %s needs at least %d characters", ErrOutOfRange, stage.ID, stage.MinLen)
	}
	if stage.MaxLen > 0 && len(s) > stage.MaxLen {
		return plugin.Value{}, fmt.Errorf("%w: field %s exceeds %d characters", ErrOutOfRange, stage.ID, stage.MaxLen)
	}
	return plugin.Text(s), nil
}

// coerceNumber parses a free numeric input. Out-of-range values are rejected
// outright rather than clamped: the user typed them, so they see the error.
func coerceNumber(stage plugin.InputStage, raw any) (plugin.Value, error) {
	n, err := asFloat(stage.ID, raw)
	if err != nil {
		return plugin.Value{}, err
	}
	if stage.Min != 0 || stage.Max != 0 {
		if n < stage.Min || (stage.Max > 0 && n > stage.Max) {
			return plugin.Value{}, fmt.Errorf("%w: field %s must be between %v and %v", ErrOutOfRange, stage.ID, stage.Min, stage.Max)
		}
	}
	return plugin.Number(n), nil
}

// coerceSlider clamps into the declared bounds: a slider is a bounded control,
// so anything outside its track snaps to the nearest end.
func coerceSlider(stage plugin.InputStage, raw any) (plugin.Value, error) {
	n, err := asFloat(stage.ID, raw)
	if err != nil {
		return plugin.Value{}, err
	}
	if stage.Max > 0 && n > stage.Max {
		n = stage.Max
	}
	if n < stage.Min {
		n = stage.Min
	}
	return plugin.Number(n), nil
}

func coerceChoice(stage plugin.InputStage, raw any) (plugin.Value, error) {
	s, ok := raw.(string)
	if !ok {
		return plugin.Value{}, fmt.Errorf("%w: field %s wants an option value, got %T", ErrMalformedInput, stage.ID, raw)
	}
	opt, ok := stage.OptionFor(s)
	if !ok {
		return plugin.Value{}, fmt.Errorf("%w: %q is not an option of field %s", ErrNotAnOption, s, stage.ID)
	}
	return plugin.Option(opt.Value, opt.Label), nil
}

// coerceDuration folds an hours/minutes pair to a single minute count. A bare
// number is accepted as total minutes.
func coerceDuration(stage plugin.InputStage, raw any) (plugin.Value, error) {
	switch v := raw.(type) {
	case map[string]any:
		hours, err := asFloat(stage.ID, v["hours"])
		if err != nil {
			return plugin.Value{}, err
		}
		minutes, err := asFloat(stage.ID, v["minutes"])
		if err != nil {
			return plugin.Value{}, err
		}
		if hours < 0 || minutes < 0 || minutes >= 60 {
			return plugin.Value{}, fmt.Errorf("%w: field %s hours/minutes pair %v:%v", ErrOutOfRange, stage.ID, hours, minutes)
		}
		return plugin.Duration(int(hours)*60 + int(minutes)), nil
	default:
		total, err := asFloat(stage.ID, raw)
		if err != nil {
			return plugin.Value{}, err
		}
		if total < 0 {
			return plugin.Value{}, fmt.Errorf("%w: field %s duration cannot be negative", ErrOutOfRange, stage.ID)
		}
		return plugin.Duration(int(total)), nil
	}
}

func coerceScale(stage plugin.InputStage, raw any) (plugin.Value, error) {
	n, err := asFloat(stage.ID, raw)
	if err != nil {
		return plugin.Value{}, err
	}
	if n != float64(int(n)) {
		return plugin.Value{}, fmt.Errorf("%w: field %s wants an integer rating", ErrMalformedInput, stage.ID)
	}
	rating := int(n)
	opt, ok := stage.OptionFor(strconv.Itoa(rating))
	if !ok {
		return plugin.Value{}, fmt.Errorf("%w: rating %d not declared for field %s", ErrOutOfRange, rating, stage.ID)
	}
	return plugin.Scale(rating, opt.Label), nil
}

func asFloat(field string, raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: field %s wants a number, got %q", ErrMalformedInput, field, v)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("%w: field %s wants a number, got nothing", ErrMalformedInput, field)
	default:
		return 0, fmt.Errorf("%w: field %s wants a number, got %T", ErrMalformedInput, field, raw)
	}
}
