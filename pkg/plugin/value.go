package plugin

import "fmt"

// ValueKind tags the variant carried by a Value.
type ValueKind string

const (
	ValueText     ValueKind = "text"
	ValueNumber   ValueKind = "number"
	ValueOption   ValueKind = "option"
	ValueDuration ValueKind = "duration"
	ValueScale    ValueKind = "scale"
)

// Value is a typed field value collected during a quick-add session. Each
// input kind yields exactly one variant, so a NUMBER stage can never smuggle a
// string into the record. The loose map[string]any shape only appears at the
// storage boundary via FieldMap.Snapshot.
type Value struct {
	kind    ValueKind
	text    string
	number  float64
	minutes int
	scale   int
	label   string
}

// Text constructs a text value.
func Text(s string) Value { return Value{kind: ValueText, text: s} }

// Number constructs a numeric value.
func Number(f float64) Value { return Value{kind: ValueNumber, number: f} }

// Option constructs a value drawn from a stage's declared option list.
func Option(value, label string) Value {
	return Value{kind: ValueOption, text: value, label: label}
}

// Duration constructs a duration value expressed as total minutes.
func Duration(minutes int) Value { return Value{kind: ValueDuration, minutes: minutes} }

// Scale constructs a bounded integer rating with its display label.
func Scale(n int, label string) Value { return Value{kind: ValueScale, scale: n, label: label} }

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// AsText returns the string payload of a text value.
func (v Value) AsText() (string, bool) {
	if v.kind != ValueText {
		return "", false
	}
	return v.text, true
}

// AsNumber returns the numeric payload of a number value.
func (v Value) AsNumber() (float64, bool) {
	if v.kind != ValueNumber {
		return 0, false
	}
	return v.number, true
}

// AsOption returns the selected option value.
func (v Value) AsOption() (string, bool) {
	if v.kind != ValueOption {
		return "", false
	}
	return v.text, true
}

// AsMinutes returns the duration payload as total minutes.
func (v Value) AsMinutes() (int, bool) {
	if v.kind != ValueDuration {
		return 0, false
	}
	return v.minutes, true
}

// AsScale returns the rating and its label.
func (v Value) AsScale() (int, string, bool) {
	if v.kind != ValueScale {
		return 0, "", false
	}
	return v.scale, v.label, true
}

// Label returns the display label attached to option and scale values.
func (v Value) Label() string { return v.label }

// Raw converts the value to its storage representation.
func (v Value) Raw() any {
	switch v.kind {
	case ValueText:
		return v.text
	case ValueNumber:
		return v.number
	case ValueOption:
		return v.text
	case ValueDuration:
		return v.minutes
	case ValueScale:
		return v.scale
	default:
		return nil
	}
}

// String renders the value for export surfaces.
func (v Value) String() string {
	switch v.kind {
	case ValueText, ValueOption:
		return v.text
	case ValueNumber:
		return trimFloat(v.number)
	case ValueDuration:
		return fmt.Sprintf("%d", v.minutes)
	case ValueScale:
		return fmt.Sprintf("%d", v.scale)
	default:
		return ""
	}
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

// FieldMap is the ordered field-id to value mapping accumulated by one
// in-flight quick-add session. It is owned by exactly one session: discarded
// on cancellation, consumed on completion.
type FieldMap struct {
	order  []string
	values map[string]Value
}

// NewFieldMap creates an empty field map.
func NewFieldMap() *FieldMap {
	return &FieldMap{values: make(map[string]Value)}
}

// Set stores a value, preserving first-insertion order on overwrite.
func (f *FieldMap) Set(id string, v Value) {
	if f.values == nil {
		f.values = make(map[string]Value)
	}
	if _, exists := f.values[id]; !exists {
		f.order = append(f.order, id)
	}
	f.values[id] = v
}

// Get returns the value recorded for a field id.
func (f *FieldMap) Get(id string) (Value, bool) {
	if f == nil || f.values == nil {
		return Value{}, false
	}
	v, ok := f.values[id]
	return v, ok
}

// Has reports whether a value is present for the field id.
func (f *FieldMap) Has(id string) bool {
	_, ok := f.Get(id)
	return ok
}

// Delete removes a field value.
func (f *FieldMap) Delete(id string) {
	if f == nil || f.values == nil {
		return
	}
	if _, ok := f.values[id]; !ok {
		return
	}
	delete(f.values, id)
	for i, key := range f.order {
		if key == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of recorded fields.
func (f *FieldMap) Len() int {
	if f == nil {
		return 0
	}
	return len(f.order)
}

// Keys returns the field ids in insertion order.
func (f *FieldMap) Keys() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.order...)
}

// Snapshot converts the typed map into the loose representation used at the
// storage boundary. Field order follows insertion order of the session.
func (f *FieldMap) Snapshot() map[string]any {
	out := make(map[string]any, f.Len())
	for _, id := range f.order {
		out[id] = f.values[id].Raw()
	}
	return out
}

// Clone returns an independent copy of the field map.
func (f *FieldMap) Clone() *FieldMap {
	clone := NewFieldMap()
	if f == nil {
		return clone
	}
	for _, id := range f.order {
		clone.Set(id, f.values[id])
	}
	return clone
}
