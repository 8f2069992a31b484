package quickadd

import (
	"errors"
	"fmt"
	"sync"

	"habitkit/pkg/plugin"
)

// State is the interpreter position of one collection session.
type State string

const (
	// StateAwaitingInput means the session sits on a stage waiting for a value.
	StateAwaitingInput State = "awaiting-input"
	// StateComplete means the record was assembled; the session is spent.
	StateComplete State = "complete"
	// StateCancelled means the field map was discarded; no record exists.
	StateCancelled State = "cancelled"
)

// Session errors.
var (
	ErrSessionFinished  = errors.New("session already finished")
	ErrStageUnsatisfied = errors.New("required stage has no value")
	ErrUnknownField     = errors.New("field not declared by schema")
	ErrNoManualEntry    = errors.New("plugin does not support manual entry")
)

// ValidationFailedError carries the blocking validation result so callers can
// display the message inline next to the Save action.
type ValidationFailedError struct {
	Result plugin.ValidationResult
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Result.Message)
}

// Session walks one plugin's ordered input stages, accumulating a typed field
// map. User interaction drives every transition; the session is cooperative
// and owns its field map exclusively.
type Session struct {
	mu      sync.Mutex
	plugin  plugin.Plugin
	stages  []plugin.InputStage
	idx     int
	fields  *plugin.FieldMap
	state   State
	warning string
	record  *plugin.DataRecord
	pending map[string]bool
	release func()
}

// SessionOption customises a new session.
type SessionOption func(*Session)

// WithRelease attaches the registry's collection release hook; it runs once
// when the session completes or cancels.
func WithRelease(release func()) SessionOption {
	return func(s *Session) { s.release = release }
}

// NewSession starts a collection session at the first stage. Stage defaults
// are pre-filled so an all-defaults schema can complete with Next alone.
func NewSession(p plugin.Plugin, opts ...SessionOption) (*Session, error) {
	if p == nil {
		return nil, errors.New("plugin cannot be nil")
	}
	if !p.SupportsManualEntry() {
		return nil, fmt.Errorf("%w: %s", ErrNoManualEntry, p.ID())
	}
	schema := p.QuickAddSchema()
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("plugin %s schema: %w", p.ID(), err)
	}
	s := &Session{
		plugin:  p,
		stages:  schema.Stages,
		fields:  plugin.NewFieldMap(),
		state:   StateAwaitingInput,
		pending: make(map[string]bool),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	for _, stage := range s.stages {
		seedDefault(s.fields, stage)
	}
	return s, nil
}

func seedDefault(fields *plugin.FieldMap, stage plugin.InputStage) {
	if stage.Kind == plugin.KindComposite {
		for _, sub := range stage.Inputs {
			seedDefault(fields, sub)
		}
		return
	}
	if stage.Default != nil {
		fields.Set(stage.ID, *stage.Default)
	}
}

// Set records a raw value for a declared field. Selecting a slider's custom
// sentinel arms a secondary free input instead of storing the sentinel
// literally.
func (s *Session) Set(fieldID string, raw any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingInput {
		return ErrSessionFinished
	}
	stage, ok := s.findStage(fieldID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, fieldID)
	}
	if stage.Kind == plugin.KindSlider && stage.HasCustomPreset() {
		if n, err := asFloat(stage.ID, raw); err == nil && n == plugin.CustomPresetSentinel {
			s.pending[stage.ID] = true
			s.fields.Delete(stage.ID)
			return nil
		}
	}
	value, err := Coerce(stage, raw)
	if err != nil {
		if errors.Is(err, ErrEmptyValue) && !stage.Required {
			s.fields.Delete(fieldID)
			return nil
		}
		return err
	}
	delete(s.pending, stage.ID)
	s.fields.Set(fieldID, value)
	return nil
}

// Next advances past the current stage. The stage must be satisfied: required
// stages need a recorded value (all required sub-inputs for a composite), and
// an armed custom sentinel still waits for its free input. Advancing past the
// final stage runs validation and assembles the record exactly once.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingInput {
		return ErrSessionFinished
	}
	stage := s.stages[s.idx]
	if err := s.stageSatisfied(stage); err != nil {
		return err
	}
	if s.idx+1 < len(s.stages) {
		s.idx++
		return nil
	}
	return s.finish()
}

// Back moves to the previous stage. Previously entered values are kept.
func (s *Session) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingInput {
		return ErrSessionFinished
	}
	if s.idx > 0 {
		s.idx--
	}
	return nil
}

// Cancel discards the entire field map. No partial record is ever persisted;
// cancellation is synchronous and total.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingInput {
		return
	}
	s.fields = plugin.NewFieldMap()
	s.pending = make(map[string]bool)
	s.state = StateCancelled
	s.idx = 0
	if s.release != nil {
		s.release()
	}
}

// finish runs the framework required-field rule, then the plugin validator,
// then hands the map to the plugin's entry builder. Caller holds s.mu.
func (s *Session) finish() error {
	for _, stage := range s.stages {
		if err := s.stageSatisfied(stage); err != nil {
			return err
		}
	}
	if missing := s.missingRequired(); missing != "" {
		return &ValidationFailedError{Result: plugin.Invalid(fmt.Sprintf("required field %s is missing", missing))}
	}
	result := s.plugin.Validate(s.fields)
	switch result.Status {
	case plugin.ValidationError:
		return &ValidationFailedError{Result: result}
	case plugin.ValidationWarning:
		s.warning = result.Message
	}
	rec, err := s.plugin.CreateManualEntry(s.fields)
	if err != nil {
		return fmt.Errorf("create entry for %s: %w", s.plugin.ID(), err)
	}
	if rec == nil {
		return fmt.Errorf("plugin %s returned no record for a valid field map", s.plugin.ID())
	}
	s.record = rec
	s.state = StateComplete
	if s.release != nil {
		s.release()
	}
	return nil
}

func (s *Session) stageSatisfied(stage plugin.InputStage) error {
	if stage.Kind == plugin.KindComposite {
		for _, sub := range stage.Inputs {
			if err := s.stageSatisfied(sub); err != nil {
				return err
			}
		}
		return nil
	}
	if s.pending[stage.ID] {
		return fmt.Errorf("%w: %s awaits its custom value", ErrStageUnsatisfied, stage.ID)
	}
	if stage.Required && !s.fields.Has(stage.ID) {
		return fmt.Errorf("%w: %s", ErrStageUnsatisfied, stage.ID)
	}
	return nil
}

func (s *Session) missingRequired() string {
	var walk func(stages []plugin.InputStage) string
	walk = func(stages []plugin.InputStage) string {
		for _, stage := range stages {
			if stage.Kind == plugin.KindComposite {
				if missing := walk(stage.Inputs); missing != "" {
					return missing
				}
				continue
			}
			if stage.Required && !s.fields.Has(stage.ID) {
				return stage.ID
			}
		}
		return ""
	}
	return walk(s.stages)
}

// findStage resolves a field id against the whole schema, not just the
// current stage: a blocking validation error on save is corrected by editing
// an earlier field without replaying the walk.
func (s *Session) findStage(fieldID string) (plugin.InputStage, bool) {
	for _, stage := range s.stages {
		if stage.Kind == plugin.KindComposite {
			for _, sub := range stage.Inputs {
				if sub.ID == fieldID {
					return sub, true
				}
			}
			continue
		}
		if stage.ID == fieldID {
			return stage, true
		}
	}
	return plugin.InputStage{}, false
}

// State returns the interpreter state and current stage index.
func (s *Session) State() (State, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.idx
}

// Stage returns the stage the session currently awaits input for.
func (s *Session) Stage() plugin.InputStage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stages[s.idx]
}

// Warning returns the non-blocking validation message, if any was produced.
func (s *Session) Warning() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warning
}

// Record returns the assembled record after completion.
func (s *Session) Record() *plugin.DataRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

// Submit feeds a full field-value map through the session in stage order and
// advances to completion. It is the one-shot path used by non-interactive
// callers such as the HTTP surface.
func (s *Session) Submit(values map[string]any) error {
	for {
		state, _ := s.State()
		if state != StateAwaitingInput {
			return ErrSessionFinished
		}
		stage := s.Stage()
		inputs := []plugin.InputStage{stage}
		if stage.Kind == plugin.KindComposite {
			inputs = stage.Inputs
		}
		for _, in := range inputs {
			raw, ok := values[in.ID]
			if !ok {
				continue
			}
			if err := s.Set(in.ID, raw); err != nil {
				return err
			}
		}
		s.mu.Lock()
		last := s.idx+1 >= len(s.stages)
		s.mu.Unlock()
		if err := s.Next(); err != nil {
			return err
		}
		if last {
			return nil
		}
	}
}
