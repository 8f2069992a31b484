package quickadd

import (
	"context"
	"errors"
	"testing"

	"habitkit/pkg/plugin"
)

// fakePlugin drives the session tests with a water-style two-concern schema:
// a slider amount (with a custom sentinel) and an optional note.
type fakePlugin struct {
	schema      plugin.QuickAddConfig
	validate    func(fields *plugin.FieldMap) plugin.ValidationResult
	entryCalls  int
	manualEntry bool
}

func (p *fakePlugin) ID() string                  { return "fake" }
func (p *fakePlugin) Metadata() plugin.Metadata   { return plugin.Metadata{Name: "Fake"} }
func (p *fakePlugin) TrustLevel() plugin.TrustLevel { return plugin.TrustOfficial }
func (p *fakePlugin) Manifest() plugin.SecurityManifest {
	return plugin.SecurityManifest{Capabilities: []plugin.Capability{plugin.CapabilityCollectData}}
}
func (p *fakePlugin) Initialize(context.Context) error     { return nil }
func (p *fakePlugin) Cleanup(context.Context) error        { return nil }
func (p *fakePlugin) SupportsManualEntry() bool            { return p.manualEntry }
func (p *fakePlugin) SupportsAutomaticCollection() bool    { return false }
func (p *fakePlugin) QuickAddSchema() plugin.QuickAddConfig { return p.schema }
func (p *fakePlugin) ExportHeaders() []string              { return []string{"amount"} }
func (p *fakePlugin) ExportRow(*plugin.DataRecord) map[string]string {
	return map[string]string{"amount": ""}
}

func (p *fakePlugin) Validate(fields *plugin.FieldMap) plugin.ValidationResult {
	if p.validate != nil {
		return p.validate(fields)
	}
	return plugin.Valid()
}

func (p *fakePlugin) CreateManualEntry(fields *plugin.FieldMap) (*plugin.DataRecord, error) {
	if res := p.Validate(fields); !res.OK() {
		return nil, errors.New(res.Message)
	}
	p.entryCalls++
	return plugin.Assemble(p.ID(), "fake_entry", fields, plugin.SourceManual), nil
}

func newFakePlugin() *fakePlugin {
	return &fakePlugin{
		manualEntry: true,
		schema: plugin.QuickAddConfig{
			Title: "Log water",
			Stages: []plugin.InputStage{
				{
					ID:       "amount",
					Kind:     plugin.KindSlider,
					Required: true,
					Min:      0,
					Max:      2000,
					Presets: []plugin.SliderPreset{
						{Label: "Glass", Value: 250},
						{Label: "Bottle", Value: 500},
						{Label: "Custom", Value: plugin.CustomPresetSentinel},
					},
				},
				{ID: "note", Kind: plugin.KindText, MaxLen: 200},
			},
		},
	}
}

func TestSessionWalksStagesToCompletion(t *testing.T) {
	p := newFakePlugin()
	released := 0
	s, err := NewSession(p, WithRelease(func() { released++ }))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	if err := s.Set("amount", 500.0); err != nil {
		t.Fatalf("set amount: %v", err)
	}
	if err := s.Next(); err != nil {
		t.Fatalf("advance past amount: %v", err)
	}
	if err := s.Set("note", "after run"); err != nil {
		t.Fatalf("set note: %v", err)
	}
	if err := s.Next(); err != nil {
		t.Fatalf("complete: %v", err)
	}

	state, _ := s.State()
	if state != StateComplete {
		t.Fatalf("expected complete state, got %s", state)
	}
	rec := s.Record()
	if rec == nil {
		t.Fatal("expected an assembled record")
	}
	if rec.PluginID != "fake" || rec.Source != plugin.SourceManual || rec.Version != 1 {
		t.Fatalf("unexpected record envelope: %+v", rec)
	}
	if rec.Values["amount"] != 500.0 {
		t.Fatalf("expected amount 500, got %v", rec.Values["amount"])
	}
	if rec.Metadata["schema_version"] != plugin.SchemaVersion {
		t.Fatalf("missing schema_version metadata: %v", rec.Metadata)
	}
	if p.entryCalls != 1 {
		t.Fatalf("expected exactly one entry build, got %d", p.entryCalls)
	}
	if released != 1 {
		t.Fatalf("expected release once, got %d", released)
	}
}

func TestSessionRequiredStageBlocksAdvance(t *testing.T) {
	p := newFakePlugin()
	s, err := NewSession(p)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.Next(); !errors.Is(err, ErrStageUnsatisfied) {
		t.Fatalf("expected ErrStageUnsatisfied, got %v", err)
	}
}

func TestSessionCustomSentinelArmsSecondaryInput(t *testing.T) {
	p := newFakePlugin()
	s, err := NewSession(p)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	if err := s.Set("amount", plugin.CustomPresetSentinel); err != nil {
		t.Fatalf("select custom preset: %v", err)
	}
	// The sentinel itself must never satisfy the stage or reach the record.
	if err := s.Next(); !errors.Is(err, ErrStageUnsatisfied) {
		t.Fatalf("expected pending custom to block, got %v", err)
	}
	if err := s.Set("amount", 325.0); err != nil {
		t.Fatalf("enter custom amount: %v", err)
	}
	if err := s.Next(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := s.Next(); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got := s.Record().Values["amount"]; got != 325.0 {
		t.Fatalf("expected custom amount 325, got %v", got)
	}
}

func TestSessionBackPreservesValues(t *testing.T) {
	p := newFakePlugin()
	s, err := NewSession(p)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.Set("amount", 250.0); err != nil {
		t.Fatalf("set amount: %v", err)
	}
	if err := s.Next(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := s.Back(); err != nil {
		t.Fatalf("back: %v", err)
	}
	if _, idx := s.State(); idx != 0 {
		t.Fatalf("expected stage 0 after back, got %d", idx)
	}
	// Re-advance without re-entering: the earlier value must still count.
	if err := s.Next(); err != nil {
		t.Fatalf("re-advance: %v", err)
	}
}

func TestSessionCancelDiscardsEverything(t *testing.T) {
	p := newFakePlugin()
	released := 0
	s, err := NewSession(p, WithRelease(func() { released++ }))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.Set("amount", 250.0); err != nil {
		t.Fatalf("set amount: %v", err)
	}
	s.Cancel()

	state, _ := s.State()
	if state != StateCancelled {
		t.Fatalf("expected cancelled, got %s", state)
	}
	if s.Record() != nil {
		t.Fatal("cancelled session must not hold a record")
	}
	if p.entryCalls != 0 {
		t.Fatalf("cancelled session built %d entries", p.entryCalls)
	}
	if released != 1 {
		t.Fatalf("expected release once on cancel, got %d", released)
	}
	if err := s.Set("amount", 100.0); !errors.Is(err, ErrSessionFinished) {
		t.Fatalf("expected ErrSessionFinished after cancel, got %v", err)
	}
}

func TestSessionValidationErrorBlocksSave(t *testing.T) {
	p := newFakePlugin()
	p.validate = func(fields *plugin.FieldMap) plugin.ValidationResult {
		v, _ := fields.Get("amount")
		if n, _ := v.AsNumber(); n > 400 {
			return plugin.Invalid("Maximum single entry is 400ml")
		}
		return plugin.Valid()
	}
	s, err := NewSession(p)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.Set("amount", 500.0); err != nil {
		t.Fatalf("set amount: %v", err)
	}
	if err := s.Next(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	err = s.Next()
	var vErr *ValidationFailedError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationFailedError, got %v", err)
	}
	if vErr.Result.Message != "Maximum single entry is 400ml" {
		t.Fatalf("unexpected message %q", vErr.Result.Message)
	}

	// The session stays open: lower the value and finish.
	if err := s.Set("amount", 300.0); err != nil {
		t.Fatalf("correct amount: %v", err)
	}
	if err := s.Next(); err != nil {
		t.Fatalf("complete after correction: %v", err)
	}
	if p.entryCalls != 1 {
		t.Fatalf("expected one entry after correction, got %d", p.entryCalls)
	}
}

func TestSessionWarningDoesNotBlock(t *testing.T) {
	p := newFakePlugin()
	p.validate = func(*plugin.FieldMap) plugin.ValidationResult {
		return plugin.Warn("unusually large amount")
	}
	s, err := NewSession(p)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.Submit(map[string]any{"amount": 1800.0}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if state, _ := s.State(); state != StateComplete {
		t.Fatalf("warning must not block completion, got %s", state)
	}
	if s.Warning() != "unusually large amount" {
		t.Fatalf("expected stored warning, got %q", s.Warning())
	}
}

func TestSessionValidationErrorOnLastStage(t *testing.T) {
	// A failed finish must stay on the final stage so the user can correct it.
	p := newFakePlugin()
	p.validate = func(*plugin.FieldMap) plugin.ValidationResult {
		return plugin.Invalid("nope")
	}
	s, err := NewSession(p)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	_ = s.Set("amount", 100.0)
	_ = s.Next()
	if err := s.Next(); err == nil {
		t.Fatal("expected blocking error")
	}
	if state, idx := s.State(); state != StateAwaitingInput || idx != len(p.schema.Stages)-1 {
		t.Fatalf("expected to remain on final stage, got %s/%d", state, idx)
	}
}

func TestSessionCompositeSingleStage(t *testing.T) {
	p := newFakePlugin()
	p.schema = plugin.QuickAddConfig{
		Title: "Log sleep",
		Stages: []plugin.InputStage{
			{
				ID:   "entry",
				Kind: plugin.KindComposite,
				Inputs: []plugin.InputStage{
					{ID: "duration", Kind: plugin.KindDuration, Required: true},
					{ID: "quality", Kind: plugin.KindScale, Required: true, Options: []plugin.ChoiceOption{
						{Label: "Poor", Value: "1"},
						{Label: "Fair", Value: "2"},
						{Label: "Good", Value: "3"},
					}},
					{ID: "note", Kind: plugin.KindText},
				},
			},
		},
	}
	s, err := NewSession(p)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	if err := s.Set("duration", map[string]any{"hours": 8, "minutes": 0}); err != nil {
		t.Fatalf("set duration: %v", err)
	}
	// Missing required sub-input blocks the single composite stage.
	if err := s.Next(); !errors.Is(err, ErrStageUnsatisfied) {
		t.Fatalf("expected unsatisfied composite, got %v", err)
	}
	if err := s.Set("quality", 3); err != nil {
		t.Fatalf("set quality: %v", err)
	}
	if err := s.Next(); err != nil {
		t.Fatalf("complete composite: %v", err)
	}
	rec := s.Record()
	if rec.Values["duration"] != 480 {
		t.Fatalf("expected 480 minutes, got %v", rec.Values["duration"])
	}
	if rec.Values["quality"] != 3 {
		t.Fatalf("expected rating 3, got %v", rec.Values["quality"])
	}
	if _, hasNote := rec.Values["note"]; hasNote {
		t.Fatal("optional untouched note must stay absent")
	}
}

func TestSessionDefaultsSatisfyStages(t *testing.T) {
	p := newFakePlugin()
	def := plugin.Number(250)
	p.schema.Stages[0].Default = &def
	p.schema.Stages[0].Presets = nil

	s, err := NewSession(p)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.Submit(nil); err != nil {
		t.Fatalf("all-defaults submit: %v", err)
	}
	if got := s.Record().Values["amount"]; got != 250.0 {
		t.Fatalf("expected prefilled default 250, got %v", got)
	}
}

func TestSessionRejectsNonManualPlugin(t *testing.T) {
	p := newFakePlugin()
	p.manualEntry = false
	if _, err := NewSession(p); !errors.Is(err, ErrNoManualEntry) {
		t.Fatalf("expected ErrNoManualEntry, got %v", err)
	}
}

func TestSessionRejectsUnknownField(t *testing.T) {
	p := newFakePlugin()
	s, err := NewSession(p)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.Set("nonsense", 1); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}
