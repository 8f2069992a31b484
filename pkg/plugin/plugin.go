package plugin

import "context"

// Plugin is the contract every trackable behavior implements: identity,
// declarative metadata, a declarative security manifest, a declarative input
// schema, lifecycle hooks, a validation function and an export mapping.
// The framework is written generically against this interface and never
// against a concrete plugin.
type Plugin interface {
	// ID returns the canonical plugin identifier (e.g. "water").
	ID() string
	// Metadata returns the static descriptive data for the plugin.
	Metadata() Metadata
	// Manifest returns the plugin's immutable security manifest.
	Manifest() SecurityManifest
	// TrustLevel reports whether the plugin is officially bundled.
	TrustLevel() TrustLevel

	// Initialize prepares the plugin for use. It must complete before any
	// data-collection call is accepted.
	Initialize(ctx context.Context) error
	// Cleanup releases plugin resources. The registry waits for in-flight
	// collection sessions before invoking it.
	Cleanup(ctx context.Context) error

	// SupportsManualEntry reports whether the plugin offers a quick-add flow.
	SupportsManualEntry() bool
	// SupportsAutomaticCollection reports whether the plugin can record data
	// without user interaction.
	SupportsAutomaticCollection() bool

	// QuickAddSchema returns the ordered input stages driving the generic
	// quick-add interpreter. Single-stage composite schemas render all
	// sub-inputs on one screen.
	QuickAddSchema() QuickAddConfig

	// CreateManualEntry turns a completed field map into a record. It must
	// re-run the equivalent of Validate and refuse to build a record when
	// validation fails.
	CreateManualEntry(fields *FieldMap) (*DataRecord, error)
	// Validate inspects a collected field map and reports Success, Warning
	// or Error. It must be pure.
	Validate(fields *FieldMap) ValidationResult

	// ExportHeaders returns the ordered CSV column names.
	ExportHeaders() []string
	// ExportRow maps a record to export columns. Its key set must equal
	// ExportHeaders exactly; missing values render as empty strings.
	ExportRow(rec *DataRecord) map[string]string
}

// AutomaticCollector is implemented by plugins that support non-manual
// collection. Plugins without it default to collecting nothing.
type AutomaticCollector interface {
	CollectData(ctx context.Context) (*DataRecord, error)
}
