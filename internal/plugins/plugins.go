// Package plugins holds the officially bundled trackers. Each declaration is
// data plus two small functions (validation and entry building); everything
// else — permission checks, the quick-add walk, storage, export — is generic
// framework behavior.
package plugins

import (
	"context"
	"log/slog"
	"time"

	xerrors "habitkit/internal/errors"
	"habitkit/pkg/logger"
	"habitkit/pkg/plugin"
)

// base carries the declarative parts shared by every bundled plugin.
type base struct {
	id       string
	typeTag  string
	meta     plugin.Metadata
	manifest plugin.SecurityManifest
	schema   plugin.QuickAddConfig
	log      *slog.Logger
}

func (b *base) ID() string                          { return b.id }
func (b *base) Metadata() plugin.Metadata           { return b.meta }
func (b *base) Manifest() plugin.SecurityManifest   { return b.manifest }
func (b *base) TrustLevel() plugin.TrustLevel       { return plugin.TrustOfficial }
func (b *base) SupportsManualEntry() bool           { return true }
func (b *base) SupportsAutomaticCollection() bool   { return false }
func (b *base) QuickAddSchema() plugin.QuickAddConfig { return b.schema }

func (b *base) Initialize(context.Context) error {
	b.log = logger.WithPlugin(b.id)
	b.log.Debug("plugin initialised")
	return nil
}

func (b *base) Cleanup(context.Context) error {
	if b.log != nil {
		b.log.Debug("plugin cleaned up")
	}
	return nil
}

// buildEntry re-runs validation and assembles the record. Plugins without
// derived fields funnel CreateManualEntry through here; water and sleep
// enrich the field map first but keep the same refuse-on-error shape.
func buildEntry(p plugin.Plugin, typeTag string, fields *plugin.FieldMap) (*plugin.DataRecord, error) {
	result := p.Validate(fields)
	if !result.OK() {
		return nil, xerrors.New(xerrors.CodeValidationFailure, result.Message,
			xerrors.WithMetadata("plugin_id", p.ID()))
	}
	return plugin.Assemble(p.ID(), typeTag, fields, plugin.SourceManual), nil
}

// formatTimestamp renders a record timestamp for CSV export.
func formatTimestamp(millis int64) string {
	return time.UnixMilli(millis).Format("2006-01-02 15:04:05")
}

// numberValue reads a numeric field, tolerating the int that JSON round trips
// sometimes produce at the storage boundary.
func numberValue(values map[string]any, key string) (float64, bool) {
	switch v := values[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func stringValue(values map[string]any, key string) string {
	s, _ := values[key].(string)
	return s
}

// Catalog returns fresh instances of every bundled plugin.
func Catalog() []plugin.Plugin {
	return []plugin.Plugin{
		NewWater(),
		NewMood(),
		NewSleep(),
		NewExercise(),
		NewMedication(),
	}
}

// RegisterEnabled registers the bundled plugins the config enables. With no
// config every bundled plugin is registered.
func RegisterEnabled(reg *plugin.Registry, cfg *plugin.RegistryConfig) error {
	for _, p := range Catalog() {
		if cfg != nil && !cfg.Enabled(p.ID()) {
			logger.L().Info("bundled plugin disabled by config", slog.String("plugin_id", p.ID()))
			continue
		}
		if err := reg.Register(p); err != nil {
			return err
		}
	}
	return nil
}
