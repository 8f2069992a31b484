package plugin

import (
	"time"

	"github.com/google/uuid"
)

// Source tags how a record entered the system.
const (
	SourceManual    = "manual"
	SourceAutomatic = "automatic"
)

// SchemaVersion is stamped into every assembled record's metadata so export
// and storage collaborators can tell apart records written by older builds.
const SchemaVersion = "1"

// DataRecord is the final immutable artifact representing one logged event.
// It is created only after validation succeeded and never mutated afterwards;
// ownership transfers to the storage collaborator on insert.
type DataRecord struct {
	ID        string            `json:"id"`
	PluginID  string            `json:"plugin_id"`
	Timestamp int64             `json:"timestamp"`
	Type      string            `json:"type"`
	Values    map[string]any    `json:"values"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Source    string            `json:"source"`
	Version   int               `json:"version"`
}

// Clone returns an independent copy so stores can hand out records without
// sharing the underlying maps.
func (r *DataRecord) Clone() *DataRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Values != nil {
		clone.Values = make(map[string]any, len(r.Values))
		for k, v := range r.Values {
			clone.Values[k] = v
		}
	}
	if r.Metadata != nil {
		clone.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// Assemble builds exactly one DataRecord from a completed field map: fresh id,
// current timestamp unless the plugin injected a "timestamp" field, plugin id
// and type tag from the declaration, values copied verbatim. This step never
// fails; it only runs after validation succeeded.
func Assemble(pluginID, typeTag string, fields *FieldMap, source string) *DataRecord {
	values := fields.Snapshot()
	ts := time.Now().UnixMilli()
	if injected, ok := fields.Get("timestamp"); ok {
		if n, isNum := injected.AsNumber(); isNum && n > 0 {
			ts = int64(n)
			delete(values, "timestamp")
		}
	}
	if source == "" {
		source = SourceManual
	}
	return &DataRecord{
		ID:        uuid.NewString(),
		PluginID:  pluginID,
		Timestamp: ts,
		Type:      typeTag,
		Values:    values,
		Metadata: map[string]string{
			"schema_version": SchemaVersion,
			"entry_method":   source,
		},
		Source:  source,
		Version: 1,
	}
}
