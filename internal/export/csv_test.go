package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	xerrors "habitkit/internal/errors"
	"habitkit/internal/plugins"
	"habitkit/pkg/plugin"
)

type staticSource map[string]plugin.Plugin

func (s staticSource) Get(id string) (plugin.Plugin, error) {
	p, ok := s[id]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, "plugin not registered: "+id)
	}
	return p, nil
}

func waterRecord(t *testing.T, amount float64) *plugin.DataRecord {
	t.Helper()
	fm := plugin.NewFieldMap()
	fm.Set("amount", plugin.Number(amount))
	rec, err := plugins.NewWater().CreateManualEntry(fm)
	if err != nil {
		t.Fatalf("build water record: %v", err)
	}
	return rec
}

func TestExportWritesHeaderOnce(t *testing.T) {
	water := plugins.NewWater()
	exp, err := NewCSVExporter(t.TempDir(), staticSource{"water": water})
	if err != nil {
		t.Fatalf("NewCSVExporter: %v", err)
	}

	var path string
	for _, amount := range []float64{250, 500} {
		path, err = exp.Export(context.Background(), waterRecord(t, amount))
		if err != nil {
			t.Fatalf("Export: %v", err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export file: %v", err)
	}
	rows, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	if err != nil {
		t.Fatalf("parse export file: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header plus two records", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(water.ExportHeaders(), ",") {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][1] != "250" || rows[2][1] != "500" {
		t.Fatalf("amount cells = %q, %q", rows[1][1], rows[2][1])
	}
}

func TestExportMissingCellsRenderEmpty(t *testing.T) {
	water := plugins.NewWater()
	exp, err := NewCSVExporter(t.TempDir(), staticSource{"water": water})
	if err != nil {
		t.Fatalf("NewCSVExporter: %v", err)
	}

	// No note field: its column must still exist, empty.
	path, err := exp.Export(context.Background(), waterRecord(t, 300))
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export file: %v", err)
	}
	rows, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	if err != nil {
		t.Fatalf("parse export file: %v", err)
	}
	noteIdx := -1
	for i, h := range rows[0] {
		if h == "note" {
			noteIdx = i
		}
	}
	if noteIdx < 0 {
		t.Fatalf("no note column in header %v", rows[0])
	}
	if rows[1][noteIdx] != "" {
		t.Fatalf("note cell = %q, want empty", rows[1][noteIdx])
	}
}

// leakyPlugin emits a column its headers never declared.
type leakyPlugin struct {
	*plugins.Water
}

func (p leakyPlugin) ExportRow(rec *plugin.DataRecord) map[string]string {
	row := p.Water.ExportRow(rec)
	row["device_id"] = "phone-1"
	return row
}

func TestExportRejectsUndeclaredColumns(t *testing.T) {
	leaky := leakyPlugin{Water: plugins.NewWater()}
	exp, err := NewCSVExporter(t.TempDir(), staticSource{"water": leaky})
	if err != nil {
		t.Fatalf("NewCSVExporter: %v", err)
	}

	_, err = exp.Export(context.Background(), waterRecord(t, 300))
	if xerrors.CodeOf(err) != xerrors.CodeExportFailure {
		t.Fatalf("err = %v, want export failure", err)
	}
}

func TestExportUnknownPluginFails(t *testing.T) {
	exp, err := NewCSVExporter(t.TempDir(), staticSource{})
	if err != nil {
		t.Fatalf("NewCSVExporter: %v", err)
	}
	if _, err := exp.Export(context.Background(), waterRecord(t, 300)); err == nil {
		t.Fatal("export for an unregistered plugin should fail")
	}
}

func TestExportCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "exports")
	if _, err := NewCSVExporter(dir, staticSource{}); err != nil {
		t.Fatalf("NewCSVExporter: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("export directory not created: %v", err)
	}
}

func TestDump(t *testing.T) {
	water := plugins.NewWater()
	records := []*plugin.DataRecord{
		waterRecord(t, 250),
		waterRecord(t, 750),
	}

	var buf bytes.Buffer
	if err := Dump(&buf, water, records); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse dump: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header plus two records", len(rows))
	}
	if rows[1][1] != "250" || rows[2][1] != "750" {
		t.Fatalf("amount cells = %q, %q", rows[1][1], rows[2][1])
	}
}
