// Package export renders data records to CSV, one file per plugin. Column
// layout is owned by the plugin through ExportHeaders/ExportRow; the exporter
// only enforces the contract between the two.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	xerrors "habitkit/internal/errors"
	"habitkit/pkg/plugin"
)

// PluginSource resolves a plugin id to its registered instance. The plugin
// registry implements it.
type PluginSource interface {
	Get(id string) (plugin.Plugin, error)
}

// CSVExporter appends records to per-plugin CSV files under a base directory.
type CSVExporter struct {
	mu      sync.Mutex
	dir     string
	plugins PluginSource
}

// NewCSVExporter creates the exporter and its output directory.
func NewCSVExporter(dir string, plugins PluginSource) (*CSVExporter, error) {
	if dir == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "export directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeExportFailure, err, "create export directory")
	}
	return &CSVExporter{dir: dir, plugins: plugins}, nil
}

// Export appends one record to the owning plugin's CSV file and returns the
// file path. The header row is written when the file is created.
func (e *CSVExporter) Export(_ context.Context, rec *plugin.DataRecord) (string, error) {
	if rec == nil {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "record cannot be nil")
	}
	p, err := e.plugins.Get(rec.PluginID)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeExportFailure, err, "resolve export plugin")
	}
	headers := p.ExportHeaders()
	if len(headers) == 0 {
		return "", xerrors.New(xerrors.CodeExportFailure,
			fmt.Sprintf("plugin %s declares no export headers", rec.PluginID))
	}
	row, err := renderRow(p, headers, rec)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	path := filepath.Join(e.dir, rec.PluginID+".csv")
	info, statErr := os.Stat(path)
	fresh := statErr != nil || info.Size() == 0

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeExportFailure, err, "open export file")
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if fresh {
		if err := writer.Write(headers); err != nil {
			return "", xerrors.Wrap(xerrors.CodeExportFailure, err, "write export header")
		}
	}
	if err := writer.Write(row); err != nil {
		return "", xerrors.Wrap(xerrors.CodeExportFailure, err, "write export row")
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", xerrors.Wrap(xerrors.CodeExportFailure, err, "flush export row")
	}
	return path, nil
}

// renderRow maps a record through the plugin's export contract. The row's key
// set must equal the headers exactly; a missing key renders as the empty
// string, an extra key is a contract violation and fails the export.
func renderRow(p plugin.Plugin, headers []string, rec *plugin.DataRecord) ([]string, error) {
	cells := p.ExportRow(rec)
	for key := range cells {
		known := false
		for _, h := range headers {
			if h == key {
				known = true
				break
			}
		}
		if !known {
			return nil, xerrors.New(xerrors.CodeExportFailure,
				fmt.Sprintf("plugin %s exported undeclared column %q", p.ID(), key))
		}
	}
	row := make([]string, len(headers))
	for i, h := range headers {
		row[i] = cells[h]
	}
	return row, nil
}
