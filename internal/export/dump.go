package export

import (
	"encoding/csv"
	"io"

	xerrors "habitkit/internal/errors"
	"habitkit/pkg/plugin"
)

// Dump writes a complete CSV for one plugin's records to w, header first.
// Used by the download surface; the incremental Export path is unaffected.
func Dump(w io.Writer, p plugin.Plugin, records []*plugin.DataRecord) error {
	headers := p.ExportHeaders()
	if len(headers) == 0 {
		return xerrors.New(xerrors.CodeExportFailure, "plugin declares no export headers")
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(headers); err != nil {
		return xerrors.Wrap(xerrors.CodeExportFailure, err, "write export header")
	}
	for _, rec := range records {
		row, err := renderRow(p, headers, rec)
		if err != nil {
			return err
		}
		if err := writer.Write(row); err != nil {
			return xerrors.Wrap(xerrors.CodeExportFailure, err, "write export row")
		}
	}
	writer.Flush()
	return writer.Error()
}
