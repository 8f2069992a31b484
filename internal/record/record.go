// Package record 负责数据记录的持久化与异步导出流水线：
// 插件产出的 DataRecord 先落库，再经队列交给导出处理器。
package record

import (
	xerrors "habitkit/internal/errors"
	"habitkit/pkg/plugin"
)

// ExportState 表示记录在导出流水线中的状态。
type ExportState string

const (
	StatePending   ExportState = "pending"
	StateExporting ExportState = "exporting"
	StateExported  ExportState = "exported"
	// StateSkipped 表示插件缺少导出能力，记录保留但不导出。
	StateSkipped ExportState = "skipped"
	StateFailed  ExportState = "failed"
)

// Entry 是存储层的记录信封：不可变的 DataRecord 加上导出流水线元数据。
type Entry struct {
	Record      *plugin.DataRecord `json:"record"`
	ExportState ExportState        `json:"export_state"`
	Attempts    int                `json:"attempts"`
	MaxRetries  int                `json:"max_retries"`
	LastError   string             `json:"last_error,omitempty"`
	ErrorCode   string             `json:"error_code,omitempty"`
	// ExportPath 记录导出成功后生成的 CSV 文件路径。
	ExportPath string `json:"export_path,omitempty"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

var (
	// ErrRecordNotFound 表示指定的记录不存在。
	ErrRecordNotFound = xerrors.New(CodeRecordNotFound, "record not found")
	// ErrRecordConflict 表示记录在当前状态下无法进行所请求的操作。
	ErrRecordConflict = xerrors.New(CodeRecordConflict, "record conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrRecordExported 表示记录已经完成导出。
	ErrRecordExported = xerrors.New(CodeRecordExported, "record already exported", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrRecordExhausted 表示导出重试次数已经耗尽。
	ErrRecordExhausted = xerrors.New(CodeRecordExhausted, "record export retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

const (
	CodeRecordNotFound  xerrors.Code = "RECORD_NOT_FOUND"
	CodeRecordConflict  xerrors.Code = "RECORD_CONFLICT"
	CodeRecordExported  xerrors.Code = "RECORD_EXPORTED"
	CodeRecordExhausted xerrors.Code = "RECORD_RETRIES_EXHAUSTED"
	CodeRecordPublish   xerrors.Code = "RECORD_PUBLISH_FAILED"
	CodeRecordExport    xerrors.Code = "RECORD_EXPORT_FAILED"
)

func init() {
	xerrors.Register(CodeRecordNotFound, xerrors.Attributes{
		Message:  "record not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeRecordConflict, xerrors.Attributes{
		Message:  "record conflict",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeRecordExported, xerrors.Attributes{
		Message:  "record already exported",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeRecordExhausted, xerrors.Attributes{
		Message:  "record export retries exhausted",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
	xerrors.Register(CodeRecordPublish, xerrors.Attributes{
		Message:   "failed to publish record",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeRecordExport, xerrors.Attributes{
		Message:   "record export failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
}

// IsValidState 检查导出状态是否为支持的枚举值。
func IsValidState(state ExportState) bool {
	switch state {
	case StatePending, StateExporting, StateExported, StateSkipped, StateFailed:
		return true
	default:
		return false
	}
}

func cloneEntry(entry *Entry) *Entry {
	if entry == nil {
		return nil
	}
	clone := *entry
	clone.Record = entry.Record.Clone()
	return &clone
}
