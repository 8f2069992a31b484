package record

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	xerrors "habitkit/internal/errors"
	"habitkit/internal/observability/alerting"
	"habitkit/pkg/logger"
	"habitkit/pkg/plugin"
)

// Exporter 将单条记录写入导出产物，返回产物路径。
type Exporter interface {
	Export(ctx context.Context, rec *plugin.DataRecord) (string, error)
}

// PermissionChecker 判断插件是否拥有某项能力。
type PermissionChecker interface {
	HasPermission(pluginID string, cap plugin.Capability) bool
}

// Processor 从队列消费记录 ID，校验导出能力后交给 Exporter。
type Processor struct {
	exporter    Exporter
	store       Store
	consumer    Consumer
	producer    Producer
	perms       PermissionChecker
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定调试日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = logger }
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) { p.alerter = dispatcher }
}

// NewProcessor 构造 Processor。
func NewProcessor(exporter Exporter, store Store, consumer Consumer, producer Producer, perms PermissionChecker, opts ...ProcessorOption) *Processor {
	p := &Processor{
		exporter:    exporter,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		perms:       perms,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动导出处理循环，阻塞直到 ctx 取消。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeLifecycleFailure, "未配置记录消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, recordID string) error {
	if p.store == nil || p.exporter == nil {
		return xerrors.New(xerrors.CodeLifecycleFailure, "处理器未初始化")
	}
	entry, err := p.store.Claim(ctx, recordID)
	if err != nil {
		if stdErrors.Is(err, ErrRecordNotFound) || stdErrors.Is(err, ErrRecordExported) || stdErrors.Is(err, ErrRecordExhausted) {
			p.logDebug("跳过记录", slog.String("record_id", recordID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取记录失败", slog.Any("error", err), slog.String("record_id", recordID))
		p.emitAlert(ctx, &Entry{Record: &plugin.DataRecord{ID: recordID}}, CodeRecordExport, err, "claim")
		return err
	}
	rec := entry.Record

	// 导出是 EXPORT_DATA 能力的专属动作，未授权的插件记录只入库不导出。
	if p.perms != nil && !p.perms.HasPermission(rec.PluginID, plugin.CapabilityExportData) {
		reason := fmt.Sprintf("plugin %s lacks %s", rec.PluginID, plugin.CapabilityExportData)
		if err := p.store.MarkSkipped(ctx, rec.ID, reason); err != nil {
			logger.L().Error("标记记录跳过失败", slog.Any("error", err), slog.String("record_id", rec.ID))
			return err
		}
		logger.Audit().Info("记录导出被跳过",
			slog.String("record_id", rec.ID),
			slog.String("plugin_id", rec.PluginID),
			slog.String("reason", reason),
		)
		return nil
	}

	path, exportErr := p.exporter.Export(ctx, rec)
	if exportErr != nil {
		return p.handleExportFailure(ctx, entry, exportErr)
	}

	if err := p.store.MarkExported(ctx, rec.ID, path); err != nil {
		logger.L().Error("记录导出结果失败", slog.Any("error", err), slog.String("record_id", rec.ID))
		return err
	}
	logger.Audit().Info("记录导出成功",
		slog.String("record_id", rec.ID),
		slog.String("plugin_id", rec.PluginID),
		slog.String("export_path", path),
	)
	return nil
}

func (p *Processor) handleExportFailure(ctx context.Context, entry *Entry, exportErr error) error {
	rec := entry.Record
	code := xerrors.CodeOf(exportErr)
	if code == xerrors.CodeUnknown {
		code = CodeRecordExport
	}
	retryable := xerrors.RetryableError(exportErr) || code == CodeRecordExport
	terminal := entry.Attempts >= entry.MaxRetries || !retryable

	if storeErr := p.store.MarkFailed(ctx, rec.ID, string(code), exportErr.Error(), terminal); storeErr != nil {
		logger.L().Error("标记导出失败状态出错", slog.Any("error", storeErr), slog.String("record_id", rec.ID))
		return storeErr
	}
	logger.Audit().Warn("记录导出失败",
		slog.String("record_id", rec.ID),
		slog.String("plugin_id", rec.PluginID),
		slog.Bool("terminal", terminal),
		slog.String("error", exportErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", entry.Attempts),
		slog.Int("max_retries", entry.MaxRetries),
	)

	stage := "retry"
	if terminal {
		stage = "terminal"
	}
	p.emitAlert(ctx, entry, code, exportErr, stage)

	if !terminal {
		if pubErr := p.producer.Publish(ctx, rec.ID); pubErr != nil {
			return xerrors.Wrap(CodeRecordPublish, pubErr, fmt.Sprintf("记录 %s 重投失败", rec.ID))
		}
		p.logDebug("记录已重新排队", slog.String("record_id", rec.ID), slog.Int("attempts", entry.Attempts))
	}
	return nil
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}

func (p *Processor) emitAlert(ctx context.Context, entry *Entry, code xerrors.Code, cause error, stage string) {
	if p == nil || p.alerter == nil || entry == nil || entry.Record == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	metadata := map[string]string{"stage": stage}
	if cause != nil {
		metadata["cause"] = cause.Error()
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		PluginID:   entry.Record.PluginID,
		RecordID:   entry.Record.ID,
		Attempts:   entry.Attempts,
		MaxRetries: entry.MaxRetries,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("record_id", entry.Record.ID),
			slog.String("stage", stage),
		)
	}
}
