package record

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	xerrors "habitkit/internal/errors"
	"habitkit/pkg/logger"
	"habitkit/pkg/plugin"
)

// Service 负责记录的落库与导出排队。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
}

// NewService 构造记录服务。
func NewService(store Store, producer Producer, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{store: store, producer: producer, maxRetries: maxRetries}
}

// Submit 持久化一条已通过校验的记录并将其排入导出队列。
// 记录 ID 冲突时返回已有记录，保证重复提交幂等。
func (s *Service) Submit(ctx context.Context, rec *plugin.DataRecord) (*Entry, error) {
	if rec == nil || rec.ID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "记录不能为空")
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeLifecycleFailure, "记录服务未初始化")
	}

	entry := &Entry{
		Record:      rec.Clone(),
		ExportState: StatePending,
		MaxRetries:  s.maxRetries,
	}
	if err := s.store.Create(ctx, entry); err != nil {
		if stdErrors.Is(err, ErrRecordConflict) {
			existing, getErr := s.store.Get(ctx, rec.ID)
			if getErr == nil {
				return existing, nil
			}
			if !stdErrors.Is(getErr, ErrRecordNotFound) {
				return nil, getErr
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, rec.ID); err != nil {
		logger.L().Error("记录入队失败", slog.Any("error", err), slog.String("record_id", rec.ID))
		wrapped := xerrors.Wrap(CodeRecordPublish, err, "发布记录到队列失败")
		_ = s.store.MarkFailed(ctx, rec.ID, string(CodeRecordPublish), wrapped.Error(), true)
		return nil, wrapped
	}
	logger.Audit().Info("记录已入库",
		slog.String("record_id", rec.ID),
		slog.String("plugin_id", rec.PluginID),
		slog.String("source", rec.Source),
	)
	return s.store.Get(ctx, rec.ID)
}

// Get 返回指定记录。
func (s *Service) Get(ctx context.Context, id string) (*Entry, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeLifecycleFailure, "记录存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的记录列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Entry, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeLifecycleFailure, "记录存储未初始化")
	}
	options := buildListOptions(opts)
	return s.store.List(ctx, options)
}

// Stats 返回符合过滤条件的统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (Stats, error) {
	if s.store == nil {
		return Stats{}, xerrors.New(xerrors.CodeLifecycleFailure, "记录存储未初始化")
	}
	options := buildListOptions(opts)
	return s.store.Stats(ctx, options)
}

// Close 释放资源。
func (s *Service) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
	}
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// WaitUntilSettled 轮询直到记录离开导出流水线（成功、跳过或终态失败）。
func (s *Service) WaitUntilSettled(ctx context.Context, id string, interval time.Duration) (*Entry, error) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		entry, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		switch entry.ExportState {
		case StateExported, StateSkipped, StateFailed:
			return entry, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
