package record

import "time"

// SortOrder 定义记录列表的排序方式。
type SortOrder int

const (
	// SortByTimestampDesc 按记录时间戳倒序,最新的在前。
	SortByTimestampDesc SortOrder = iota
	// SortByTimestampAsc 按记录时间戳正序,最早的在前。
	SortByTimestampAsc
)

// ListOptions 控制查询存储时的筛选与分页条件。
type ListOptions struct {
	Limit   int
	Offset  int
	Plugins []string
	States  []ExportState
	// SinceMillis/UntilMillis 为记录时间戳的闭区间边界。
	SinceMillis int64
	UntilMillis int64
	Order       SortOrder
}

// applyDefaults 规整选项并填充默认值。
func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 500 {
		opts.Limit = 500
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.States != nil {
		opts.States = normalizeStates(opts.States)
	}
	if opts.Order != SortByTimestampAsc {
		opts.Order = SortByTimestampDesc
	}
}

// ListOption 修改 ListOptions。
type ListOption func(*ListOptions)

// WithLimit 限制返回条目数量。
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) { opts.Limit = limit }
}

// WithOffset 跳过前 n 条匹配记录。
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) { opts.Offset = offset }
}

// WithPlugins 按插件 ID 过滤。
func WithPlugins(ids ...string) ListOption {
	return func(opts *ListOptions) {
		opts.Plugins = append(opts.Plugins[:0], ids...)
	}
}

// WithStates 按导出状态过滤。
func WithStates(states ...ExportState) ListOption {
	return func(opts *ListOptions) {
		opts.States = append(opts.States[:0], states...)
	}
}

// WithSince 只保留该时刻及之后的记录。
func WithSince(ts time.Time) ListOption {
	return func(opts *ListOptions) {
		if ts.IsZero() {
			opts.SinceMillis = 0
			return
		}
		opts.SinceMillis = ts.UnixMilli()
	}
}

// WithUntil 只保留该时刻及之前的记录。
func WithUntil(ts time.Time) ListOption {
	return func(opts *ListOptions) {
		if ts.IsZero() {
			opts.UntilMillis = 0
			return
		}
		opts.UntilMillis = ts.UnixMilli()
	}
}

// WithSortOrder 调整返回顺序。
func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) { opts.Order = order }
}

// buildListOptions 在默认值之上应用选项函数。
func buildListOptions(opts []ListOption) ListOptions {
	options := ListOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func normalizeStates(input []ExportState) []ExportState {
	if len(input) == 0 {
		return nil
	}
	seen := make(map[ExportState]struct{}, len(input))
	result := make([]ExportState, 0, len(input))
	for _, state := range input {
		if !IsValidState(state) {
			continue
		}
		if _, ok := seen[state]; ok {
			continue
		}
		seen[state] = struct{}{}
		result = append(result, state)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
