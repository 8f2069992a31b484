package record

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "habitkit/internal/errors"
)

// MemoryStore 以内存方式保存记录，主要用于测试。
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, entry *Entry) error {
	if entry == nil || entry.Record == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "record 不能为空")
	}
	if entry.Record.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "记录 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.Record.ID]; ok {
		return ErrRecordConflict
	}
	now := time.Now().Unix()
	clone := cloneEntry(entry)
	if clone.ExportState == "" {
		clone.ExportState = StatePending
	}
	if clone.CreatedAt == 0 {
		clone.CreatedAt = now
	}
	clone.UpdatedAt = now
	m.entries[entry.Record.ID] = clone
	return nil
}

// Get 返回记录。
func (m *MemoryStore) Get(_ context.Context, id string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneEntry(entry), nil
}

// Claim 将记录置为导出中。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	switch entry.ExportState {
	case StateExported, StateSkipped:
		return cloneEntry(entry), ErrRecordExported
	case StateExporting:
		return cloneEntry(entry), ErrRecordConflict
	}
	if entry.Attempts >= entry.MaxRetries {
		return cloneEntry(entry), ErrRecordExhausted
	}
	entry.ExportState = StateExporting
	entry.Attempts++
	entry.LastError = ""
	entry.ErrorCode = ""
	entry.UpdatedAt = time.Now().Unix()
	return cloneEntry(entry), nil
}

// MarkExported 记录导出成功。
func (m *MemoryStore) MarkExported(_ context.Context, id string, exportPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return ErrRecordNotFound
	}
	entry.ExportState = StateExported
	entry.ExportPath = exportPath
	entry.LastError = ""
	entry.ErrorCode = ""
	entry.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkSkipped 标记记录被跳过。
func (m *MemoryStore) MarkSkipped(_ context.Context, id string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return ErrRecordNotFound
	}
	entry.ExportState = StateSkipped
	entry.LastError = reason
	entry.ErrorCode = string(xerrors.CodePermissionDenied)
	entry.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkFailed 标记导出失败。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code string, lastError string, terminal bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return ErrRecordNotFound
	}
	if terminal {
		entry.ExportState = StateFailed
	} else {
		entry.ExportState = StatePending
	}
	entry.LastError = lastError
	entry.ErrorCode = code
	entry.UpdatedAt = time.Now().Unix()
	return nil
}

// List 返回符合条件的记录。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	results := make([]*Entry, 0, len(m.entries))
	for _, entry := range m.entries {
		if !matchesListFilters(entry, opts) {
			continue
		}
		results = append(results, cloneEntry(entry))
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i].Record, results[j].Record
		if opts.Order == SortByTimestampAsc {
			if a.Timestamp == b.Timestamp {
				return a.ID < b.ID
			}
			return a.Timestamp < b.Timestamp
		}
		if a.Timestamp == b.Timestamp {
			return a.ID < b.ID
		}
		return a.Timestamp > b.Timestamp
	})

	if opts.Offset >= len(results) {
		return nil, nil
	}
	results = results[opts.Offset:]
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Stats 统计符合条件的记录。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	stats := Stats{}
	for _, entry := range m.entries {
		if !matchesListFilters(entry, opts) {
			continue
		}
		stats.Total++
		switch entry.ExportState {
		case StatePending:
			stats.Pending++
		case StateExporting:
			stats.Exporting++
		case StateExported:
			stats.Exported++
		case StateSkipped:
			stats.Skipped++
		case StateFailed:
			stats.Failed++
		}
		if stats.PerPlugin == nil {
			stats.PerPlugin = make(map[string]int)
		}
		stats.PerPlugin[entry.Record.PluginID]++
		ts := entry.Record.Timestamp
		if ts > stats.NewestTimestamp {
			stats.NewestTimestamp = ts
		}
		if stats.OldestTimestamp == 0 || (ts != 0 && ts < stats.OldestTimestamp) {
			stats.OldestTimestamp = ts
		}
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error { return nil }

func matchesListFilters(entry *Entry, opts ListOptions) bool {
	if len(opts.Plugins) > 0 {
		matched := false
		for _, id := range opts.Plugins {
			if entry.Record.PluginID == id {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(opts.States) > 0 {
		matched := false
		for _, state := range opts.States {
			if entry.ExportState == state {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if opts.SinceMillis > 0 && entry.Record.Timestamp < opts.SinceMillis {
		return false
	}
	if opts.UntilMillis > 0 && entry.Record.Timestamp > opts.UntilMillis {
		return false
	}
	return true
}

var _ Store = (*MemoryStore)(nil)
