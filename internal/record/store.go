package record

import "context"

// Store 抽象了记录与导出状态的持久化接口。
type Store interface {
	// Create 插入新记录，记录 ID 冲突时返回 ErrRecordConflict。
	Create(ctx context.Context, entry *Entry) error
	// Get 返回记录信封。
	Get(ctx context.Context, id string) (*Entry, error)
	// Claim 将记录置为导出中并递增尝试次数。
	Claim(ctx context.Context, id string) (*Entry, error)
	// MarkExported 记录导出成功与产物路径。
	MarkExported(ctx context.Context, id string, exportPath string) error
	// MarkSkipped 标记记录因缺少导出能力而被跳过。
	MarkSkipped(ctx context.Context, id string, reason string) error
	// MarkFailed 标记导出失败。terminal 为 true 时不再重试。
	MarkFailed(ctx context.Context, id string, code string, lastError string, terminal bool) error
	// List 返回符合过滤条件的记录。
	List(ctx context.Context, opts ListOptions) ([]*Entry, error)
	// Stats 统计符合过滤条件的记录。
	Stats(ctx context.Context, opts ListOptions) (Stats, error)
	Close() error
}
