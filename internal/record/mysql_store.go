package record

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "habitkit/internal/errors"
	"habitkit/pkg/plugin"
)

// MySQLStore 使用 MySQL 持久化记录与导出状态。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建 MySQLStore 并初始化表结构。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}
	store := &MySQLStore{db: db}
	if err := store.runMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Create 插入新记录。
func (s *MySQLStore) Create(ctx context.Context, entry *Entry) error {
	if entry == nil || entry.Record == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "record 不能为空")
	}
	rec := entry.Record
	if strings.TrimSpace(rec.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "记录 ID 不能为空")
	}
	values, err := json.Marshal(rec.Values)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码记录 values 失败")
	}
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码记录 metadata 失败")
	}
	state := entry.ExportState
	if state == "" {
		state = StatePending
	}
	now := time.Now().Unix()

	const stmt = `INSERT INTO habit_records
        (id, plugin_id, record_timestamp, record_type, field_values, metadata, source, version,
         export_state, attempts, max_retries, last_error, error_code, export_path, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', '', '', ?, ?)`

	_, err = s.db.ExecContext(ctx, stmt,
		rec.ID, rec.PluginID, rec.Timestamp, rec.Type, string(values), string(metadata),
		rec.Source, rec.Version, string(state), entry.Attempts, entry.MaxRetries, now, now,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrRecordConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入记录失败")
	}
	return nil
}

// Get 返回记录信封。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Entry, error) {
	const stmt = selectColumns + ` WHERE id = ?`
	row := s.db.QueryRowContext(ctx, stmt, id)
	entry, err := scanEntry(row)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询记录失败")
	}
	return entry, nil
}

// Claim 以乐观更新的方式将记录置为导出中。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Entry, error) {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch entry.ExportState {
	case StateExported, StateSkipped:
		return entry, ErrRecordExported
	case StateExporting:
		return entry, ErrRecordConflict
	}
	if entry.Attempts >= entry.MaxRetries {
		return entry, ErrRecordExhausted
	}

	const stmt = `UPDATE habit_records
        SET export_state = ?, attempts = attempts + 1, last_error = '', error_code = '', updated_at = ?
        WHERE id = ? AND export_state = ? AND attempts = ?`
	res, err := s.db.ExecContext(ctx, stmt,
		string(StateExporting), time.Now().Unix(), id, string(entry.ExportState), entry.Attempts)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "领取记录失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "领取记录失败")
	}
	if affected == 0 {
		return entry, ErrRecordConflict
	}
	entry.ExportState = StateExporting
	entry.Attempts++
	entry.LastError = ""
	entry.ErrorCode = ""
	return entry, nil
}

// MarkExported 记录导出成功。
func (s *MySQLStore) MarkExported(ctx context.Context, id string, exportPath string) error {
	const stmt = `UPDATE habit_records
        SET export_state = ?, export_path = ?, last_error = '', error_code = '', updated_at = ?
        WHERE id = ?`
	return s.exec(ctx, stmt, string(StateExported), exportPath, time.Now().Unix(), id)
}

// MarkSkipped 标记记录被跳过。
func (s *MySQLStore) MarkSkipped(ctx context.Context, id string, reason string) error {
	const stmt = `UPDATE habit_records
        SET export_state = ?, last_error = ?, error_code = ?, updated_at = ?
        WHERE id = ?`
	return s.exec(ctx, stmt, string(StateSkipped), reason, string(xerrors.CodePermissionDenied), time.Now().Unix(), id)
}

// MarkFailed 标记导出失败。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code string, lastError string, terminal bool) error {
	state := StatePending
	if terminal {
		state = StateFailed
	}
	const stmt = `UPDATE habit_records
        SET export_state = ?, last_error = ?, error_code = ?, updated_at = ?
        WHERE id = ?`
	return s.exec(ctx, stmt, string(state), lastError, code, time.Now().Unix(), id)
}

func (s *MySQLStore) exec(ctx context.Context, stmt string, args ...any) error {
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新记录失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新记录失败")
	}
	if affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// List 返回符合条件的记录。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Entry, error) {
	opts.applyDefaults()

	where, args := buildWhere(opts)
	order := "record_timestamp DESC, id ASC"
	if opts.Order == SortByTimestampAsc {
		order = "record_timestamp ASC, id ASC"
	}
	stmt := fmt.Sprintf("%s %s ORDER BY %s LIMIT ? OFFSET ?", selectColumns, where, order)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询记录列表失败")
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析记录失败")
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历记录失败")
	}
	return entries, nil
}

// Stats 统计符合条件的记录。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (Stats, error) {
	opts.applyDefaults()

	where, args := buildWhere(opts)
	stmt := fmt.Sprintf(`SELECT plugin_id, export_state, COUNT(*),
        MIN(record_timestamp), MAX(record_timestamp)
        FROM habit_records %s GROUP BY plugin_id, export_state`, where)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计记录失败")
	}
	defer rows.Close()

	stats := Stats{}
	for rows.Next() {
		var pluginID, state string
		var count int
		var oldest, newest sql.NullInt64
		if err := rows.Scan(&pluginID, &state, &count, &oldest, &newest); err != nil {
			return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析统计结果失败")
		}
		stats.Total += count
		switch ExportState(state) {
		case StatePending:
			stats.Pending += count
		case StateExporting:
			stats.Exporting += count
		case StateExported:
			stats.Exported += count
		case StateSkipped:
			stats.Skipped += count
		case StateFailed:
			stats.Failed += count
		}
		if stats.PerPlugin == nil {
			stats.PerPlugin = make(map[string]int)
		}
		stats.PerPlugin[pluginID] += count
		if newest.Valid && newest.Int64 > stats.NewestTimestamp {
			stats.NewestTimestamp = newest.Int64
		}
		if oldest.Valid && (stats.OldestTimestamp == 0 || oldest.Int64 < stats.OldestTimestamp) {
			stats.OldestTimestamp = oldest.Int64
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历统计结果失败")
	}
	return stats, nil
}

// Close 关闭数据库连接。
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

const selectColumns = `SELECT id, plugin_id, record_timestamp, record_type, field_values, metadata,
    source, version, export_state, attempts, max_retries, last_error, error_code, export_path,
    created_at, updated_at FROM habit_records`

func buildWhere(opts ListOptions) (string, []any) {
	var clauses []string
	var args []any
	if len(opts.Plugins) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(opts.Plugins)), ",")
		clauses = append(clauses, "plugin_id IN ("+placeholders+")")
		for _, id := range opts.Plugins {
			args = append(args, id)
		}
	}
	if len(opts.States) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(opts.States)), ",")
		clauses = append(clauses, "export_state IN ("+placeholders+")")
		for _, state := range opts.States {
			args = append(args, string(state))
		}
	}
	if opts.SinceMillis > 0 {
		clauses = append(clauses, "record_timestamp >= ?")
		args = append(args, opts.SinceMillis)
	}
	if opts.UntilMillis > 0 {
		clauses = append(clauses, "record_timestamp <= ?")
		args = append(args, opts.UntilMillis)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		rec       plugin.DataRecord
		values    string
		metadata  sql.NullString
		state     string
		lastError sql.NullString
		errorCode sql.NullString
		path      sql.NullString
		entry     Entry
	)
	err := row.Scan(&rec.ID, &rec.PluginID, &rec.Timestamp, &rec.Type, &values, &metadata,
		&rec.Source, &rec.Version, &state, &entry.Attempts, &entry.MaxRetries,
		&lastError, &errorCode, &path, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(values), &rec.Values); err != nil {
		return nil, fmt.Errorf("解析记录 values 失败: %w", err)
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("解析记录 metadata 失败: %w", err)
		}
	}
	entry.Record = &rec
	entry.ExportState = ExportState(state)
	entry.LastError = lastError.String
	entry.ErrorCode = errorCode.String
	entry.ExportPath = path.String
	return &entry, nil
}

var _ Store = (*MySQLStore)(nil)
