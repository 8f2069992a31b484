package record

// Stats 聚合了记录的统计信息，供仪表盘与健康检查使用。
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Exporting int `json:"exporting"`
	Exported  int `json:"exported"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	// PerPlugin 按插件统计记录数量。
	PerPlugin map[string]int `json:"per_plugin,omitempty"`
	// OldestTimestamp/NewestTimestamp 为记录时间戳（毫秒）。
	OldestTimestamp int64 `json:"oldest_timestamp,omitempty"`
	NewestTimestamp int64 `json:"newest_timestamp,omitempty"`
}
