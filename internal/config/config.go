package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Config 描述 habitd 启动阶段需要加载的全部配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Queue    QueueConfig    `json:"queue"`
	Export   ExportConfig   `json:"export"`
	Plugins  PluginsConfig  `json:"plugins"`
	Alerting AlertingConfig `json:"alerting"`
}

// ServerConfig 控制 HTTP API 的监听地址。
type ServerConfig struct {
	Address string `json:"address"`
}

// LoggingConfig 映射到 logger.Config。RedactValues 默认开启:
// 记录的是用户健康数据,不应出现在日志里。
type LoggingConfig struct {
	Level        string      `json:"level"`
	Format       string      `json:"format"`
	Outputs      []string    `json:"outputs"`
	RedactValues *bool       `json:"redact_values"`
	Audit        AuditConfig `json:"audit"`
}

// AuditConfig 控制审计日志的落盘与轮转。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// StorageConfig 汇总记录存储与偏好存储两个后端。
type StorageConfig struct {
	Records RecordStoreConfig `json:"records"`
	Prefs   PrefsStoreConfig  `json:"prefs"`
}

// RecordStoreConfig 支持 memory 与 mysql 两种驱动。
type RecordStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// PrefsStoreConfig 支持 memory 与 redis 两种驱动。
type PrefsStoreConfig struct {
	Driver   string `json:"driver"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// QueueConfig 选择导出队列的驱动:memory、redis 或 rabbitmq。
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Buffer   int            `json:"buffer"`
	Redis    RedisSettings  `json:"redis"`
	RabbitMQ RabbitSettings `json:"rabbitmq"`
}

// RedisSettings 描述 Redis 队列的连接参数。
type RedisSettings struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Queue    string `json:"queue"`
}

// RabbitSettings 描述 RabbitMQ 队列的连接参数。
type RabbitSettings struct {
	URL      string `json:"url"`
	Queue    string `json:"queue"`
	Prefetch int    `json:"prefetch"`
}

// ExportConfig 控制 CSV 导出目录与后台处理参数。
type ExportConfig struct {
	Dir        string `json:"dir"`
	Workers    int    `json:"workers"`
	MaxRetries int    `json:"max_retries"`
}

// PluginsConfig 指向插件启用清单(YAML)。留空则启用全部内置插件。
type PluginsConfig struct {
	ManifestPath string `json:"manifest_path"`
}

// AlertingConfig 控制导出失败的告警通道。
type AlertingConfig struct {
	Email EmailAlertConfig `json:"email"`
	Slack SlackAlertConfig `json:"slack"`
}

// EmailAlertConfig 只保留收件人列表,发信实现由进程装配。
type EmailAlertConfig struct {
	Enabled bool     `json:"enabled"`
	To      []string `json:"to"`
}

// SlackAlertConfig 指定告警推送的频道。
type SlackAlertConfig struct {
	Enabled   bool   `json:"enabled"`
	ChannelID string `json:"channel_id"`
}

// Load 解析指定路径的 JSON 配置文件并补齐默认值。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// Default 返回纯内存运行的默认配置,数据落在 baseDir 下。
func Default(baseDir string) *Config {
	cfg := &Config{}
	cfg.applyDefaults(baseDir)
	return cfg
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if len(c.Logging.Outputs) == 0 {
		c.Logging.Outputs = []string{"stdout"}
	}
	if c.Logging.RedactValues == nil {
		redact := true
		c.Logging.RedactValues = &redact
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path != "" && !filepath.IsAbs(c.Logging.Audit.Path) {
		c.Logging.Audit.Path = filepath.Join(baseDir, c.Logging.Audit.Path)
	}

	if c.Storage.Records.Driver == "" {
		c.Storage.Records.Driver = "memory"
	}
	if c.Storage.Prefs.Driver == "" {
		c.Storage.Prefs.Driver = "memory"
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Buffer <= 0 {
		c.Queue.Buffer = 256
	}

	if c.Export.Dir == "" {
		c.Export.Dir = filepath.Join(baseDir, "exports")
	} else if !filepath.IsAbs(c.Export.Dir) {
		c.Export.Dir = filepath.Join(baseDir, c.Export.Dir)
	}
	if c.Export.Workers <= 0 {
		c.Export.Workers = 4
	}
	if c.Export.MaxRetries <= 0 {
		c.Export.MaxRetries = 3
	}

	if c.Plugins.ManifestPath != "" && !filepath.IsAbs(c.Plugins.ManifestPath) {
		c.Plugins.ManifestPath = filepath.Join(baseDir, c.Plugins.ManifestPath)
	}
}
