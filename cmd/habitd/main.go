package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"habitkit/internal/api"
	"habitkit/internal/config"
	"habitkit/internal/export"
	"habitkit/internal/observability/alerting"
	"habitkit/internal/permission"
	"habitkit/internal/plugins"
	"habitkit/internal/prefs"
	"habitkit/internal/record"
	"habitkit/pkg/logger"
	"habitkit/pkg/plugin"
)

// main 是 habitd 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("habitd 运行失败: %v", err)
	}
}

// lateChecker 解决注册表与权限管理器相互引用的装配顺序问题:
// 注册表先拿到 checker,权限管理器建好后再回填。
type lateChecker struct {
	m *permission.Manager
}

func (c *lateChecker) HasPermission(pluginID string, cap plugin.Capability) bool {
	if c.m == nil {
		return false
	}
	return c.m.HasPermission(pluginID, cap)
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		OutputPaths:  cfg.Logging.Outputs,
		RedactValues: cfg.Logging.RedactValues == nil || *cfg.Logging.RedactValues,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// 偏好存储承载权限授予与撤销的持久化。
	prefsStore, err := buildPrefsStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = prefsStore.Close() }()

	recordStore, err := buildRecordStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = recordStore.Close() }()

	queue, err := buildQueue(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.L().Warn("关闭导出队列失败", slog.String("error", err.Error()))
		}
	}()

	var regCfg *plugin.RegistryConfig
	if cfg.Plugins.ManifestPath != "" {
		loaded, err := plugin.LoadRegistryConfig(cfg.Plugins.ManifestPath)
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		regCfg = &loaded
	}

	checker := &lateChecker{}
	registryOpts := []plugin.RegistryOption{plugin.WithPermissionChecker(checker)}
	if regCfg != nil {
		registryOpts = append(registryOpts, plugin.WithDefaultPolicy(regCfg.Defaults))
	}
	registry := plugin.NewRegistry(registryOpts...)
	perms, err := permission.NewManager(ctx, prefsStore, registry)
	if err != nil {
		return err
	}
	checker.m = perms
	if err := plugins.RegisterEnabled(registry, regCfg); err != nil {
		return err
	}
	for _, p := range registry.List() {
		if err := registry.Enable(ctx, p.ID()); err != nil {
			// 缺授权的插件留在注册态,等用户在设置中授予后再启用。
			logger.L().Warn("插件未启用",
				slog.String("plugin_id", p.ID()),
				slog.String("reason", err.Error()))
		}
	}
	defer func() { _ = registry.DisableAll(context.Background()) }()

	exporter, err := export.NewCSVExporter(cfg.Export.Dir, registry)
	if err != nil {
		return err
	}

	service := record.NewService(recordStore, queue, cfg.Export.MaxRetries)
	processor := record.NewProcessor(exporter, recordStore, queue, queue, perms,
		record.WithWorkerCount(cfg.Export.Workers),
		record.WithProcessorLogger(logger.Named("processor")),
		record.WithAlertDispatcher(buildAlerting(cfg)),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("导出处理器异常退出", slog.String("error", err.Error()))
		}
	}()

	// 仪表盘成员列表与授权记录共用偏好存储。
	dashboard := prefs.NewStringList(prefsStore, "dashboard.plugins")
	server := api.NewServer(cfg.Server.Address, registry, perms, service, dashboard)
	logger.L().Info("habitd 已启动",
		slog.String("address", cfg.Server.Address),
		slog.String("export_dir", cfg.Export.Dir))

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loadConfig 先读 HABITKIT_CONFIG 指向的文件;没有配置文件时
// 退回纯内存的默认配置,方便本地直接起进程。
func loadConfig() (*config.Config, error) {
	path := os.Getenv("HABITKIT_CONFIG")
	if path == "" {
		path = filepath.Join("configs", "habitd.json")
		if _, err := os.Stat(path); err != nil {
			return config.Default("data"), nil
		}
	}
	return config.Load(path)
}

func buildPrefsStore(cfg *config.Config) (prefs.Store, error) {
	switch cfg.Storage.Prefs.Driver {
	case "", "memory":
		return prefs.NewMemoryStore(), nil
	case "redis":
		return prefs.NewRedisStore(prefs.RedisConfig{
			Address:  cfg.Storage.Prefs.Address,
			Password: cfg.Storage.Prefs.Password,
			DB:       cfg.Storage.Prefs.DB,
		})
	default:
		return nil, fmt.Errorf("未知的偏好存储驱动: %s", cfg.Storage.Prefs.Driver)
	}
}

func buildRecordStore(cfg *config.Config) (record.Store, error) {
	switch cfg.Storage.Records.Driver {
	case "", "memory":
		return record.NewMemoryStore(), nil
	case "mysql":
		return record.NewMySQLStore(cfg.Storage.Records.DSN)
	default:
		return nil, fmt.Errorf("未知的记录存储驱动: %s", cfg.Storage.Records.Driver)
	}
}

func buildQueue(cfg *config.Config) (record.Queue, error) {
	switch cfg.Queue.Driver {
	case "", "memory":
		return record.NewMemoryQueue(cfg.Queue.Buffer), nil
	case "redis":
		return record.NewRedisQueue(record.RedisQueueConfig{
			Address:   cfg.Queue.Redis.Address,
			Password:  cfg.Queue.Redis.Password,
			DB:        cfg.Queue.Redis.DB,
			Queue:     cfg.Queue.Redis.Queue,
			BlockWait: 5 * time.Second,
		})
	case "rabbitmq":
		return record.NewRabbitMQQueue(record.RabbitMQConfig{
			URL:      cfg.Queue.RabbitMQ.URL,
			Queue:    cfg.Queue.RabbitMQ.Queue,
			Prefetch: cfg.Queue.RabbitMQ.Prefetch,
			Durable:  true,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}
}

// buildAlerting 组装告警通道。未接入真实 SMTP/Slack 网关时,
// 告警通过日志通道落盘,保证失败事件始终可见。
func buildAlerting(cfg *config.Config) alerting.Dispatcher {
	var notifiers []alerting.Notifier
	if cfg.Alerting.Email.Enabled {
		notifiers = append(notifiers, &alerting.EmailNotifier{
			Sender: logEmailSender{},
			To:     cfg.Alerting.Email.To,
		})
	}
	if cfg.Alerting.Slack.Enabled {
		notifiers = append(notifiers, &alerting.SlackNotifier{
			Sender:    logSlackSender{},
			ChannelID: cfg.Alerting.Slack.ChannelID,
		})
	}
	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewFanout(notifiers...)
}

type logEmailSender struct{}

func (logEmailSender) Send(_ context.Context, subject, content string, to []string) error {
	logger.Named("alert").Warn("email alert",
		slog.String("subject", subject),
		slog.Any("to", to),
		slog.String("content", content))
	return nil
}

type logSlackSender struct{}

func (logSlackSender) Send(_ context.Context, channel, content string) error {
	logger.Named("alert").Warn("slack alert",
		slog.String("channel", channel),
		slog.String("content", content))
	return nil
}
