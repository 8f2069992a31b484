package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "habitd.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
	if cfg.Storage.Records.Driver != "memory" || cfg.Storage.Prefs.Driver != "memory" {
		t.Errorf("storage drivers = %q/%q", cfg.Storage.Records.Driver, cfg.Storage.Prefs.Driver)
	}
	if cfg.Queue.Driver != "memory" || cfg.Queue.Buffer != 256 {
		t.Errorf("queue = %+v", cfg.Queue)
	}
	if cfg.Export.Dir != filepath.Join(dir, "exports") {
		t.Errorf("export dir = %q", cfg.Export.Dir)
	}
	if cfg.Export.Workers != 4 || cfg.Export.MaxRetries != 3 {
		t.Errorf("export = %+v", cfg.Export)
	}
	if cfg.Logging.RedactValues == nil || !*cfg.Logging.RedactValues {
		t.Error("value redaction should default on")
	}
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "habitd.json")
	raw := `{
		"server": {"address": ":9100"},
		"logging": {"level": "debug", "redact_values": false},
		"storage": {
			"records": {"driver": "mysql", "dsn": "habit:habit@tcp(localhost:3306)/habitkit"},
			"prefs": {"driver": "redis", "address": "localhost:6379"}
		},
		"queue": {"driver": "rabbitmq", "rabbitmq": {"url": "amqp://localhost", "prefetch": 8}},
		"export": {"dir": "out", "workers": 2, "max_retries": 5},
		"plugins": {"manifest_path": "plugins.yaml"}
	}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":9100" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
	if *cfg.Logging.RedactValues {
		t.Error("explicit redact_values=false should survive defaulting")
	}
	if cfg.Storage.Records.Driver != "mysql" || cfg.Queue.Driver != "rabbitmq" {
		t.Errorf("drivers = %q/%q", cfg.Storage.Records.Driver, cfg.Queue.Driver)
	}
	if cfg.Export.Dir != filepath.Join(dir, "out") {
		t.Errorf("export dir = %q", cfg.Export.Dir)
	}
	if cfg.Plugins.ManifestPath != filepath.Join(dir, "plugins.yaml") {
		t.Errorf("manifest path = %q", cfg.Plugins.ManifestPath)
	}
	if cfg.Export.Workers != 2 || cfg.Export.MaxRetries != 5 {
		t.Errorf("export = %+v", cfg.Export)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("missing file must error")
	}
	if _, err := Load(""); err == nil {
		t.Fatal("empty path must error")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default("/var/lib/habitkit")
	if cfg.Export.Dir != filepath.Join("/var/lib/habitkit", "exports") {
		t.Errorf("export dir = %q", cfg.Export.Dir)
	}
	if cfg.Storage.Records.Driver != "memory" {
		t.Errorf("records driver = %q", cfg.Storage.Records.Driver)
	}
}
