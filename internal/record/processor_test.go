package record

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"habitkit/pkg/plugin"
)

type fakeExporter struct {
	exported atomic.Int32
	failN    int32
}

func (f *fakeExporter) Export(_ context.Context, rec *plugin.DataRecord) (string, error) {
	if f.failN > 0 && f.exported.Load() < f.failN {
		f.exported.Add(1)
		return "", errors.New("disk full")
	}
	f.exported.Add(1)
	return "/export/" + rec.PluginID + ".csv", nil
}

type allowAll struct{}

func (allowAll) HasPermission(string, plugin.Capability) bool { return true }

type denyAll struct{}

func (denyAll) HasPermission(string, plugin.Capability) bool { return false }

func TestProcessorExportsConcurrently(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	exporter := &fakeExporter{}
	service := NewService(store, queue, 3)
	processor := NewProcessor(exporter, store, queue, queue, allowAll{}, WithWorkerCount(8))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	total := 100
	for i := 0; i < total; i++ {
		rec := &plugin.DataRecord{
			ID:       fmt.Sprintf("r%d", i),
			PluginID: "water",
			Values:   map[string]any{"amount": 250.0},
			Source:   plugin.SourceManual,
			Version:  1,
		}
		if _, err := service.Submit(ctx, rec); err != nil {
			t.Fatalf("提交记录失败: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		stats, err := store.Stats(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("统计失败: %v", err)
		}
		if stats.Exported >= total {
			cancel()
			return
		}
		select {
		case <-deadline:
			t.Fatalf("导出未及时完成，已导出 %d", stats.Exported)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestProcessorSkipsWithoutExportCapability(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	exporter := &fakeExporter{}
	processor := NewProcessor(exporter, store, nil, nil, denyAll{})

	_ = store.Create(ctx, newEntry("r1", "mood", 1000))
	if err := processor.handle(ctx, "r1"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	entry, _ := store.Get(ctx, "r1")
	if entry.ExportState != StateSkipped {
		t.Fatalf("expected skipped, got %s", entry.ExportState)
	}
	if exporter.exported.Load() != 0 {
		t.Fatal("exporter must not run for an unpermitted plugin")
	}
	// 记录本身保留，只是不导出。
	if entry.Record.Values["amount"] != 250.0 {
		t.Fatal("skipped record lost its values")
	}
}

func TestProcessorRetriesThenSucceeds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	exporter := &fakeExporter{failN: 2}
	service := NewService(store, queue, 3)
	processor := NewProcessor(exporter, store, queue, queue, allowAll{})

	go func() { _ = processor.Start(ctx) }()

	rec := &plugin.DataRecord{ID: "r1", PluginID: "water", Values: map[string]any{}, Source: plugin.SourceManual, Version: 1}
	if _, err := service.Submit(ctx, rec); err != nil {
		t.Fatalf("提交记录失败: %v", err)
	}
	entry, err := service.WaitUntilSettled(ctx, "r1", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("等待导出结果失败: %v", err)
	}
	if entry.ExportState != StateExported {
		t.Fatalf("expected exported after retries, got %s (%s)", entry.ExportState, entry.LastError)
	}
	if entry.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", entry.Attempts)
	}
}

func TestProcessorMarksTerminalFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	exporter := &fakeExporter{failN: 99}
	service := NewService(store, queue, 2)
	processor := NewProcessor(exporter, store, queue, queue, allowAll{})

	go func() { _ = processor.Start(ctx) }()

	rec := &plugin.DataRecord{ID: "r1", PluginID: "water", Values: map[string]any{}, Source: plugin.SourceManual, Version: 1}
	if _, err := service.Submit(ctx, rec); err != nil {
		t.Fatalf("提交记录失败: %v", err)
	}
	entry, err := service.WaitUntilSettled(ctx, "r1", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("等待导出结果失败: %v", err)
	}
	if entry.ExportState != StateFailed {
		t.Fatalf("expected terminal failure, got %s", entry.ExportState)
	}
	if entry.LastError == "" || entry.ErrorCode == "" {
		t.Fatalf("terminal failure should record the error: %+v", entry)
	}
}

func TestServiceSubmitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	service := NewService(store, queue, 3)

	rec := &plugin.DataRecord{ID: "r1", PluginID: "water", Values: map[string]any{}, Source: plugin.SourceManual, Version: 1}
	first, err := service.Submit(ctx, rec)
	if err != nil {
		t.Fatalf("提交记录失败: %v", err)
	}
	second, err := service.Submit(ctx, rec)
	if err != nil {
		t.Fatalf("重复提交失败: %v", err)
	}
	if first.Record.ID != second.Record.ID {
		t.Fatal("duplicate submit must return the existing entry")
	}
	stats, _ := store.Stats(ctx, ListOptions{})
	if stats.Total != 1 {
		t.Fatalf("expected a single stored entry, got %d", stats.Total)
	}
}
