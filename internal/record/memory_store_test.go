package record

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"habitkit/pkg/plugin"
)

func newEntry(id, pluginID string, ts int64) *Entry {
	return &Entry{
		Record: &plugin.DataRecord{
			ID:        id,
			PluginID:  pluginID,
			Timestamp: ts,
			Type:      pluginID + "_entry",
			Values:    map[string]any{"amount": 250.0},
			Source:    plugin.SourceManual,
			Version:   1,
		},
		ExportState: StatePending,
		MaxRetries:  3,
	}
}

func TestMemoryStoreCreateAndConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	entry := newEntry("r1", "water", 1000)
	if err := store.Create(ctx, entry); err != nil {
		t.Fatalf("创建记录失败: %v", err)
	}
	if err := store.Create(ctx, newEntry("r1", "water", 1000)); !errors.Is(err, ErrRecordConflict) {
		t.Fatalf("expected ErrRecordConflict, got %v", err)
	}

	got, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("读取记录失败: %v", err)
	}
	if got.Record.PluginID != "water" || got.ExportState != StatePending {
		t.Fatalf("unexpected entry: %+v", got)
	}
	// Clone on read: mutating the result must not touch the store.
	got.Record.Values["amount"] = 999.0
	again, _ := store.Get(ctx, "r1")
	if again.Record.Values["amount"] != 250.0 {
		t.Fatal("store state leaked through a returned clone")
	}
}

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Create(ctx, newEntry("r1", "water", 1000))

	claimed, err := store.Claim(ctx, "r1")
	if err != nil {
		t.Fatalf("领取记录失败: %v", err)
	}
	if claimed.ExportState != StateExporting || claimed.Attempts != 1 {
		t.Fatalf("unexpected claim result: %+v", claimed)
	}
	if _, err := store.Claim(ctx, "r1"); !errors.Is(err, ErrRecordConflict) {
		t.Fatalf("expected conflict on double claim, got %v", err)
	}
	if err := store.MarkExported(ctx, "r1", "/export/water.csv"); err != nil {
		t.Fatalf("标记导出失败: %v", err)
	}
	if _, err := store.Claim(ctx, "r1"); !errors.Is(err, ErrRecordExported) {
		t.Fatalf("expected ErrRecordExported, got %v", err)
	}
	got, _ := store.Get(ctx, "r1")
	if got.ExportPath != "/export/water.csv" {
		t.Fatalf("export path not stored: %+v", got)
	}
}

func TestMemoryStoreRetriesExhaust(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	entry := newEntry("r1", "water", 1000)
	entry.MaxRetries = 2
	_ = store.Create(ctx, entry)

	for i := 0; i < 2; i++ {
		if _, err := store.Claim(ctx, "r1"); err != nil {
			t.Fatalf("第 %d 次领取失败: %v", i+1, err)
		}
		if err := store.MarkFailed(ctx, "r1", string(CodeRecordExport), "disk full", false); err != nil {
			t.Fatalf("标记失败出错: %v", err)
		}
	}
	if _, err := store.Claim(ctx, "r1"); !errors.Is(err, ErrRecordExhausted) {
		t.Fatalf("expected ErrRecordExhausted, got %v", err)
	}
}

func TestMemoryStoreListFiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for i := 0; i < 5; i++ {
		pluginID := "water"
		if i%2 == 1 {
			pluginID = "mood"
		}
		_ = store.Create(ctx, newEntry(fmt.Sprintf("r%d", i), pluginID, int64(1000+i)))
	}

	water, err := store.List(ctx, ListOptions{Plugins: []string{"water"}})
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(water) != 3 {
		t.Fatalf("expected 3 water entries, got %d", len(water))
	}
	// 默认按时间倒序。
	if water[0].Record.Timestamp != 1004 {
		t.Fatalf("expected newest first, got %d", water[0].Record.Timestamp)
	}

	asc, _ := store.List(ctx, ListOptions{Order: SortByTimestampAsc, SinceMillis: 1002})
	if len(asc) != 3 || asc[0].Record.Timestamp != 1002 {
		t.Fatalf("unexpected ascending window: %+v", asc)
	}

	limited, _ := store.List(ctx, ListOptions{Limit: 2, Offset: 1})
	if len(limited) != 2 || limited[0].Record.Timestamp != 1003 {
		t.Fatalf("unexpected pagination result: %+v", limited)
	}
}

func TestMemoryStoreStats(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Create(ctx, newEntry("r1", "water", 1000))
	_ = store.Create(ctx, newEntry("r2", "mood", 2000))
	_, _ = store.Claim(ctx, "r2")
	_ = store.MarkExported(ctx, "r2", "/export/mood.csv")

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("统计失败: %v", err)
	}
	if stats.Total != 2 || stats.Pending != 1 || stats.Exported != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.PerPlugin["water"] != 1 || stats.PerPlugin["mood"] != 1 {
		t.Fatalf("unexpected per-plugin stats: %+v", stats.PerPlugin)
	}
	if stats.OldestTimestamp != 1000 || stats.NewestTimestamp != 2000 {
		t.Fatalf("unexpected timestamp range: %+v", stats)
	}
}
