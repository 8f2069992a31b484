package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"habitkit/sdk/go/habitkit"
)

// The example runs against a stub server so it works without a live habitd.
// Point the client at a real daemon address to drive one instead.
func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/plugins", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]habitkit.PluginSummary{
			{ID: "water", Name: "Water", Trust: "official", State: "active",
				Capabilities: []string{"collect-data", "export-data"}},
		})
	})
	mux.HandleFunc("/api/v1/plugins/water/entries", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(habitkit.QuickAddResult{
			Record: &habitkit.DataRecord{
				ID:        "rec-demo",
				PluginID:  "water",
				Timestamp: time.Now().UnixMilli(),
				Type:      "water_entry",
				Values:    map[string]any{"amount": 500.0},
			},
			ExportState: "pending",
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := habitkit.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	plugins, err := client.Plugins(ctx)
	if err != nil {
		panic(err)
	}
	for _, p := range plugins {
		fmt.Printf("plugin %s (%s, %s)\n", p.ID, p.Trust, p.State)
	}

	result, err := client.QuickAdd(ctx, "water", map[string]any{"amount": 500})
	if err != nil {
		panic(err)
	}
	fmt.Printf("logged record %s (state=%s)\n", result.Record.ID, result.ExportState)
}
