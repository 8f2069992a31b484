package habitkit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newStubServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/plugins", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]PluginSummary{
			{ID: "water", Name: "Water", Trust: "official", State: "active"},
		})
	})
	mux.HandleFunc("/api/v1/plugins/water/schema", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(QuickAddSchema{
			Title: "Log water",
			Stages: []InputStage{
				{ID: "amount", Kind: "slider", Required: true, Min: 0, Max: 3000},
			},
		})
	})
	mux.HandleFunc("/api/v1/plugins/water/entries", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Values map[string]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if amount, _ := req.Values["amount"].(float64); amount > 2000 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "Maximum single entry is 2000ml",
				"code":  "VALIDATION_FAILURE",
			})
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(QuickAddResult{
			Record:      &DataRecord{ID: "rec-1", PluginID: "water"},
			ExportState: "pending",
		})
	})
	mux.HandleFunc("/api/v1/records/stats", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(Stats{Total: 1, Pending: 1})
	})
	return httptest.NewServer(mux)
}

func TestQuickAddRoundTrip(t *testing.T) {
	srv := newStubServer(t)
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	ctx := context.Background()

	plugins, err := client.Plugins(ctx)
	if err != nil {
		t.Fatalf("Plugins: %v", err)
	}
	if len(plugins) != 1 || plugins[0].ID != "water" {
		t.Fatalf("plugins = %+v", plugins)
	}

	schema, err := client.Schema(ctx, "water")
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	if len(schema.Stages) != 1 || schema.Stages[0].ID != "amount" {
		t.Fatalf("schema = %+v", schema)
	}

	result, err := client.QuickAdd(ctx, "water", map[string]any{"amount": 500})
	if err != nil {
		t.Fatalf("QuickAdd: %v", err)
	}
	if result.Record == nil || result.Record.ID != "rec-1" || result.ExportState != "pending" {
		t.Fatalf("result = %+v", result)
	}

	stats, err := client.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestQuickAddSurfacesAPIError(t *testing.T) {
	srv := newStubServer(t)
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.QuickAdd(context.Background(), "water", map[string]any{"amount": 2500})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", apiErr.StatusCode)
	}
	if apiErr.Message != "Maximum single entry is 2000ml" || apiErr.Code != "VALIDATION_FAILURE" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestInvalidBaseURL(t *testing.T) {
	if _, err := NewClient("://bad", nil); err == nil {
		t.Fatal("expected error for invalid base url")
	}
}
