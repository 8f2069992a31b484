// Package habitkit is a thin HTTP client for the habitd REST API. It mirrors
// the wire types instead of importing the daemon's internals, so it can be
// vendored into companion apps on its own.
package habitkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the habitd REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// PluginSummary is one entry of the plugin catalog.
type PluginSummary struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Version      string   `json:"version"`
	Category     string   `json:"category"`
	Trust        string   `json:"trust"`
	State        string   `json:"state"`
	Capabilities []string `json:"capabilities"`
}

// InputStage mirrors one quick-add input declaration.
type InputStage struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Kind     string         `json:"kind"`
	Required bool           `json:"required,omitempty"`
	Min      float64        `json:"min,omitempty"`
	Max      float64        `json:"max,omitempty"`
	Step     float64        `json:"step,omitempty"`
	Unit     string         `json:"unit,omitempty"`
	Options  []ChoiceOption `json:"options,omitempty"`
	Presets  []SliderPreset `json:"presets,omitempty"`
	Inputs   []InputStage   `json:"inputs,omitempty"`
}

// ChoiceOption is one selectable entry of a choice, carousel or scale stage.
type ChoiceOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Icon  string `json:"icon,omitempty"`
}

// SliderPreset is one quick-pick value of a slider stage. A negative value is
// the "Custom" sentinel that opens a free numeric input.
type SliderPreset struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// QuickAddSchema is the staged input flow of one plugin.
type QuickAddSchema struct {
	Title  string       `json:"title"`
	Stages []InputStage `json:"stages"`
}

// DataRecord is the stored form of one logged entry.
type DataRecord struct {
	ID        string            `json:"id"`
	PluginID  string            `json:"plugin_id"`
	Timestamp int64             `json:"timestamp"`
	Type      string            `json:"type"`
	Values    map[string]any    `json:"values"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Source    string            `json:"source"`
	Version   int               `json:"version"`
}

// QuickAddResult is the response to a successful quick-add submission.
type QuickAddResult struct {
	Record      *DataRecord `json:"record"`
	ExportState string      `json:"export_state"`
	Warning     string      `json:"warning,omitempty"`
}

// RecordEntry is a record plus its export pipeline state.
type RecordEntry struct {
	Record      *DataRecord `json:"record"`
	ExportState string      `json:"export_state"`
	Attempts    int         `json:"attempts"`
	LastError   string      `json:"last_error,omitempty"`
	ExportPath  string      `json:"export_path,omitempty"`
}

// Stats aggregates stored records by export state and plugin.
type Stats struct {
	Total     int            `json:"total"`
	Pending   int            `json:"pending"`
	Exporting int            `json:"exporting"`
	Exported  int            `json:"exported"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	PerPlugin map[string]int `json:"per_plugin,omitempty"`
}

// Grant is one persisted capability grant.
type Grant struct {
	PluginID   string `json:"pluginId"`
	Capability string `json:"capability"`
	GrantedBy  string `json:"grantedBy"`
	GrantedAt  int64  `json:"grantedAt"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("habitkit api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("habitkit api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the habitd API. When httpClient is nil,
// a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Plugins fetches the plugin catalog.
func (c *Client) Plugins(ctx context.Context) ([]PluginSummary, error) {
	var out []PluginSummary
	if err := c.get(ctx, "/api/v1/plugins", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Schema fetches one plugin's quick-add flow.
func (c *Client) Schema(ctx context.Context, pluginID string) (QuickAddSchema, error) {
	var out QuickAddSchema
	err := c.get(ctx, "/api/v1/plugins/"+url.PathEscape(pluginID)+"/schema", &out)
	return out, err
}

// QuickAdd submits one complete set of field values for a plugin.
func (c *Client) QuickAdd(ctx context.Context, pluginID string, values map[string]any) (QuickAddResult, error) {
	var out QuickAddResult
	payload := struct {
		Values map[string]any `json:"values"`
	}{Values: values}
	err := c.post(ctx, "/api/v1/plugins/"+url.PathEscape(pluginID)+"/entries", payload, &out)
	return out, err
}

// RecordQuery filters the record listing.
type RecordQuery struct {
	Plugin string
	State  string
	Limit  int
	Offset int
}

// Records lists stored records, newest first.
func (c *Client) Records(ctx context.Context, q RecordQuery) ([]RecordEntry, error) {
	params := url.Values{}
	if q.Plugin != "" {
		params.Set("plugin", q.Plugin)
	}
	if q.State != "" {
		params.Set("state", q.State)
	}
	if q.Limit > 0 {
		params.Set("limit", fmt.Sprint(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", fmt.Sprint(q.Offset))
	}
	endpoint := "/api/v1/records"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var out []RecordEntry
	if err := c.get(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Record fetches one record by id.
func (c *Client) Record(ctx context.Context, id string) (RecordEntry, error) {
	var out RecordEntry
	err := c.get(ctx, "/api/v1/records/"+url.PathEscape(id), &out)
	return out, err
}

// Stats fetches aggregate record counts.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	err := c.get(ctx, "/api/v1/records/stats", &out)
	return out, err
}

// Grant grants capabilities to a plugin on the user's behalf.
func (c *Client) Grant(ctx context.Context, pluginID string, capabilities []string, grantedBy string) error {
	payload := struct {
		PluginID     string   `json:"plugin_id"`
		Capabilities []string `json:"capabilities"`
		GrantedBy    string   `json:"granted_by"`
	}{PluginID: pluginID, Capabilities: capabilities, GrantedBy: grantedBy}
	return c.post(ctx, "/api/v1/permissions/grant", payload, nil)
}

// Revoke removes one capability from a plugin.
func (c *Client) Revoke(ctx context.Context, pluginID, capability string) error {
	payload := struct {
		PluginID   string `json:"plugin_id"`
		Capability string `json:"capability"`
	}{PluginID: pluginID, Capability: capability}
	return c.post(ctx, "/api/v1/permissions/revoke", payload, nil)
}

// Grants lists the explicit grants stored for a plugin.
func (c *Client) Grants(ctx context.Context, pluginID string) ([]Grant, error) {
	var out []Grant
	if err := c.get(ctx, "/api/v1/permissions/"+url.PathEscape(pluginID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExportCSV downloads the full CSV export for a plugin.
func (c *Client) ExportCSV(ctx context.Context, pluginID string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/export/"+url.PathEscape(pluginID)+".csv", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, readAPIError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return readAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read error response: %w", err)
	}
	if len(data) > 0 {
		_ = json.Unmarshal(data, apiErr)
	}
	if apiErr.Message == "" {
		apiErr.Message = string(bytes.TrimSpace(data))
	}
	return apiErr
}
