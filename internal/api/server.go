package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	xerrors "habitkit/internal/errors"
	"habitkit/internal/export"
	"habitkit/internal/observability/metrics"
	"habitkit/internal/permission"
	"habitkit/internal/prefs"
	"habitkit/internal/record"
	"habitkit/pkg/quickadd"

	"habitkit/pkg/plugin"
)

// Server 暴露 REST 接口:插件目录、快速记录、记录查询、权限管理、
// 仪表盘成员维护与 CSV 下载。
type Server struct {
	addr      string
	registry  *plugin.Registry
	perms     *permission.Manager
	records   *record.Service
	dashboard *prefs.StringList
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, registry *plugin.Registry, perms *permission.Manager, records *record.Service, dashboard *prefs.StringList) *Server {
	return &Server{addr: addr, registry: registry, perms: perms, records: records, dashboard: dashboard}
}

// Handler 组装全部路由,便于测试时直接挂到 httptest。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/v1/plugins", s.instrument("plugins", s.handleListPlugins))
	mux.HandleFunc("GET /api/v1/plugins/{id}/schema", s.instrument("plugin_schema", s.handleSchema))
	mux.HandleFunc("POST /api/v1/plugins/{id}/entries", s.instrument("quick_add", s.handleQuickAdd))
	mux.HandleFunc("GET /api/v1/records", s.instrument("records", s.handleListRecords))
	mux.HandleFunc("GET /api/v1/records/stats", s.instrument("record_stats", s.handleRecordStats))
	mux.HandleFunc("GET /api/v1/records/{id}", s.instrument("record_detail", s.handleGetRecord))
	mux.HandleFunc("POST /api/v1/permissions/grant", s.instrument("permission_grant", s.handleGrant))
	mux.HandleFunc("POST /api/v1/permissions/revoke", s.instrument("permission_revoke", s.handleRevoke))
	mux.HandleFunc("GET /api/v1/permissions/{id}", s.instrument("permission_list", s.handleGrants))
	mux.HandleFunc("GET /api/v1/export/{id}", s.instrument("export_download", s.handleExportDownload))
	mux.HandleFunc("GET /api/v1/dashboard", s.instrument("dashboard", s.handleDashboard))
	mux.HandleFunc("PUT /api/v1/dashboard/{id}", s.instrument("dashboard_add", s.handleDashboardAdd))
	mux.HandleFunc("DELETE /api/v1/dashboard/{id}", s.instrument("dashboard_remove", s.handleDashboardRemove))
	return mux
}

// Start 启动 HTTP 服务,直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument 为每个处理器记录请求量与耗时指标。
func (s *Server) instrument(name string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		fn(rec, r)
		metrics.ObserveHTTPRequest(name, r.Method, rec.status, time.Since(start))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type pluginSummary struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Version     string             `json:"version"`
	Category    string             `json:"category"`
	Trust       plugin.TrustLevel  `json:"trust"`
	State       plugin.State       `json:"state"`
	Caps        []plugin.Capability `json:"capabilities"`
}

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	var out []pluginSummary
	for _, p := range s.registry.List() {
		state, err := s.registry.State(p.ID())
		if err != nil {
			continue
		}
		meta := p.Metadata()
		out = append(out, pluginSummary{
			ID:          p.ID(),
			Name:        meta.Name,
			Description: meta.Description,
			Version:     meta.Version,
			Category:    meta.Category,
			Trust:       p.TrustLevel(),
			State:       state,
			Caps:        p.Manifest().Capabilities,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	p, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !p.SupportsManualEntry() {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "插件不支持手动记录"))
		return
	}
	writeJSON(w, http.StatusOK, p.QuickAddSchema())
}

type quickAddRequest struct {
	Values map[string]any `json:"values"`
}

type quickAddResponse struct {
	Record      *plugin.DataRecord `json:"record"`
	ExportState record.ExportState `json:"export_state"`
	Warning     string             `json:"warning,omitempty"`
}

// handleQuickAdd 以一次提交完成整个快速记录流程:校验采集权限、
// 启动会话、逐项填值并保存,最后把生成的记录交给导出管道。
func (s *Server) handleQuickAdd(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.perms.HasPermission(id, plugin.CapabilityCollectData) {
		metrics.ObserveQuickAdd(id, metrics.OutcomePermissionDenied)
		writeError(w, fmt.Errorf("%w: plugin %s lacks %s",
			plugin.ErrPermissionDenied, id, plugin.CapabilityCollectData))
		return
	}

	var req quickAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.ObserveQuickAdd(id, metrics.OutcomeMalformed)
		writeError(w, xerrors.New(xerrors.CodeMalformedInput, "请求体解析失败"))
		return
	}

	p, release, err := s.registry.BeginCollection(id)
	if err != nil {
		writeError(w, err)
		return
	}

	sess, err := quickadd.NewSession(p, quickadd.WithRelease(release))
	if err != nil {
		release()
		writeError(w, err)
		return
	}

	if err := sess.Submit(req.Values); err != nil {
		sess.Cancel()
		var vErr *quickadd.ValidationFailedError
		if errors.As(err, &vErr) {
			metrics.ObserveQuickAdd(id, metrics.OutcomeValidationFailed)
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": vErr.Result.Message,
				"code":  string(xerrors.CodeValidationFailure),
			})
			return
		}
		metrics.ObserveQuickAdd(id, metrics.OutcomeMalformed)
		writeError(w, err)
		return
	}

	entry, err := s.records.Submit(r.Context(), sess.Record())
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.ObserveQuickAdd(id, metrics.OutcomeSaved)
	writeJSON(w, http.StatusCreated, quickAddResponse{
		Record:      entry.Record,
		ExportState: entry.ExportState,
		Warning:     sess.Warning(),
	})
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	opts := listOptionsFromQuery(r)
	entries, err := s.records.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRecordStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.records.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	entry, err := s.records.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type grantRequest struct {
	PluginID     string   `json:"plugin_id"`
	Capabilities []string `json:"capabilities"`
	GrantedBy    string   `json:"granted_by"`
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, xerrors.New(xerrors.CodeMalformedInput, "请求体解析失败"))
		return
	}
	if req.PluginID == "" || len(req.Capabilities) == 0 {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "plugin_id 与 capabilities 不能为空"))
		return
	}
	caps := make([]plugin.Capability, 0, len(req.Capabilities))
	for _, c := range req.Capabilities {
		caps = append(caps, plugin.Capability(c))
	}
	if err := s.perms.GrantPermissions(r.Context(), req.PluginID, caps, req.GrantedBy); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "granted"})
}

type revokeRequest struct {
	PluginID   string `json:"plugin_id"`
	Capability string `json:"capability"`
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, xerrors.New(xerrors.CodeMalformedInput, "请求体解析失败"))
		return
	}
	if req.PluginID == "" || req.Capability == "" {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "plugin_id 与 capability 不能为空"))
		return
	}
	if err := s.perms.RevokePermission(r.Context(), req.PluginID, plugin.Capability(req.Capability)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (s *Server) handleGrants(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.registry.Get(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.perms.Grants(id))
}

// handleDashboard 返回仪表盘展示的插件 id 列表,保持加入顺序。
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	members, err := s.dashboard.Members(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if members == nil {
		members = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"plugins": members})
}

// handleDashboardAdd 把已注册的插件加入仪表盘,重复加入为空操作。
func (s *Server) handleDashboardAdd(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.registry.Get(id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.dashboard.Add(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

func (s *Server) handleDashboardRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.dashboard.Remove(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// handleExportDownload 输出某插件全部记录的 CSV。下载同样受
// export-data 权限约束,未授权的插件拿不到导出文件。
func (s *Server) handleExportDownload(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(r.PathValue("id"), ".csv")
	if !s.perms.HasPermission(id, plugin.CapabilityExportData) {
		writeError(w, fmt.Errorf("%w: plugin %s lacks %s",
			plugin.ErrPermissionDenied, id, plugin.CapabilityExportData))
		return
	}
	p, err := s.registry.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	var records []*plugin.DataRecord
	for offset := 0; ; offset += 500 {
		entries, err := s.records.List(r.Context(),
			record.WithPlugins(id),
			record.WithLimit(500),
			record.WithOffset(offset),
			record.WithSortOrder(record.SortByTimestampAsc),
		)
		if err != nil {
			writeError(w, err)
			return
		}
		for _, e := range entries {
			records = append(records, e.Record)
		}
		if len(entries) < 500 {
			break
		}
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".csv"))
	if err := export.Dump(w, p, records); err != nil {
		// 头已发出,只能中断连接。
		return
	}
}

// listOptionsFromQuery 把查询参数翻译成存储层的过滤选项。
func listOptionsFromQuery(r *http.Request) []record.ListOption {
	var opts []record.ListOption
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			opts = append(opts, record.WithLimit(limit))
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil && offset > 0 {
			opts = append(opts, record.WithOffset(offset))
		}
	}
	if raw := q.Get("plugin"); raw != "" {
		opts = append(opts, record.WithPlugins(strings.Split(raw, ",")...))
	}
	if raw := q.Get("state"); raw != "" {
		states := make([]record.ExportState, 0, 2)
		for _, s := range strings.Split(raw, ",") {
			states = append(states, record.ExportState(s))
		}
		opts = append(opts, record.WithStates(states...))
	}
	if q.Get("order") == "asc" {
		opts = append(opts, record.WithSortOrder(record.SortByTimestampAsc))
	}
	return opts
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError 将错误映射为 HTTP 状态码与统一的 JSON 错误体。
func writeError(w http.ResponseWriter, err error) {
	status := xerrors.HTTPStatusOf(err)
	switch {
	case errors.Is(err, plugin.ErrNotRegistered), errors.Is(err, record.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, plugin.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, plugin.ErrNotActive):
		status = http.StatusConflict
	case errors.Is(err, quickadd.ErrMalformedInput),
		errors.Is(err, quickadd.ErrOutOfRange),
		errors.Is(err, quickadd.ErrNotAnOption),
		errors.Is(err, quickadd.ErrEmptyValue),
		errors.Is(err, quickadd.ErrStageUnsatisfied),
		errors.Is(err, quickadd.ErrUnknownField):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  string(xerrors.CodeOf(err)),
	})
}
