// Package permission decides whether a plugin may use a capability. Grants
// are explicit user decisions persisted through the preferences store;
// officially bundled plugins are pre-trusted for the capabilities their
// manifest declares, unless the user explicitly revoked one.
package permission

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "habitkit/internal/errors"
	"habitkit/internal/prefs"
	"habitkit/pkg/logger"
	"habitkit/pkg/plugin"
)

const (
	grantPrefix   = "grants:"
	revokedPrefix = "revoked:"
)

// Grant records one user permission decision.
type Grant struct {
	PluginID   string            `json:"pluginId"`
	Capability plugin.Capability `json:"capability"`
	GrantedBy  string            `json:"grantedBy"`
	// GrantedAt is epoch milliseconds, matching record timestamps.
	GrantedAt int64 `json:"grantedAt"`
}

// TrustSource answers identity questions about registered plugins. The plugin
// registry implements it.
type TrustSource interface {
	TrustLevel(id string) (plugin.TrustLevel, bool)
	Manifest(id string) (plugin.SecurityManifest, bool)
}

// Manager is the single authority for capability checks. All reads and writes
// serialize on one mutex; the grant state is tiny and contention-free in
// practice, so simplicity wins over sharding.
type Manager struct {
	mu     sync.Mutex
	store  prefs.Store
	trust  TrustSource
	grants map[string]Grant
	// revoked holds explicit user revocations. A tombstone outweighs
	// official trust: revoking is how the user overrides the bundle.
	revoked map[string]bool
	clock   func() time.Time
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock overrides the grant timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// NewManager loads persisted grants and tombstones from the preferences
// store and wires the trust source.
func NewManager(ctx context.Context, store prefs.Store, trust TrustSource, opts ...Option) (*Manager, error) {
	m := &Manager{
		store:   store,
		trust:   trust,
		grants:  make(map[string]Grant),
		revoked: make(map[string]bool),
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if err := m.load(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load(ctx context.Context) error {
	granted, err := m.store.List(ctx, grantPrefix)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, err, "load permission grants")
	}
	for key, raw := range granted {
		var grant Grant
		if err := json.Unmarshal([]byte(raw), &grant); err != nil {
			logger.L().Warn("skipping unreadable grant", "key", key, "error", err)
			continue
		}
		m.grants[strings.TrimPrefix(key, grantPrefix)] = grant
	}
	revoked, err := m.store.List(ctx, revokedPrefix)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, err, "load permission tombstones")
	}
	for key := range revoked {
		m.revoked[strings.TrimPrefix(key, revokedPrefix)] = true
	}
	return nil
}

func permKey(pluginID string, cap plugin.Capability) string {
	return pluginID + ":" + string(cap)
}

// HasPermission reports whether the plugin may use the capability right now.
// Unknown plugin ids answer false, never an error: callers gate actions on
// the result and must not crash on a stale id.
func (m *Manager) HasPermission(pluginID string, cap plugin.Capability) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := permKey(pluginID, cap)
	if _, ok := m.grants[key]; ok {
		return true
	}
	if m.revoked[key] {
		return false
	}
	if m.trust == nil {
		return false
	}
	level, known := m.trust.TrustLevel(pluginID)
	if !known || level != plugin.TrustOfficial {
		return false
	}
	manifest, ok := m.trust.Manifest(pluginID)
	return ok && manifest.Requests(cap)
}

// GrantPermissions records one grant per capability. Granting is idempotent
// and clears any tombstone for the same capability.
func (m *Manager) GrantPermissions(ctx context.Context, pluginID string, caps []plugin.Capability, grantedBy string) error {
	if pluginID == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "plugin id cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cap := range caps {
		key := permKey(pluginID, cap)
		if m.revoked[key] {
			if err := m.store.Delete(ctx, revokedPrefix+key); err != nil {
				return apperrors.Wrap(apperrors.CodeStorageFailure, err, "clear revocation")
			}
			delete(m.revoked, key)
		}
		if _, exists := m.grants[key]; exists {
			continue
		}
		grant := Grant{
			PluginID:   pluginID,
			Capability: cap,
			GrantedBy:  grantedBy,
			GrantedAt:  m.clock().UnixMilli(),
		}
		if err := prefs.SetJSON(ctx, m.store, grantPrefix+key, grant); err != nil {
			return apperrors.Wrap(apperrors.CodeStorageFailure, err, "persist grant")
		}
		m.grants[key] = grant
		logger.Audit().Info("capability granted",
			"plugin_id", pluginID,
			"capability", string(cap),
			"granted_by", grantedBy,
		)
	}
	return nil
}

// RevokePermission removes the grant and writes a tombstone so official trust
// cannot silently restore the capability. Takes effect immediately.
func (m *Manager) RevokePermission(ctx context.Context, pluginID string, cap plugin.Capability) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := permKey(pluginID, cap)
	if _, exists := m.grants[key]; exists {
		if err := m.store.Delete(ctx, grantPrefix+key); err != nil {
			return apperrors.Wrap(apperrors.CodeStorageFailure, err, "remove grant")
		}
		delete(m.grants, key)
	}
	if !m.revoked[key] {
		if err := m.store.Set(ctx, revokedPrefix+key, fmt.Sprintf("%d", m.clock().UnixMilli())); err != nil {
			return apperrors.Wrap(apperrors.CodeStorageFailure, err, "persist revocation")
		}
		m.revoked[key] = true
	}
	logger.Audit().Info("capability revoked",
		"plugin_id", pluginID,
		"capability", string(cap),
	)
	return nil
}

// Grants returns the explicit grants recorded for a plugin, sorted by
// capability for stable API output.
func (m *Manager) Grants(pluginID string) []Grant {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Grant
	for key, grant := range m.grants {
		if strings.HasPrefix(key, pluginID+":") {
			out = append(out, grant)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Capability < out[j].Capability })
	return out
}
