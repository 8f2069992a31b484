package permission

import (
	"context"
	"testing"
	"time"

	"habitkit/internal/prefs"
	"habitkit/pkg/plugin"
)

// fakeTrust is a registry stand-in with fixed trust answers.
type fakeTrust struct {
	levels    map[string]plugin.TrustLevel
	manifests map[string]plugin.SecurityManifest
}

func (f *fakeTrust) TrustLevel(id string) (plugin.TrustLevel, bool) {
	level, ok := f.levels[id]
	return level, ok
}

func (f *fakeTrust) Manifest(id string) (plugin.SecurityManifest, bool) {
	m, ok := f.manifests[id]
	return m, ok
}

func newTrust() *fakeTrust {
	return &fakeTrust{
		levels: map[string]plugin.TrustLevel{
			"water":    plugin.TrustOfficial,
			"recorder": plugin.TrustThirdParty,
		},
		manifests: map[string]plugin.SecurityManifest{
			"water": {Capabilities: []plugin.Capability{
				plugin.CapabilityCollectData,
				plugin.CapabilityLocalStorage,
			}},
			"recorder": {Capabilities: []plugin.Capability{
				plugin.CapabilityCollectData,
				plugin.CapabilityMicrophoneAccess,
			}},
		},
	}
}

func newManager(t *testing.T, store prefs.Store) *Manager {
	t.Helper()
	m, err := NewManager(context.Background(), store, newTrust())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestOfficialTrustCoversManifestCapabilities(t *testing.T) {
	m := newManager(t, prefs.NewMemoryStore())

	if !m.HasPermission("water", plugin.CapabilityCollectData) {
		t.Fatal("official plugin should be trusted for a declared capability")
	}
	// Official trust never extends past the manifest.
	if m.HasPermission("water", plugin.CapabilityMicrophoneAccess) {
		t.Fatal("capability outside the manifest must not be trusted")
	}
}

func TestThirdPartyNeedsExplicitGrant(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, prefs.NewMemoryStore())

	if m.HasPermission("recorder", plugin.CapabilityMicrophoneAccess) {
		t.Fatal("ungranted third-party capability must answer false")
	}
	caps := []plugin.Capability{plugin.CapabilityCollectData, plugin.CapabilityMicrophoneAccess}
	if err := m.GrantPermissions(ctx, "recorder", caps, "user"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !m.HasPermission("recorder", plugin.CapabilityMicrophoneAccess) {
		t.Fatal("granted capability should answer true")
	}
}

func TestHasPermissionIsIdempotent(t *testing.T) {
	m := newManager(t, prefs.NewMemoryStore())
	first := m.HasPermission("recorder", plugin.CapabilityMicrophoneAccess)
	for i := 0; i < 10; i++ {
		if got := m.HasPermission("recorder", plugin.CapabilityMicrophoneAccess); got != first {
			t.Fatalf("answer changed between identical calls: %v then %v", first, got)
		}
	}
}

func TestUnknownPluginAnswersFalse(t *testing.T) {
	m := newManager(t, prefs.NewMemoryStore())
	if m.HasPermission("ghost", plugin.CapabilityCollectData) {
		t.Fatal("unknown plugin id must answer false")
	}
}

func TestRevokeOverridesOfficialTrust(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, prefs.NewMemoryStore())

	if err := m.RevokePermission(ctx, "water", plugin.CapabilityCollectData); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if m.HasPermission("water", plugin.CapabilityCollectData) {
		t.Fatal("explicit revocation must beat official trust")
	}
	// Granting again clears the tombstone.
	if err := m.GrantPermissions(ctx, "water", []plugin.Capability{plugin.CapabilityCollectData}, "user"); err != nil {
		t.Fatalf("re-grant: %v", err)
	}
	if !m.HasPermission("water", plugin.CapabilityCollectData) {
		t.Fatal("re-granted capability should answer true")
	}
}

func TestGrantsPersistAcrossManagers(t *testing.T) {
	ctx := context.Background()
	store := prefs.NewMemoryStore()

	fixed := time.UnixMilli(1700000000000)
	m1, err := NewManager(ctx, store, newTrust(), WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := m1.GrantPermissions(ctx, "recorder", []plugin.Capability{plugin.CapabilityMicrophoneAccess}, "user"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := m1.RevokePermission(ctx, "water", plugin.CapabilityLocalStorage); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	m2 := newManager(t, store)
	if !m2.HasPermission("recorder", plugin.CapabilityMicrophoneAccess) {
		t.Fatal("grant did not survive a reload")
	}
	if m2.HasPermission("water", plugin.CapabilityLocalStorage) {
		t.Fatal("tombstone did not survive a reload")
	}
	grants := m2.Grants("recorder")
	if len(grants) != 1 {
		t.Fatalf("expected one grant, got %v", grants)
	}
	if grants[0].GrantedAt != fixed.UnixMilli() || grants[0].GrantedBy != "user" {
		t.Fatalf("grant envelope mismatch: %+v", grants[0])
	}
}

func TestGrantIsIdempotentAndKeepsFirstTimestamp(t *testing.T) {
	ctx := context.Background()
	store := prefs.NewMemoryStore()
	now := time.UnixMilli(1000)
	m, err := NewManager(ctx, store, newTrust(), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	caps := []plugin.Capability{plugin.CapabilityMicrophoneAccess}
	if err := m.GrantPermissions(ctx, "recorder", caps, "user"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	now = time.UnixMilli(2000)
	if err := m.GrantPermissions(ctx, "recorder", caps, "user"); err != nil {
		t.Fatalf("second grant: %v", err)
	}
	grants := m.Grants("recorder")
	if len(grants) != 1 {
		t.Fatalf("expected a single grant, got %d", len(grants))
	}
	if grants[0].GrantedAt != 1000 {
		t.Fatalf("regrant overwrote the original timestamp: %d", grants[0].GrantedAt)
	}
}
