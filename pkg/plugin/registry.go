package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Errors returned by the registry. Permission and lifecycle failures are
// surfaced as values so the caller can route to a permission-request or
// retry flow instead of crashing.
var (
	ErrNotRegistered    = errors.New("plugin not registered")
	ErrDuplicatePlugin  = errors.New("plugin already registered")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotActive        = errors.New("plugin not active")
)

// PermissionChecker answers whether a plugin currently holds a capability.
// Implemented by the permission manager; absence of knowledge means false.
type PermissionChecker interface {
	HasPermission(pluginID string, cap Capability) bool
}

// Registry keeps track of registered plugins and orchestrates their
// lifecycle. It enforces a single canonical registration per plugin id and
// gates enablement on the permission checker.
type Registry struct {
	mu       sync.RWMutex
	plugins  map[string]*entry
	perms    PermissionChecker
	defaults CapabilityPolicy
}

type entry struct {
	mu       sync.Mutex
	plugin   Plugin
	state    State
	sessions sync.WaitGroup
}

// RegistryOption modifies the behaviour of a registry instance.
type RegistryOption func(*Registry)

// WithPermissionChecker wires the runtime permission authority.
func WithPermissionChecker(checker PermissionChecker) RegistryOption {
	return func(r *Registry) {
		if checker != nil {
			r.perms = checker
		}
	}
}

// WithDefaultPolicy sets the install-time capability policy applied to every
// registration.
func WithDefaultPolicy(policy CapabilityPolicy) RegistryOption {
	return func(r *Registry) {
		r.defaults = policy
	}
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{plugins: make(map[string]*entry)}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Register records a plugin. It fails loudly on a duplicate id, an invalid
// quick-add schema, or a manifest the capability policy rejects.
func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return errors.New("plugin implementation cannot be nil")
	}
	id := p.ID()
	if id == "" {
		return errors.New("plugin id cannot be empty")
	}
	if err := r.defaults.Check(p.Manifest()); err != nil {
		return fmt.Errorf("plugin %s: %w", id, err)
	}
	if p.SupportsManualEntry() {
		if err := p.QuickAddSchema().Validate(); err != nil {
			return fmt.Errorf("plugin %s schema: %w", id, err)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, id)
	}
	r.plugins[id] = &entry{plugin: p, state: StateRegistered}
	return nil
}

// Enable checks every capability in the plugin's manifest against the
// permission checker and, when all hold, runs Initialize. A missing grant
// returns ErrPermissionDenied naming the capability so the caller can route
// to a permission-request flow.
func (r *Registry) Enable(ctx context.Context, id string) error {
	ent, err := r.get(id)
	if err != nil {
		return err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.state == StateActive {
		return nil
	}
	if r.perms != nil {
		for _, cap := range ent.plugin.Manifest().Capabilities {
			if !r.perms.HasPermission(id, cap) {
				return fmt.Errorf("%w: plugin %s lacks %s", ErrPermissionDenied, id, cap)
			}
		}
	}
	if ent.state == StateRegistered || ent.state == StateStopped {
		if err := ent.plugin.Initialize(ctx); err != nil {
			return fmt.Errorf("initialise plugin %s: %w", id, err)
		}
		ent.state = StateInitialised
	}
	ent.state = StateActive
	return nil
}

// Disable waits for in-flight collection sessions, then runs Cleanup. A
// cleanup failure is surfaced but the plugin still leaves the active state.
func (r *Registry) Disable(ctx context.Context, id string) error {
	ent, err := r.get(id)
	if err != nil {
		return err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.state != StateActive && ent.state != StateInitialised {
		return nil
	}
	ent.sessions.Wait()
	ent.state = StateStopped
	if err := ent.plugin.Cleanup(ctx); err != nil {
		return fmt.Errorf("cleanup plugin %s: %w", id, err)
	}
	return nil
}

// BeginCollection hands out the plugin for one data-collection session. It is
// only permitted while the plugin is active; the returned release function
// must be called when the session completes or cancels.
func (r *Registry) BeginCollection(id string) (Plugin, func(), error) {
	ent, err := r.get(id)
	if err != nil {
		return nil, nil, err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.state != StateActive {
		return nil, nil, fmt.Errorf("%w: %s is %s", ErrNotActive, id, ent.state)
	}
	ent.sessions.Add(1)
	var once sync.Once
	release := func() { once.Do(ent.sessions.Done) }
	return ent.plugin, release, nil
}

// Get returns the registered plugin for an id.
func (r *Registry) Get(id string) (Plugin, error) {
	ent, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return ent.plugin, nil
}

// TrustLevel reports the trust level of a registered plugin. The boolean is
// false for unknown ids.
func (r *Registry) TrustLevel(id string) (TrustLevel, bool) {
	ent, err := r.get(id)
	if err != nil {
		return "", false
	}
	return ent.plugin.TrustLevel(), true
}

// Manifest returns the security manifest of a registered plugin.
func (r *Registry) Manifest(id string) (SecurityManifest, bool) {
	ent, err := r.get(id)
	if err != nil {
		return SecurityManifest{}, false
	}
	return ent.plugin.Manifest(), true
}

// State returns the lifecycle state of a plugin.
func (r *Registry) State(id string) (State, error) {
	ent, err := r.get(id)
	if err != nil {
		return "", err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return ent.state, nil
}

// List returns all registered plugins sorted by id.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plugin, 0, len(r.plugins))
	for _, ent := range r.plugins {
		out = append(out, ent.plugin)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// DisableAll stops every active plugin, joining any cleanup errors.
func (r *Registry) DisableAll(ctx context.Context) error {
	r.mu.RLock()
	ids := make([]string, 0, len(r.plugins))
	for id := range r.plugins {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	var errs []error
	for _, id := range ids {
		if err := r.Disable(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) get(id string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.plugins[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	return ent, nil
}
