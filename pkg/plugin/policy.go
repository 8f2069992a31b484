package plugin

import (
	"fmt"
	"slices"
)

// CapabilityPolicy is the install-time gate over what a plugin's manifest may
// request. It is distinct from runtime grants: the policy rejects a plugin at
// registration, the permission manager gates enablement afterwards.
type CapabilityPolicy struct {
	Allowed []Capability `yaml:"allowed"`
	Denied  []Capability `yaml:"denied"`
}

// Merge returns a policy using values from other when not present.
func (p CapabilityPolicy) Merge(other CapabilityPolicy) CapabilityPolicy {
	if len(p.Allowed) == 0 {
		p.Allowed = other.Allowed
	}
	if len(p.Denied) == 0 {
		p.Denied = other.Denied
	}
	return p
}

// Check validates a manifest against the policy. Denied capabilities always
// lose; a non-empty allow list rejects anything outside it.
func (p CapabilityPolicy) Check(manifest SecurityManifest) error {
	for _, cap := range manifest.Capabilities {
		if slices.Contains(p.Denied, cap) {
			return fmt.Errorf("capability %s is explicitly denied", cap)
		}
	}
	if len(p.Allowed) == 0 {
		return nil
	}
	for _, cap := range manifest.Capabilities {
		if !slices.Contains(p.Allowed, cap) {
			return fmt.Errorf("capability %s not permitted", cap)
		}
	}
	return nil
}
